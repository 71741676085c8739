// Package kafka provides Kafka-compatible streaming with franz-go.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Topic names for the order lifecycle engine
const (
	// TopicNotificationIntents carries notification intents from the outbox
	// relay to the notify worker.
	TopicNotificationIntents = "notifications.intents"
	// TopicNotificationDeadLetter receives intents that could not be
	// published or delivered after all retries.
	TopicNotificationDeadLetter = "notifications.deadletter"
	// TopicOrderAudit carries adjudication audit records
	TopicOrderAudit = "orders.audit"
)

// TopicConfig holds configuration for one topic
type TopicConfig struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
	Configs           map[string]*string
}

// DefaultTopicConfigs returns the topics the engine needs. Volumes are
// modest, so partition counts stay small.
func DefaultTopicConfigs() []TopicConfig {
	ptr := func(s string) *string { return &s }

	retention7d := map[string]*string{
		"retention.ms":     ptr("604800000"),
		"cleanup.policy":   ptr("delete"),
		"compression.type": ptr("lz4"),
	}

	return []TopicConfig{
		{Name: TopicNotificationIntents, Partitions: 3, ReplicationFactor: 1, Configs: retention7d},
		{Name: TopicNotificationDeadLetter, Partitions: 1, ReplicationFactor: 1, Configs: retention7d},
		{Name: TopicOrderAudit, Partitions: 3, ReplicationFactor: 1, Configs: retention7d},
	}
}

// EnsureTopics creates any missing topics. Safe to call on every startup.
func EnsureTopics(ctx context.Context, brokers []string, configs []TopicConfig, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return fmt.Errorf("create admin client: %w", err)
	}
	defer client.Close()

	adm := kadm.NewClient(client)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	existing, err := adm.ListTopics(ctx)
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}

	for _, tc := range configs {
		if existing.Has(tc.Name) {
			continue
		}
		_, err := adm.CreateTopic(ctx, tc.Partitions, tc.ReplicationFactor, tc.Configs, tc.Name)
		if err != nil {
			return fmt.Errorf("create topic %s: %w", tc.Name, err)
		}
		logger.Info("topic created",
			zap.String("topic", tc.Name),
			zap.Int32("partitions", tc.Partitions))
	}
	return nil
}
