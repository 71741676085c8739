package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pillwise/rx-orders/internal/observability/metrics"
	"github.com/pillwise/rx-orders/pkg/circuitbreaker"
)

// Transport delivers a composed message to a recipient. SMTP, SMS and push
// implementations live behind this boundary.
type Transport interface {
	Send(ctx context.Context, recipientID int64, subject, body string) error
}

// Dispatcher delivers notification intents through a circuit breaker so a
// stalled transport trips open instead of holding delivery workers.
type Dispatcher struct {
	transport Transport
	breaker   *circuitbreaker.CircuitBreaker
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewDispatcher creates a dispatcher. Metrics may be nil in tests.
func NewDispatcher(transport Transport, breaker *circuitbreaker.CircuitBreaker, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		transport: transport,
		breaker:   breaker,
		logger:    logger,
		metrics:   m,
	}
}

// Deliver sends one intent. A returned error means the caller should retry
// later; delivery failures never propagate back into the order state.
func (d *Dispatcher) Deliver(ctx context.Context, in Intent) error {
	err := d.breaker.Execute(ctx, func() error {
		return d.transport.Send(ctx, in.RecipientID, in.Subject, in.Body)
	})
	if err != nil {
		if d.metrics != nil {
			d.metrics.NotificationsFailed.Inc()
		}
		d.logger.Warn("notification delivery failed",
			zap.String("intent_id", in.ID),
			zap.Int64("order_id", in.OrderID),
			zap.Int64("recipient_id", in.RecipientID),
			zap.Error(err))
		return fmt.Errorf("deliver intent %s: %w", in.ID, err)
	}

	if d.metrics != nil {
		d.metrics.NotificationsDelivered.Inc()
	}
	d.logger.Info("notification delivered",
		zap.String("intent_id", in.ID),
		zap.String("kind", string(in.Kind)),
		zap.Int64("order_id", in.OrderID),
		zap.Int64("recipient_id", in.RecipientID))
	return nil
}

// LogTransport is a development transport that only logs the message
type LogTransport struct {
	Logger *zap.Logger
}

// Send implements Transport
func (t LogTransport) Send(_ context.Context, recipientID int64, subject, body string) error {
	logger := t.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("notification (log transport)",
		zap.Int64("recipient_id", recipientID),
		zap.String("subject", subject),
		zap.String("body", body))
	return nil
}
