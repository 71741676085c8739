// Package idempotency provides the inbox pattern for exactly-once handling
// of at-least-once deliveries. The notify worker keys the inbox by intent ID
// so a redelivered Kafka record never emails the customer twice.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Status is the processing status of an inbox entry
type Status string

const (
	StatusStarted     Status = "STARTED"
	StatusFinished    Status = "FINISHED"
	StatusRecoverable Status = "RECOVERABLE"
)

// Config holds inbox configuration
type Config struct {
	// TTL is how long finished entries are retained
	TTL time.Duration
	// CleanupInterval is how often expired entries are purged
	CleanupInterval time.Duration
	// RecoveryTimeout is when a STARTED entry is considered abandoned
	RecoveryTimeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		TTL:             7 * 24 * time.Hour,
		CleanupInterval: 1 * time.Hour,
		RecoveryTimeout: 5 * time.Minute,
	}
}

// Inbox tracks which messages have already been handled
type Inbox struct {
	pool   *pgxpool.Pool
	config Config
	logger *zap.Logger
	tracer trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an inbox
func New(pool *pgxpool.Pool, cfg Config, logger *zap.Logger) *Inbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Inbox{
		pool:   pool,
		config: cfg,
		logger: logger,
		tracer: otel.Tracer("idempotency-inbox"),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ErrInProgress indicates another handler currently holds the key
var ErrInProgress = errors.New("message in progress by another handler")

// HandlerFunc processes a message exactly once
type HandlerFunc func(ctx context.Context, payload json.RawMessage) error

// Process runs fn unless the key has already been handled. A redelivery of
// a finished key returns nil without invoking fn; a failed attempt leaves
// the key recoverable so the next delivery retries.
func (i *Inbox) Process(ctx context.Context, key, handlerName string, payload json.RawMessage, fn HandlerFunc) error {
	ctx, span := i.tracer.Start(ctx, "inbox_process",
		trace.WithAttributes(
			attribute.String("idempotency_key", key),
			attribute.String("handler", handlerName),
		))
	defer span.End()

	entry, err := i.getEntry(ctx, key)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("check inbox: %w", err)
	}

	if entry != nil {
		switch entry.status {
		case StatusFinished:
			span.SetAttributes(attribute.Bool("duplicate", true))
			return nil
		case StatusStarted:
			if time.Since(entry.updatedAt) <= i.config.RecoveryTimeout {
				return ErrInProgress
			}
			if err := i.markStatus(ctx, key, StatusRecoverable); err != nil {
				return fmt.Errorf("mark recoverable: %w", err)
			}
		case StatusRecoverable:
			span.SetAttributes(attribute.Bool("recovered", true))
		}
	}

	if err := i.claim(ctx, key, handlerName, payload); err != nil {
		return err
	}

	if handlerErr := fn(ctx, payload); handlerErr != nil {
		if err := i.markStatus(ctx, key, StatusRecoverable); err != nil {
			i.logger.Error("mark recoverable failed", zap.Error(err))
		}
		span.RecordError(handlerErr)
		return handlerErr
	}

	if err := i.markStatus(ctx, key, StatusFinished); err != nil {
		// The handler succeeded; a duplicate delivery is the worst case.
		i.logger.Error("mark finished failed", zap.Error(err))
	}
	return nil
}

type inboxEntry struct {
	status    Status
	updatedAt time.Time
}

func (i *Inbox) getEntry(ctx context.Context, key string) (*inboxEntry, error) {
	entry := &inboxEntry{}
	err := i.pool.QueryRow(ctx,
		`SELECT status, updated_at FROM inbox WHERE idempotency_key = $1`, key).
		Scan(&entry.status, &entry.updatedAt)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// claim inserts the key as STARTED, or takes over a RECOVERABLE one
func (i *Inbox) claim(ctx context.Context, key, handlerName string, payload json.RawMessage) error {
	expiresAt := time.Now().Add(i.config.TTL)

	var returned string
	err := i.pool.QueryRow(ctx, `
		INSERT INTO inbox (idempotency_key, handler_name, status, payload, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (idempotency_key) DO UPDATE
		SET status = $3, updated_at = NOW()
		WHERE inbox.status = 'RECOVERABLE'
		RETURNING idempotency_key`,
		key, handlerName, StatusStarted, payload, expiresAt).Scan(&returned)
	if errors.Is(err, pgx.ErrNoRows) {
		// Conflicting row is neither new nor recoverable.
		return ErrInProgress
	}
	if err != nil {
		return fmt.Errorf("claim inbox key: %w", err)
	}
	return nil
}

func (i *Inbox) markStatus(ctx context.Context, key string, status Status) error {
	_, err := i.pool.Exec(ctx,
		`UPDATE inbox SET status = $1, updated_at = NOW() WHERE idempotency_key = $2`,
		status, key)
	return err
}

// StartCleanup starts the background purge of expired entries
func (i *Inbox) StartCleanup() {
	go i.cleanupLoop()
	i.logger.Info("inbox cleanup started", zap.Duration("interval", i.config.CleanupInterval))
}

// Stop stops the cleanup loop
func (i *Inbox) Stop() {
	i.cancel()
	<-i.done
	i.logger.Info("inbox stopped")
}

func (i *Inbox) cleanupLoop() {
	defer close(i.done)

	ticker := time.NewTicker(i.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-i.ctx.Done():
			return
		case <-ticker.C:
			if err := i.cleanup(i.ctx); err != nil {
				i.logger.Error("inbox cleanup failed", zap.Error(err))
			}
		}
	}
}

func (i *Inbox) cleanup(ctx context.Context) error {
	result, err := i.pool.Exec(ctx, `DELETE FROM inbox WHERE expires_at < NOW()`)
	if err != nil {
		return err
	}
	if result.RowsAffected() > 0 {
		i.logger.Info("inbox cleanup completed", zap.Int64("deleted", result.RowsAffected()))
	}
	return nil
}

// RecoverStale marks abandoned STARTED entries as RECOVERABLE, for use
// after an unclean worker shutdown.
func (i *Inbox) RecoverStale(ctx context.Context) (int64, error) {
	result, err := i.pool.Exec(ctx, `
		UPDATE inbox
		SET status = 'RECOVERABLE', updated_at = NOW()
		WHERE status = 'STARTED'
		  AND updated_at < NOW() - make_interval(secs => $1)`,
		i.config.RecoveryTimeout.Seconds())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
