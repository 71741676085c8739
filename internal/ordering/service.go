// Package ordering implements the customer-triggered order operations:
// prescription submission, payment settlement and refill consumption.
package ordering

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pillwise/rx-orders/internal/domain/order"
	"github.com/pillwise/rx-orders/internal/observability/metrics"
)

// Store is the persistence surface the service needs
type Store interface {
	CreateSubmission(ctx context.Context, customerID int64, imageFile string) (*order.Order, error)
	MutateItem(ctx context.Context, itemID int64, fn func(li *order.LineItem) error) error
	ListByCustomer(ctx context.Context, customerID int64) ([]*order.Order, error)
}

// Service exposes the order lifecycle operations outside review
type Service struct {
	store   Store
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewService creates an ordering service
func NewService(store Store, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, metrics: m}
}

// Submission identifies a freshly created order and its pending line item
type Submission struct {
	OrderID int64
	ItemID  int64
}

// SubmitPrescription creates a new order with one pending line item holding
// the uploaded prescription image.
func (s *Service) SubmitPrescription(ctx context.Context, customerID int64, imageFile string) (Submission, error) {
	o, err := s.store.CreateSubmission(ctx, customerID, imageFile)
	if err != nil {
		return Submission{}, err
	}
	if s.metrics != nil {
		s.metrics.OrdersSubmitted.Inc()
	}
	return Submission{OrderID: o.ID(), ItemID: o.Items()[0].ID()}, nil
}

// SettlePayment marks an approved line item as paid. Settling an item that
// is not approved fails with ErrInvalidDecision; a missing item fails with
// ErrNotFound. The row lock held by the store serializes concurrent calls.
func (s *Service) SettlePayment(ctx context.Context, itemID int64) error {
	err := s.store.MutateItem(ctx, itemID, func(li *order.LineItem) error {
		return li.SettlePayment()
	})
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.PaymentsSettled.Inc()
	}
	s.logger.Info("payment settled", zap.Int64("item_id", itemID))
	return nil
}

// ConsumeRefill decrements a line item's refill count by one. Fails with
// ErrNoRefillsAvailable when the count is already zero.
func (s *Service) ConsumeRefill(ctx context.Context, itemID int64) error {
	err := s.store.MutateItem(ctx, itemID, func(li *order.LineItem) error {
		return li.ConsumeRefill()
	})
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RefillsConsumed.Inc()
	}
	s.logger.Info("refill consumed", zap.Int64("item_id", itemID))
	return nil
}

// MarkDelivered records fulfillment of a paid line item
func (s *Service) MarkDelivered(ctx context.Context, itemID int64) error {
	err := s.store.MutateItem(ctx, itemID, func(li *order.LineItem) error {
		if !li.Paid() {
			return fmt.Errorf("%w: cannot deliver an unpaid item", order.ErrInvalidDecision)
		}
		li.MarkDelivered(time.Now())
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("item delivered", zap.Int64("item_id", itemID))
	return nil
}

// History returns a customer's orders, newest first
func (s *Service) History(ctx context.Context, customerID int64) ([]*order.Order, error) {
	return s.store.ListByCustomer(ctx, customerID)
}
