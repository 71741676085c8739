// Package dashboard computes per-actor summary counts.
//
// The tally is a stateless function over a freshly loaded snapshot of the
// persisted orders. Nothing is cached and no process-wide counters exist:
// correctness over latency, since volumes are modest.
package dashboard

import (
	"context"

	"github.com/pillwise/rx-orders/internal/domain/identity"
	"github.com/pillwise/rx-orders/internal/domain/order"
)

// Counts is the per-actor dashboard summary. For a reviewer only Unapproved
// is meaningful: the number of orders awaiting adjudication.
type Counts struct {
	// Unapproved is the number of distinct orders with at least one
	// pending line item.
	Unapproved int `json:"unapproved_count"`
	// Denied is the number of distinct orders with at least one denied
	// line item.
	Denied int `json:"denied_count"`
	// UnpaidApproved is the number of distinct orders with an approved
	// item awaiting payment.
	UnpaidApproved int `json:"unpaid_approved_count"`
}

// Tally computes counts over an order snapshot
func Tally(orders []*order.Order) Counts {
	var c Counts
	for _, o := range orders {
		if o.HasItemIn(order.ApprovalPending) {
			c.Unapproved++
		}
		if o.HasItemIn(order.ApprovalDenied) {
			c.Denied++
		}
		if o.HasApprovedUnpaid() {
			c.UnpaidApproved++
		}
	}
	return c
}

// Lister loads the order snapshot the tally runs over
type Lister interface {
	ListByCustomer(ctx context.Context, customerID int64) ([]*order.Order, error)
	ListAll(ctx context.Context) ([]*order.Order, error)
}

// Service computes dashboard counts for an actor
type Service struct {
	store Lister
}

// NewService creates a dashboard service
func NewService(store Lister) *Service {
	return &Service{store: store}
}

// ForActor returns the counts the actor's dashboard displays: a reviewer
// sees the whole queue, a customer sees only their own orders.
func (s *Service) ForActor(ctx context.Context, actor identity.Actor) (Counts, error) {
	var (
		orders []*order.Order
		err    error
	)
	if actor.CanReview() {
		orders, err = s.store.ListAll(ctx)
	} else {
		orders, err = s.store.ListByCustomer(ctx, actor.ID)
	}
	if err != nil {
		return Counts{}, err
	}
	return Tally(orders), nil
}
