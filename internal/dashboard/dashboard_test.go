package dashboard

import (
	"context"
	"testing"

	"github.com/pillwise/rx-orders/internal/domain/identity"
	"github.com/pillwise/rx-orders/internal/domain/order"
)

func ptrInt64(v int64) *int64 { return &v }

func item(id int64, state order.ApprovalState, paid bool) *order.LineItem {
	return order.RestoreLineItem(order.ItemState{ID: id, Approval: state, Paid: paid})
}

func TestTally(t *testing.T) {
	orders := []*order.Order{
		// Pending and denied items in one order: counts once in each bucket.
		order.RestoreOrder(1, ptrInt64(1),
			item(10, order.ApprovalPending, false),
			item(11, order.ApprovalDenied, false),
		),
		// Approved but unpaid.
		order.RestoreOrder(2, ptrInt64(1),
			item(12, order.ApprovalApproved, false),
		),
		// Fully settled, contributes nothing.
		order.RestoreOrder(3, ptrInt64(2),
			item(13, order.ApprovalApproved, true),
		),
		// Two pending items still count the order once.
		order.RestoreOrder(4, ptrInt64(2),
			item(14, order.ApprovalPending, false),
			item(15, order.ApprovalPending, false),
		),
	}

	c := Tally(orders)
	if c.Unapproved != 2 {
		t.Errorf("unapproved = %d, want 2", c.Unapproved)
	}
	if c.Denied != 1 {
		t.Errorf("denied = %d, want 1", c.Denied)
	}
	if c.UnpaidApproved != 1 {
		t.Errorf("unpaid approved = %d, want 1", c.UnpaidApproved)
	}
}

func TestTallyEmpty(t *testing.T) {
	c := Tally(nil)
	if c != (Counts{}) {
		t.Errorf("tally of no orders = %+v, want zeroes", c)
	}
}

type fakeLister struct {
	all      []*order.Order
	byOwner  map[int64][]*order.Order
	allCalls int
}

func (f *fakeLister) ListAll(context.Context) ([]*order.Order, error) {
	f.allCalls++
	return f.all, nil
}

func (f *fakeLister) ListByCustomer(_ context.Context, customerID int64) ([]*order.Order, error) {
	return f.byOwner[customerID], nil
}

func TestForActorScopesByRole(t *testing.T) {
	mine := order.RestoreOrder(1, ptrInt64(1), item(10, order.ApprovalPending, false))
	theirs := order.RestoreOrder(2, ptrInt64(2), item(11, order.ApprovalDenied, false))

	lister := &fakeLister{
		all:     []*order.Order{mine, theirs},
		byOwner: map[int64][]*order.Order{1: {mine}},
	}
	svc := NewService(lister)

	// Customers see only their own orders.
	c, err := svc.ForActor(context.Background(), identity.Actor{ID: 1, Role: identity.RoleCustomer})
	if err != nil {
		t.Fatalf("customer tally failed: %v", err)
	}
	if c.Unapproved != 1 || c.Denied != 0 {
		t.Errorf("customer counts = %+v", c)
	}
	if lister.allCalls != 0 {
		t.Error("customer tally loaded the full order set")
	}

	// Pharmacists see the whole workload.
	c, err = svc.ForActor(context.Background(), identity.Actor{ID: 100, Role: identity.RolePharmacist})
	if err != nil {
		t.Fatalf("pharmacist tally failed: %v", err)
	}
	if c.Unapproved != 1 || c.Denied != 1 {
		t.Errorf("pharmacist counts = %+v", c)
	}
}
