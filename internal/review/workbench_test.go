package review

import (
	"context"
	"errors"
	"testing"

	"github.com/pillwise/rx-orders/internal/domain/catalog"
	"github.com/pillwise/rx-orders/internal/domain/identity"
	"github.com/pillwise/rx-orders/internal/domain/order"
	"github.com/pillwise/rx-orders/internal/notify"
	"github.com/shopspring/decimal"
)

// fakeStore holds one in-memory order and replays the transactional
// contract: on error nothing is kept, on success items and notifications
// are visible.
type fakeStore struct {
	order         *order.Order
	notifications []order.Notification
	applyErr      error
	calls         int
}

func (s *fakeStore) ReviewOrder(_ context.Context, orderID int64, apply func(o *order.Order) ([]order.Notification, error)) error {
	s.calls++
	if s.order == nil || s.order.ID() != orderID {
		return order.ErrNotFound
	}
	pending, err := apply(s.order)
	if err != nil {
		return err
	}
	if s.applyErr != nil {
		return s.applyErr
	}
	s.notifications = append(s.notifications, pending...)
	return nil
}

type fakeResolver struct {
	drugs map[string]catalog.Drug
}

func (r fakeResolver) Resolve(_ context.Context, idOrName string) (catalog.Drug, bool, error) {
	d, ok := r.drugs[idOrName]
	return d, ok, nil
}

func newResolver() fakeResolver {
	amox := catalog.Drug{ID: 1, Name: "Amoxicillin", Price: decimal.RequireFromString("12.50")}
	ibup := catalog.Drug{ID: 2, Name: "Ibuprofen", Price: decimal.RequireFromString("4.99")}
	return fakeResolver{drugs: map[string]catalog.Drug{
		"1": amox, "Amoxicillin": amox,
		"2": ibup, "Ibuprofen": ibup,
	}}
}

var (
	pharmacist = identity.Actor{ID: 100, Role: identity.RolePharmacist}
	customer   = identity.Actor{ID: 1, Role: identity.RoleCustomer}
)

func pendingOrder(id int64, itemIDs ...int64) *order.Order {
	items := make([]*order.LineItem, 0, len(itemIDs))
	for _, itemID := range itemIDs {
		items = append(items, order.RestoreLineItem(order.ItemState{
			ID: itemID, Approval: order.ApprovalPending,
		}))
	}
	owner := int64(1)
	return order.RestoreOrder(id, &owner, items...)
}

func TestDecideRequiresReviewer(t *testing.T) {
	store := &fakeStore{order: pendingOrder(10, 100)}
	w := NewWorkbench(store, newResolver(), nil, nil)

	err := w.Decide(context.Background(), customer, 10, Batch{
		Status: "approved",
		Items:  map[string]ItemUpdate{"100": {}},
	})
	if !errors.Is(err, order.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if store.calls != 0 {
		t.Error("store touched despite failed authorization")
	}
}

func TestDecideRejectsUnknownStatus(t *testing.T) {
	store := &fakeStore{order: pendingOrder(10, 100)}
	w := NewWorkbench(store, newResolver(), nil, nil)

	err := w.Decide(context.Background(), pharmacist, 10, Batch{
		Status: "maybe",
		Items:  map[string]ItemUpdate{"100": {}},
	})
	if !errors.Is(err, order.ErrInvalidDecision) {
		t.Fatalf("err = %v, want ErrInvalidDecision", err)
	}
	if store.calls != 0 {
		t.Error("store touched despite invalid status")
	}
}

func TestDecideApprovesBatch(t *testing.T) {
	store := &fakeStore{order: pendingOrder(10, 100, 101)}
	w := NewWorkbench(store, newResolver(), nil, nil)

	qty := 30
	refills := 2
	err := w.Decide(context.Background(), pharmacist, 10, Batch{
		Status: "approved",
		Items: map[string]ItemUpdate{
			"100": {Drug: "Amoxicillin", Quantity: &qty, Refills: &refills},
			"101": {Drug: "2"},
		},
	})
	if err != nil {
		t.Fatalf("decide failed: %v", err)
	}

	li, _ := store.order.Item(100)
	if li.Approval() != order.ApprovalApproved {
		t.Errorf("item 100 state = %s, want approved", li.Approval())
	}
	if li.DrugID() == nil || *li.DrugID() != 1 {
		t.Errorf("item 100 drug = %v, want 1", li.DrugID())
	}
	if li.Quantity() == nil || *li.Quantity() != 30 {
		t.Errorf("item 100 quantity = %v, want 30", li.Quantity())
	}
	if li.Refills() != 2 {
		t.Errorf("item 100 refills = %d, want 2", li.Refills())
	}

	li, _ = store.order.Item(101)
	if li.DrugID() == nil || *li.DrugID() != 2 {
		t.Errorf("item 101 drug = %v, want 2", li.DrugID())
	}

	if len(store.notifications) != 2 {
		t.Fatalf("notifications = %d, want 2", len(store.notifications))
	}
	for _, n := range store.notifications {
		if n.Kind != notify.KindApproved {
			t.Errorf("notification kind = %s, want approved", n.Kind)
		}
	}
}

func TestDecideDenyWithoutReasonAbortsBatch(t *testing.T) {
	store := &fakeStore{order: pendingOrder(10, 100, 101)}
	w := NewWorkbench(store, newResolver(), nil, nil)

	err := w.Decide(context.Background(), pharmacist, 10, Batch{
		Status: "denied",
		Items:  map[string]ItemUpdate{"100": {}, "101": {}},
	})
	if !errors.Is(err, order.ErrInvalidDecision) {
		t.Fatalf("err = %v, want ErrInvalidDecision", err)
	}
	if len(store.notifications) != 0 {
		t.Error("notifications scheduled for an aborted batch")
	}
}

func TestDecideRepeatSkipsNotification(t *testing.T) {
	store := &fakeStore{order: pendingOrder(10, 100)}
	w := NewWorkbench(store, newResolver(), nil, nil)

	batch := Batch{Status: "approved", Items: map[string]ItemUpdate{"100": {}}}
	if err := w.Decide(context.Background(), pharmacist, 10, batch); err != nil {
		t.Fatalf("first decide failed: %v", err)
	}
	if len(store.notifications) != 1 {
		t.Fatalf("notifications after first batch = %d, want 1", len(store.notifications))
	}

	// Re-approving an approved item applies field updates but schedules
	// no second notification.
	qty := 60
	batch.Items["100"] = ItemUpdate{Quantity: &qty}
	if err := w.Decide(context.Background(), pharmacist, 10, batch); err != nil {
		t.Fatalf("repeat decide failed: %v", err)
	}
	if len(store.notifications) != 1 {
		t.Errorf("notifications after repeat = %d, want 1", len(store.notifications))
	}
	li, _ := store.order.Item(100)
	if li.Quantity() == nil || *li.Quantity() != 60 {
		t.Errorf("repeat batch did not apply fields: quantity = %v", li.Quantity())
	}
}

func TestDecideSkipsMalformedKeys(t *testing.T) {
	store := &fakeStore{order: pendingOrder(10, 100)}
	w := NewWorkbench(store, newResolver(), nil, nil)

	err := w.Decide(context.Background(), pharmacist, 10, Batch{
		Status: "approved",
		Items: map[string]ItemUpdate{
			"not-a-number": {Drug: "Ibuprofen"},
			"100":          {},
		},
	})
	if err != nil {
		t.Fatalf("decide failed: %v", err)
	}

	li, _ := store.order.Item(100)
	if li.Approval() != order.ApprovalApproved {
		t.Error("valid key not processed alongside malformed one")
	}
	if len(store.notifications) != 1 {
		t.Errorf("notifications = %d, want 1", len(store.notifications))
	}
}

func TestDecideToleratesUnknownDrug(t *testing.T) {
	drugID := int64(1)
	owner := int64(1)
	store := &fakeStore{order: order.RestoreOrder(10, &owner,
		order.RestoreLineItem(order.ItemState{ID: 100, DrugID: &drugID, Approval: order.ApprovalPending}),
	)}
	w := NewWorkbench(store, newResolver(), nil, nil)

	err := w.Decide(context.Background(), pharmacist, 10, Batch{
		Status: "approved",
		Items:  map[string]ItemUpdate{"100": {Drug: "Unobtainium"}},
	})
	if err != nil {
		t.Fatalf("decide failed: %v", err)
	}

	li, _ := store.order.Item(100)
	if li.Approval() != order.ApprovalApproved {
		t.Error("unknown drug reference blocked the decision")
	}
	if li.DrugID() == nil || *li.DrugID() != 1 {
		t.Error("unknown drug reference clobbered the existing assignment")
	}
}

func TestDecideUnknownKeyOpensManualSlot(t *testing.T) {
	store := &fakeStore{order: pendingOrder(10, 100)}
	w := NewWorkbench(store, newResolver(), nil, nil)

	err := w.Decide(context.Background(), pharmacist, 10, Batch{
		Status: "approved",
		Items: map[string]ItemUpdate{
			"100": {},
			"999": {Drug: "Ibuprofen"},
		},
	})
	if err != nil {
		t.Fatalf("decide failed: %v", err)
	}

	if len(store.order.Items()) != 2 {
		t.Fatalf("items = %d, want 2", len(store.order.Items()))
	}
	if len(store.notifications) != 2 {
		t.Errorf("notifications = %d, want 2", len(store.notifications))
	}
}

func TestDecidePersistFailureDropsNotifications(t *testing.T) {
	persistErr := errors.New("connection reset")
	store := &fakeStore{order: pendingOrder(10, 100), applyErr: persistErr}
	w := NewWorkbench(store, newResolver(), nil, nil)

	err := w.Decide(context.Background(), pharmacist, 10, Batch{
		Status: "approved",
		Items:  map[string]ItemUpdate{"100": {}},
	})
	if !errors.Is(err, persistErr) {
		t.Fatalf("err = %v, want persist failure", err)
	}
	if len(store.notifications) != 0 {
		t.Error("notifications kept despite failed persist")
	}
}
