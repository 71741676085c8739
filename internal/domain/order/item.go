// Package order implements the prescription order aggregate and the
// line item adjudication state machine.
package order

import (
	"fmt"
	"strings"
	"time"
)

// ApprovalState is the adjudication state of a line item. A raw boolean
// cannot distinguish "not yet reviewed" from "denied", so the state is an
// explicit three-variant enumeration.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalDenied   ApprovalState = "denied"
)

// Decision is a pharmacist's verdict for a line item
type Decision string

const (
	DecisionApprove Decision = "approved"
	DecisionDeny    Decision = "denied"
)

// ParseDecision validates a raw status value from the review form
func ParseDecision(s string) (Decision, error) {
	switch Decision(strings.ToLower(strings.TrimSpace(s))) {
	case DecisionApprove:
		return DecisionApprove, nil
	case DecisionDeny:
		return DecisionDeny, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidDecision, s)
}

// FieldUpdate carries the optional corrections a pharmacist may apply to a
// line item alongside (or after) a decision. Nil fields are left untouched.
type FieldUpdate struct {
	DrugID   *int64
	Quantity *int
	Refills  *int
}

// LineItem is the adjudicated unit: one drug, quantity and refill count for
// a single order. It is created Pending and never hard-deleted; denial is a
// revisable state, not erasure.
type LineItem struct {
	id            int64
	orderID       int64
	drugID        *int64
	quantity      *int
	refills       int
	approval      ApprovalState
	denyReason    string
	paid          bool
	dateOrdered   time.Time
	dateDelivered *time.Time
	imageFile     string
}

// NewLineItem creates a pending line item for a freshly uploaded
// prescription image. The drug and quantity stay unset until review.
func NewLineItem(imageFile string) *LineItem {
	return &LineItem{
		approval:    ApprovalPending,
		imageFile:   imageFile,
		dateOrdered: time.Now().UTC(),
	}
}

// ItemState is the persistable snapshot of a line item, used by the
// repository to rehydrate aggregates.
type ItemState struct {
	ID            int64
	OrderID       int64
	DrugID        *int64
	Quantity      *int
	Refills       int
	Approval      ApprovalState
	DenyReason    string
	Paid          bool
	DateOrdered   time.Time
	DateDelivered *time.Time
	ImageFile     string
}

// RestoreLineItem rebuilds a line item from persisted state
func RestoreLineItem(s ItemState) *LineItem {
	return &LineItem{
		id:            s.ID,
		orderID:       s.OrderID,
		drugID:        s.DrugID,
		quantity:      s.Quantity,
		refills:       s.Refills,
		approval:      s.Approval,
		denyReason:    s.DenyReason,
		paid:          s.Paid,
		dateOrdered:   s.DateOrdered,
		dateDelivered: s.DateDelivered,
		imageFile:     s.ImageFile,
	}
}

// State returns the persistable snapshot of the item
func (li *LineItem) State() ItemState {
	return ItemState{
		ID:            li.id,
		OrderID:       li.orderID,
		DrugID:        li.drugID,
		Quantity:      li.quantity,
		Refills:       li.refills,
		Approval:      li.approval,
		DenyReason:    li.denyReason,
		Paid:          li.paid,
		DateOrdered:   li.dateOrdered,
		DateDelivered: li.dateDelivered,
		ImageFile:     li.imageFile,
	}
}

// ID returns the line item ID (zero until persisted)
func (li *LineItem) ID() int64 { return li.id }

// OrderID returns the owning order's ID
func (li *LineItem) OrderID() int64 { return li.orderID }

// DrugID returns the assigned drug, nil before review assigns one
func (li *LineItem) DrugID() *int64 { return li.drugID }

// Quantity returns the dispensed quantity, nil until assigned
func (li *LineItem) Quantity() *int { return li.quantity }

// Refills returns the remaining refill count
func (li *LineItem) Refills() int { return li.refills }

// Approval returns the current adjudication state
func (li *LineItem) Approval() ApprovalState { return li.approval }

// DenyReason returns the denial reason, empty unless the item is denied
func (li *LineItem) DenyReason() string { return li.denyReason }

// Paid reports whether payment has been settled
func (li *LineItem) Paid() bool { return li.paid }

// DateOrdered returns the immutable creation timestamp
func (li *LineItem) DateOrdered() time.Time { return li.dateOrdered }

// DateDelivered returns the fulfillment timestamp, nil until delivered
func (li *LineItem) DateDelivered() *time.Time { return li.dateDelivered }

// ImageFile returns the uploaded prescription artifact reference
func (li *LineItem) ImageFile() string { return li.imageFile }

// Decide applies a pharmacist verdict. It returns true when the item
// actually changed state and a notification should be scheduled.
//
// Re-issuing the decision an item is already in is a no-op for state, deny
// reason and notification; incidental field corrections are applied by the
// caller via ApplyFields either way. Denying without a reason fails with
// ErrInvalidDecision before any mutation.
func (li *LineItem) Decide(decision Decision, denyReason string) (bool, error) {
	switch decision {
	case DecisionApprove:
		if li.approval == ApprovalApproved {
			return false, nil
		}
		li.approval = ApprovalApproved
		li.denyReason = ""
		return true, nil

	case DecisionDeny:
		if li.approval == ApprovalDenied {
			return false, nil
		}
		if strings.TrimSpace(denyReason) == "" {
			return false, fmt.Errorf("%w: denial requires a reason", ErrInvalidDecision)
		}
		li.approval = ApprovalDenied
		li.denyReason = denyReason
		return true, nil
	}

	return false, fmt.Errorf("%w: unknown decision %q", ErrInvalidDecision, decision)
}

// ApplyFields applies the supplied field corrections. Unset fields are left
// untouched so partial batch input never clobbers existing assignments.
func (li *LineItem) ApplyFields(u FieldUpdate) {
	if u.DrugID != nil {
		id := *u.DrugID
		li.drugID = &id
	}
	if u.Quantity != nil {
		q := *u.Quantity
		li.quantity = &q
	}
	if u.Refills != nil && *u.Refills >= 0 {
		li.refills = *u.Refills
	}
}

// SettlePayment marks the item paid. Payment is only ever valid on an
// approved item; settling a pending or denied item fails with
// ErrInvalidDecision and leaves the item untouched.
func (li *LineItem) SettlePayment() error {
	if li.approval != ApprovalApproved {
		return fmt.Errorf("%w: cannot settle payment on %s item", ErrInvalidDecision, li.approval)
	}
	li.paid = true
	return nil
}

// ConsumeRefill decrements the remaining refill count by exactly one.
// Fails with ErrNoRefillsAvailable at zero, leaving the count unchanged.
func (li *LineItem) ConsumeRefill() error {
	if li.refills <= 0 {
		return ErrNoRefillsAvailable
	}
	li.refills--
	return nil
}

// MarkDelivered records fulfillment
func (li *LineItem) MarkDelivered(at time.Time) {
	t := at.UTC()
	li.dateDelivered = &t
}
