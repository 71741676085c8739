package order

import (
	"github.com/shopspring/decimal"
)

// Order groups the line items a customer submitted together. An order is
// never deleted and never reassigned to a different owner; it only
// accumulates state through its items.
type Order struct {
	id         int64
	customerID *int64
	items      []*LineItem
}

// NewOrder creates an empty order for the given owner. A nil owner is
// tolerated for degraded states but notification requires one.
func NewOrder(customerID *int64) *Order {
	return &Order{customerID: customerID}
}

// RestoreOrder rebuilds an order from persisted state
func RestoreOrder(id int64, customerID *int64, items ...*LineItem) *Order {
	o := &Order{id: id, customerID: customerID}
	for _, li := range items {
		li.orderID = id
		o.items = append(o.items, li)
	}
	return o
}

// ID returns the order ID (zero until persisted)
func (o *Order) ID() int64 { return o.id }

// CustomerID returns the owning customer, nil when unowned
func (o *Order) CustomerID() *int64 { return o.customerID }

// Items returns the order's line items in insertion order
func (o *Order) Items() []*LineItem { return o.items }

// Item finds a line item by ID
func (o *Order) Item(id int64) (*LineItem, bool) {
	for _, li := range o.items {
		if li.id == id {
			return li, true
		}
	}
	return nil, false
}

// AddItem attaches a new pending line item, as when a pharmacist opens a
// manual review slot for a prescription the customer phoned in.
func (o *Order) AddItem() *LineItem {
	li := NewLineItem("")
	li.orderID = o.id
	o.items = append(o.items, li)
	return li
}

// AttachUpload attaches a pending line item holding an uploaded
// prescription image.
func (o *Order) AttachUpload(imageFile string) *LineItem {
	li := NewLineItem(imageFile)
	li.orderID = o.id
	o.items = append(o.items, li)
	return li
}

// HasItemIn reports whether any line item is in the given state
func (o *Order) HasItemIn(state ApprovalState) bool {
	for _, li := range o.items {
		if li.approval == state {
			return true
		}
	}
	return false
}

// HasApprovedUnpaid reports whether any approved item awaits settlement
func (o *Order) HasApprovedUnpaid() bool {
	for _, li := range o.items {
		if li.approval == ApprovalApproved && !li.paid {
			return true
		}
	}
	return false
}

// Total computes the order total from assigned drugs and quantities using
// the supplied unit price lookup. Items without a drug or quantity yet
// contribute nothing.
func (o *Order) Total(priceOf func(drugID int64) (decimal.Decimal, bool)) decimal.Decimal {
	total := decimal.Zero
	for _, li := range o.items {
		if li.drugID == nil || li.quantity == nil {
			continue
		}
		price, ok := priceOf(*li.drugID)
		if !ok {
			continue
		}
		total = total.Add(price.Mul(decimal.NewFromInt(int64(*li.quantity))))
	}
	return total
}
