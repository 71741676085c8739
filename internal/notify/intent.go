// Package notify models customer notifications for adjudication outcomes.
//
// The engine never talks to a mail transport directly: a decision records an
// Intent in the transactional outbox, the relay publishes it to Kafka, and
// the notify worker delivers it. A transport outage therefore cannot block
// or roll back an adjudication.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the adjudication outcome being communicated
type Kind string

const (
	KindApproved Kind = "approved"
	KindDenied   Kind = "denied"
)

// Intent is a notification the engine wants delivered to a customer.
// The ID doubles as the idempotency key for at-least-once delivery.
type Intent struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	RecipientID int64     `json:"recipient_id"`
	OrderID     int64     `json:"order_id"`
	ItemID      int64     `json:"item_id"`
	DrugName    string    `json:"drug_name,omitempty"`
	DenyReason  string    `json:"deny_reason,omitempty"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewIntent builds a notification intent with a composed subject and body
func NewIntent(kind Kind, recipientID, orderID, itemID int64, drugName, denyReason string) Intent {
	in := Intent{
		ID:          uuid.New().String(),
		Kind:        kind,
		RecipientID: recipientID,
		OrderID:     orderID,
		ItemID:      itemID,
		DrugName:    drugName,
		DenyReason:  denyReason,
		CreatedAt:   time.Now().UTC(),
	}
	in.Subject, in.Body = Compose(kind, orderID, drugName, denyReason)
	return in
}

// Compose renders the human-readable message for an outcome
func Compose(kind Kind, orderID int64, drugName, denyReason string) (subject, body string) {
	item := "your prescription"
	if drugName != "" {
		item = "your prescription for " + drugName
	}

	switch kind {
	case KindDenied:
		subject = fmt.Sprintf("Prescription order #%d denied", orderID)
		body = fmt.Sprintf("The pharmacist has denied %s.", item)
		if denyReason != "" {
			body += " Reason: " + denyReason
		}
	default:
		subject = fmt.Sprintf("Prescription order #%d approved", orderID)
		body = fmt.Sprintf("The pharmacist has approved %s. You can now complete payment from your dashboard.", item)
	}
	return subject, body
}

// Payload marshals the intent for the outbox / Kafka
func (in Intent) Payload() (json.RawMessage, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal intent: %w", err)
	}
	return b, nil
}
