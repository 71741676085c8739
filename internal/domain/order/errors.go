package order

import "errors"

// Domain failure taxonomy. Handlers map these onto HTTP statuses; everything
// else is treated as an internal error.
var (
	// ErrNotFound indicates the referenced order or line item does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates the caller lacks the reviewer capability.
	ErrUnauthorized = errors.New("reviewer capability required")

	// ErrInvalidDecision indicates a malformed adjudication: a denial without
	// a reason, or a payment settlement on an item that is not approved.
	ErrInvalidDecision = errors.New("invalid decision")

	// ErrNoRefillsAvailable indicates a refill consumption on an exhausted item.
	ErrNoRefillsAvailable = errors.New("no refills available")
)
