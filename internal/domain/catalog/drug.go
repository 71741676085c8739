// Package catalog provides the read-only drug reference data.
package catalog

import (
	"context"

	"github.com/shopspring/decimal"
)

// Drug is a dispensable product with a unit price. Names are unique, which
// lets review batches reference a drug by name as well as by ID.
type Drug struct {
	ID    int64
	Name  string
	Price decimal.Decimal
	Stock int
}

// Resolver resolves a drug reference supplied as either a numeric ID or a
// unique name. Implementations return ok=false on a miss rather than an
// error so a garbled batch field can be skipped without aborting the batch.
type Resolver interface {
	Resolve(ctx context.Context, idOrName string) (Drug, bool, error)
}
