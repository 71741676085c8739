// Package review implements the pharmacist review workbench: one batch
// decision applied atomically across an order's line items.
package review

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/pillwise/rx-orders/internal/domain/catalog"
	"github.com/pillwise/rx-orders/internal/domain/identity"
	"github.com/pillwise/rx-orders/internal/domain/order"
	"github.com/pillwise/rx-orders/internal/notify"
	"github.com/pillwise/rx-orders/internal/observability/metrics"
)

// ItemUpdate carries the optional field corrections for one batch key.
// Drug is a reference by ID or unique name; an unresolvable reference
// leaves the item's drug assignment unchanged.
type ItemUpdate struct {
	Drug     string `json:"drug,omitempty"`
	Quantity *int   `json:"quantity,omitempty"`
	Refills  *int   `json:"refills,omitempty"`
}

// Batch is one pharmacist submission for a single order. Keys are line item
// identifiers; a key that does not match an existing item creates a new
// pending item on the order under review. Status and DenyReason are
// order-level and apply to every item the batch touches.
type Batch struct {
	Status     string                `json:"status"`
	DenyReason string                `json:"deny_reason,omitempty"`
	Items      map[string]ItemUpdate `json:"items"`
}

// Store persists a review batch as one unit of work
type Store interface {
	ReviewOrder(ctx context.Context, orderID int64, apply func(o *order.Order) ([]order.Notification, error)) error
}

// Workbench applies review batches
type Workbench struct {
	store   Store
	drugs   catalog.Resolver
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewWorkbench creates a review workbench. Metrics may be nil in tests.
func NewWorkbench(store Store, drugs catalog.Resolver, m *metrics.Metrics, logger *zap.Logger) *Workbench {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workbench{store: store, drugs: drugs, logger: logger, metrics: m}
}

// Decide validates and applies a pharmacist's batch decision. All updates
// commit together or not at all; a decision that actually changes an item's
// state schedules a notification to the order's owner in the same commit.
//
// Individual malformed keys are skipped, not fatal: the batch mirrors a
// form submission and partial garbling must not reject the reviewable rest.
// A denial without a reason aborts the whole batch before anything commits.
func (w *Workbench) Decide(ctx context.Context, actor identity.Actor, orderID int64, b Batch) error {
	if !actor.CanReview() {
		return fmt.Errorf("actor %d: %w", actor.ID, order.ErrUnauthorized)
	}

	decision, err := order.ParseDecision(b.Status)
	if err != nil {
		return err
	}

	start := time.Now()
	decided := 0
	err = w.store.ReviewOrder(ctx, orderID, func(o *order.Order) ([]order.Notification, error) {
		var pending []order.Notification
		decided = 0

		for _, key := range sortedKeys(b.Items) {
			upd := b.Items[key]

			itemID, convErr := strconv.ParseInt(key, 10, 64)
			if convErr != nil {
				w.logger.Warn("skipping malformed batch key",
					zap.Int64("order_id", orderID),
					zap.String("key", key))
				continue
			}

			li, ok := o.Item(itemID)
			if !ok {
				// A key without a persisted item is a manual slot the
				// pharmacist is opening on this order.
				li = o.AddItem()
			}

			fields, drugName := w.resolveFields(ctx, orderID, upd)

			changed, err := li.Decide(decision, b.DenyReason)
			if err != nil {
				return nil, err
			}
			li.ApplyFields(fields)
			decided++

			if changed {
				pending = append(pending, order.Notification{
					Item:     li,
					Kind:     decisionKind(decision),
					DrugName: drugName,
					Reason:   b.DenyReason,
				})
			}
		}

		return pending, nil
	})
	if err != nil {
		return err
	}

	if w.metrics != nil {
		w.metrics.ItemsDecided.WithLabelValues(string(decision)).Add(float64(decided))
		w.metrics.ReviewBatchDuration.Observe(time.Since(start).Seconds())
	}

	w.logger.Info("review batch applied",
		zap.Int64("order_id", orderID),
		zap.Int64("reviewer_id", actor.ID),
		zap.String("decision", string(decision)),
		zap.Int("items", decided))
	return nil
}

// resolveFields turns a raw item update into typed field corrections. Drug
// resolution is tolerant: a reference matching neither an ID nor a name is
// dropped so the rest of the batch proceeds.
func (w *Workbench) resolveFields(ctx context.Context, orderID int64, upd ItemUpdate) (order.FieldUpdate, string) {
	fields := order.FieldUpdate{
		Quantity: upd.Quantity,
		Refills:  upd.Refills,
	}

	if upd.Drug == "" {
		return fields, ""
	}

	drug, ok, err := w.drugs.Resolve(ctx, upd.Drug)
	if err != nil {
		w.logger.Error("drug resolution failed",
			zap.Int64("order_id", orderID),
			zap.String("drug_ref", upd.Drug),
			zap.Error(err))
		return fields, ""
	}
	if !ok {
		w.logger.Warn("unknown drug reference, leaving assignment unchanged",
			zap.Int64("order_id", orderID),
			zap.String("drug_ref", upd.Drug))
		return fields, ""
	}

	fields.DrugID = &drug.ID
	return fields, drug.Name
}

func decisionKind(d order.Decision) notify.Kind {
	if d == order.DecisionDeny {
		return notify.KindDenied
	}
	return notify.KindApproved
}

func sortedKeys(m map[string]ItemUpdate) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
