package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/pillwise/rx-orders/internal/infrastructure/kafka"
	"github.com/pillwise/rx-orders/internal/infrastructure/postgres"
	"github.com/pillwise/rx-orders/internal/notify"
)

// Repository persists orders and line items. All mutating operations run in
// a transaction holding row locks on the touched line items, which gives the
// per-item serialization that keeps concurrent refill consumption and
// re-decisions from losing updates.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

// NewRepository creates an order repository
func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("order-repository"),
	}
}

const itemColumns = `id, order_id, drug_id, quantity, refills, approval_state,
       deny_reason, paid, date_ordered, date_delivered, image_file`

func scanItem(row pgx.Row) (*LineItem, error) {
	var s ItemState
	var denyReason, imageFile *string
	err := row.Scan(&s.ID, &s.OrderID, &s.DrugID, &s.Quantity, &s.Refills,
		&s.Approval, &denyReason, &s.Paid, &s.DateOrdered, &s.DateDelivered, &imageFile)
	if err != nil {
		return nil, err
	}
	if denyReason != nil {
		s.DenyReason = *denyReason
	}
	if imageFile != nil {
		s.ImageFile = *imageFile
	}
	return RestoreLineItem(s), nil
}

// CreateSubmission inserts a new order with one pending line item holding
// the uploaded prescription image. Returns the persisted aggregate.
func (r *Repository) CreateSubmission(ctx context.Context, customerID int64, imageFile string) (*Order, error) {
	ctx, span := r.tracer.Start(ctx, "order_create_submission",
		trace.WithAttributes(attribute.Int64("customer_id", customerID)))
	defer span.End()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var orderID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (customer_id) VALUES ($1) RETURNING id`,
		customerID).Scan(&orderID)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	item := NewLineItem(imageFile)
	item.orderID = orderID
	if err := insertItem(ctx, tx, item); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	r.logger.Info("prescription submitted",
		zap.Int64("order_id", orderID),
		zap.Int64("item_id", item.id),
		zap.Int64("customer_id", customerID))

	return RestoreOrder(orderID, &customerID, item), nil
}

// Get loads an order with all its line items
func (r *Repository) Get(ctx context.Context, orderID int64) (*Order, error) {
	var customerID *int64
	err := r.pool.QueryRow(ctx,
		`SELECT customer_id FROM orders WHERE id = $1`, orderID).Scan(&customerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}

	items, err := r.queryItems(ctx, r.pool,
		`SELECT `+itemColumns+` FROM line_items WHERE order_id = $1 ORDER BY id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	return RestoreOrder(orderID, customerID, items...), nil
}

// Notification is a pending customer notification produced by a review
// batch. It references the line item directly so items created by the batch
// pick up their assigned IDs before the intent is written.
type Notification struct {
	Item     *LineItem
	Kind     notify.Kind
	DrugName string
	Reason   string
}

// ReviewOrder runs a review batch inside a single transaction. It locks the
// order and its line items, rebuilds the aggregate, invokes apply, persists
// every item (inserting any the batch created) and writes one outbox entry
// per pending notification. Any error from apply or persistence rolls the
// whole batch back.
func (r *Repository) ReviewOrder(ctx context.Context, orderID int64, apply func(o *Order) ([]Notification, error)) error {
	ctx, span := r.tracer.Start(ctx, "order_review_batch",
		trace.WithAttributes(attribute.Int64("order_id", orderID)))
	defer span.End()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var customerID *int64
	err = tx.QueryRow(ctx,
		`SELECT customer_id FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&customerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lock order: %w", err)
	}

	items, err := r.queryItems(ctx, tx,
		`SELECT `+itemColumns+` FROM line_items WHERE order_id = $1 ORDER BY id ASC FOR UPDATE`, orderID)
	if err != nil {
		return err
	}
	o := RestoreOrder(orderID, customerID, items...)

	pending, err := apply(o)
	if err != nil {
		span.RecordError(err)
		return err
	}

	for _, li := range o.items {
		if li.id == 0 {
			err = insertItem(ctx, tx, li)
		} else {
			err = updateItem(ctx, tx, li)
		}
		if err != nil {
			span.RecordError(err)
			return err
		}
	}

	written := 0
	for _, n := range pending {
		if o.customerID == nil {
			// Notification is observational; an unowned order just skips it.
			r.logger.Warn("order has no owner, skipping notification",
				zap.Int64("order_id", orderID),
				zap.Int64("item_id", n.Item.ID()))
			continue
		}
		in := notify.NewIntent(n.Kind, *o.customerID, orderID, n.Item.ID(), n.DrugName, n.Reason)
		if err := writeIntent(ctx, tx, in); err != nil {
			span.RecordError(err)
			return err
		}
		written++
	}

	if err := writeAudit(ctx, tx, o, written); err != nil {
		span.RecordError(err)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	span.SetAttributes(
		attribute.Int("items", len(o.items)),
		attribute.Int("notifications", written))
	return nil
}

// MutateItem loads a single line item under a row lock, applies fn and
// persists the result. The lock serializes concurrent settlement, refill
// consumption and re-decisions on the same item.
func (r *Repository) MutateItem(ctx context.Context, itemID int64, fn func(li *LineItem) error) error {
	ctx, span := r.tracer.Start(ctx, "order_mutate_item",
		trace.WithAttributes(attribute.Int64("item_id", itemID)))
	defer span.End()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	li, err := scanItem(tx.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM line_items WHERE id = $1 FOR UPDATE`, itemID))
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("line item %d: %w", itemID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lock line item: %w", err)
	}

	if err := fn(li); err != nil {
		span.RecordError(err)
		return err
	}

	if err := updateItem(ctx, tx, li); err != nil {
		span.RecordError(err)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListByCustomer returns a customer's orders, newest first by the earliest
// item's order date. Used by the order history view and the dashboard tally.
func (r *Repository) ListByCustomer(ctx context.Context, customerID int64) ([]*Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT o.id FROM orders o
		LEFT JOIN line_items li ON li.order_id = o.id
		WHERE o.customer_id = $1
		GROUP BY o.id
		ORDER BY MIN(li.date_ordered) DESC NULLS LAST, o.id DESC`,
		customerID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, err
	}
	return r.loadAll(ctx, ids)
}

// ListAll returns every order, for the reviewer dashboard
func (r *Repository) ListAll(ctx context.Context) ([]*Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM orders ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, err
	}
	return r.loadAll(ctx, ids)
}

func (r *Repository) loadAll(ctx context.Context, ids []int64) ([]*Order, error) {
	orders := make([]*Order, 0, len(ids))
	for _, id := range ids {
		o, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func collectIDs(rows pgx.Rows) ([]int64, error) {
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *Repository) queryItems(ctx context.Context, q queryer, sql string, args ...any) ([]*LineItem, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []*LineItem
	for rows.Next() {
		li, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, li)
	}
	return items, rows.Err()
}

func insertItem(ctx context.Context, tx pgx.Tx, li *LineItem) error {
	s := li.State()
	err := tx.QueryRow(ctx, `
		INSERT INTO line_items
		(order_id, drug_id, quantity, refills, approval_state, deny_reason, paid,
		 date_ordered, date_delivered, image_file)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, NULLIF($10, ''))
		RETURNING id`,
		s.OrderID, s.DrugID, s.Quantity, s.Refills, s.Approval, s.DenyReason,
		s.Paid, s.DateOrdered, s.DateDelivered, s.ImageFile).Scan(&li.id)
	if err != nil {
		return fmt.Errorf("insert line item: %w", err)
	}
	return nil
}

func updateItem(ctx context.Context, tx pgx.Tx, li *LineItem) error {
	s := li.State()
	_, err := tx.Exec(ctx, `
		UPDATE line_items
		SET drug_id = $2, quantity = $3, refills = $4, approval_state = $5,
		    deny_reason = NULLIF($6, ''), paid = $7, date_delivered = $8
		WHERE id = $1`,
		s.ID, s.DrugID, s.Quantity, s.Refills, s.Approval, s.DenyReason,
		s.Paid, s.DateDelivered)
	if err != nil {
		return fmt.Errorf("update line item %d: %w", s.ID, err)
	}
	return nil
}

// auditRecord summarizes one committed review batch for the audit stream
type auditRecord struct {
	OrderID    int64       `json:"order_id"`
	Items      []auditItem `json:"items"`
	Notified   int         `json:"notified"`
	ReviewedAt time.Time   `json:"reviewed_at"`
}

type auditItem struct {
	ItemID   int64  `json:"item_id"`
	Approval string `json:"approval"`
}

func writeAudit(ctx context.Context, tx pgx.Tx, o *Order, notified int) error {
	rec := auditRecord{
		OrderID:    o.id,
		Notified:   notified,
		ReviewedAt: time.Now().UTC(),
	}
	for _, li := range o.items {
		rec.Items = append(rec.Items, auditItem{ItemID: li.id, Approval: string(li.approval)})
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	return postgres.WriteEntry(ctx, tx, &postgres.OutboxEntry{
		AggregateID:   fmt.Sprintf("%d", o.id),
		AggregateType: "Order",
		EventType:     "order.reviewed",
		Payload:       payload,
		KafkaTopic:    kafka.TopicOrderAudit,
		KafkaKey:      fmt.Sprintf("%d", o.id),
	})
}

// writeIntent records a notification intent in the transactional outbox so
// it commits or rolls back together with the decisions that produced it.
func writeIntent(ctx context.Context, tx pgx.Tx, in notify.Intent) error {
	payload, err := in.Payload()
	if err != nil {
		return err
	}
	return postgres.WriteEntry(ctx, tx, &postgres.OutboxEntry{
		AggregateID:   fmt.Sprintf("%d", in.OrderID),
		AggregateType: "Order",
		EventType:     "notification." + string(in.Kind),
		Payload:       payload,
		KafkaTopic:    kafka.TopicNotificationIntents,
		KafkaKey:      in.ID,
	})
}
