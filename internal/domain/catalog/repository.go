package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Repository provides read access to the drugs table
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRepository creates a catalog repository
func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{pool: pool, logger: logger}
}

// List returns all drugs ordered by name
func (r *Repository) List(ctx context.Context) ([]Drug, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, price, stock FROM drugs ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list drugs: %w", err)
	}
	defer rows.Close()

	var drugs []Drug
	for rows.Next() {
		var d Drug
		if err := rows.Scan(&d.ID, &d.Name, &d.Price, &d.Stock); err != nil {
			return nil, fmt.Errorf("scan drug: %w", err)
		}
		drugs = append(drugs, d)
	}
	return drugs, rows.Err()
}

// GetByID returns a single drug
func (r *Repository) GetByID(ctx context.Context, id int64) (Drug, bool, error) {
	var d Drug
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, price, stock FROM drugs WHERE id = $1`, id).
		Scan(&d.ID, &d.Name, &d.Price, &d.Stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return Drug{}, false, nil
	}
	if err != nil {
		return Drug{}, false, fmt.Errorf("get drug: %w", err)
	}
	return d, true, nil
}

// Resolve implements Resolver. A numeric reference is tried as an ID first,
// then as a name; a non-numeric reference is looked up by name only.
func (r *Repository) Resolve(ctx context.Context, idOrName string) (Drug, bool, error) {
	if id, convErr := strconv.ParseInt(idOrName, 10, 64); convErr == nil {
		d, ok, err := r.GetByID(ctx, id)
		if err != nil || ok {
			return d, ok, err
		}
	}

	var d Drug
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, price, stock FROM drugs WHERE name = $1`, idOrName).
		Scan(&d.ID, &d.Name, &d.Price, &d.Stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return Drug{}, false, nil
	}
	if err != nil {
		return Drug{}, false, fmt.Errorf("resolve drug: %w", err)
	}
	return d, true, nil
}

// PriceIndex loads a price lookup keyed by drug ID for order totals
func (r *Repository) PriceIndex(ctx context.Context) (map[int64]Drug, error) {
	drugs, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	idx := make(map[int64]Drug, len(drugs))
	for _, d := range drugs {
		idx[d.ID] = d
	}
	return idx, nil
}
