package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// TxRepository exposes the row operations available inside a transaction.
type TxRepository interface {
	// LockItems locks the rows for keys in lock order, creating missing rows
	// with zero quantities, and returns their current state.
	LockItems(ctx context.Context, keys []Key) (map[Key]Item, error)
	SaveItems(ctx context.Context, items []Item) error
	InsertMovements(ctx context.Context, movements []Movement) error
}

// Repository persists inventory rows in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds inventory operations to an open transaction so other
// modules can mutate rows atomically with their own writes.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, pgx.RepeatableRead, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const itemColumns = `location_id, product_id, on_hand, reserved, min_quantity, unit_cost, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.LocationID, &item.ProductID, &item.OnHand, &item.Reserved, &item.MinQuantity, &item.UnitCost, &item.UpdatedAt)
	return item, err
}

func collectItems(rows pgx.Rows) ([]Item, error) {
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Get returns a single row.
func (r *Repository) Get(ctx context.Context, key Key) (Item, error) {
	item, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE location_id=$1 AND product_id=$2`, key.LocationID, key.ProductID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	return item, err
}

// ListByLocation returns every row at a location ordered by product.
func (r *Repository) ListByLocation(ctx context.Context, locationID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE location_id=$1 ORDER BY product_id`, locationID)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

// ListLowStock returns rows whose on-hand quantity reached the threshold.
func (r *Repository) ListLowStock(ctx context.Context, locationID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE location_id=$1 AND on_hand <= min_quantity ORDER BY on_hand ASC, product_id`, locationID)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

// ListMovements returns stock card entries for a row.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, location_id, product_id, kind, qty_change, qty_before, qty_after, reserved_change, unit_cost, cost_before, cost_after, ref_type, ref_id, ref_number, note, created_at
FROM inventory_movements
WHERE location_id=$1 AND product_id=$2 AND created_at BETWEEN COALESCE($3, '-infinity') AND COALESCE($4, 'infinity')
ORDER BY created_at ASC, id ASC
LIMIT $5`, filter.LocationID, filter.ProductID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.LocationID, &m.ProductID, &m.Kind, &m.QtyChange, &m.QtyBefore, &m.QtyAfter, &m.ReservedChange, &m.UnitCost, &m.CostBefore, &m.CostAfter, &m.Ref.Type, &m.Ref.ID, &m.Ref.Number, &m.Ref.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *txRepository) LockItems(ctx context.Context, keys []Key) (map[Key]Item, error) {
	sorted := SortKeys(keys)
	if len(sorted) == 0 {
		return map[Key]Item{}, nil
	}
	locationIDs := make([]int64, len(sorted))
	productIDs := make([]int64, len(sorted))
	for i, key := range sorted {
		locationIDs[i] = key.LocationID
		productIDs[i] = key.ProductID
	}
	if _, err := r.tx.Exec(ctx, `INSERT INTO inventory_items (location_id, product_id, on_hand, reserved, min_quantity, unit_cost, updated_at)
SELECT l, p, 0, 0, 0, 0, NOW() FROM unnest($1::bigint[], $2::bigint[]) AS k(l, p)
ON CONFLICT (location_id, product_id) DO NOTHING`, locationIDs, productIDs); err != nil {
		return nil, err
	}
	rows, err := r.tx.Query(ctx, `SELECT `+itemColumns+` FROM inventory_items
WHERE (location_id, product_id) IN (SELECT * FROM unnest($1::bigint[], $2::bigint[]))
ORDER BY location_id, product_id
FOR UPDATE`, locationIDs, productIDs)
	if err != nil {
		return nil, err
	}
	items, err := collectItems(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[Key]Item, len(items))
	for _, item := range items {
		out[item.Key()] = item
	}
	// A row created by a concurrent transaction after our snapshot is not visible.
	for _, key := range sorted {
		if _, ok := out[key]; !ok {
			return nil, fmt.Errorf("inventory: row %s created concurrently: %w", key, shared.ErrConcurrencyConflict)
		}
	}
	return out, nil
}

func (r *txRepository) SaveItems(ctx context.Context, items []Item) error {
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(`UPDATE inventory_items SET on_hand=$3, reserved=$4, min_quantity=$5, unit_cost=$6, updated_at=$7 WHERE location_id=$1 AND product_id=$2`,
			item.LocationID, item.ProductID, item.OnHand, item.Reserved, item.MinQuantity, item.UnitCost, updatedAt(item.UpdatedAt))
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepository) InsertMovements(ctx context.Context, movements []Movement) error {
	rows := make([][]any, 0, len(movements))
	for _, m := range movements {
		rows = append(rows, []any{m.LocationID, m.ProductID, string(m.Kind), m.QtyChange, m.QtyBefore, m.QtyAfter, m.ReservedChange, m.UnitCost, m.CostBefore, m.CostAfter, m.Ref.Type, m.Ref.ID, m.Ref.Number, m.Ref.Note, updatedAt(m.CreatedAt)})
	}
	_, err := r.tx.CopyFrom(ctx, pgx.Identifier{"inventory_movements"},
		[]string{"location_id", "product_id", "kind", "qty_change", "qty_before", "qty_after", "reserved_change", "unit_cost", "cost_before", "cost_after", "ref_type", "ref_id", "ref_number", "note", "created_at"},
		pgx.CopyFromRows(rows))
	return err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func updatedAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
