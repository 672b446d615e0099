package documents

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
)

// PostgresRepository persists documents in PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs PostgresRepository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

type pgTx struct {
	tx    pgx.Tx
	stock inventory.TxRepository
}

// WithTx runs fn at read-committed isolation: every row it changes is taken
// with SELECT ... FOR UPDATE first, so each locked read sees the latest commit.
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx, stock: inventory.NewTxRepository(tx)})
	})
}

const documentColumns = `id, number, type, status, location_id, from_location_id, to_location_id,
	reason, counterparty_name, counterparty_invoice, comment, external_ref, consumes_reservation, total_amount,
	created_by, confirmed_by, created_at, updated_at, confirmed_at, cancelled_at`

const lineColumns = `id, line_no, product_id, quantity, unit_cost, old_unit_cost, new_unit_cost,
	expected_quantity, counted_quantity, on_hand_at_confirm, drift`

func scanDocument(row pgx.Row) (Document, error) {
	var doc Document
	var locationID, fromID, toID, confirmedBy *int64
	err := row.Scan(&doc.ID, &doc.Number, &doc.Type, &doc.Status, &locationID, &fromID, &toID,
		&doc.Reason, &doc.CounterpartyName, &doc.CounterpartyInvoice, &doc.Comment, &doc.ExternalRef, &doc.ConsumesReservation, &doc.TotalAmount,
		&doc.CreatedBy, &confirmedBy, &doc.CreatedAt, &doc.UpdatedAt, &doc.ConfirmedAt, &doc.CancelledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrDocumentNotFound
	}
	if err != nil {
		return Document{}, err
	}
	doc.LocationID = derefID(locationID)
	doc.FromLocationID = derefID(fromID)
	doc.ToLocationID = derefID(toID)
	doc.ConfirmedBy = derefID(confirmedBy)
	return doc, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadLines(ctx context.Context, q querier, docID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT `+lineColumns+` FROM inventory_document_lines WHERE document_id = $1 ORDER BY line_no`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []Line{}
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.LineNo, &line.ProductID, &line.Quantity, &line.UnitCost, &line.OldUnitCost, &line.NewUnitCost,
			&line.ExpectedQuantity, &line.CountedQuantity, &line.OnHandAtConfirm, &line.Drift); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *PostgresRepository) Create(ctx context.Context, doc Document) (Document, error) {
	var created Document
	err := db.WithTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		var err error
		created, err = scanDocument(tx.QueryRow(ctx, `
			INSERT INTO inventory_documents (number, type, status, location_id, from_location_id, to_location_id,
				reason, counterparty_name, counterparty_invoice, comment, external_ref, consumes_reservation, total_amount, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
			RETURNING `+documentColumns,
			doc.Number, string(doc.Type), string(doc.Status), nullID(doc.LocationID), nullID(doc.FromLocationID), nullID(doc.ToLocationID),
			doc.Reason, doc.CounterpartyName, doc.CounterpartyInvoice, doc.Comment, doc.ExternalRef, doc.ConsumesReservation, doc.draftTotal(), doc.CreatedBy, doc.CreatedAt))
		if err != nil {
			return err
		}
		if len(doc.Lines) == 0 {
			created.Lines = []Line{}
			return nil
		}
		batch := &pgx.Batch{}
		for _, line := range doc.Lines {
			batch.Queue(`INSERT INTO inventory_document_lines (document_id, `+lineColumns[len("id, "):]+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
				created.ID, line.LineNo, line.ProductID, line.Quantity, line.UnitCost, line.OldUnitCost, line.NewUnitCost,
				line.ExpectedQuantity, line.CountedQuantity, line.OnHandAtConfirm, line.Drift)
		}
		results := tx.SendBatch(ctx, batch)
		created.Lines = make([]Line, len(doc.Lines))
		for i, line := range doc.Lines {
			if err := results.QueryRow().Scan(&line.ID); err != nil {
				_ = results.Close()
				return err
			}
			created.Lines[i] = line
		}
		return results.Close()
	})
	return created, err
}

func (r *PostgresRepository) Get(ctx context.Context, id int64) (Document, error) {
	doc, err := scanDocument(r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM inventory_documents WHERE id = $1`, id))
	if err != nil {
		return Document{}, err
	}
	doc.Lines, err = loadLines(ctx, r.pool, id)
	return doc, err
}

func (r *PostgresRepository) List(ctx context.Context, filters ListFilters) ([]Document, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Type != "" {
		args = append(args, string(filters.Type))
		where += ` AND type = $` + strconv.Itoa(len(args))
	}
	if filters.Status != "" {
		args = append(args, string(filters.Status))
		where += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filters.LocationID != 0 {
		args = append(args, filters.LocationID)
		n := strconv.Itoa(len(args))
		where += ` AND (location_id = $` + n + ` OR from_location_id = $` + n + ` OR to_location_id = $` + n + `)`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_documents`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + documentColumns + ` FROM inventory_documents` + where + ` ORDER BY id DESC`
	if filters.Limit > 0 {
		offset := max(filters.Page-1, 0) * filters.Limit
		args = append(args, filters.Limit, offset)
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	docs := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	return docs, total, rows.Err()
}

func (r *PostgresRepository) HasDraftDocuments(ctx context.Context, locationID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM inventory_documents
			WHERE status = 'DRAFT' AND (location_id = $1 OR from_location_id = $1 OR to_location_id = $1)
		)`, locationID).Scan(&exists)
	return exists, err
}

func (t *pgTx) Inventory() inventory.TxRepository {
	return t.stock
}

func (t *pgTx) GetForUpdate(ctx context.Context, id int64) (Document, error) {
	doc, err := scanDocument(t.tx.QueryRow(ctx, `SELECT `+documentColumns+` FROM inventory_documents WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return Document{}, err
	}
	doc.Lines, err = loadLines(ctx, t.tx, id)
	return doc, err
}

func (t *pgTx) InsertLine(ctx context.Context, docID int64, line Line) (Line, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO inventory_document_lines (document_id, `+lineColumns[len("id, "):]+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		docID, line.LineNo, line.ProductID, line.Quantity, line.UnitCost, line.OldUnitCost, line.NewUnitCost,
		line.ExpectedQuantity, line.CountedQuantity, line.OnHandAtConfirm, line.Drift).Scan(&line.ID)
	return line, err
}

func (t *pgTx) UpdateLine(ctx context.Context, docID int64, line Line) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE inventory_document_lines
		SET product_id = $3, quantity = $4, unit_cost = $5, old_unit_cost = $6, new_unit_cost = $7,
			expected_quantity = $8, counted_quantity = $9
		WHERE document_id = $1 AND id = $2`,
		docID, line.ID, line.ProductID, line.Quantity, line.UnitCost, line.OldUnitCost, line.NewUnitCost,
		line.ExpectedQuantity, line.CountedQuantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (t *pgTx) DeleteLine(ctx context.Context, docID, lineID int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM inventory_document_lines WHERE document_id = $1 AND id = $2`, docID, lineID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (t *pgTx) SaveDraftTotal(ctx context.Context, docID int64, total decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE inventory_documents SET total_amount = $2, updated_at = NOW() WHERE id = $1 AND status = 'DRAFT'`, docID, total)
	return err
}

// MarkConfirmed stamps the header and the per-line confirmation data.
func (t *pgTx) MarkConfirmed(ctx context.Context, doc Document) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE inventory_documents
		SET status = 'CONFIRMED', total_amount = $2, confirmed_at = $3, confirmed_by = $4, updated_at = $3
		WHERE id = $1 AND status = 'DRAFT'`,
		doc.ID, doc.TotalAmount, doc.ConfirmedAt, nullID(doc.ConfirmedBy))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyFinalized
	}
	batch := &pgx.Batch{}
	for _, line := range doc.Lines {
		batch.Queue(`UPDATE inventory_document_lines SET unit_cost = $2, on_hand_at_confirm = $3, drift = $4 WHERE id = $1`,
			line.ID, line.UnitCost, line.OnHandAtConfirm, line.Drift)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *pgTx) MarkCancelled(ctx context.Context, docID int64, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE inventory_documents SET status = 'CANCELLED', cancelled_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'DRAFT'`, docID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyFinalized
	}
	return nil
}

func nullID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func derefID(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
