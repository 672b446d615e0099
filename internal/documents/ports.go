package documents

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/locations"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Repository persists documents.
type Repository interface {
	// WithTx runs fn in one transaction that also covers inventory rows.
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Create(ctx context.Context, doc Document) (Document, error)
	Get(ctx context.Context, id int64) (Document, error)
	// List returns document headers without lines.
	List(ctx context.Context, filters ListFilters) ([]Document, int, error)
	HasDraftDocuments(ctx context.Context, locationID int64) (bool, error)
}

// TxRepository exposes the writes available inside a transaction.
type TxRepository interface {
	Inventory() inventory.TxRepository
	// GetForUpdate loads the document and blocks other transactions on it
	// until this one ends.
	GetForUpdate(ctx context.Context, id int64) (Document, error)
	InsertLine(ctx context.Context, docID int64, line Line) (Line, error)
	UpdateLine(ctx context.Context, docID int64, line Line) error
	DeleteLine(ctx context.Context, docID, lineID int64) error
	SaveDraftTotal(ctx context.Context, docID int64, total decimal.Decimal) error
	MarkConfirmed(ctx context.Context, doc Document) error
	MarkCancelled(ctx context.Context, docID int64, at time.Time) error
}

// StockReader reads live inventory rows; *inventory.Store implements it.
type StockReader interface {
	Get(ctx context.Context, productID, locationID int64) (inventory.Item, error)
	ListByLocation(ctx context.Context, locationID int64) ([]inventory.Item, error)
}

// LocationLookup resolves active locations; *locations.Service implements it.
type LocationLookup interface {
	RequireActive(ctx context.Context, id int64) (locations.Location, error)
}

// IdempotencyPort guards instant documents carrying an external reference.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Observer receives confirmation outcomes; observability.Metrics implements it.
type Observer interface {
	ObserveConfirmation(docType, outcome string, d time.Duration)
}

// ConfirmHook is notified after a confirmation has been committed.
type ConfirmHook interface {
	DocumentConfirmed(ctx context.Context, doc Document) error
}
