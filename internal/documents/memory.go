package documents

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/inventory"
)

// MemoryRepository keeps documents in process memory and commits them
// together with an inventory.MemoryRepository.
type MemoryRepository struct {
	mu       sync.RWMutex
	docs     map[int64]Document
	nextID   int64
	nextLine int64

	lockMu  sync.Mutex
	docLock map[int64]*sync.Mutex

	stock *inventory.MemoryRepository
}

// NewMemoryRepository constructs MemoryRepository over stock.
func NewMemoryRepository(stock *inventory.MemoryRepository) *MemoryRepository {
	return &MemoryRepository{docs: make(map[int64]Document), docLock: make(map[int64]*sync.Mutex), stock: stock}
}

func cloneDocument(doc Document) Document {
	doc.Lines = slices.Clone(doc.Lines)
	return doc
}

type memoryTx struct {
	repo   *MemoryRepository
	stock  *inventory.MemoryTx
	staged map[int64]Document
	held   []*sync.Mutex
}

// WithTx stages document and inventory writes and publishes both at once.
func (r *MemoryRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: r, stock: r.stock.Begin(), staged: make(map[int64]Document)}
	defer func() {
		for _, m := range tx.held {
			m.Unlock()
		}
	}()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.stock.Lock()
	r.mu.Lock()
	tx.stock.CommitLocked()
	for id, doc := range tx.staged {
		r.docs[id] = doc
	}
	r.mu.Unlock()
	r.stock.Unlock()
	return nil
}

func (r *MemoryRepository) Create(_ context.Context, doc Document) (Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	doc.ID = r.nextID
	doc.Lines = slices.Clone(doc.Lines)
	for i := range doc.Lines {
		r.nextLine++
		doc.Lines[i].ID = r.nextLine
	}
	doc.TotalAmount = doc.draftTotal()
	r.docs[doc.ID] = doc
	return cloneDocument(doc), nil
}

func (r *MemoryRepository) Get(_ context.Context, id int64) (Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok {
		return Document{}, ErrDocumentNotFound
	}
	return cloneDocument(doc), nil
}

func (r *MemoryRepository) List(_ context.Context, filters ListFilters) ([]Document, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []Document{}
	for _, doc := range r.docs {
		if filters.Type != "" && doc.Type != filters.Type {
			continue
		}
		if filters.Status != "" && doc.Status != filters.Status {
			continue
		}
		if filters.LocationID != 0 && !slices.Contains(doc.Locations(), filters.LocationID) {
			continue
		}
		doc.Lines = nil
		out = append(out, doc)
	}
	slices.SortFunc(out, func(a, b Document) int { return int(b.ID - a.ID) })
	total := len(out)
	if filters.Limit > 0 {
		start := min(max(filters.Page-1, 0)*filters.Limit, total)
		out = out[start:min(start+filters.Limit, total)]
	}
	return out, total, nil
}

func (r *MemoryRepository) HasDraftDocuments(_ context.Context, locationID int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, doc := range r.docs {
		if doc.IsDraft() && slices.Contains(doc.Locations(), locationID) {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) lockFor(id int64) *sync.Mutex {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	m, ok := r.docLock[id]
	if !ok {
		m = &sync.Mutex{}
		r.docLock[id] = m
	}
	return m
}

func (tx *memoryTx) Inventory() inventory.TxRepository {
	return tx.stock
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, id int64) (Document, error) {
	if doc, ok := tx.staged[id]; ok {
		return cloneDocument(doc), nil
	}
	if _, err := tx.repo.Get(ctx, id); err != nil {
		return Document{}, err
	}
	m := tx.repo.lockFor(id)
	m.Lock()
	tx.held = append(tx.held, m)
	doc, err := tx.repo.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	tx.staged[id] = doc
	return cloneDocument(doc), nil
}

func (tx *memoryTx) doc(id int64) (Document, error) {
	doc, ok := tx.staged[id]
	if !ok {
		return Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

func (tx *memoryTx) InsertLine(_ context.Context, docID int64, line Line) (Line, error) {
	doc, err := tx.doc(docID)
	if err != nil {
		return Line{}, err
	}
	tx.repo.mu.Lock()
	tx.repo.nextLine++
	line.ID = tx.repo.nextLine
	tx.repo.mu.Unlock()
	doc.Lines = append(slices.Clone(doc.Lines), line)
	tx.staged[docID] = doc
	return line, nil
}

func (tx *memoryTx) UpdateLine(_ context.Context, docID int64, line Line) error {
	doc, err := tx.doc(docID)
	if err != nil {
		return err
	}
	doc.Lines = slices.Clone(doc.Lines)
	for i := range doc.Lines {
		if doc.Lines[i].ID == line.ID {
			doc.Lines[i] = line
			tx.staged[docID] = doc
			return nil
		}
	}
	return ErrLineNotFound
}

func (tx *memoryTx) DeleteLine(_ context.Context, docID, lineID int64) error {
	doc, err := tx.doc(docID)
	if err != nil {
		return err
	}
	before := len(doc.Lines)
	doc.Lines = slices.DeleteFunc(slices.Clone(doc.Lines), func(l Line) bool { return l.ID == lineID })
	if len(doc.Lines) == before {
		return ErrLineNotFound
	}
	tx.staged[docID] = doc
	return nil
}

func (tx *memoryTx) SaveDraftTotal(_ context.Context, docID int64, total decimal.Decimal) error {
	doc, err := tx.doc(docID)
	if err != nil {
		return err
	}
	doc.TotalAmount = total
	doc.UpdatedAt = time.Now().UTC()
	tx.staged[docID] = doc
	return nil
}

func (tx *memoryTx) MarkConfirmed(_ context.Context, doc Document) error {
	if _, err := tx.doc(doc.ID); err != nil {
		return err
	}
	tx.staged[doc.ID] = cloneDocument(doc)
	return nil
}

func (tx *memoryTx) MarkCancelled(_ context.Context, docID int64, at time.Time) error {
	doc, err := tx.doc(docID)
	if err != nil {
		return err
	}
	doc.Status = StatusCancelled
	doc.CancelledAt = &at
	doc.UpdatedAt = at
	tx.staged[docID] = doc
	return nil
}
