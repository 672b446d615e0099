package inventory

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryRepository keeps rows in process memory. Writes made inside WithTx
// become visible only when the callback returns nil.
type MemoryRepository struct {
	mu        sync.RWMutex
	items     map[Key]Item
	movements []Movement
	nextID    int64
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[Key]Item)}
}

// MemoryTx stages writes for a MemoryRepository.
type MemoryTx struct {
	repo      *MemoryRepository
	items     map[Key]Item
	movements []Movement
}

// Begin opens a staged transaction. Callers must Commit or drop it.
func (r *MemoryRepository) Begin() *MemoryTx {
	return &MemoryTx{repo: r, items: make(map[Key]Item)}
}

// WithTx executes the callback and commits staged writes on success.
func (r *MemoryRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := r.Begin()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	tx.CommitLocked()
	return nil
}

// Lock and Unlock guard the committed state; used by callers that commit a
// MemoryTx together with their own staged writes.
func (r *MemoryRepository) Lock()   { r.mu.Lock() }
func (r *MemoryRepository) Unlock() { r.mu.Unlock() }

// CommitLocked publishes staged writes. The repository lock must be held.
func (tx *MemoryTx) CommitLocked() {
	for key, item := range tx.items {
		tx.repo.items[key] = item
	}
	for _, m := range tx.movements {
		tx.repo.nextID++
		m.ID = tx.repo.nextID
		tx.repo.movements = append(tx.repo.movements, m)
	}
	tx.items = map[Key]Item{}
	tx.movements = nil
}

func (tx *MemoryTx) LockItems(_ context.Context, keys []Key) (map[Key]Item, error) {
	tx.repo.mu.RLock()
	defer tx.repo.mu.RUnlock()
	out := make(map[Key]Item, len(keys))
	for _, key := range SortKeys(keys) {
		if staged, ok := tx.items[key]; ok {
			out[key] = staged
			continue
		}
		item, ok := tx.repo.items[key]
		if !ok {
			item = Item{LocationID: key.LocationID, ProductID: key.ProductID, UpdatedAt: time.Now().UTC()}
			tx.items[key] = item
		}
		out[key] = item
	}
	return out, nil
}

func (tx *MemoryTx) SaveItems(_ context.Context, items []Item) error {
	for _, item := range items {
		tx.items[item.Key()] = item
	}
	return nil
}

func (tx *MemoryTx) InsertMovements(_ context.Context, movements []Movement) error {
	tx.movements = append(tx.movements, movements...)
	return nil
}

// Get returns a single row.
func (r *MemoryRepository) Get(_ context.Context, key Key) (Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[key]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

func (r *MemoryRepository) filter(keep func(Item) bool) []Item {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := []Item{}
	for _, item := range r.items {
		if keep(item) {
			items = append(items, item)
		}
	}
	slices.SortFunc(items, func(a, b Item) int { return a.Key().Compare(b.Key()) })
	return items
}

// ListByLocation returns every row at a location ordered by product.
func (r *MemoryRepository) ListByLocation(_ context.Context, locationID int64) ([]Item, error) {
	return r.filter(func(item Item) bool { return item.LocationID == locationID }), nil
}

// ListLowStock returns rows whose on-hand quantity reached the threshold.
func (r *MemoryRepository) ListLowStock(_ context.Context, locationID int64) ([]Item, error) {
	items := r.filter(func(item Item) bool { return item.LocationID == locationID && item.LowStock() })
	slices.SortStableFunc(items, func(a, b Item) int { return int(a.OnHand - b.OnHand) })
	return items, nil
}

// ListMovements returns stock card entries for a row.
func (r *MemoryRepository) ListMovements(_ context.Context, filter MovementFilter) ([]Movement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	out := []Movement{}
	for _, m := range r.movements {
		if m.LocationID != filter.LocationID || m.ProductID != filter.ProductID {
			continue
		}
		if !filter.From.IsZero() && m.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && m.CreatedAt.After(filter.To) {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
