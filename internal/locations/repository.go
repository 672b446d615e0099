package locations

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Location, int, error)
	Get(ctx context.Context, id int64) (Location, error)
	Create(ctx context.Context, loc Location) (Location, error)
	Update(ctx context.Context, loc Location) (Location, error)
	SetActive(ctx context.Context, id int64, active bool) (Location, error)
	SetDefault(ctx context.Context, id int64) (Location, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const locationColumns = `id, code, name, kind, active, is_default, address, phone, created_at, updated_at`

func scanLocation(row pgx.Row) (Location, error) {
	var loc Location
	err := row.Scan(&loc.ID, &loc.Code, &loc.Name, &loc.Kind, &loc.Active, &loc.IsDefault, &loc.Address, &loc.Phone, &loc.CreatedAt, &loc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Location{}, ErrLocationNotFound
	}
	return loc, err
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}
	switch pgErr.ConstraintName {
	case "locations_code_key":
		return ErrDuplicateCode
	case "locations_single_default":
		return ErrDefaultChanged
	default:
		return err
	}
}

// List uses a dynamic query due to filter complexity
func (r *repository) List(ctx context.Context, filters ListFilters) ([]Location, int, error) {
	where := ` WHERE 1=1`
	args := []any{}

	if filters.Kind != "" {
		args = append(args, string(filters.Kind))
		where += ` AND kind = $` + strconv.Itoa(len(args))
	}
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		where += ` AND active = $` + strconv.Itoa(len(args))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where += ` AND (name ILIKE $` + strconv.Itoa(len(args)) + ` OR code ILIKE $` + strconv.Itoa(len(args)) + `)`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM locations`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + locationColumns + ` FROM locations` + where + ` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDir)
	if filters.Limit > 0 {
		args = append(args, filters.Limit, pageOffset(filters))
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	locations := []Location{}
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, 0, err
		}
		locations = append(locations, loc)
	}
	return locations, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Location, error) {
	return scanLocation(r.pool.QueryRow(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = $1`, id))
}

func (r *repository) Create(ctx context.Context, loc Location) (Location, error) {
	created, err := scanLocation(r.pool.QueryRow(ctx, `
		INSERT INTO locations (code, name, kind, active, is_default, address, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, $5, $6, NOW(), NOW())
		RETURNING `+locationColumns,
		loc.Code, loc.Name, string(loc.Kind), loc.Active, loc.Address, loc.Phone))
	return created, mapWriteError(err)
}

func (r *repository) Update(ctx context.Context, loc Location) (Location, error) {
	updated, err := scanLocation(r.pool.QueryRow(ctx, `
		UPDATE locations SET code = $2, name = $3, kind = $4, address = $5, phone = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING `+locationColumns,
		loc.ID, loc.Code, loc.Name, string(loc.Kind), loc.Address, loc.Phone))
	return updated, mapWriteError(err)
}

func (r *repository) SetActive(ctx context.Context, id int64, active bool) (Location, error) {
	return scanLocation(r.pool.QueryRow(ctx, `
		UPDATE locations SET active = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+locationColumns, id, active))
}

// SetDefault clears the previous default and sets the new one in one
// transaction; the partial unique index on is_default backs it up.
func (r *repository) SetDefault(ctx context.Context, id int64) (Location, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Location{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE locations SET is_default = FALSE, updated_at = NOW() WHERE is_default AND id <> $1`, id); err != nil {
		return Location{}, err
	}
	loc, err := scanLocation(tx.QueryRow(ctx, `
		UPDATE locations SET is_default = TRUE, updated_at = NOW()
		WHERE id = $1 AND active
		RETURNING `+locationColumns, id))
	if errors.Is(err, ErrLocationNotFound) {
		return Location{}, ErrLocationInactive
	}
	if err != nil {
		return Location{}, mapWriteError(err)
	}
	return loc, mapWriteError(tx.Commit(ctx))
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == "desc" {
		dir = "DESC"
	}
	switch sortBy {
	case "code":
		return "code " + dir + ", id"
	case "id":
		return "id " + dir
	default:
		return "name " + dir + ", id"
	}
}

func pageOffset(filters ListFilters) int {
	offset := (filters.Page - 1) * filters.Limit
	if offset < 0 {
		return 0
	}
	return offset
}

// MemoryRepository keeps locations in process memory.
type MemoryRepository struct {
	mu     sync.RWMutex
	items  map[int64]Location
	nextID int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[int64]Location)}
}

func (r *MemoryRepository) List(_ context.Context, filters ListFilters) ([]Location, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	search := strings.ToLower(filters.Search)
	out := []Location{}
	for _, loc := range r.items {
		if filters.Kind != "" && loc.Kind != filters.Kind {
			continue
		}
		if filters.IsActive != nil && loc.Active != *filters.IsActive {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(loc.Name), search) && !strings.Contains(strings.ToLower(loc.Code), search) {
			continue
		}
		out = append(out, loc)
	}
	desc := filters.SortDir == "desc"
	slices.SortFunc(out, func(a, b Location) int {
		var c int
		switch filters.SortBy {
		case "code":
			c = strings.Compare(a.Code, b.Code)
		case "id":
			c = int(a.ID - b.ID)
		default:
			c = strings.Compare(a.Name, b.Name)
		}
		if desc {
			c = -c
		}
		if c == 0 {
			c = int(a.ID - b.ID)
		}
		return c
	})
	total := len(out)
	if filters.Limit > 0 {
		start := min(pageOffset(filters), total)
		end := min(start+filters.Limit, total)
		out = out[start:end]
	}
	return out, total, nil
}

func (r *MemoryRepository) Get(_ context.Context, id int64) (Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	loc, ok := r.items[id]
	if !ok {
		return Location{}, ErrLocationNotFound
	}
	return loc, nil
}

func (r *MemoryRepository) codeTaken(code string, except int64) bool {
	if code == "" {
		return false
	}
	for _, loc := range r.items {
		if loc.ID != except && loc.Code == code {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) Create(_ context.Context, loc Location) (Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.codeTaken(loc.Code, 0) {
		return Location{}, ErrDuplicateCode
	}
	r.nextID++
	now := time.Now().UTC()
	loc.ID = r.nextID
	loc.IsDefault = false
	loc.CreatedAt = now
	loc.UpdatedAt = now
	r.items[loc.ID] = loc
	return loc, nil
}

func (r *MemoryRepository) Update(_ context.Context, loc Location) (Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.items[loc.ID]
	if !ok {
		return Location{}, ErrLocationNotFound
	}
	if r.codeTaken(loc.Code, loc.ID) {
		return Location{}, ErrDuplicateCode
	}
	current.Code, current.Name, current.Kind = loc.Code, loc.Name, loc.Kind
	current.Address, current.Phone = loc.Address, loc.Phone
	current.UpdatedAt = time.Now().UTC()
	r.items[loc.ID] = current
	return current, nil
}

func (r *MemoryRepository) SetActive(_ context.Context, id int64, active bool) (Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	loc, ok := r.items[id]
	if !ok {
		return Location{}, ErrLocationNotFound
	}
	loc.Active = active
	loc.UpdatedAt = time.Now().UTC()
	r.items[id] = loc
	return loc, nil
}

func (r *MemoryRepository) SetDefault(_ context.Context, id int64) (Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	loc, ok := r.items[id]
	if !ok {
		return Location{}, ErrLocationNotFound
	}
	if !loc.Active {
		return Location{}, ErrLocationInactive
	}
	now := time.Now().UTC()
	for otherID, other := range r.items {
		if other.IsDefault && otherID != id {
			other.IsDefault = false
			other.UpdatedAt = now
			r.items[otherID] = other
		}
	}
	loc.IsDefault = true
	loc.UpdatedAt = now
	r.items[id] = loc
	return loc, nil
}
