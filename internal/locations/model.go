package locations

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Kind distinguishes stores from warehouses.
type Kind string

const (
	KindStore     Kind = "STORE"
	KindWarehouse Kind = "WAREHOUSE"
)

// Location represents a store or warehouse holding stock.
type Location struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code,omitempty"`
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	Active    bool      `json:"active"`
	IsDefault bool      `json:"is_default"`
	Address   string    `json:"address,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListFilters narrows location listings.
type ListFilters struct {
	Page     int
	Limit    int
	Search   string
	SortBy   string
	SortDir  string
	Kind     Kind
	IsActive *bool
}

var (
	// ErrLocationNotFound indicates an unknown location id.
	ErrLocationNotFound = fmt.Errorf("locations: location %w", shared.ErrNotFound)
	// ErrLocationInUse indicates a location referenced by a draft document.
	ErrLocationInUse = fmt.Errorf("locations: location referenced by a draft document: %w", shared.ErrInvalidState)
	// ErrDefaultLocation indicates an attempt to deactivate the default location.
	ErrDefaultLocation = fmt.Errorf("locations: default location cannot be deactivated: %w", shared.ErrInvalidState)
	// ErrLocationInactive indicates an operation that needs an active location.
	ErrLocationInactive = fmt.Errorf("locations: location is inactive: %w", shared.ErrInvalidState)
	// ErrDuplicateCode indicates a location code already in use.
	ErrDuplicateCode = fmt.Errorf("locations: code already used: %w", shared.ErrValidation)
	// ErrDefaultChanged indicates another caller moved the default at the same time.
	ErrDefaultChanged = fmt.Errorf("locations: default changed concurrently: %w", shared.ErrConcurrencyConflict)
)
