package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates an operation not allowed in the current lifecycle state.
	ErrInvalidState = errors.New("invalid state")
	// ErrValidation indicates malformed caller input.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientStock occurs when on-hand quantity would go negative.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidReservation occurs when reserved quantity would leave [0, on-hand].
	ErrInvalidReservation = errors.New("invalid reservation")
	// ErrInsufficientAvailable occurs when a reservation exceeds available quantity.
	ErrInsufficientAvailable = errors.New("insufficient available quantity")
	// ErrConcurrencyConflict occurs when row locks could not be acquired in time.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// StockError describes an invariant violation on a single inventory row.
type StockError struct {
	Kind       error
	LocationID int64
	ProductID  int64
	// Line is the 1-based document line that produced the delta, 0 when not applicable.
	Line      int
	OnHand    int64
	Reserved  int64
	Requested int64
}

func (e *StockError) Error() string {
	msg := fmt.Sprintf("%s: location %d product %d (on hand %d, reserved %d, requested %d)",
		e.Kind, e.LocationID, e.ProductID, e.OnHand, e.Reserved, e.Requested)
	if e.Line > 0 {
		msg = fmt.Sprintf("line %d: %s", e.Line, msg)
	}
	return msg
}

// Unwrap exposes the error kind to errors.Is.
func (e *StockError) Unwrap() error {
	return e.Kind
}

// IsRetryable reports whether callers may retry the operation automatically.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// UserSafeMessage returns a message suitable for API clients.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var stockErr *StockError
	switch {
	case errors.As(err, &stockErr):
		return stockErr.Error()
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrConcurrencyConflict):
		return err.Error()
	default:
		return "internal error"
	}
}
