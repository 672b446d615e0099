// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var stockErr *shared.StockError
	var fieldErr *FieldErrors
	switch {
	case errors.As(err, &stockErr):
		problem := ProblemDetail{
			Type:       "stock/" + kindSlug(stockErr.Kind),
			Title:      "Stock Rule Violated",
			Status:     http.StatusUnprocessableEntity,
			Detail:     err.Error(),
			LocationID: stockErr.LocationID,
			ProductID:  stockErr.ProductID,
			Line:       stockErr.Line,
			OnHand:     &stockErr.OnHand,
			Reserved:   &stockErr.Reserved,
			Requested:  &stockErr.Requested,
		}
		JSON(w, problem.Status, problem)
	case errors.As(err, &fieldErr):
		JSON(w, http.StatusBadRequest, ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusBadRequest,
			Detail: err.Error(),
			Fields: fieldErr.Fields,
		})
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrConcurrencyConflict):
		w.Header().Set("Retry-After", "1")
		Problem(w, http.StatusConflict, "Concurrency Conflict", err.Error())
	case errors.Is(err, shared.ErrInvalidState), errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, shared.ErrInsufficientStock),
		errors.Is(err, shared.ErrInvalidReservation),
		errors.Is(err, shared.ErrInsufficientAvailable):
		Problem(w, http.StatusUnprocessableEntity, "Stock Rule Violated", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", shared.UserSafeMessage(err))
	}
}

func kindSlug(kind error) string {
	switch {
	case errors.Is(kind, shared.ErrInsufficientStock):
		return "insufficient-stock"
	case errors.Is(kind, shared.ErrInvalidReservation):
		return "invalid-reservation"
	case errors.Is(kind, shared.ErrInsufficientAvailable):
		return "insufficient-available"
	default:
		return "unknown"
	}
}
