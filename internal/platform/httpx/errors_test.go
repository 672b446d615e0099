package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("document %w", shared.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("bad: %w", shared.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("done: %w", shared.ErrInvalidState), http.StatusConflict},
		{shared.ErrIdempotencyConflict, http.StatusConflict},
		{shared.ErrInsufficientAvailable, http.StatusUnprocessableEntity},
		{errors.New("pg: connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
	}
}

func TestRespondErrorConflictIsRetryable(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("lock: %w", shared.ErrConcurrencyConflict))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("password=secret"))
	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "internal error", problem.Detail)
}

func TestRespondErrorStockDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("confirm: %w", &shared.StockError{
		Kind: shared.ErrInsufficientStock, LocationID: 1, ProductID: 2, Line: 3, OnHand: 1, Requested: 5,
	}))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "stock/insufficient-stock", problem.Type)
	require.Equal(t, 3, problem.Line)
	require.EqualValues(t, 1, *problem.OnHand)
}

type sample struct {
	Name string `json:"name" validate:"required"`
	Qty  int    `json:"qty" validate:"gte=1"`
}

func TestDecodeValid(t *testing.T) {
	v := validator.New()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","qty":0}`))
	var s sample
	err := DecodeValid(req, v, &s)
	var fields *FieldErrors
	require.ErrorAs(t, err, &fields)
	require.Equal(t, "gte", fields.Fields["Qty"])
	require.ErrorIs(t, err, shared.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","qty":1,"extra":true}`))
	require.ErrorIs(t, DecodeValid(req, v, &s), shared.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","qty":2}`))
	require.NoError(t, DecodeValid(req, v, &s))
	require.Equal(t, 2, s.Qty)
}

func TestURLAndQueryParams(t *testing.T) {
	r := chi.NewRouter()
	var got int64
	var gotErr error
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		got, gotErr = URLInt64(r, "id")
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/42", nil))
	require.NoError(t, gotErr)
	require.EqualValues(t, 42, got)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/-1", nil))
	require.ErrorIs(t, gotErr, shared.ErrValidation)

	req := httptest.NewRequest(http.MethodGet, "/?location_id=7&bad=x", nil)
	id, err := QueryInt64(req, "location_id")
	require.NoError(t, err)
	require.EqualValues(t, 7, id)
	id, err = QueryInt64(req, "missing")
	require.NoError(t, err)
	require.Zero(t, id)
	_, err = QueryInt64(req, "bad")
	require.Error(t, err)
}
