package inventory

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
)

func newTestHandler(t *testing.T) (http.Handler, *Store) {
	t.Helper()
	store, _ := newTestStore(t)
	r := chi.NewRouter()
	r.Route("/inventory", NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), store).MountRoutes)
	return r, store
}

func send(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerReservationFlow(t *testing.T) {
	h, store := newTestHandler(t)
	_, err := store.ApplyDelta(context.Background(), 2, 7, 5, 0, cost("3.333"))
	require.NoError(t, err)

	rec := send(t, h, http.MethodPost, "/inventory/reservations", `{"location_id":2,"product_id":7,"quantity":4}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var item ItemResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	require.EqualValues(t, 4, item.Reserved)
	require.EqualValues(t, 1, item.Available)
	require.Equal(t, "3.33", item.UnitCost)

	rec = send(t, h, http.MethodPost, "/inventory/reservations", `{"location_id":2,"product_id":7,"quantity":2}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "stock/insufficient-available", problem.Type)
	require.EqualValues(t, 2, *problem.Requested)

	rec = send(t, h, http.MethodPost, "/inventory/reservations/release", `{"location_id":2,"product_id":7,"quantity":10}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	require.Zero(t, item.Reserved, "release clamps at zero")
}

func TestHandlerLowStockAndMinQuantity(t *testing.T) {
	h, store := newTestHandler(t)
	_, err := store.ApplyDelta(context.Background(), 3, 1, 2, 0, cost("1"))
	require.NoError(t, err)
	_, err = store.ApplyDelta(context.Background(), 3, 2, 9, 0, cost("1"))
	require.NoError(t, err)

	rec := send(t, h, http.MethodPut, "/inventory/min-quantity", `{"location_id":3,"product_id":1,"min_quantity":5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = send(t, h, http.MethodGet, "/inventory/locations/3/low-stock", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var low []ItemResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &low))
	require.Len(t, low, 1)
	require.EqualValues(t, 1, low[0].ProductID)
	require.True(t, low[0].LowStock)

	rec = send(t, h, http.MethodGet, "/inventory/locations/3/items", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []ItemResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 2)
}

func TestHandlerMovementsAndLookups(t *testing.T) {
	h, store := newTestHandler(t)
	_, err := store.ApplyDelta(context.Background(), 4, 1, 6, 0, cost("2"))
	require.NoError(t, err)
	_, err = store.ApplyDelta(context.Background(), 4, 1, -1, 0, nil)
	require.NoError(t, err)

	rec := send(t, h, http.MethodGet, "/inventory/movements?location_id=4&product_id=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var movements []movementResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &movements))
	require.Len(t, movements, 2)
	require.EqualValues(t, 6, movements[1].QtyBefore)
	require.EqualValues(t, 5, movements[1].QtyAfter)

	rec = send(t, h, http.MethodGet, "/inventory/items?location_id=4&product_id=99", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = send(t, h, http.MethodGet, "/inventory/items?location_id=4", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send(t, h, http.MethodGet, "/inventory/movements?location_id=4&product_id=1&from=yesterday", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send(t, h, http.MethodPost, "/inventory/reservations", `{"location_id":4,"product_id":1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
