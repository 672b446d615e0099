package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `stockledger_http_requests_total{code="418",route="/test"} 1`)
	require.Contains(t, body, `stockledger_http_request_duration_seconds_bucket{route="/test"`)
}

func TestLedgerMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveConfirmation("WRITEOFF", "confirmed", 20*time.Millisecond)
	metrics.ObserveConfirmation("WRITEOFF", "insufficient_stock", time.Millisecond)
	metrics.ObserveConfirmation("", "not_found", time.Millisecond)
	metrics.ObserveLockWait(3*time.Millisecond, true)

	body := scrape(t, metrics)
	require.Contains(t, body, `stockledger_document_confirmations_total{outcome="confirmed",type="WRITEOFF"} 1`)
	require.Contains(t, body, `stockledger_document_confirmations_total{outcome="insufficient_stock",type="WRITEOFF"} 1`)
	require.Contains(t, body, `stockledger_document_confirmations_total{outcome="not_found",type="unknown"} 1`)
	require.Contains(t, body, `stockledger_row_lock_wait_seconds_count{acquired="true"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveConfirmation("RECEIPT", "confirmed", time.Second)
	metrics.ObserveLockWait(time.Second, false)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.False(t, strings.Contains(rr.Body.String(), "stockledger"))
}
