package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	require.Equal(t, "example.com", SanitizeSite("https://Example.com/a?b=c"))
	require.Equal(t, "example.com", SanitizeSite("example.com/path"))
	require.Equal(t, "unknown", SanitizeSite(""))
}

func TestObserveAICall(t *testing.T) {
	before := testutil.ToFloat64(aiCallsTotal.WithLabelValues("refactor_spider", "ok"))
	ObserveAICall("refactor_spider", "ok", 20*time.Millisecond)
	after := testutil.ToFloat64(aiCallsTotal.WithLabelValues("refactor_spider", "ok"))
	require.InDelta(t, before+1, after, 0.001)
}

func TestSetProjectCountsResets(t *testing.T) {
	SetProjectCounts(map[string]int{"active": 2, "paused": 1})
	require.InDelta(t, 2, testutil.ToFloat64(projectsByStatus.WithLabelValues("active")), 0.001)

	SetProjectCounts(map[string]int{"failed": 1})
	require.Equal(t, 1, testutil.CollectAndCount(projectsByStatus))
}

func TestMiddlewareRecordsRoute(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/projects/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "418"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/projects/abc", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
	require.InDelta(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "418")), 0.001)
}
