package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vansales/internal/core"
)

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/{kind}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/sales", nil))

	got := testutil.ToFloat64(m.requestsTotal.WithLabelValues(http.MethodGet, "/api/{kind}", "418"))
	assert.Equal(t, 1.0, got)
}

func TestDomainCounters(t *testing.T) {
	m := New()
	m.RecordWrite(core.KindSales, "create", nil)
	m.RecordWrite(core.KindSales, "create", errors.New("down"))
	m.RecordImport(core.KindCustomers, "committed")
	m.SetRecords(core.State{Sales: make([]core.Record, 3)})
	_ = m.Track("daily_summary")(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.writes.WithLabelValues("sales", "create", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.imports.WithLabelValues("customers", "committed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.records.WithLabelValues("sales")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("daily_summary", "success")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "vansales_record_writes_total"))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordWrite(core.KindSales, "create", nil)
	m.RecordImport(core.KindSales, "staged")
	m.SetRecords(core.State{})
	err := errors.New("x")
	assert.Equal(t, err, m.Track("job")(err))

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
