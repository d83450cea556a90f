// Package metrics exposes the portal's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vansales/internal/core"
)

// Metrics owns a private registry. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	writes          *prometheus.CounterVec
	imports         *prometheus.CounterVec
	records         *prometheus.GaugeVec
	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vansales_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vansales_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vansales_record_writes_total",
			Help: "Record writes by kind, operation and outcome.",
		}, []string{"kind", "op", "outcome"}),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vansales_imports_total",
			Help: "Spreadsheet imports by kind and stage.",
		}, []string{"kind", "stage"}),
		records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vansales_records",
			Help: "Records held in the current snapshot.",
		}, []string{"kind"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vansales_job_runs_total",
			Help: "Background job runs by job and status.",
		}, []string{"job", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vansales_job_duration_seconds",
			Help:    "Background job duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
	}
	registry.MustRegister(
		m.requestsTotal, m.requestDuration, m.writes, m.imports, m.records, m.jobRuns, m.jobDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler serves /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records count and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		route := RoutePattern(r)
		m.requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// RecordWrite counts a store write.
func (m *Metrics) RecordWrite(kind core.Kind, op string, err error) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(string(kind), op, outcome(err)).Inc()
}

// RecordImport counts an import reaching stage (staged, committed, cancelled, rejected).
func (m *Metrics) RecordImport(kind core.Kind, stage string) {
	if m == nil {
		return
	}
	m.imports.WithLabelValues(string(kind), stage).Inc()
}

// SetRecords publishes the collection sizes of a snapshot.
func (m *Metrics) SetRecords(s core.State) {
	if m == nil {
		return
	}
	for _, k := range core.Kinds() {
		m.records.WithLabelValues(string(k)).Set(float64(len(s.Collection(k))))
	}
}

// Track times one run of job and records its status when end is called.
func (m *Metrics) Track(job string) func(error) error {
	start := time.Now()
	return func(err error) error {
		if m == nil {
			return err
		}
		m.jobRuns.WithLabelValues(job, outcome(err)).Inc()
		m.jobDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
		return err
	}
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// RoutePattern returns the matched chi route, or "unknown".
func RoutePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
