package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Staging ledger metrics
	StageOperationsTotal *prometheus.CounterVec
	StageConflictsTotal  *prometheus.CounterVec
	LedgerWritesTotal    prometheus.Counter

	// Review/commit metrics
	CommitsTotal   *prometheus.CounterVec
	CommitDuration prometheus.Histogram
	RollbacksTotal prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		StageOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_stage_operations_total",
				Help: "Total number of staged change operations",
			},
			[]string{"category", "operation", "result"},
		),
		StageConflictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_stage_conflicts_total",
				Help: "Total number of staged changes rejected as conflicts",
			},
			[]string{"category", "operation"},
		),
		LedgerWritesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_ledger_writes_total",
				Help: "Total number of session ledger file writes",
			},
		),
		CommitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_commits_total",
				Help: "Total number of review/commit attempts",
			},
			[]string{"result"},
		),
		CommitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "warden_commit_duration_seconds",
				Help:    "Duration of review/commit replays in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		RollbacksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_rollbacks_total",
				Help: "Total number of transaction rollbacks during commit",
			},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.StageOperationsTotal,
		m.StageConflictsTotal,
		m.LedgerWritesTotal,
		m.CommitsTotal,
		m.CommitDuration,
		m.RollbacksTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// ObserveStageOperation records the outcome of one staged change operation.
// Safe to call on a nil receiver so the ledger store can run without metrics.
func (m *Metrics) ObserveStageOperation(category, operation, result string) {
	if m == nil {
		return
	}
	m.StageOperationsTotal.WithLabelValues(category, operation, result).Inc()
	if result == "conflict" {
		m.StageConflictsTotal.WithLabelValues(category, operation).Inc()
	}
}

// ObserveLedgerWrite records one session ledger file write.
func (m *Metrics) ObserveLedgerWrite() {
	if m == nil {
		return
	}
	m.LedgerWritesTotal.Inc()
}

// ObserveCommit records the outcome and duration of one commit attempt.
func (m *Metrics) ObserveCommit(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.CommitsTotal.WithLabelValues(result).Inc()
	m.CommitDuration.Observe(duration.Seconds())
}

// ObserveRollback records one transaction rollback.
func (m *Metrics) ObserveRollback() {
	if m == nil {
		return
	}
	m.RollbacksTotal.Inc()
}

// CollectDBStats updates the database connection gauges from sql.DBStats
func (m *Metrics) CollectDBStats(db *sql.DB) {
	if m == nil || db == nil {
		return
	}
	stats := db.Stats()
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// Handler returns the Prometheus metrics HTTP handler for a registry
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps an HTTP handler with request metrics
func (m *Metrics) InstrumentHandler(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(recorder.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// statusRecorder captures the response status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
