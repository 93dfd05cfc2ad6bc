package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for chart loading and indicator
// computation. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Progressive load
	PhaseDuration *prometheus.HistogramVec // labels: phase
	PhaseFailures *prometheus.CounterVec   // labels: phase
	LoadsTotal    *prometheus.CounterVec   // labels: outcome=done|fatal|cancelled

	// Indicator dispatch
	IndicatorComputeDur *prometheus.HistogramVec // labels: path=worker|sync, kind
	IndicatorErrors     *prometheus.CounterVec   // labels: kind
	WorkerTimeouts      prometheus.Counter
	PendingTasks        prometheus.Gauge

	// Requests
	RequestsCancelled *prometheus.CounterVec // labels: key
	FetchDuration     *prometheus.HistogramVec

	// Rendering
	RendersTotal *prometheus.CounterVec // labels: op=create|update, mode=standard|large

	// Summary cache and report journal
	CacheLookups    *prometheus.CounterVec // labels: result=hit|miss|error
	JournalWriteDur prometheus.Histogram

	// Circuit breakers
	BreakerState *prometheus.GaugeVec   // labels: name; 0=closed, 1=open, 2=half-open
	BreakerTrips *prometheus.CounterVec // labels: name
}

// New creates every metric and registers it with reg. Pass
// prometheus.DefaultRegisterer in daemons and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chartengine_phase_duration_seconds",
			Help:    "Duration of each progressive load phase",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"phase"}),
		PhaseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartengine_phase_failures_total",
			Help: "Load phases that failed (later phases continue)",
		}, []string{"phase"}),
		LoadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartengine_loads_total",
			Help: "Chart loads by outcome",
		}, []string{"outcome"}),

		IndicatorComputeDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chartengine_indicator_compute_duration_seconds",
			Help:    "Indicator round-trip latency by path",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"path", "kind"}),
		IndicatorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartengine_indicator_errors_total",
			Help: "Indicator computations that failed",
		}, []string{"kind"}),
		WorkerTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartengine_worker_timeouts_total",
			Help: "Worker tasks rejected after the task timeout",
		}),
		PendingTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartengine_pending_tasks",
			Help: "Worker tasks awaiting a response",
		}),

		RequestsCancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartengine_requests_cancelled_total",
			Help: "Keyed requests superseded or aborted",
		}, []string{"key"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chartengine_fetch_duration_seconds",
			Help:    "Chart API fetch latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		RendersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartengine_renders_total",
			Help: "Plot renders by operation and mode",
		}, []string{"op", "mode"}),

		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartengine_cache_lookups_total",
			Help: "Summary cache lookups by result",
		}, []string{"result"}),
		JournalWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartengine_journal_write_duration_seconds",
			Help:    "SQLite report journal write latency",
			Buckets: prometheus.DefBuckets,
		}),

		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chartengine_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartengine_circuit_breaker_trips_total",
			Help: "Times a circuit breaker tripped open",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.PhaseDuration,
		m.PhaseFailures,
		m.LoadsTotal,
		m.IndicatorComputeDur,
		m.IndicatorErrors,
		m.WorkerTimeouts,
		m.PendingTasks,
		m.RequestsCancelled,
		m.FetchDuration,
		m.RendersTotal,
		m.CacheLookups,
		m.JournalWriteDur,
		m.BreakerState,
		m.BreakerTrips,
	)

	return m
}

// ObservePhase records a phase duration and, when err is non-nil, a failure.
func (m *Metrics) ObservePhase(phase string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
	if err != nil {
		m.PhaseFailures.WithLabelValues(phase).Inc()
	}
}

// ObserveLoad counts a finished load.
func (m *Metrics) ObserveLoad(outcome string) {
	if m == nil {
		return
	}
	m.LoadsTotal.WithLabelValues(outcome).Inc()
}

// ObserveCompute records one indicator computation on the given path.
func (m *Metrics) ObserveCompute(path, kind string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.IndicatorComputeDur.WithLabelValues(path, kind).Observe(d.Seconds())
	if err != nil {
		m.IndicatorErrors.WithLabelValues(kind).Inc()
	}
}

// ObserveTimeout counts a worker task timeout.
func (m *Metrics) ObserveTimeout() {
	if m == nil {
		return
	}
	m.WorkerTimeouts.Inc()
}

// SetPending sets the pending task gauge.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.PendingTasks.Set(float64(n))
}

// ObserveCancelled counts a cancelled or superseded request.
func (m *Metrics) ObserveCancelled(key string) {
	if m == nil {
		return
	}
	m.RequestsCancelled.WithLabelValues(key).Inc()
}

// ObserveFetch records a chart API fetch.
func (m *Metrics) ObserveFetch(endpoint string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// ObserveRender counts a render.
func (m *Metrics) ObserveRender(op string, large bool) {
	if m == nil {
		return
	}
	mode := "standard"
	if large {
		mode = "large"
	}
	m.RendersTotal.WithLabelValues(op, mode).Inc()
}

// ObserveCache counts a summary cache lookup.
func (m *Metrics) ObserveCache(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveJournalWrite records a report journal write.
func (m *Metrics) ObserveJournalWrite(d time.Duration) {
	if m == nil {
		return
	}
	m.JournalWriteDur.Observe(d.Seconds())
}

// SetBreakerState mirrors a circuit breaker transition. state uses the
// breaker's numeric encoding.
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(float64(state))
	if state == 1 {
		m.BreakerTrips.WithLabelValues(name).Inc()
	}
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	WorkerConnected bool      `json:"worker_connected"`
	CacheConnected  bool      `json:"cache_connected"`
	JournalOK       bool      `json:"journal_ok"`
	LastLoadTime    time.Time `json:"last_load_time"`
	LastLoadPhase   string    `json:"last_load_phase"`

	// Only dependencies that have been probed count towards the status.
	cacheProbed   bool
	journalProbed bool

	// Liveness probe results
	CacheLatencyMs   float64   `json:"cache_latency_ms"`
	JournalLatencyMs float64   `json:"journal_latency_ms"`
	LastCheckAt      time.Time `json:"last_check_at"`
	StartedAt        time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetWorkerConnected(v bool) {
	h.mu.Lock()
	h.WorkerConnected = v
	h.mu.Unlock()
}

// SetLastLoad records the time and final phase of the latest load.
func (h *HealthStatus) SetLastLoad(t time.Time, phase string) {
	h.mu.Lock()
	h.LastLoadTime = t
	h.LastLoadPhase = phase
	h.mu.Unlock()
}

// CheckCache pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckCache(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.cacheProbed = true
	h.CacheConnected = err == nil
	h.CacheLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckJournal pings the SQLite journal and records latency + health.
func (h *HealthStatus) CheckJournal(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.journalProbed = true
	h.JournalOK = err == nil
	h.JournalLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either dependency may
// be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckCache(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckJournal(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	// The sync fallback keeps charts working without a worker.
	if !h.WorkerConnected || (h.cacheProbed && !h.CacheConnected) || (h.journalProbed && !h.JournalOK) {
		overallStatus = "degraded"
	}
	if h.journalProbed && !h.JournalOK && h.cacheProbed && !h.CacheConnected {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	}

	lastLoad := ""
	if !h.LastLoadTime.IsZero() {
		lastLoad = h.LastLoadTime.Format(time.RFC3339)
	}

	status := struct {
		Status           string  `json:"status"`
		Uptime           string  `json:"uptime"`
		WorkerConnected  bool    `json:"worker_connected"`
		CacheConnected   bool    `json:"cache_connected"`
		CacheLatencyMs   float64 `json:"cache_latency_ms"`
		JournalOK        bool    `json:"journal_ok"`
		JournalLatencyMs float64 `json:"journal_latency_ms"`
		LastLoadTime     string  `json:"last_load_time"`
		LastLoadPhase    string  `json:"last_load_phase"`
		LastCheckAt      string  `json:"last_check_at"`
	}{
		Status:           overallStatus,
		Uptime:           time.Since(h.StartedAt).Round(time.Second).String(),
		WorkerConnected:  h.WorkerConnected,
		CacheConnected:   h.CacheConnected,
		CacheLatencyMs:   h.CacheLatencyMs,
		JournalOK:        h.JournalOK,
		JournalLatencyMs: h.JournalLatencyMs,
		LastLoadTime:     lastLoad,
		LastLoadPhase:    h.LastLoadPhase,
		LastCheckAt:      h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server over the given gatherer.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
