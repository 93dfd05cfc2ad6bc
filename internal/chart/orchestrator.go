package chart

import (
	"log/slog"
	"sync"
	"time"

	"chartengine/internal/metrics"
)

// Options configures an Orchestrator. Zero values select defaults.
type Options struct {
	// Period is sent with every chart API request, e.g. "1y".
	Period string
	// LargeThreshold is the point count above which large mode is used.
	LargeThreshold int
	// Overlays per phase; DefaultOverlays when nil.
	Overlays map[Phase][]Overlay
	// Cache holds complete-analysis summaries; optional.
	Cache Cache
	// Journal persists teardown reports; optional.
	Journal Journal
	Metrics *metrics.Metrics
	Health  *metrics.HealthStatus
	Logger  *slog.Logger
}

// Orchestrator owns the request table, the plot instances and the
// dispatcher for one chart view.
type Orchestrator struct {
	dispatcher *Dispatcher
	source     Source
	plotter    Plotter
	loader     *Loader
	requests   *Requests
	timings    *Timings

	period         string
	largeThreshold int
	overlays       map[Phase][]Overlay
	cache          Cache
	journal        Journal
	metrics        *metrics.Metrics
	health         *metrics.HealthStatus
	log            *slog.Logger

	mu        sync.Mutex
	instances map[string]Plot

	statsMu   sync.Mutex
	started   time.Time
	loads     int
	lastPhase Phase
	errs      []ReportError
	torndown  bool
}

// New creates an orchestrator. The plotter is prepared lazily on first use.
func New(d *Dispatcher, src Source, plotter Plotter, opts Options) *Orchestrator {
	o := &Orchestrator{
		dispatcher:     d,
		source:         src,
		plotter:        plotter,
		loader:         NewLoader(plotter.Prepare),
		requests:       NewRequests(opts.Metrics),
		timings:        NewTimings(0),
		period:         opts.Period,
		largeThreshold: opts.LargeThreshold,
		overlays:       opts.Overlays,
		cache:          opts.Cache,
		journal:        opts.Journal,
		metrics:        opts.Metrics,
		health:         opts.Health,
		log:            opts.Logger,
		instances:      make(map[string]Plot),
		started:        time.Now(),
	}
	if o.period == "" {
		o.period = "1y"
	}
	if o.largeThreshold <= 0 {
		o.largeThreshold = DefaultLargeThreshold
	}
	if o.overlays == nil {
		o.overlays = DefaultOverlays()
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if o.health != nil {
		o.health.SetWorkerConnected(d.HasWorker())
	}
	return o
}

// Dispatcher returns the orchestrator's dispatcher.
func (o *Orchestrator) Dispatcher() *Dispatcher { return o.dispatcher }

// Requests returns the orchestrator's request table.
func (o *Orchestrator) Requests() *Requests { return o.requests }

func (o *Orchestrator) recordLoad() {
	o.statsMu.Lock()
	o.loads++
	o.statsMu.Unlock()
}

func (o *Orchestrator) setLastPhase(p Phase) {
	o.statsMu.Lock()
	o.lastPhase = p
	o.statsMu.Unlock()
}

func (o *Orchestrator) recordError(op string, err error) {
	o.statsMu.Lock()
	o.errs = append(o.errs, ReportError{Op: op, Message: err.Error(), At: time.Now()})
	o.statsMu.Unlock()
}
