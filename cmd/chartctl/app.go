package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"os"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"chartengine/config"
	"chartengine/internal/breaker"
	"chartengine/internal/chart"
	"chartengine/internal/indicator"
	"chartengine/internal/logger"
	"chartengine/internal/metrics"
	"chartengine/internal/render"
	storeredis "chartengine/internal/store/redis"
	"chartengine/internal/store/sqlite"
	"chartengine/internal/worker"
)

const memoryCacheEntries = 256

// app is one fully wired orchestrator with its optional stores.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	reg     *prometheus.Registry
	metrics *metrics.Metrics
	health  *metrics.HealthStatus
	plotter *render.Plotter
	redis   *storeredis.SummaryCache
	journal *sqlite.Journal
	orch    *chart.Orchestrator
}

func newApp(ctx context.Context, cfg *config.Config, service string) *app {
	a := &app{
		cfg:    cfg,
		log:    logger.New(os.Stderr, service, logger.ParseLevel(cfg.LogLevel)),
		reg:    prometheus.NewRegistry(),
		health: metrics.NewHealthStatus(),
	}
	slog.SetDefault(a.log)
	a.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.reg)

	engine := indicator.NewEngine()
	opts := []chart.DispatcherOption{
		chart.WithTaskTimeout(cfg.TaskTimeout),
		chart.WithDispatchMetrics(a.metrics),
		chart.WithDispatchLogger(a.log),
	}
	if conn := a.connectWorker(ctx, engine); conn != nil {
		opts = append(opts, chart.WithWorker(conn))
	}
	dispatcher := chart.NewDispatcher(engine, opts...)

	fetcher := chart.NewFetcher(cfg.ChartAPIURL, nil, a.newBreaker("chart_api"), a.metrics)
	a.plotter = render.New(cfg.PlotDir)

	a.orch = chart.New(dispatcher, fetcher, a.plotter, chart.Options{
		Period:         cfg.Period,
		LargeThreshold: cfg.LargeThreshold,
		Cache:          a.openCache(),
		Journal:        a.openJournal(),
		Metrics:        a.metrics,
		Health:         a.health,
		Logger:         a.log,
	})
	return a
}

// connectWorker returns the worker connection selected by WorkerURL, or nil
// for synchronous computation.
func (a *app) connectWorker(ctx context.Context, engine *indicator.Engine) worker.Conn {
	switch a.cfg.WorkerURL {
	case "none":
		a.log.Info("indicator worker disabled, computing synchronously")
		return nil
	case "":
		return worker.Start(ctx, engine)
	}
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	c, err := worker.Dial(dialCtx, a.cfg.WorkerURL)
	if err != nil {
		a.log.Warn("indicator worker unreachable, computing synchronously", "url", a.cfg.WorkerURL, "error", err)
		return nil
	}
	a.log.Info("indicator worker connected", "url", a.cfg.WorkerURL)
	return c
}

func (a *app) newBreaker(name string) *breaker.Breaker {
	b := breaker.New(a.cfg.BreakerFailures, a.cfg.BreakerReset)
	b.OnStateChange = func(from, to breaker.State) {
		a.metrics.SetBreakerState(name, int(to))
		log.Printf("[breaker] %s: %s -> %s", name, from, to)
	}
	return b
}

func (a *app) openCache() chart.Cache {
	if a.cfg.RedisAddr == "" {
		return chart.NewMemoryCache(a.cfg.SummaryTTL, memoryCacheEntries, nil)
	}
	c, err := storeredis.New(storeredis.Config{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
		TTL:      a.cfg.SummaryTTL,
	}, a.newBreaker("summary_cache"))
	if err != nil {
		a.log.Warn("summary cache unavailable, using memory", "error", err)
		return chart.NewMemoryCache(a.cfg.SummaryTTL, memoryCacheEntries, nil)
	}
	a.redis = c
	return c
}

func (a *app) openJournal() chart.Journal {
	if a.cfg.SQLitePath == "" {
		return nil
	}
	j, err := sqlite.Open(sqlite.Config{DBPath: a.cfg.SQLitePath, Keep: a.cfg.ReportKeep})
	if err != nil {
		a.log.Warn("report journal unavailable", "path", a.cfg.SQLitePath, "error", err)
		return nil
	}
	a.journal = j
	return j
}

// startLiveness probes the stores every interval until ctx ends.
func (a *app) startLiveness(ctx context.Context, interval time.Duration) {
	var rdb *goredis.Client
	if a.redis != nil {
		rdb = a.redis.Client()
	}
	var db *sql.DB
	if a.journal != nil {
		db = a.journal.DB()
	}
	a.health.StartLivenessChecker(ctx, rdb, db, interval)
}

// close tears the orchestrator down and closes the stores.
func (a *app) close(ctx context.Context) chart.Report {
	r := a.orch.Teardown(ctx)
	if a.journal != nil {
		a.journal.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	return r
}
