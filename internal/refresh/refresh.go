// Package refresh reloads a fixed set of symbols on a cron schedule so their
// summaries stay warm in the cache.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"chartengine/internal/chart"
)

// Loader runs one progressive load.
type Loader interface {
	Load(ctx context.Context, symbol string) chart.LoadResult
}

// Scheduler runs a refresh of every symbol on each tick. A tick that fires
// while the previous one is still running is skipped.
type Scheduler struct {
	cron    *cron.Cron
	loader  Loader
	symbols []string
	ctx     context.Context
	log     *slog.Logger
	runs    atomic.Int64
}

// New creates a scheduler. Loads run under ctx.
func New(ctx context.Context, loader Loader, symbols []string, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		loader:  loader,
		symbols: symbols,
		ctx:     ctx,
		log:     log,
	}
}

// Register schedules the refresh, e.g. "@every 15m" or "*/5 9-16 * * 1-5".
func (s *Scheduler) Register(spec string) error {
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce() }); err != nil {
		return fmt.Errorf("register refresh %q: %w", spec, err)
	}
	return nil
}

// RunOnce loads every symbol in turn. Loads share the orchestrator's request
// keys, so they must not overlap.
func (s *Scheduler) RunOnce() []chart.LoadResult {
	s.runs.Add(1)
	out := make([]chart.LoadResult, 0, len(s.symbols))
	for _, symbol := range s.symbols {
		if s.ctx.Err() != nil {
			break
		}
		res := s.loader.Load(s.ctx, symbol)
		if res.Fatal != nil {
			s.log.Warn("refresh failed", "symbol", symbol, "error", res.Fatal)
		}
		out = append(out, res)
	}
	s.log.Info("refresh complete", "symbols", len(out))
	return out
}

// Runs returns how many refreshes have started.
func (s *Scheduler) Runs() int64 { return s.runs.Load() }

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("refresh scheduler started", "symbols", s.symbols)
}

// Stop stops scheduling and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("refresh scheduler stopped")
}
