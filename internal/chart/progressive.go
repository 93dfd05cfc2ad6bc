package chart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chartengine/internal/logger"
	"chartengine/internal/model"
)

// Phase is a step of a progressive load. Phases only move forward.
type Phase int

const (
	PhaseInitial Phase = iota
	PhaseData
	PhaseChart
	PhaseFull
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseInitial:
		return "initial"
	case PhaseData:
		return "data"
	case PhaseChart:
		return "chart"
	case PhaseFull:
		return "full"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// advance moves to next if it is ahead of the current phase. A backward
// transition is ignored and reported as false.
func advance(cur *Phase, next Phase) bool {
	if next <= *cur {
		return false
	}
	*cur = next
	return true
}

// LoadResult describes how far a load got.
type LoadResult struct {
	Symbol string `json:"symbol"`
	LoadID string `json:"loadId"`
	Target string `json:"target"`
	// Phase is the furthest phase reached.
	Phase Phase `json:"phase"`
	// FromCache is set when a cached summary was shown before fetching.
	FromCache bool `json:"fromCache"`
	// Cancelled is set when the load was superseded or aborted.
	Cancelled bool `json:"cancelled"`
	// Fatal is the error that halted the load; Retry is set with it.
	Fatal error `json:"-"`
	Retry bool  `json:"retry"`
	// Failed holds best-effort phases that did not complete.
	Failed map[Phase]string `json:"failed,omitempty"`
}

// Err returns the fatal error, if any.
func (r LoadResult) Err() error { return r.Fatal }

// Target returns the plot target used for symbol.
func Target(symbol string) string { return "chart-" + symbol }

const (
	keyBasic    = "basic_chart"
	keyEnhanced = "enhanced_chart"
	keyComplete = "complete_analysis"
)

// Load runs the progressive sequence for symbol: cached summary, basic
// chart, enhanced chart with overlays, complete analysis. Only the basic
// chart is essential; later phases are best effort and a failure there never
// undoes an earlier render. Starting a new load supersedes one in progress.
func (o *Orchestrator) Load(ctx context.Context, symbol string) LoadResult {
	loadID := logger.NewLoadID(symbol, time.Now())
	ctx = logger.WithLoadID(ctx, loadID)
	target := Target(symbol)
	res := LoadResult{Symbol: symbol, LoadID: loadID, Target: target, Phase: PhaseInitial}
	o.recordLoad()

	log := o.log.With(logger.LogWithLoad(ctx)...)
	log.Info("load started", "symbol", symbol, "period", o.period)

	if err := o.loader.Ensure(ctx); err != nil {
		if ctx.Err() != nil {
			return o.finish(ctx, res.cancel())
		}
		err = fmt.Errorf("%w: plotting library unavailable: %v", ErrRender, err)
		return o.finish(ctx, res.fail(err))
	}

	res.FromCache = o.showCached(ctx, symbol, target)

	// data: essential
	start := time.Now()
	payload, ok, err := o.fetch(ctx, keyBasic, EndpointBasic, symbol)
	if !ok {
		return o.finish(ctx, res.cancel())
	}
	if err == nil {
		err = o.Render(ctx, target, payload)
	}
	o.observePhase(PhaseData, time.Since(start), err)
	if err != nil {
		return o.finish(ctx, res.fail(err))
	}
	advance(&res.Phase, PhaseData)
	log.Info("phase complete", "phase", PhaseData, "points", payload.Points())

	// chart: best effort
	if cancelled := o.bestEffort(ctx, &res, PhaseChart, keyEnhanced, EndpointEnhanced, nil); cancelled {
		return o.finish(ctx, res.cancel())
	}

	// full: best effort, cached on success
	cacheSummary := func(p model.Payload) {
		if o.cache == nil {
			return
		}
		if err := o.cache.Put(ctx, symbol, p); err != nil {
			log.Warn("summary cache write failed", "error", err)
		}
	}
	if cancelled := o.bestEffort(ctx, &res, PhaseFull, keyComplete, EndpointComplete, cacheSummary); cancelled {
		return o.finish(ctx, res.cancel())
	}

	advance(&res.Phase, PhaseDone)
	return o.finish(ctx, res)
}

// bestEffort runs one non-essential phase. A failure is logged and recorded
// in res.Failed; it reports true only when the load was cancelled.
func (o *Orchestrator) bestEffort(ctx context.Context, res *LoadResult, phase Phase, key, endpoint string, onSuccess func(model.Payload)) bool {
	start := time.Now()
	payload, ok, err := o.fetch(ctx, key, endpoint, res.Symbol)
	if !ok {
		return true
	}
	if err == nil {
		payload = o.applyOverlays(ctx, payload, o.overlaysThrough(phase))
		err = o.Render(ctx, res.Target, payload)
	}
	o.observePhase(phase, time.Since(start), err)
	if err != nil {
		if res.Failed == nil {
			res.Failed = map[Phase]string{}
		}
		res.Failed[phase] = err.Error()
		o.log.Warn("phase failed, continuing", append(logger.LogWithLoad(ctx), "phase", phase, "error", err)...)
		return false
	}
	advance(&res.Phase, phase)
	if onSuccess != nil {
		onSuccess(payload)
	}
	o.log.Info("phase complete", append(logger.LogWithLoad(ctx), "phase", phase, "points", payload.Points())...)
	return false
}

// fetch runs a keyed latest-wins fetch.
func (o *Orchestrator) fetch(ctx context.Context, key, endpoint, symbol string) (model.Payload, bool, error) {
	return Latest(ctx, o.requests, key, func(ctx context.Context) (model.Payload, error) {
		return o.source.Fetch(ctx, endpoint, symbol, o.period)
	})
}

// showCached renders a cached summary for symbol, if there is one.
func (o *Orchestrator) showCached(ctx context.Context, symbol, target string) bool {
	if o.cache == nil {
		return false
	}
	payload, ok, err := o.cache.Get(ctx, symbol)
	switch {
	case err != nil:
		o.metrics.ObserveCache("error")
		o.log.Warn("summary cache read failed", append(logger.LogWithLoad(ctx), "error", err)...)
		return false
	case !ok:
		o.metrics.ObserveCache("miss")
		return false
	}
	o.metrics.ObserveCache("hit")
	if err := o.Render(ctx, target, payload); err != nil {
		o.recordError(PhaseInitial.String(), err)
		return false
	}
	return true
}

func (o *Orchestrator) observePhase(phase Phase, d time.Duration, err error) {
	o.timings.Record(phase.String(), d)
	o.metrics.ObservePhase(phase.String(), d, err)
	if err != nil {
		o.recordError(phase.String(), err)
	}
}

func (r LoadResult) cancel() LoadResult {
	r.Cancelled = true
	return r
}

func (r LoadResult) fail(err error) LoadResult {
	r.Fatal = err
	r.Retry = true
	return r
}

func (o *Orchestrator) finish(ctx context.Context, res LoadResult) LoadResult {
	outcome := "done"
	switch {
	case res.Cancelled:
		outcome = "cancelled"
		o.log.Info("load cancelled", append(logger.LogWithLoad(ctx), "phase", res.Phase)...)
	case res.Fatal != nil:
		outcome = "fatal"
		o.log.Error("load failed", append(logger.LogWithLoad(ctx), "phase", res.Phase, "error", res.Fatal)...)
	default:
		o.log.Info("load finished", append(logger.LogWithLoad(ctx), "phase", res.Phase, "failed_phases", len(res.Failed))...)
	}
	o.metrics.ObserveLoad(outcome)
	o.setLastPhase(res.Phase)
	if o.health != nil {
		o.health.SetLastLoad(time.Now(), res.Phase.String())
	}
	return res
}

// IsRetryable reports whether err is a failure the user may retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrRender) || errors.Is(err, ErrComputationTimeout)
}
