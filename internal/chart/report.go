package chart

import (
	"context"
	"runtime"
	"time"

	"chartengine/internal/logger"
)

// ReportError is one error recorded during the orchestrator's lifetime.
type ReportError struct {
	Op      string    `json:"op"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Report summarises timings, errors and resources of an orchestrator.
type Report struct {
	ID        string        `json:"id,omitempty"`
	StartedAt time.Time     `json:"startedAt"`
	EndedAt   time.Time     `json:"endedAt"`
	Loads     int           `json:"loads"`
	LastPhase string        `json:"lastPhase"`
	Phases    []PhaseTiming `json:"phases"`
	Errors    []ReportError `json:"errors"`

	// Set by Teardown.
	CancelledRequests int `json:"cancelledRequests"`
	DestroyedPlots    int `json:"destroyedPlots"`
	FailedTasks       int `json:"failedTasks"`

	LivePlots      int    `json:"livePlots"`
	PendingTasks   int    `json:"pendingTasks"`
	HeapAllocBytes uint64 `json:"heapAllocBytes"`
	HeapObjects    uint64 `json:"heapObjects"`
}

// Journal persists reports.
type Journal interface {
	Save(ctx context.Context, r Report) (string, error)
}

// Report returns the current report without tearing anything down.
func (o *Orchestrator) Report() Report {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	o.statsMu.Lock()
	r := Report{
		StartedAt: o.started,
		EndedAt:   time.Now(),
		Loads:     o.loads,
		LastPhase: o.lastPhase.String(),
		Errors:    append([]ReportError(nil), o.errs...),
	}
	o.statsMu.Unlock()

	r.Phases = o.timings.Snapshot()
	r.LivePlots = len(o.Targets())
	r.PendingTasks = o.dispatcher.Pending()
	r.HeapAllocBytes = ms.HeapAlloc
	r.HeapObjects = ms.HeapObjects
	return r
}

// Teardown cancels every in-flight request, destroys every plot, fails the
// pending worker tasks and terminates the worker, then builds, persists and
// logs the final report. Calling it again returns a fresh report without
// repeating the teardown.
func (o *Orchestrator) Teardown(ctx context.Context) Report {
	o.statsMu.Lock()
	already := o.torndown
	o.torndown = true
	o.statsMu.Unlock()
	if already {
		return o.Report()
	}

	cancelled := o.requests.CancelAll()
	destroyed, errs := o.destroyAll()
	for _, err := range errs {
		o.recordError("teardown", err)
	}
	failed, err := o.dispatcher.Close()
	if err != nil {
		o.recordError("teardown", err)
	}
	if o.health != nil {
		o.health.SetWorkerConnected(false)
	}

	r := o.Report()
	r.CancelledRequests = cancelled
	r.DestroyedPlots = destroyed
	r.FailedTasks = failed

	if o.journal != nil {
		start := time.Now()
		id, err := o.journal.Save(ctx, r)
		o.metrics.ObserveJournalWrite(time.Since(start))
		if err != nil {
			o.log.Warn("report journal write failed", append(logger.LogWithLoad(ctx), "error", err)...)
		} else {
			r.ID = id
		}
	}

	o.log.Info("teardown complete",
		"loads", r.Loads,
		"last_phase", r.LastPhase,
		"cancelled_requests", r.CancelledRequests,
		"destroyed_plots", r.DestroyedPlots,
		"failed_tasks", r.FailedTasks,
		"errors", len(r.Errors),
		"heap_alloc_bytes", r.HeapAllocBytes,
	)
	return r
}
