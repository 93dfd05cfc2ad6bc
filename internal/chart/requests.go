package chart

import (
	"context"
	"sync"

	"chartengine/internal/metrics"
)

// Requests tracks in-flight requests by key with latest-wins semantics:
// starting a request under a key cancels whatever was running under it.
type Requests struct {
	mu       sync.Mutex
	inflight map[string]flight
	seq      uint64
	metrics  *metrics.Metrics
}

type flight struct {
	id     uint64
	cancel context.CancelFunc
}

// NewRequests creates an empty request table. m may be nil.
func NewRequests(m *metrics.Metrics) *Requests {
	return &Requests{inflight: make(map[string]flight), metrics: m}
}

func (r *Requests) begin(parent context.Context, key string) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(parent)

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.inflight[key]; ok {
		prev.cancel()
		r.metrics.ObserveCancelled(key)
	}
	r.seq++
	r.inflight[key] = flight{id: r.seq, cancel: cancel}
	return ctx, r.seq
}

// finish releases the request's context and reports whether it was still the
// latest request under key.
func (r *Requests) finish(key string, id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.inflight[key]
	if !ok || f.id != id {
		return false
	}
	f.cancel()
	delete(r.inflight, key)
	return true
}

// Cancel aborts the request under key. It reports whether one was running.
func (r *Requests) Cancel(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.inflight[key]
	if !ok {
		return false
	}
	f.cancel()
	delete(r.inflight, key)
	r.metrics.ObserveCancelled(key)
	return true
}

// CancelAll aborts every in-flight request and returns how many there were.
func (r *Requests) CancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.inflight)
	for key, f := range r.inflight {
		f.cancel()
		r.metrics.ObserveCancelled(key)
	}
	r.inflight = make(map[string]flight)
	return n
}

// InFlight returns the number of running requests.
func (r *Requests) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}

// Do runs fn under key. ok is false, with a nil error, when the request was
// cancelled or superseded; a cancelled request is a skip, not a failure.
func (r *Requests) Do(ctx context.Context, key string, fn func(context.Context) error) (ok bool, err error) {
	_, ok, err = Latest(ctx, r, key, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return ok, err
}

// Latest runs fn under key and returns its value. If the request is
// cancelled, superseded by a newer one under the same key, or its parent
// context ends, the result is discarded and ok is false with a nil error.
func Latest[T any](ctx context.Context, r *Requests, key string, fn func(context.Context) (T, error)) (v T, ok bool, err error) {
	reqCtx, id := r.begin(ctx, key)
	res, err := fn(reqCtx)
	aborted := reqCtx.Err() != nil
	current := r.finish(key, id)

	var zero T
	if !current || aborted {
		return zero, false, nil
	}
	if err != nil {
		return zero, true, err
	}
	return res, true, nil
}
