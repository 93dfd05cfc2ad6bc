package chart

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Loader makes sure the plotting library is ready before the first render.
// Concurrent callers share one attempt; success is remembered, failure is
// retried on the next call.
type Loader struct {
	load  func(context.Context) error
	group singleflight.Group
	ready atomic.Bool
}

// NewLoader creates a loader around load.
func NewLoader(load func(context.Context) error) *Loader {
	return &Loader{load: load}
}

// Ensure runs load once. A caller whose ctx ends stops waiting; the shared
// attempt carries on for the others.
func (l *Loader) Ensure(ctx context.Context) error {
	if l.ready.Load() {
		return nil
	}
	ch := l.group.DoChan("load", func() (any, error) {
		if l.ready.Load() {
			return nil, nil
		}
		if err := l.load(context.WithoutCancel(ctx)); err != nil {
			return nil, err
		}
		l.ready.Store(true)
		return nil, nil
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether a load has succeeded.
func (l *Loader) Ready() bool { return l.ready.Load() }
