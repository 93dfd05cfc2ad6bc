package chart

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"chartengine/internal/model"
)

// DefaultLargeThreshold is the point count above which plots are created in
// the plotter's high-performance mode.
const DefaultLargeThreshold = 1000

// Plotter is the plotting library capability.
type Plotter interface {
	// Prepare makes the library usable. It is called once, through a Loader.
	Prepare(ctx context.Context) error
	// NewPlot draws payload into target and returns a handle to it.
	NewPlot(target string, payload model.Payload, cfg model.PlotConfig) (Plot, error)
}

// Plot is a rendered chart bound to one target.
type Plot interface {
	// Update redraws the plot in place.
	Update(payload model.Payload, cfg model.PlotConfig) error
	Destroy() error
}

// Render draws payload into target. The first render of a target creates a
// plot; later renders update that plot in place.
func (o *Orchestrator) Render(ctx context.Context, target string, payload model.Payload) error {
	if strings.TrimSpace(target) == "" {
		return fmt.Errorf("%w: empty target", ErrRender)
	}
	if len(payload.Data) == 0 {
		return fmt.Errorf("%w: %s: payload has no traces", ErrRender, target)
	}
	if err := o.loader.Ensure(ctx); err != nil {
		return fmt.Errorf("%w: plotting library unavailable: %v", ErrRender, err)
	}

	cfg := model.PlotConfig{
		Large: payload.Points() > o.largeThreshold,
		Title: payload.Title(),
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if plot, ok := o.instances[target]; ok {
		if err := plot.Update(payload, cfg); err != nil {
			return fmt.Errorf("%w: update %s: %v", ErrRender, target, err)
		}
		o.metrics.ObserveRender("update", cfg.Large)
		return nil
	}

	plot, err := o.plotter.NewPlot(target, payload, cfg)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrRender, target, err)
	}
	o.instances[target] = plot
	o.metrics.ObserveRender("create", cfg.Large)
	return nil
}

// Destroy removes the plot bound to target. It reports whether one existed.
func (o *Orchestrator) Destroy(target string) (bool, error) {
	o.mu.Lock()
	plot, ok := o.instances[target]
	delete(o.instances, target)
	o.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := plot.Destroy(); err != nil {
		return true, fmt.Errorf("%w: destroy %s: %v", ErrRender, target, err)
	}
	return true, nil
}

// Targets returns the targets with a live plot, sorted.
func (o *Orchestrator) Targets() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.instances))
	for t := range o.instances {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// destroyAll tears down every plot and returns how many were destroyed along
// with any destroy errors.
func (o *Orchestrator) destroyAll() (int, []error) {
	o.mu.Lock()
	instances := o.instances
	o.instances = make(map[string]Plot)
	o.mu.Unlock()

	var errs []error
	for target, plot := range instances {
		if err := plot.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("%w: destroy %s: %v", ErrRender, target, err))
		}
	}
	return len(instances), errs
}
