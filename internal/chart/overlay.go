package chart

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"chartengine/internal/logger"
	"chartengine/internal/model"
)

// Overlay is one indicator drawn on top of a phase's payload.
type Overlay struct {
	Request model.Request
	// Label names the trace; the request key is used when empty.
	Label string
}

// DefaultOverlays are the indicators merged into each phase's payload.
func DefaultOverlays() map[Phase][]Overlay {
	return map[Phase][]Overlay{
		PhaseChart: {
			{Request: model.Request{Kind: model.KindEMA, Name: "ema_20", Params: model.Params{Period: 20}}, Label: "EMA 20"},
			{Request: model.Request{Kind: model.KindRSI, Name: "rsi_14", Params: model.Params{Period: 14}}, Label: "RSI 14"},
		},
		PhaseFull: {
			{Request: model.Request{Kind: model.KindBollinger, Name: "bb_20", Params: model.Params{Period: 20, StdDev: 2}}, Label: "BB 20"},
			{Request: model.Request{Kind: model.KindMACD, Name: "macd", Params: model.Params{FastPeriod: 12, SlowPeriod: 26, SignalPeriod: 9}}, Label: "MACD"},
		},
	}
}

// overlaysThrough returns the overlays of every phase up to and including
// phase, earliest first. All phases render to one target and each update
// replaces the plot, so a later phase redraws the earlier overlays. A
// request key configured in more than one phase is drawn once.
func (o *Orchestrator) overlaysThrough(phase Phase) []Overlay {
	var out []Overlay
	seen := make(map[string]bool)
	for p := PhaseData; p <= phase; p++ {
		for _, ov := range o.overlays[p] {
			key := ov.Request.Key()
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, ov)
		}
	}
	return out
}

// priceOverlay reports whether kind is drawn on the price axis; the
// oscillators each get an axis of their own.
func priceOverlay(kind model.Kind) bool {
	switch kind {
	case model.KindSMA, model.KindEMA, model.KindBollinger:
		return true
	}
	return false
}

// applyOverlays computes the overlays for a payload and returns a copy with
// their traces appended. The payload must carry a price series; indicators
// that fail are logged and left out.
func (o *Orchestrator) applyOverlays(ctx context.Context, payload model.Payload, overlays []Overlay) model.Payload {
	if len(overlays) == 0 {
		return payload
	}
	data, ok := payload.ExtractOHLCV()
	if !ok {
		o.log.Warn("payload has no price series, skipping overlays", logger.LogWithLoad(ctx)...)
		return payload
	}

	reqs := make([]model.Request, len(overlays))
	for i, ov := range overlays {
		reqs[i] = ov.Request
	}
	batch, err := o.dispatcher.Batch(ctx, reqs, data)
	if err != nil {
		o.recordError("overlay", err)
		o.log.Warn("overlay computation failed", append(logger.LogWithLoad(ctx), "error", err)...)
		return payload
	}

	out := payload.Clone()
	axis := nextAxis(out)
	for _, ov := range overlays {
		key := ov.Request.Key()
		if msg, failed := batch.Errors[key]; failed {
			o.recordError("overlay", fmt.Errorf("%s: %s", key, msg))
			o.log.Warn("indicator failed, rendering without it", append(logger.LogWithLoad(ctx), slog.String("indicator", key), slog.String("error", msg))...)
			continue
		}
		res, ok := batch.Results[key]
		if !ok {
			continue
		}
		label := ov.Label
		if label == "" {
			label = key
		}
		yaxis := ""
		if !priceOverlay(ov.Request.Kind) {
			yaxis = fmt.Sprintf("y%d", axis)
			if out.Layout == nil {
				out.Layout = map[string]any{}
			}
			out.Layout[fmt.Sprintf("yaxis%d", axis)] = map[string]any{"title": label}
			axis++
		}
		out.Data = append(out.Data, traces(label, data.Dates, res, yaxis)...)
	}
	return out
}

// traces converts an indicator result into one line trace per output series.
func traces(label string, dates []string, res model.Result, yaxis string) []model.Trace {
	lines := res.Lines()
	names := make([]string, 0, len(lines))
	for name := range lines {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]model.Trace, 0, len(lines))
	for _, name := range names {
		t := model.Trace{
			Type:  "scatter",
			Mode:  "lines",
			Name:  label,
			X:     dates,
			Y:     lines[name],
			YAxis: yaxis,
		}
		if len(lines) > 1 {
			t.Name = label + " " + name
		}
		if name == "histogram" {
			t.Type, t.Mode = "bar", ""
		}
		out = append(out, t)
	}
	return out
}

// nextAxis returns the first secondary y-axis number not used by payload.
func nextAxis(p model.Payload) int {
	n := 2
	for _, t := range p.Data {
		var i int
		if _, err := fmt.Sscanf(t.YAxis, "y%d", &i); err == nil && i >= n {
			n = i + 1
		}
	}
	return n
}
