// Package render draws chart payloads as standalone HTML pages with
// go-echarts. Each target maps to one file that is rewritten on every update.
package render

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"chartengine/internal/chart"
	"chartengine/internal/model"
)

// missing is the echarts marker for a gap in a series.
const missing = "-"

// Plotter writes one HTML page per target under dir.
type Plotter struct {
	dir string
}

// New creates a plotter that writes into dir.
func New(dir string) *Plotter {
	return &Plotter{dir: dir}
}

// Prepare creates the output directory and checks it is writable.
func (p *Plotter) Prepare(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("create plot dir: %w", err)
	}
	f, err := os.CreateTemp(p.dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("plot dir not writable: %w", err)
	}
	f.Close()
	return os.Remove(f.Name())
}

// Path returns the file a target is rendered to.
func (p *Plotter) Path(target string) string {
	return filepath.Join(p.dir, sanitize(target)+".html")
}

// NewPlot renders payload into the target's file.
func (p *Plotter) NewPlot(target string, payload model.Payload, cfg model.PlotConfig) (chart.Plot, error) {
	pl := &plot{target: target, path: p.Path(target)}
	if err := pl.Update(payload, cfg); err != nil {
		return nil, err
	}
	return pl, nil
}

type plot struct {
	target string
	path   string
}

// Update rewrites the page. The new file replaces the old one atomically.
func (pl *plot) Update(payload model.Payload, cfg model.PlotConfig) error {
	page, err := buildPage(pl.target, payload, cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(pl.path), ".plot-*.html")
	if err != nil {
		return err
	}
	if err := page.Render(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("render %s: %w", pl.target, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), pl.path)
}

func (pl *plot) Destroy() error {
	err := os.Remove(pl.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// buildPage lays the payload out as a page: the price chart with every
// price-axis trace overlapped, then one panel per volume bar or secondary
// axis.
func buildPage(target string, payload model.Payload, cfg model.PlotConfig) (*components.Page, error) {
	if len(payload.Data) == 0 {
		return nil, fmt.Errorf("%s: payload has no traces", target)
	}
	main := payload.Data[0]
	for _, t := range payload.Data {
		if isCandle(t) {
			main = t
			break
		}
	}
	dates := axisDates(main)

	page := components.NewPage()
	page.PageTitle = cfg.Title
	if page.PageTitle == "" {
		page.PageTitle = target
	}

	price := priceChart(target, dates, main, cfg)
	panels := map[string][]model.Trace{}
	for _, t := range payload.Data {
		switch {
		case sameTrace(t, main):
		case t.YAxis == "" && t.Type == "bar":
			panels[t.Name] = append(panels[t.Name], t)
		case t.YAxis == "" || t.YAxis == "y":
			price.Overlap(lineChart(dates, t, cfg))
		default:
			panels[t.YAxis] = append(panels[t.YAxis], t)
		}
	}
	page.AddCharts(price)

	keys := make([]string, 0, len(panels))
	for k := range panels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		page.AddCharts(panelChart(target, k, dates, panels[k], cfg))
	}
	return page, nil
}

type overlapper interface {
	Overlap(a ...charts.Overlaper)
	charts.Overlaper
	components.Charter
}

func priceChart(target string, dates []string, main model.Trace, cfg model.PlotConfig) overlapper {
	global := globalOpts(target, cfg.Title, cfg)
	if isCandle(main) {
		k := charts.NewKLine()
		k.SetGlobalOptions(global...)
		k.SetXAxis(dates).AddSeries(seriesName(main, "price"), klineItems(main))
		return k
	}
	l := charts.NewLine()
	l.SetGlobalOptions(global...)
	l.SetXAxis(dates).AddSeries(seriesName(main, "price"), lineItems(main.Y), lineOpts(cfg))
	return l
}

func panelChart(target, key string, dates []string, traces []model.Trace, cfg model.PlotConfig) components.Charter {
	title := key
	if len(traces) == 1 && traces[0].Name != "" {
		title = traces[0].Name
	}

	var base overlapper
	for _, t := range traces {
		var c overlapper
		if t.Type == "bar" {
			b := charts.NewBar()
			b.SetXAxis(dates).AddSeries(seriesName(t, key), barItems(t.Y))
			c = b
		} else {
			c = lineChart(dates, t, cfg)
		}
		if base == nil {
			base = c
			continue
		}
		base.Overlap(c)
	}
	switch b := base.(type) {
	case *charts.Bar:
		b.SetGlobalOptions(globalOpts(target+"-"+key, title, cfg)...)
	case *charts.Line:
		b.SetGlobalOptions(globalOpts(target+"-"+key, title, cfg)...)
	}
	return base
}

func lineChart(dates []string, t model.Trace, cfg model.PlotConfig) *charts.Line {
	l := charts.NewLine()
	l.SetXAxis(dates).AddSeries(seriesName(t, "series"), lineItems(t.Y), lineOpts(cfg))
	return l
}

func globalOpts(id, title string, cfg model.PlotConfig) []charts.GlobalOpts {
	out := []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{ChartID: chartID(id)}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	}
	if cfg.Large {
		out = append(out,
			charts.WithDataZoomOpts(opts.DataZoom{Type: "inside", Start: 80, End: 100}),
			charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 80, End: 100}),
		)
	}
	return out
}

func lineOpts(cfg model.PlotConfig) charts.SeriesOpts {
	return charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(!cfg.Large)})
}

func klineItems(t model.Trace) []opts.KlineData {
	out := make([]opts.KlineData, len(t.Close))
	for i := range t.Close {
		if i >= len(t.Open) || i >= len(t.Low) || i >= len(t.High) || anyNull(t.Open[i], t.Close[i], t.Low[i], t.High[i]) {
			out[i] = opts.KlineData{Value: missing}
			continue
		}
		out[i] = opts.KlineData{Value: [4]float64{t.Open[i], t.Close[i], t.Low[i], t.High[i]}}
	}
	return out
}

func lineItems(s model.Series) []opts.LineData {
	out := make([]opts.LineData, len(s))
	for i, v := range s {
		out[i] = opts.LineData{Value: value(v)}
	}
	return out
}

func barItems(s model.Series) []opts.BarData {
	out := make([]opts.BarData, len(s))
	for i, v := range s {
		out[i] = opts.BarData{Value: value(v)}
	}
	return out
}

func value(v float64) any {
	if model.IsNull(v) {
		return missing
	}
	return v
}

func anyNull(vs ...float64) bool {
	for _, v := range vs {
		if model.IsNull(v) {
			return true
		}
	}
	return false
}

func isCandle(t model.Trace) bool { return t.Type == "candlestick" || t.Type == "ohlc" }

func sameTrace(a, b model.Trace) bool {
	return a.Type == b.Type && a.Name == b.Name && a.YAxis == b.YAxis && len(a.X) == len(b.X)
}

func seriesName(t model.Trace, fallback string) string {
	if t.Name != "" {
		return t.Name
	}
	return fallback
}

// axisDates returns the trace's x values, or positions when it has none.
func axisDates(t model.Trace) []string {
	if len(t.X) > 0 {
		return t.X
	}
	out := make([]string, t.Points())
	for i := range out {
		out[i] = fmt.Sprint(i)
	}
	return out
}

// chartID maps id to a JavaScript identifier suffix. go-echarts declares a
// variable named goecharts_<ChartID>, so only [A-Za-z0-9_] may appear.
func chartID(id string) string {
	s := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, id)
	if s == "" {
		return "_"
	}
	return s
}

// sanitize maps a target to a safe file name.
func sanitize(target string) string {
	s := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, target)
	if s == "" {
		return "_"
	}
	return s
}
