package chart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chartengine/internal/model"
	"chartengine/internal/worker"
)

// silentConn accepts every message and never answers.
type silentConn struct {
	responses chan worker.Response
	sent      chan worker.Message
	sendErr   error
	closeOnce sync.Once
	closed    atomic.Bool
}

func newSilentConn() *silentConn {
	return &silentConn{
		responses: make(chan worker.Response),
		sent:      make(chan worker.Message, 64),
	}
}

func (c *silentConn) Send(_ context.Context, msg worker.Message) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent <- msg
	return nil
}

func (c *silentConn) Responses() <-chan worker.Response { return c.responses }

func (c *silentConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.responses)
	})
	return nil
}

// sequentialIDs returns "task-1", "task-2", ...
func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("task-%d", n.Add(1)) }
}

type fakePlot struct {
	p         *fakePlotter
	target    string
	updates   int
	destroyed bool
	last      model.Payload
	cfg       model.PlotConfig
	payloads  []model.Payload
}

func (fp *fakePlot) Update(payload model.Payload, cfg model.PlotConfig) error {
	fp.p.mu.Lock()
	defer fp.p.mu.Unlock()
	if fp.p.updateErr != nil {
		return fp.p.updateErr
	}
	fp.updates++
	fp.last, fp.cfg = payload, cfg
	fp.payloads = append(fp.payloads, payload)
	return nil
}

func (fp *fakePlot) Destroy() error {
	fp.p.mu.Lock()
	defer fp.p.mu.Unlock()
	fp.destroyed = true
	return nil
}

// fakePlotter records every plot it creates.
type fakePlotter struct {
	mu         sync.Mutex
	prepares   int
	prepareErr error
	createErr  error
	updateErr  error
	plots      map[string]*fakePlot
}

func newFakePlotter() *fakePlotter { return &fakePlotter{plots: map[string]*fakePlot{}} }

func (p *fakePlotter) Prepare(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prepares++
	return p.prepareErr
}

func (p *fakePlotter) NewPlot(target string, payload model.Payload, cfg model.PlotConfig) (Plot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	fp := &fakePlot{p: p, target: target, last: payload, cfg: cfg, payloads: []model.Payload{payload}}
	p.plots[target] = fp
	return fp, nil
}

func (p *fakePlotter) plot(target string) *fakePlot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plots[target]
}

// candlePayload builds a candlestick payload with volume of n points.
func candlePayload(n int, title string) model.Payload {
	tr := model.Trace{Type: "candlestick", Name: "price"}
	vol := model.Trace{Type: "bar", Name: "volume"}
	for i := 0; i < n; i++ {
		c := 100 + 5*math.Sin(float64(i)/4) + float64(i%3)
		tr.X = append(tr.X, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i).Format("2006-01-02"))
		tr.Open = append(tr.Open, c-0.5)
		tr.High = append(tr.High, c+1)
		tr.Low = append(tr.Low, c-1)
		tr.Close = append(tr.Close, c)
		vol.X = tr.X
		vol.Y = append(vol.Y, float64(1000+i))
	}
	return model.Payload{Data: []model.Trace{tr, vol}, Layout: map[string]any{"title": title}}
}

// chartAPI is a fake chart API. Status overrides per endpoint force errors.
type chartAPI struct {
	mu     sync.Mutex
	points int
	status map[string]int
	calls  map[string]int
	bodies []fetchBody
	block  map[string]chan struct{}
}

func newChartAPI(t *testing.T, points int) (*chartAPI, *httptest.Server) {
	api := &chartAPI{points: points, status: map[string]int{}, calls: map[string]int{}, block: map[string]chan struct{}{}}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return api, srv
}

func (a *chartAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body fetchBody
	_ = json.NewDecoder(r.Body).Decode(&body)

	a.mu.Lock()
	a.calls[r.URL.Path]++
	a.bodies = append(a.bodies, body)
	status := a.status[r.URL.Path]
	block := a.block[r.URL.Path]
	a.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-r.Context().Done():
			return
		}
	}
	if status != 0 {
		http.Error(w, "unavailable", status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(candlePayload(a.points, body.Symbol+" "+r.URL.Path))
}

func (a *chartAPI) fail(endpoint string, status int) {
	a.mu.Lock()
	a.status[endpoint] = status
	a.mu.Unlock()
}

func (a *chartAPI) count(endpoint string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[endpoint]
}

// memJournal records saved reports.
type memJournal struct {
	mu      sync.Mutex
	reports []Report
}

func (j *memJournal) Save(_ context.Context, r Report) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.reports = append(j.reports, r)
	return fmt.Sprintf("report-%d", len(j.reports)), nil
}

func traceNames(p model.Payload) map[string]string {
	out := map[string]string{}
	for _, t := range p.Data {
		out[t.Name] = t.YAxis
	}
	return out
}

var errBoom = errors.New("boom")
