package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartengine/internal/chart"
	"chartengine/internal/indicator"
	"chartengine/internal/metrics"
	"chartengine/internal/model"
	"chartengine/internal/render"
)

func candles(n int, title string) model.Payload {
	tr := model.Trace{Type: "candlestick", Name: "price"}
	for i := 0; i < n; i++ {
		c := 100 + float64(i%7) - float64(i%3)
		tr.X = append(tr.X, "d"+string(rune('A'+i%26)))
		tr.Open = append(tr.Open, c-0.5)
		tr.High = append(tr.High, c+1)
		tr.Low = append(tr.Low, c-1)
		tr.Close = append(tr.Close, c)
	}
	return model.Payload{Data: []model.Trace{tr}, Layout: map[string]any{"title": title}}
}

type stubReports struct{ reports []chart.Report }

func (s stubReports) Recent(_ context.Context, n int) ([]chart.Report, error) {
	if n < len(s.reports) {
		return s.reports[:n], nil
	}
	return s.reports, nil
}

type fixture struct {
	handler http.Handler
	plotter *render.Plotter
	down    *atomic.Bool
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	down := &atomic.Bool{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		var body struct {
			Symbol string `json:"symbol"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(candles(60, body.Symbol))
	}))
	t.Cleanup(upstream.Close)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	health := metrics.NewHealthStatus()
	plotter := render.New(t.TempDir())
	orch := chart.New(
		chart.NewDispatcher(indicator.NewEngine(), chart.WithDispatchMetrics(m)),
		chart.NewFetcher(upstream.URL, nil, nil, m),
		plotter,
		chart.Options{Metrics: m, Health: health},
	)

	srv, err := NewServer(Config{
		Orchestrator: orch,
		Charts:       plotter,
		Reports:      stubReports{reports: []chart.Report{{ID: "a", Loads: 2}, {ID: "b", Loads: 1}}},
		Health:       health,
		Gatherer:     reg,
	})
	require.NoError(t, err)
	return fixture{handler: srv.Handler(), plotter: plotter, down: down}
}

func (f fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestNewServer_RequiresOrchestrator(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}

func TestLoad_RendersChart(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/load/aapl", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "AAPL", body["symbol"])
	assert.Equal(t, "done", body["phase"])
	assert.Equal(t, "chart-AAPL", body["target"])

	w = f.do(t, http.MethodGet, "/charts/chart-AAPL", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "EMA 20")

	w = f.do(t, http.MethodDelete, "/charts/chart-AAPL", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/charts/chart-AAPL", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/charts/chart-AAPL", "").Code)

	report := decode(t, f.do(t, http.MethodGet, "/api/report", ""))
	assert.Equal(t, 1.0, report["loads"])
	assert.Equal(t, "done", report["lastPhase"])
}

func TestLoad_UpstreamDown(t *testing.T) {
	f := newFixture(t)
	f.down.Store(true)

	w := f.do(t, http.MethodPost, "/api/load/MSFT", "")
	require.Equal(t, http.StatusBadGateway, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["retry"])
	assert.Contains(t, body["error"], "transport")
	assert.Equal(t, "initial", body["phase"])
}

func TestCompute(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/indicators/sma", `{"data":[1,2,3,4,5],"params":{"period":3}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"type":"sma","result":[null,null,2,3,4]}`, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/indicators/RSI", `{"data":[1,2,3],"params":{"period":14}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "too short for the period")

	w = f.do(t, http.MethodPost, "/api/indicators/vwap", `{"data":[1,2,3]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/indicators/sma", `{"params":{}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "data is required")

	w = f.do(t, http.MethodPost, "/api/indicators/sma", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBatch(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/indicators/batch", `{
		"data": {"close":[1,2,3,4,5,6],"volume":[10,10,10,10,10,10]},
		"indicators": [
			{"type":"ema","name":"fast","period":2},
			{"type":"obv"},
			{"type":"sma","name":"long","period":50}
		]
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out struct {
		Results map[string]json.RawMessage `json:"results"`
		Errors  map[string]string          `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Contains(t, out.Results, "fast")
	assert.JSONEq(t, `[10,20,30,40,50,60]`, string(out.Results["obv"]))
	assert.Contains(t, out.Errors, "long")
}

func TestSupported(t *testing.T) {
	f := newFixture(t)
	body := decode(t, f.do(t, http.MethodGet, "/api/indicators", ""))
	assert.Len(t, body["indicators"], len(model.Kinds))
	assert.Equal(t, false, body["worker"])
}

func TestReports(t *testing.T) {
	f := newFixture(t)

	body := decode(t, f.do(t, http.MethodGet, "/api/reports?limit=1", ""))
	assert.Len(t, body["reports"], 1)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/reports?limit=zero", "").Code)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/load/AAPL", "")

	w := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	health := decode(t, w)
	assert.Equal(t, "degraded", health["status"], "no worker connected")
	assert.Equal(t, "done", health["last_load_phase"])

	w = f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "chartengine_loads_total"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(indicator.ErrInvalidInput))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(chart.ErrComputationTimeout))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(chart.ErrWorkerClosed))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
