package indicator

import (
	"fmt"
	"sort"

	"chartengine/internal/model"
)

// Default parameters applied when a request leaves a field at zero.
const (
	DefaultMAPeriod     = 20
	DefaultRSIPeriod    = 14
	DefaultBandPeriod   = 20
	DefaultBandStdDev   = 2.0
	DefaultFastPeriod   = 12
	DefaultSlowPeriod   = 26
	DefaultSignalPeriod = 9
	DefaultKPeriod      = 14
	DefaultDPeriod      = 3
	DefaultATRPeriod    = 14
)

// Func computes one indicator kind over a dataset.
type Func func(data model.OHLCV, p model.Params) (model.Result, error)

// Engine maps indicator kinds to their calculation and runs single or batch
// requests. The registry is fixed after NewEngine; an Engine is safe for
// concurrent use.
type Engine struct {
	registry map[model.Kind]Func
}

// NewEngine creates an engine with every built-in indicator registered.
func NewEngine() *Engine {
	return &Engine{
		registry: map[model.Kind]Func{
			model.KindSMA:        computeSMA,
			model.KindEMA:        computeEMA,
			model.KindRSI:        computeRSI,
			model.KindBollinger:  computeBollinger,
			model.KindMACD:       computeMACD,
			model.KindStochastic: computeStochastic,
			model.KindATR:        computeATR,
			model.KindOBV:        computeOBV,
		},
	}
}

// Supported returns the registered kinds, sorted.
func (e *Engine) Supported() []model.Kind {
	kinds := make([]model.Kind, 0, len(e.registry))
	for k := range e.registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Compute runs one request against data.
func (e *Engine) Compute(req model.Request, data model.OHLCV) (model.Result, error) {
	fn, ok := e.registry[req.Kind]
	if !ok {
		return model.Result{}, invalid("unknown indicator %q", req.Kind)
	}
	res, err := fn(data, req.Params)
	if err != nil {
		return model.Result{}, err
	}
	res.Kind = req.Kind
	return res, nil
}

// Batch computes every request independently against the shared dataset. A
// failing request is recorded under its key in Errors and does not stop the
// others.
func (e *Engine) Batch(reqs []model.Request, data model.OHLCV) model.BatchResult {
	out := model.BatchResult{
		Results: make(map[string]model.Result, len(reqs)),
		Errors:  make(map[string]string),
	}
	for _, req := range reqs {
		res, err := e.safeCompute(req, data)
		if err != nil {
			out.Errors[req.Key()] = err.Error()
			continue
		}
		out.Results[req.Key()] = res
	}
	return out
}

// safeCompute turns a panic inside an indicator into an error so one request
// cannot take down a batch.
func (e *Engine) safeCompute(req model.Request, data model.OHLCV) (res model.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", req.Kind, r)
		}
	}()
	return e.Compute(req, data)
}

func or[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}

func computeSMA(d model.OHLCV, p model.Params) (model.Result, error) {
	s, err := SMA(d.Close, or(p.Period, DefaultMAPeriod))
	return model.Result{Series: s}, err
}

func computeEMA(d model.OHLCV, p model.Params) (model.Result, error) {
	s, err := EMA(d.Close, or(p.Period, DefaultMAPeriod))
	return model.Result{Series: s}, err
}

func computeRSI(d model.OHLCV, p model.Params) (model.Result, error) {
	s, err := RSI(d.Close, or(p.Period, DefaultRSIPeriod))
	return model.Result{Series: s}, err
}

func computeBollinger(d model.OHLCV, p model.Params) (model.Result, error) {
	b, err := Bollinger(d.Close, or(p.Period, DefaultBandPeriod), or(p.StdDev, DefaultBandStdDev))
	if err != nil {
		return model.Result{}, err
	}
	return model.Result{Bands: &b}, nil
}

func computeMACD(d model.OHLCV, p model.Params) (model.Result, error) {
	m, err := MACD(d.Close,
		or(p.FastPeriod, DefaultFastPeriod),
		or(p.SlowPeriod, DefaultSlowPeriod),
		or(p.SignalPeriod, DefaultSignalPeriod))
	if err != nil {
		return model.Result{}, err
	}
	return model.Result{MACD: &m}, nil
}

func computeStochastic(d model.OHLCV, p model.Params) (model.Result, error) {
	s, err := Stochastic(d.High, d.Low, d.Close,
		or(p.KPeriod, DefaultKPeriod),
		or(p.DPeriod, DefaultDPeriod))
	if err != nil {
		return model.Result{}, err
	}
	return model.Result{Stochastic: &s}, nil
}

func computeATR(d model.OHLCV, p model.Params) (model.Result, error) {
	s, err := ATR(d.High, d.Low, d.Close, or(p.Period, DefaultATRPeriod))
	return model.Result{Series: s}, err
}

func computeOBV(d model.OHLCV, _ model.Params) (model.Result, error) {
	s, err := OBV(d.Close, d.Volume)
	return model.Result{Series: s}, err
}
