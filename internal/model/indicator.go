package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind names an indicator computation.
type Kind string

const (
	KindSMA        Kind = "sma"
	KindEMA        Kind = "ema"
	KindRSI        Kind = "rsi"
	KindBollinger  Kind = "bollinger"
	KindMACD       Kind = "macd"
	KindStochastic Kind = "stochastic"
	KindATR        Kind = "atr"
	KindOBV        Kind = "obv"

	// KindBatch is a protocol-only kind carrying several requests at once.
	KindBatch Kind = "batch"
)

// Kinds lists every indicator kind in a stable order.
var Kinds = []Kind{KindSMA, KindEMA, KindRSI, KindBollinger, KindMACD, KindStochastic, KindATR, KindOBV}

// Params holds kind-specific parameters. Zero values select the defaults.
type Params struct {
	Period       int     `json:"period,omitempty"`
	FastPeriod   int     `json:"fastPeriod,omitempty"`
	SlowPeriod   int     `json:"slowPeriod,omitempty"`
	SignalPeriod int     `json:"signalPeriod,omitempty"`
	StdDev       float64 `json:"stdDev,omitempty"`
	KPeriod      int     `json:"kPeriod,omitempty"`
	DPeriod      int     `json:"dPeriod,omitempty"`
}

// Request asks for one indicator over a shared dataset.
type Request struct {
	Kind   Kind   `json:"type"`
	Name   string `json:"name,omitempty"`
	Params Params `json:"-"`
}

// Key returns the name results are filed under: Name if set, else the kind.
func (r Request) Key() string {
	if r.Name != "" {
		return r.Name
	}
	return string(r.Kind)
}

// MarshalJSON flattens the params next to type and name, matching the
// worker's batch option format.
func (r Request) MarshalJSON() ([]byte, error) {
	type flat struct {
		Kind Kind   `json:"type"`
		Name string `json:"name,omitempty"`
		Params
	}
	return json.Marshal(flat{Kind: r.Kind, Name: r.Name, Params: r.Params})
}

func (r *Request) UnmarshalJSON(data []byte) error {
	type flat struct {
		Kind Kind   `json:"type"`
		Name string `json:"name,omitempty"`
		Params
	}
	var f flat
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	r.Kind, r.Name, r.Params = f.Kind, f.Name, f.Params
	return nil
}

// Bands is the Bollinger result.
type Bands struct {
	Upper  Series `json:"upper"`
	Middle Series `json:"middle"`
	Lower  Series `json:"lower"`
}

// MACDLines is the MACD result.
type MACDLines struct {
	MACD      Series `json:"macd"`
	Signal    Series `json:"signal"`
	Histogram Series `json:"histogram"`
}

// StochasticLines is the stochastic oscillator result.
type StochasticLines struct {
	K Series `json:"k"`
	D Series `json:"d"`
}

// Result holds one indicator's output. Exactly one of Series, Bands, MACD or
// Stochastic is set, according to Kind.
type Result struct {
	Kind       Kind
	Series     Series
	Bands      *Bands
	MACD       *MACDLines
	Stochastic *StochasticLines
}

// Lines returns every output series keyed by line name.
func (r Result) Lines() map[string]Series {
	switch {
	case r.Bands != nil:
		return map[string]Series{"upper": r.Bands.Upper, "middle": r.Bands.Middle, "lower": r.Bands.Lower}
	case r.MACD != nil:
		return map[string]Series{"macd": r.MACD.MACD, "signal": r.MACD.Signal, "histogram": r.MACD.Histogram}
	case r.Stochastic != nil:
		return map[string]Series{"k": r.Stochastic.K, "d": r.Stochastic.D}
	default:
		return map[string]Series{string(r.Kind): r.Series}
	}
}

// MarshalJSON emits the kind-specific shape: a bare array for single-line
// indicators, an object for the multi-line ones.
func (r Result) MarshalJSON() ([]byte, error) {
	switch {
	case r.Bands != nil:
		return json.Marshal(r.Bands)
	case r.MACD != nil:
		return json.Marshal(r.MACD)
	case r.Stochastic != nil:
		return json.Marshal(r.Stochastic)
	default:
		return json.Marshal(r.Series)
	}
}

// DecodeResult decodes a kind-specific result shape produced by MarshalJSON.
func DecodeResult(kind Kind, raw json.RawMessage) (Result, error) {
	res := Result{Kind: kind}
	var err error
	switch kind {
	case KindBollinger:
		res.Bands = &Bands{}
		err = json.Unmarshal(raw, res.Bands)
	case KindMACD:
		res.MACD = &MACDLines{}
		err = json.Unmarshal(raw, res.MACD)
	case KindStochastic:
		res.Stochastic = &StochasticLines{}
		err = json.Unmarshal(raw, res.Stochastic)
	case KindSMA, KindEMA, KindRSI, KindATR, KindOBV:
		err = json.Unmarshal(raw, &res.Series)
	default:
		return res, fmt.Errorf("decode result: unknown kind %q", kind)
	}
	if err != nil {
		return res, fmt.Errorf("decode %s result: %w", kind, err)
	}
	return res, nil
}

// BatchResult partitions a batch into successful results and per-name errors.
type BatchResult struct {
	Results map[string]Result `json:"results"`
	Errors  map[string]string `json:"errors"`
}

// DecodeBatchResult decodes a batch result. The kinds of each named result
// are taken from reqs.
func DecodeBatchResult(reqs []Request, raw json.RawMessage) (BatchResult, error) {
	var wire struct {
		Results map[string]json.RawMessage `json:"results"`
		Errors  map[string]string          `json:"errors"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return BatchResult{}, fmt.Errorf("decode batch result: %w", err)
	}
	out := BatchResult{
		Results: make(map[string]Result, len(wire.Results)),
		Errors:  wire.Errors,
	}
	if out.Errors == nil {
		out.Errors = map[string]string{}
	}
	kinds := make(map[string]Kind, len(reqs))
	for _, r := range reqs {
		kinds[r.Key()] = r.Kind
	}
	for name, body := range wire.Results {
		kind, ok := kinds[name]
		if !ok {
			kind = Kind(name)
		}
		res, err := DecodeResult(kind, body)
		if err != nil {
			out.Errors[name] = err.Error()
			continue
		}
		out.Results[name] = res
	}
	return out, nil
}

// isJSONArray reports whether raw starts with '['.
func isJSONArray(raw []byte) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '['
}
