package model

import "strings"

// Trace is one plotly-style trace of a chart payload.
type Trace struct {
	Type   string         `json:"type,omitempty"`
	Mode   string         `json:"mode,omitempty"`
	Name   string         `json:"name,omitempty"`
	X      []string       `json:"x,omitempty"`
	Y      Series         `json:"y,omitempty"`
	Open   Series         `json:"open,omitempty"`
	High   Series         `json:"high,omitempty"`
	Low    Series         `json:"low,omitempty"`
	Close  Series         `json:"close,omitempty"`
	XAxis  string         `json:"xaxis,omitempty"`
	YAxis  string         `json:"yaxis,omitempty"`
	Line   map[string]any `json:"line,omitempty"`
	Marker map[string]any `json:"marker,omitempty"`
}

// Points returns the number of x positions in the trace.
func (t Trace) Points() int {
	n := len(t.X)
	for _, s := range []Series{t.Y, t.Close} {
		if len(s) > n {
			n = len(s)
		}
	}
	return n
}

// Payload is a chart payload as served by the chart API: traces plus layout.
type Payload struct {
	Data   []Trace        `json:"data"`
	Layout map[string]any `json:"layout,omitempty"`
}

// Points returns the size of the largest trace.
func (p Payload) Points() int {
	n := 0
	for _, t := range p.Data {
		if pts := t.Points(); pts > n {
			n = pts
		}
	}
	return n
}

// Clone returns a copy whose trace slice and layout map can be modified
// without touching p.
func (p Payload) Clone() Payload {
	out := Payload{Data: make([]Trace, len(p.Data))}
	copy(out.Data, p.Data)
	if p.Layout != nil {
		out.Layout = make(map[string]any, len(p.Layout))
		for k, v := range p.Layout {
			out.Layout[k] = v
		}
	}
	return out
}

// ExtractOHLCV pulls the price series out of the payload. A candlestick or
// ohlc trace supplies open/high/low/close; otherwise the first scatter trace
// is used as the close series. Volume comes from a bar trace named "volume".
func (p Payload) ExtractOHLCV() (OHLCV, bool) {
	var d OHLCV
	found := false
	for _, t := range p.Data {
		if t.Type == "candlestick" || t.Type == "ohlc" {
			d.Dates, d.Open, d.High, d.Low, d.Close = t.X, t.Open, t.High, t.Low, t.Close
			found = true
			break
		}
	}
	if !found {
		for _, t := range p.Data {
			if (t.Type == "" || t.Type == "scatter" || t.Type == "scattergl") && len(t.Y) > 0 {
				d.Dates, d.Close = t.X, t.Y
				found = true
				break
			}
		}
	}
	if !found {
		return d, false
	}
	for _, t := range p.Data {
		if t.Type == "bar" && strings.EqualFold(t.Name, "volume") && len(t.Y) == len(d.Close) {
			d.Volume = t.Y
			break
		}
	}
	return d, true
}

// Title returns layout.title, either a plain string or {text: ...}.
func (p Payload) Title() string {
	switch t := p.Layout["title"].(type) {
	case string:
		return t
	case map[string]any:
		if s, ok := t["text"].(string); ok {
			return s
		}
	}
	return ""
}

// PlotConfig carries rendering options derived from a payload.
type PlotConfig struct {
	// Large selects the plotter's high-performance mode for big datasets.
	Large bool
	Title string
}
