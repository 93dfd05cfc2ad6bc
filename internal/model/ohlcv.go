package model

import (
	"encoding/json"
	"fmt"
)

// OHLCV is the shared price/volume dataset indicators are computed from.
type OHLCV struct {
	Dates  []string `json:"dates,omitempty"`
	Open   Series   `json:"open,omitempty"`
	High   Series   `json:"high,omitempty"`
	Low    Series   `json:"low,omitempty"`
	Close  Series   `json:"close,omitempty"`
	Volume Series   `json:"volume,omitempty"`
}

// Len returns the length of the close series.
func (d OHLCV) Len() int { return len(d.Close) }

// DecodeData decodes worker message data. A bare array is taken as the close
// series; an object is decoded as a full OHLCV dataset.
func DecodeData(raw json.RawMessage) (OHLCV, error) {
	var d OHLCV
	if len(raw) == 0 {
		return d, fmt.Errorf("decode data: empty")
	}
	if isJSONArray(raw) {
		if err := json.Unmarshal(raw, &d.Close); err != nil {
			return d, fmt.Errorf("decode data: %w", err)
		}
		return d, nil
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, fmt.Errorf("decode data: %w", err)
	}
	return d, nil
}
