package indicator

import (
	"math"

	"chartengine/internal/model"
)

// ATR calculates the Average True Range as the SMA of true ranges. The first
// true range is high-low; later ones also consider the previous close.
func ATR(high, low, close model.Series, period int) (model.Series, error) {
	if err := sameLength("atr", high, low, close); err != nil {
		return nil, err
	}
	if err := noNulls("atr", high, low, close); err != nil {
		return nil, err
	}

	tr := make(model.Series, len(close))
	tr[0] = high[0] - low[0]
	for i := 1; i < len(close); i++ {
		tr[i] = trueRange(high[i], low[i], close[i-1])
	}
	return SMA(tr, period)
}

// trueRange calculates the True Range of a bar given the previous close.
func trueRange(high, low, prevClose float64) float64 {
	highLow := high - low
	highClose := math.Abs(high - prevClose)
	lowClose := math.Abs(low - prevClose)
	return math.Max(highLow, math.Max(highClose, lowClose))
}

// OBV calculates On-Balance Volume. Volume is added on up closes, subtracted
// on down closes and ignored on unchanged closes. A null or zero first volume
// seeds the running total at 0.
func OBV(close, volume model.Series) (model.Series, error) {
	if err := sameLength("obv", close, volume); err != nil {
		return nil, err
	}
	if err := noNulls("obv", close); err != nil {
		return nil, err
	}

	out := make(model.Series, len(close))
	out[0] = 0
	if !model.IsNull(volume[0]) {
		out[0] = volume[0]
	}
	for i := 1; i < len(close); i++ {
		v := volume[i]
		if model.IsNull(v) {
			v = 0
		}
		switch {
		case close[i] > close[i-1]:
			out[i] = out[i-1] + v
		case close[i] < close[i-1]:
			out[i] = out[i-1] - v
		default:
			out[i] = out[i-1]
		}
	}
	return out, nil
}
