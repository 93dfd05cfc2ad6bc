package indicator

import "chartengine/internal/model"

// EMA calculates the Exponential Moving Average seeded with the first value.
// O(1) per position, no window storage.
//
// A null input, or a null previous EMA, makes the position null. Values are
// never carried forward across a gap.
func EMA(s model.Series, period int) (model.Series, error) {
	if err := validate("ema", s, period); err != nil {
		return nil, err
	}

	multiplier := 2.0 / float64(period+1)
	out := model.NewSeries(len(s))
	out[0] = s[0]
	for i := 1; i < len(s); i++ {
		if model.IsNull(s[i]) || model.IsNull(out[i-1]) {
			continue
		}
		// EMA formula: EMA = (Price * multiplier) + (EMA_prev * (1 - multiplier))
		out[i] = s[i]*multiplier + out[i-1]*(1-multiplier)
	}
	return out, nil
}
