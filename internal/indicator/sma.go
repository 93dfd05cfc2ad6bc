package indicator

import "chartengine/internal/model"

// SMA calculates the Simple Moving Average. out[i] is the mean of
// s[i-period+1..i]; earlier positions, and windows holding a null, are null.
// Uses a running sum over the window, O(n) overall.
func SMA(s model.Series, period int) (model.Series, error) {
	if err := validate("sma", s, period); err != nil {
		return nil, err
	}

	out := model.NewSeries(len(s))
	sum := 0.0
	nulls := 0 // nulls inside the current window
	for i, v := range s {
		if model.IsNull(v) {
			nulls++
		} else {
			sum += v
		}

		if i >= period {
			// Drop the value leaving the window
			old := s[i-period]
			if model.IsNull(old) {
				nulls--
			} else {
				sum -= old
			}
		}

		if i >= period-1 && nulls == 0 {
			out[i] = sum / float64(period)
		}
	}
	return out, nil
}
