package indicator

import "chartengine/internal/model"

// Stochastic calculates the stochastic oscillator. %K compares the close to
// the trailing kPeriod high-low range (50 when the range is flat); %D is the
// SMA of the non-null %K values over dPeriod, mapped back onto %K's positions.
func Stochastic(high, low, close model.Series, kPeriod, dPeriod int) (model.StochasticLines, error) {
	if err := sameLength("stochastic", high, low, close); err != nil {
		return model.StochasticLines{}, err
	}
	if err := validate("stochastic", close, kPeriod); err != nil {
		return model.StochasticLines{}, err
	}
	if err := noNulls("stochastic", high, low, close); err != nil {
		return model.StochasticLines{}, err
	}

	k := model.NewSeries(len(close))
	for i := kPeriod - 1; i < len(close); i++ {
		hi, lo := high[i], low[i]
		for j := i - kPeriod + 1; j < i; j++ {
			hi = max(hi, high[j])
			lo = min(lo, low[j])
		}
		if hi == lo {
			k[i] = 50
			continue
		}
		k[i] = 100 * (close[i] - lo) / (hi - lo)
	}

	compact, err := SMA(k.Compact(), dPeriod)
	if err != nil {
		return model.StochasticLines{}, err
	}
	return model.StochasticLines{K: k, D: k.Expand(compact)}, nil
}
