package indicator

import "chartengine/internal/model"

// RSI calculates the Relative Strength Index using Wilder's smoothing method.
// The first period positions are null; the seed averages are simple means of
// the first period gains and losses.
func RSI(s model.Series, period int) (model.Series, error) {
	if len(s) == 0 {
		return nil, invalid("rsi: empty series")
	}
	if period < 1 {
		return nil, invalid("rsi: period %d must be positive", period)
	}
	if len(s) < period+1 {
		return nil, invalid("rsi: need %d values, got %d", period+1, len(s))
	}
	if err := noNulls("rsi", s); err != nil {
		return nil, err
	}

	out := model.NewSeries(len(s))
	p := float64(period)

	// Accumulation phase: build initial averages
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		gain, loss := split(s[i] - s[i-1])
		avgGain += gain
		avgLoss += loss
	}
	avgGain /= p
	avgLoss /= p
	out[period] = rsiValue(avgGain, avgLoss)

	// Wilder's smoothing: avg = (prevAvg * (period-1) + current) / period
	for i := period + 1; i < len(s); i++ {
		gain, loss := split(s[i] - s[i-1])
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out, nil
}

func split(delta float64) (gain, loss float64) {
	if delta > 0 {
		return delta, 0
	}
	return 0, -delta
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}
