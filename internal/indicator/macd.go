package indicator

import "chartengine/internal/model"

// MACD calculates the MACD line (fast EMA minus slow EMA), its signal line and
// the histogram.
//
// The signal line is the EMA of the non-null MACD values, mapped back onto
// the positions those values came from; positions where the MACD line is null
// stay null.
func MACD(s model.Series, fast, slow, signal int) (model.MACDLines, error) {
	fastEMA, err := EMA(s, fast)
	if err != nil {
		return model.MACDLines{}, err
	}
	slowEMA, err := EMA(s, slow)
	if err != nil {
		return model.MACDLines{}, err
	}

	line := model.NewSeries(len(s))
	for i := range s {
		if model.IsNull(fastEMA[i]) || model.IsNull(slowEMA[i]) {
			continue
		}
		line[i] = fastEMA[i] - slowEMA[i]
	}

	compact, err := EMA(line.Compact(), signal)
	if err != nil {
		return model.MACDLines{}, err
	}
	signalLine := line.Expand(compact)

	hist := model.NewSeries(len(s))
	for i := range s {
		if model.IsNull(line[i]) || model.IsNull(signalLine[i]) {
			continue
		}
		hist[i] = line[i] - signalLine[i]
	}
	return model.MACDLines{MACD: line, Signal: signalLine, Histogram: hist}, nil
}
