package indicator

import (
	"math"

	"chartengine/internal/model"
)

// Bollinger calculates Bollinger Bands: the SMA middle band plus and minus
// multiplier population standard deviations over the same trailing window.
func Bollinger(s model.Series, period int, multiplier float64) (model.Bands, error) {
	middle, err := SMA(s, period)
	if err != nil {
		return model.Bands{}, err
	}

	upper := model.NewSeries(len(s))
	lower := model.NewSeries(len(s))
	for i := period - 1; i < len(s); i++ {
		mean := middle[i]
		if model.IsNull(mean) {
			continue
		}
		variance := 0.0
		for _, v := range s[i-period+1 : i+1] {
			d := v - mean
			variance += d * d
		}
		sd := math.Sqrt(variance / float64(period))
		upper[i] = mean + sd*multiplier
		lower[i] = mean - sd*multiplier
	}
	return model.Bands{Upper: upper, Middle: middle, Lower: lower}, nil
}
