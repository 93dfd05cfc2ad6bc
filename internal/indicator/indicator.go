// Package indicator provides technical indicator calculations over price and
// volume series.
//
// Every function is pure: it takes index-aligned series and returns series of
// the same length, with leading positions set to model.Null until the lookback
// period is satisfied. Invalid input is reported as an error wrapping
// ErrInvalidInput; a null in the output never signals an error.
package indicator

import (
	"errors"
	"fmt"

	"chartengine/internal/model"
)

// ErrInvalidInput is wrapped by every error caused by bad shapes, lengths or
// periods.
var ErrInvalidInput = errors.New("invalid input")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// validate checks a series is non-empty and period lies in [1, len(s)].
func validate(name string, s model.Series, period int) error {
	if len(s) == 0 {
		return invalid("%s: empty series", name)
	}
	if period < 1 || period > len(s) {
		return invalid("%s: period %d outside [1, %d]", name, period, len(s))
	}
	return nil
}

// sameLength checks parallel series share one non-zero length.
func sameLength(name string, series ...model.Series) error {
	if len(series) == 0 || len(series[0]) == 0 {
		return invalid("%s: empty series", name)
	}
	n := len(series[0])
	for _, s := range series[1:] {
		if len(s) != n {
			return invalid("%s: series lengths differ (%d vs %d)", name, n, len(s))
		}
	}
	return nil
}

// noNulls rejects series with null positions for indicators that need every
// value.
func noNulls(name string, series ...model.Series) error {
	for _, s := range series {
		for i, v := range s {
			if model.IsNull(v) {
				return invalid("%s: null value at index %d", name, i)
			}
		}
	}
	return nil
}
