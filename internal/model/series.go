package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Null marks a position that does not have enough history to be computed.
var Null = math.NaN()

// IsNull reports whether v is the null sentinel.
func IsNull(v float64) bool { return math.IsNaN(v) }

// Series is an index-aligned sequence of values. Null positions hold NaN and
// encode as JSON null.
type Series []float64

// NewSeries returns a series of length n with every position null.
func NewSeries(n int) Series {
	s := make(Series, n)
	for i := range s {
		s[i] = Null
	}
	return s
}

// Valid reports whether position i holds a value.
func (s Series) Valid(i int) bool {
	return i >= 0 && i < len(s) && !IsNull(s[i])
}

// Compact returns the non-null values in order.
func (s Series) Compact() Series {
	out := make(Series, 0, len(s))
	for _, v := range s {
		if !IsNull(v) {
			out = append(out, v)
		}
	}
	return out
}

// Expand maps compact values back onto the non-null positions of s, in order.
// Positions that are null in s stay null, as do trailing non-null positions
// when compact runs out.
func (s Series) Expand(compact Series) Series {
	out := NewSeries(len(s))
	j := 0
	for i, v := range s {
		if IsNull(v) {
			continue
		}
		if j < len(compact) {
			out[i] = compact[j]
		}
		j++
	}
	return out
}

// Last returns the last non-null value.
func (s Series) Last() (float64, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if !IsNull(s[i]) {
			return s[i], true
		}
	}
	return 0, false
}

// MarshalJSON encodes null positions as JSON null.
func (s Series) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.Grow(len(s) * 8)
	buf.WriteByte('[')
	for i, v := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			buf.WriteString("null")
			continue
		}
		buf.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes JSON null entries as null positions.
func (s *Series) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = nil
		return nil
	}
	var raw []*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Series, len(raw))
	for i, p := range raw {
		if p == nil {
			out[i] = Null
			continue
		}
		out[i] = *p
	}
	*s = out
	return nil
}
