package chart

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Timings records phase durations in per-phase ring buffers and reports
// percentiles. Thread-safe.
type Timings struct {
	mu       sync.Mutex
	capacity int
	rings    map[string]*ring
}

type ring struct {
	samples []float64 // milliseconds
	pos     int
	count   int
}

// PhaseTiming summarises the recorded durations of one phase.
type PhaseTiming struct {
	Phase string  `json:"phase"`
	Count int     `json:"count"`
	P50   float64 `json:"p50Ms"`
	P95   float64 `json:"p95Ms"`
	P99   float64 `json:"p99Ms"`
	Last  float64 `json:"lastMs"`
}

// NewTimings keeps the last capacity samples per phase.
func NewTimings(capacity int) *Timings {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Timings{capacity: capacity, rings: make(map[string]*ring)}
}

// Record adds a sample for phase.
func (t *Timings) Record(phase string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.rings[phase]
	if !ok {
		r = &ring{samples: make([]float64, t.capacity)}
		t.rings[phase] = r
	}
	r.samples[r.pos] = float64(d.Microseconds()) / 1000.0
	r.pos = (r.pos + 1) % len(r.samples)
	if r.count < len(r.samples) {
		r.count++
	}
}

// Snapshot returns one summary per phase, ordered by phase name.
func (t *Timings) Snapshot() []PhaseTiming {
	t.mu.Lock()
	out := make([]PhaseTiming, 0, len(t.rings))
	sorted := make(map[string][]float64, len(t.rings))
	for phase, r := range t.rings {
		s := r.ordered()
		out = append(out, PhaseTiming{Phase: phase, Count: r.count, Last: s[len(s)-1]})
		sorted[phase] = s
	}
	t.mu.Unlock()

	for i := range out {
		s := sorted[out[i].Phase]
		sort.Float64s(s)
		out[i].P50 = percentile(s, 0.50)
		out[i].P95 = percentile(s, 0.95)
		out[i].P99 = percentile(s, 0.99)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Phase < out[j].Phase })
	return out
}

// ordered copies the samples oldest first.
func (r *ring) ordered() []float64 {
	out := make([]float64, r.count)
	if r.count == len(r.samples) {
		copy(out, r.samples[r.pos:])
		copy(out[len(r.samples)-r.pos:], r.samples[:r.pos])
	} else {
		copy(out, r.samples[:r.count])
	}
	return out
}

// percentile computes the p-th percentile (0.0–1.0) of a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	rank := p * float64(n-1)
	lower := int(math.Floor(rank))
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}
