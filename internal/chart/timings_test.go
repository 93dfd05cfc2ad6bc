package chart

import (
	"math"
	"testing"
	"time"
)

func TestTimings_Empty(t *testing.T) {
	if got := NewTimings(10).Snapshot(); len(got) != 0 {
		t.Errorf("expected no phases, got %v", got)
	}
}

func TestTimings_Percentiles(t *testing.T) {
	tm := NewTimings(1000)

	// 1ms, 2ms, ..., 100ms
	for i := 1; i <= 100; i++ {
		tm.Record("data", time.Duration(i)*time.Millisecond)
	}
	tm.Record("chart", 7*time.Millisecond)

	snap := tm.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 phases, got %d", len(snap))
	}
	if snap[0].Phase != "chart" || snap[1].Phase != "data" {
		t.Fatalf("expected phases sorted by name, got %s, %s", snap[0].Phase, snap[1].Phase)
	}

	d := snap[1]
	if d.Count != 100 {
		t.Errorf("count: got %d, want 100", d.Count)
	}
	if math.Abs(d.P50-50.5) > 1.0 {
		t.Errorf("p50: got %f, expected ~50.5", d.P50)
	}
	if math.Abs(d.P95-95.05) > 1.0 {
		t.Errorf("p95: got %f, expected ~95.05", d.P95)
	}
	if math.Abs(d.P99-99.01) > 1.0 {
		t.Errorf("p99: got %f, expected ~99.01", d.P99)
	}
	if d.Last != 100 {
		t.Errorf("last: got %f, want 100", d.Last)
	}
	if snap[0].P50 != 7 {
		t.Errorf("single sample p50: got %f, want 7", snap[0].P50)
	}
}

func TestTimings_Wraparound(t *testing.T) {
	tm := NewTimings(10)

	// Record 20 samples; the first 10 are evicted.
	for i := 1; i <= 20; i++ {
		tm.Record("full", time.Duration(i)*time.Millisecond)
	}

	d := tm.Snapshot()[0]
	if d.Count != 10 {
		t.Errorf("count: got %d, want 10", d.Count)
	}
	if d.P50 < 11 {
		t.Errorf("p50 %f includes evicted samples", d.P50)
	}
	if d.Last != 20 {
		t.Errorf("last: got %f, want 20", d.Last)
	}
}
