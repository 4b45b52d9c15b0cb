package stats

import (
	"math"
	"testing"
)

func entriesWithLatencies(latencies ...int64) []IssueStat {
	out := make([]IssueStat, len(latencies))
	for i, l := range latencies {
		out[i] = IssueStat{Issue: int64(i + 1), Latency: l}
	}
	return out
}

func TestComputeScore(t *testing.T) {
	tests := []struct {
		name      string
		latencies []int64
		want      float64
	}{
		{"single response", []int64{120}, 1.2},
		{"single slow response", []int64{3600}, 36.0},
		{"two fast responses", []int64{1, 3}, 0.01},
		{"odd count takes middle", []int64{1, 2, 3}, 2.0 / 300},
		{"unknown latency dilutes", []int64{-1, 1}, 0.02},
		{"ignored issue doubles weight", []int64{100, -1}, 2.0},
		{"even count averages middles", []int64{100, 200}, 0.75},
		{"mixed bag", []int64{100, 3, 5, 110}, 0.13125},
		{"larger window", []int64{10, 100, 100, 200, 1000, 10000}, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeScore(entriesWithLatencies(tt.latencies...))
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ComputeScore(%v) = %v, want %v", tt.latencies, got, tt.want)
			}
		})
	}
}

func TestComputeScore_NoMeasuredLatency(t *testing.T) {
	if got := ComputeScore(entriesWithLatencies(-1, -1)); got != NullScore {
		t.Errorf("all-unknown latencies should score NullScore, got %v", got)
	}
	if got := ComputeScore(nil); got != NullScore {
		t.Errorf("no entries should score NullScore, got %v", got)
	}
}

func TestComputeScore_UnorderedInput(t *testing.T) {
	a := ComputeScore(entriesWithLatencies(200, 100))
	b := ComputeScore(entriesWithLatencies(100, 200))
	if a != b {
		t.Errorf("score should not depend on input order: %v vs %v", a, b)
	}
}

func TestRescore(t *testing.T) {
	r := &Record{Entries: entriesWithLatencies(120)}
	r.Rescore()
	if r.Score != 1.2 {
		t.Errorf("Rescore set %v, want 1.2", r.Score)
	}
	r.Entries = nil
	r.Rescore()
	if r.Score != NullScore {
		t.Errorf("Rescore on empty entries set %v, want NullScore", r.Score)
	}
}
