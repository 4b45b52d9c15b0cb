package stats

import (
	"math"
	"sort"
)

// NullScore marks an account that has entries but nothing rankable (no
// review with a measured latency). It sorts after every real score so
// such accounts land at the bottom of an ascending leaderboard.
const NullScore = math.MaxFloat64

// ComputeScore derives the ranking score for a set of issue stats. Lower
// is better: the median response latency, scaled up when entries exist
// that were never responded to.
//
//	score = median(measured latencies) * len(entries) / (100 * reviewed^2)
//
// where reviewed counts entries with a measured latency and the median of
// an even count is the mean of the two middle values. Returns NullScore
// when no latency was measured at all.
func ComputeScore(entries []IssueStat) float64 {
	var latencies []int64
	for _, e := range entries {
		if e.Latency >= 0 {
			latencies = append(latencies, e.Latency)
		}
	}
	if len(latencies) == 0 {
		return NullScore
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	n := len(latencies)
	var median float64
	if n%2 == 1 {
		median = float64(latencies[n/2])
	} else {
		median = float64(latencies[n/2-1]+latencies[n/2]) / 2
	}

	reviewed := float64(n)
	return median * float64(len(entries)) / (100 * reviewed * reviewed)
}
