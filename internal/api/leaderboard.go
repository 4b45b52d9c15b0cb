package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/critiq-dev/reviewstats/internal/stats"
)

const (
	defaultLimit = 300
	maxLimit     = 1000
)

// StatSource is the slice of the store the read handlers need.
type StatSource interface {
	Ranked(ctx context.Context, name string, limit int) ([]*stats.Record, error)
	Unranked(ctx context.Context, name string, limit int) ([]*stats.Record, error)
	RankedMonths(ctx context.Context, mergedName string, months []string, limit int) ([]*stats.Record, error)
	Record(ctx context.Context, account, name string) (*stats.Record, error)
}

// Recorder receives analytics events for served reads.
type Recorder interface {
	Capture(event string, props map[string]any)
}

// StatsHandler serves the leaderboard and per-user stats reads.
type StatsHandler struct {
	source    StatSource
	analytics Recorder
}

func NewStatsHandler(source StatSource, analytics Recorder) *StatsHandler {
	return &StatsHandler{source: source, analytics: analytics}
}

// LeaderboardEntry is one account's row. Lower scores rank higher; the
// arrays are index-aligned per reviewed issue.
type LeaderboardEntry struct {
	Account     string    `json:"account"`
	Score       *float64  `json:"score"`
	Issues      []int64   `json:"issues"`
	Latencies   []int64   `json:"latencies"`
	LGTMs       []int     `json:"lgtmCounts"`
	ReviewTypes []string  `json:"reviewTypes"`
	Modified    time.Time `json:"modified,omitempty"`
}

// LeaderboardResponse splits ranked accounts from those with no
// measurable review latency yet.
type LeaderboardResponse struct {
	When             string             `json:"when"`
	Entries          []LeaderboardEntry `json:"entries"`
	NeedsImprovement []LeaderboardEntry `json:"needsImprovement,omitempty"`
}

// Leaderboard handles GET /api/leaderboard/{when}. Accepted keys: a day
// (YYYY-MM-DD), a month (YYYY-MM), the rolling "30", a quarter
// (YYYY-QN) or a bare year. Anything else is not found.
func (h *StatsHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	when := strings.ToLower(chi.URLParam(r, "when"))
	limit := parseLimit(r.URL.Query().Get("limit"))
	today := time.Now().UTC()

	var (
		records  []*stats.Record
		unranked []*stats.Record
		err      error
	)
	switch {
	case stats.ValidPeriodKey(when, today):
		records, err = h.source.Ranked(ctx, when, limit)
		if err == nil {
			unranked, err = h.source.Unranked(ctx, when, limit)
		}
	default:
		months := stats.PeriodToMonths(when, today)
		if months == nil {
			respondError(w, http.StatusNotFound, "unknown period "+when)
			return
		}
		records, err = h.source.RankedMonths(ctx, when, months, limit)
	}
	if err != nil {
		slog.Error("Leaderboard query failed", "when", when, "error", err)
		respondError(w, http.StatusInternalServerError, "leaderboard query failed")
		return
	}

	resp := LeaderboardResponse{
		When:             when,
		Entries:          toEntries(records),
		NeedsImprovement: toEntries(unranked),
	}
	if resp.Entries == nil {
		resp.Entries = []LeaderboardEntry{}
	}
	h.analytics.Capture("leaderboard_served", map[string]any{
		"when": when, "entries": len(resp.Entries),
	})
	respondJSON(w, http.StatusOK, resp)
}

// UserStats handles GET /api/stats/user/{email}/{when}. A valid period
// with no record for the account returns an empty row rather than 404;
// only a malformed period is not found.
func (h *StatsHandler) UserStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	email := strings.ToLower(chi.URLParam(r, "email"))
	when := strings.ToLower(chi.URLParam(r, "when"))
	today := time.Now().UTC()

	var rec *stats.Record
	switch {
	case stats.ValidPeriodKey(when, today):
		var err error
		rec, err = h.source.Record(ctx, email, when)
		if err != nil {
			slog.Error("User stats query failed", "account", email, "when", when, "error", err)
			respondError(w, http.StatusInternalServerError, "stats query failed")
			return
		}
	default:
		months := stats.PeriodToMonths(when, today)
		if months == nil {
			respondError(w, http.StatusNotFound, "unknown period "+when)
			return
		}
		parts, err := h.monthRecords(ctx, email, months)
		if err != nil {
			slog.Error("User stats query failed", "account", email, "when", when, "error", err)
			respondError(w, http.StatusInternalServerError, "stats query failed")
			return
		}
		rec = &stats.Record{Account: email, Name: when, Score: stats.NullScore}
		stats.Sum(rec, parts)
	}

	if rec == nil {
		rec = &stats.Record{Account: email, Name: when, Score: stats.NullScore}
	}
	respondJSON(w, http.StatusOK, toEntry(rec))
}

func (h *StatsHandler) monthRecords(ctx context.Context, email string, months []string) ([]*stats.Record, error) {
	var parts []*stats.Record
	for _, m := range months {
		rec, err := h.source.Record(ctx, email, m)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			parts = append(parts, rec)
		}
	}
	return parts, nil
}

func toEntries(records []*stats.Record) []LeaderboardEntry {
	var out []LeaderboardEntry
	for _, r := range records {
		out = append(out, toEntry(r))
	}
	return out
}

func toEntry(r *stats.Record) LeaderboardEntry {
	e := LeaderboardEntry{
		Account:     r.Account,
		Issues:      make([]int64, 0, len(r.Entries)),
		Latencies:   make([]int64, 0, len(r.Entries)),
		LGTMs:       make([]int, 0, len(r.Entries)),
		ReviewTypes: make([]string, 0, len(r.Entries)),
		Modified:    r.Modified,
	}
	if r.Score != stats.NullScore {
		score := r.Score
		e.Score = &score
	}
	for _, s := range r.Entries {
		e.Issues = append(e.Issues, s.Issue)
		e.Latencies = append(e.Latencies, s.Latency)
		e.LGTMs = append(e.LGTMs, s.LGTMs)
		e.ReviewTypes = append(e.ReviewTypes, s.Type.String())
	}
	return e
}

func parseLimit(raw string) int {
	if raw == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return defaultLimit
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}
