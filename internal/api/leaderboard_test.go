package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/critiq-dev/reviewstats/internal/stats"
)

// stubSource serves canned records keyed by period name.
type stubSource struct {
	ranked   map[string][]*stats.Record
	unranked map[string][]*stats.Record
	records  map[string]*stats.Record // account + "/" + name
	months   []string                 // months requested by RankedMonths
}

func (s *stubSource) Ranked(_ context.Context, name string, limit int) ([]*stats.Record, error) {
	records := s.ranked[name]
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *stubSource) Unranked(_ context.Context, name string, limit int) ([]*stats.Record, error) {
	records := s.unranked[name]
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *stubSource) RankedMonths(_ context.Context, mergedName string, months []string, limit int) ([]*stats.Record, error) {
	s.months = months
	records := s.ranked[mergedName]
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *stubSource) Record(_ context.Context, account, name string) (*stats.Record, error) {
	return s.records[account+"/"+name], nil
}

type noopRecorder struct{}

func (noopRecorder) Capture(string, map[string]any) {}

func serveStats(t *testing.T, source *stubSource, path string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewStatsHandler(source, noopRecorder{})
	r := chi.NewRouter()
	r.Get("/api/leaderboard/{when}", h.Leaderboard)
	r.Get("/api/stats/user/{email}/{when}", h.UserStats)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestLeaderboard_RollingKey(t *testing.T) {
	source := &stubSource{
		ranked: map[string][]*stats.Record{
			"30": {
				{Account: "fast@x.com", Name: "30", Score: 0.5,
					Entries: []stats.IssueStat{{Issue: 1, Latency: 50, LGTMs: 1, Type: stats.Normal}}},
				{Account: "slow@x.com", Name: "30", Score: 9.0,
					Entries: []stats.IssueStat{{Issue: 2, Latency: 900, Type: stats.DriveBy}}},
			},
		},
		unranked: map[string][]*stats.Record{
			"30": {
				{Account: "quiet@x.com", Name: "30", Score: stats.NullScore,
					Entries: []stats.IssueStat{{Issue: 3, Latency: stats.UnknownLatency, Type: stats.Ignored}}},
			},
		},
	}

	rec := serveStats(t, source, "/api/leaderboard/30")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp LeaderboardResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Entries) != 2 || resp.Entries[0].Account != "fast@x.com" {
		t.Errorf("entries = %+v", resp.Entries)
	}
	if resp.Entries[0].Score == nil || *resp.Entries[0].Score != 0.5 {
		t.Errorf("score = %v", resp.Entries[0].Score)
	}
	if resp.Entries[0].ReviewTypes[0] != "normal" {
		t.Errorf("review type = %q", resp.Entries[0].ReviewTypes[0])
	}
	if len(resp.NeedsImprovement) != 1 || resp.NeedsImprovement[0].Account != "quiet@x.com" {
		t.Errorf("needsImprovement = %+v", resp.NeedsImprovement)
	}
	if resp.NeedsImprovement[0].Score != nil {
		t.Error("unscored entry must serialize a null score")
	}
}

func TestLeaderboard_QuarterExpansion(t *testing.T) {
	source := &stubSource{ranked: map[string][]*stats.Record{
		"2024-q1": {{Account: "r@x.com", Name: "2024-q1", Score: 1.0}},
	}}

	rec := serveStats(t, source, "/api/leaderboard/2024-Q1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	want := []string{"2024-01", "2024-02", "2024-03"}
	if len(source.months) != 3 || source.months[0] != want[0] || source.months[2] != want[2] {
		t.Errorf("quarter expanded to %v, want %v", source.months, want)
	}
}

func TestLeaderboard_UnknownPeriod(t *testing.T) {
	for _, when := range []string{"banana", "2024-13", "1999", "2012-q5"} {
		rec := serveStats(t, &stubSource{}, "/api/leaderboard/"+when)
		if rec.Code != http.StatusNotFound {
			t.Errorf("leaderboard/%s: status = %d, want 404", when, rec.Code)
		}
	}
}

func TestLeaderboard_EmptyPeriodIsOK(t *testing.T) {
	rec := serveStats(t, &stubSource{}, "/api/leaderboard/30")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp LeaderboardResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Entries == nil || len(resp.Entries) != 0 {
		t.Errorf("entries should be an empty array, got %v", resp.Entries)
	}
}

func TestUserStats(t *testing.T) {
	source := &stubSource{records: map[string]*stats.Record{
		"r@x.com/30": {Account: "r@x.com", Name: "30", Score: 2.0,
			Entries: []stats.IssueStat{{Issue: 5, Latency: 200, LGTMs: 1, Type: stats.Normal}}},
	}}

	rec := serveStats(t, source, "/api/stats/user/r@x.com/30")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var entry LeaderboardEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	if entry.Account != "r@x.com" || len(entry.Issues) != 1 || entry.Issues[0] != 5 {
		t.Errorf("entry = %+v", entry)
	}

	// Valid period with no stored record: empty row, not 404.
	rec = serveStats(t, source, "/api/stats/user/nobody@x.com/30")
	if rec.Code != http.StatusOK {
		t.Errorf("absent record: status = %d, want 200", rec.Code)
	}

	rec = serveStats(t, source, "/api/stats/user/r@x.com/banana")
	if rec.Code != http.StatusNotFound {
		t.Errorf("bad period: status = %d, want 404", rec.Code)
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"", defaultLimit},
		{"10", 10},
		{"0", defaultLimit},
		{"-5", defaultLimit},
		{"junk", defaultLimit},
		{"5000", maxLimit},
	}
	for _, tt := range tests {
		if got := parseLimit(tt.raw); got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}
