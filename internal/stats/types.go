package stats

import (
	"time"
)

// ReviewType classifies how a reviewer ended up on an issue.
type ReviewType int

// Review type constants. The numeric values are persisted, do not reorder.
const (
	Normal ReviewType = iota
	Ignored
	DriveBy
	NotRequested
	Outgoing
)

var reviewTypeNames = []string{"normal", "ignored", "drive-by", "not-requested", "outgoing"}

func (t ReviewType) String() string {
	if t < 0 || int(t) >= len(reviewTypeNames) {
		return "unknown"
	}
	return reviewTypeNames[t]
}

// UnknownLatency marks an entry whose review latency could not be measured.
const UnknownLatency int64 = -1

// IssueStat is one reviewer's computed engagement on a single issue.
type IssueStat struct {
	Issue   int64      `json:"issue"`
	Latency int64      `json:"latency"` // seconds, or UnknownLatency
	LGTMs   int        `json:"lgtms"`
	Type    ReviewType `json:"reviewType"`
}

// Record is a per-account stats document, either a daily record
// (name "YYYY-MM-DD") or a period summary ("YYYY-MM" or "30" for the
// rolling 30-day window). Entries hold at most one IssueStat per issue.
type Record struct {
	Account  string      `json:"account"`
	Name     string      `json:"name"`
	Entries  []IssueStat `json:"entries"`
	Score    float64     `json:"score"`
	Modified time.Time   `json:"modified"`
}

// Rescore recomputes the derived score from the current entries.
func (r *Record) Rescore() {
	r.Score = ComputeScore(r.Entries)
}

// Message is an email sent on an issue, external and read-only here.
// Drafts are invisible to the stats pipeline.
type Message struct {
	ID         int64
	IssueID    int64
	Sender     string
	Recipients []string
	SentAt     time.Time
	Draft      bool
	Body       string
}

// Issue is a code review, external and read-only here. Reviewers and CC
// lists are mutable over the issue's life, so historical participation is
// reconstructed from the message history instead.
type Issue struct {
	ID        int64
	Owner     string
	Reviewers []string
	CC        []string
	Created   time.Time
}

// DateOf truncates a timestamp to its UTC calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayKey formats a calendar day as a daily record name.
func DayKey(t time.Time) string {
	return DateOf(t).Format("2006-01-02")
}
