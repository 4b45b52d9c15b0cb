package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/critiq-dev/reviewstats/internal/stats"
)

const (
	scanPageSize       = 100
	writeBatchSize     = 10
	maxInflightBatches = 20
)

// DailyResult summarizes one daily aggregation invocation.
type DailyResult struct {
	Messages int
	Issues   int
	Updated  int
	Elapsed  time.Duration
}

func (r DailyResult) String() string {
	return fmt.Sprintf("%d messages, %d issues, updated %d items in %.1fs",
		r.Messages, r.Issues, r.Updated, r.Elapsed.Seconds())
}

// computedStat is one (user, day, issue) triple produced by the scan.
type computedStat struct {
	user string
	day  string
	stat stats.IssueStat
}

// Daily finds every (user, issue) pair with a new signal on the target
// day and merges the classified triples into the users' daily records.
// The stat lands on the day its anchor points at, which is not
// necessarily the day being processed.
//
// The whole day is rescanned on every invocation; the monotonic merge
// rule makes re-running it any number of times, in any order relative to
// neighboring days, converge to the same records. A storage error aborts
// the invocation so the scheduler retries it; batches already written
// stay written, which is safe for the same reason.
func (a *Aggregator) Daily(ctx context.Context, day time.Time) (DailyResult, error) {
	started := time.Now()
	res := DailyResult{}
	dayDate := stats.DateOf(day)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInflightBatches)

	classifier := stats.NewClassifier(a.store)
	processed := make(map[int64]bool)              // issues handled this run
	handled := make(map[string]map[int64]bool)     // (user,day) -> issue ids
	var pending []*stats.Record                    // records accumulating the current batch

	flush := func() {
		batch := pending
		pending = nil
		g.Go(func() error {
			return a.store.PutRecords(gctx, batch)
		})
	}

	apply := func(c computedStat) error {
		var rec *stats.Record
		for _, p := range pending {
			// A user can touch several issues in one day; reuse the
			// record already queued for this batch.
			if p.Account == c.user && p.Name == c.day {
				rec = p
				break
			}
		}
		queued := rec != nil
		if rec == nil {
			existing, err := a.store.Record(ctx, c.user, c.day)
			if err != nil {
				return err
			}
			rec = existing
			if rec == nil {
				rec = &stats.Record{Account: c.user, Name: c.day, Score: stats.NullScore}
			}
		}
		if !mergeStat(rec, c.stat) {
			return nil
		}
		rec.Rescore()
		if !queued {
			pending = append(pending, rec)
			res.Updated++
			if len(pending) == writeBatchSize {
				flush()
			}
		}
		return nil
	}

	cursor := ""
scan:
	for {
		keys, next, err := a.store.MessagePage(ctx, dayDate, cursor, scanPageSize)
		if err != nil {
			return res, err
		}
		if len(keys) == 0 {
			break
		}
		for _, key := range keys {
			res.Messages++
			if processed[key.IssueID] {
				continue
			}
			if stats.DateOf(key.SentAt).After(dayDate) {
				// Now on the next day; stop rather than walking the
				// whole message history.
				res.Messages--
				break scan
			}
			processed[key.IssueID] = true

			issue, err := a.store.IssueByID(ctx, key.IssueID)
			if err != nil {
				return res, err
			}
			all, err := a.store.IssueMessages(ctx, issue.ID)
			if err != nil {
				return res, err
			}
			var messages []*stats.Message
			for _, m := range all {
				if !stats.DateOf(m.SentAt).After(dayDate) {
					messages = append(messages, m)
				}
			}
			if len(messages) == 0 {
				continue
			}
			res.Issues++

			classifier.MarkReal(issue.Owner)
			users, err := classifier.RealAccounts(ctx, candidateUsers(issue, messages))
			if err != nil {
				return res, err
			}

			for _, user := range users {
				anchor, driveBy, err := stats.LocateAnchor(ctx, classifier, issue.Owner, messages, user)
				if err != nil {
					return res, err
				}
				start := anchorTime(issue, messages, anchor, driveBy, user)

				dayKey := stats.DayKey(start)
				byUser := handled[user+"\x00"+dayKey]
				if byUser == nil {
					byUser = make(map[int64]bool)
					handled[user+"\x00"+dayKey] = byUser
				}
				if byUser[issue.ID] {
					continue
				}
				byUser[issue.ID] = true

				latency, lgtms, reviewType, ok := stats.ProcessIssue(
					start, dayDate, anchor, driveBy, issue.Owner, messages, user)
				if !ok {
					continue
				}
				err = apply(computedStat{
					user: user,
					day:  dayKey,
					stat: stats.IssueStat{Issue: issue.ID, Latency: latency, LGTMs: lgtms, Type: reviewType},
				})
				if err != nil {
					return res, err
				}
			}
		}
		if next == "" {
			break
		}
		cursor = next
	}

	if len(pending) > 0 {
		flush()
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	res.Elapsed = time.Since(started)
	slog.Info("Daily aggregation done", "day", stats.DayKey(day),
		"messages", res.Messages, "issues", res.Issues, "updated", res.Updated,
		"elapsed", res.Elapsed.Round(100*time.Millisecond))
	return res, nil
}

// candidateUsers derives who might have stats to update on an issue from
// its message history: every sender, the owner, and any recipient who
// also sent a message, is a listed reviewer, or is not merely cc'd.
// Reviewer and cc lists alone are not trusted because they mutate over
// the issue's life.
func candidateUsers(issue *stats.Issue, messages []*stats.Message) []string {
	set := make(map[string]bool)
	var out []string
	add := func(email string) {
		if !set[email] {
			set[email] = true
			out = append(out, email)
		}
	}

	senders := make(map[string]bool)
	for _, m := range messages {
		senders[m.Sender] = true
	}
	for _, m := range messages {
		add(m.Sender)
	}
	add(issue.Owner)

	reviewers := make(map[string]bool)
	for _, r := range issue.Reviewers {
		reviewers[r] = true
	}
	ccs := make(map[string]bool)
	for _, c := range issue.CC {
		ccs[c] = true
	}
	for _, m := range messages {
		for _, r := range m.Recipients {
			if senders[r] || reviewers[r] || !ccs[r] {
				add(r)
			}
		}
	}
	return out
}

// anchorTime picks the latency measurement origin: the anchor message's
// send time, or the issue creation time when no anchor exists or when
// the anchor is the user's own unprompted message.
func anchorTime(issue *stats.Issue, messages []*stats.Message, anchor int, driveBy bool, user string) time.Time {
	if anchor == stats.NoAnchor {
		return issue.Created
	}
	if driveBy && messages[anchor].Sender == user {
		ownerSpokeBefore := false
		for _, m := range messages[:anchor] {
			if m.Sender == issue.Owner {
				ownerSpokeBefore = true
				break
			}
		}
		if !ownerSpokeBefore {
			return issue.Created
		}
	}
	return messages[anchor].SentAt
}

// mergeStat merges one computed stat into a day record under the
// monotonic merge rule and reports whether the record changed. An
// existing entry is never downgraded: the lgtm count never decreases and
// a measured latency is never replaced by an unknown one. Two differing
// measured latencies are a data inconsistency; the stored value wins and
// the mismatch is logged rather than repaired, because there is no way
// to tell which computation saw the truth.
func mergeStat(rec *stats.Record, s stats.IssueStat) bool {
	for i := range rec.Entries {
		e := &rec.Entries[i]
		if e.Issue != s.Issue {
			continue
		}
		if e.Latency == s.Latency && e.LGTMs == s.LGTMs && e.Type == s.Type {
			return false
		}
		if e.LGTMs > s.LGTMs {
			return false
		}
		if e.Latency >= 0 && s.Latency == stats.UnknownLatency {
			return false
		}
		if e.Latency >= 0 && s.Latency >= 0 && e.Latency != s.Latency {
			slog.Error("Recomputed latency disagrees with stored value",
				"account", rec.Account, "day", rec.Name, "issue", s.Issue,
				"stored", e.Latency, "recomputed", s.Latency)
			return false
		}
		*e = s
		return true
	}
	rec.Entries = append(rec.Entries, s)
	return true
}
