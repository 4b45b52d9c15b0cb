package aggregator

import (
	"context"
	"log/slog"
	"time"

	"github.com/critiq-dev/reviewstats/internal/stats"
)

const (
	modifiedPageSize  = 100
	monthlyTimeBudget = 400 * time.Second
)

// Monthly rebuilds the month records touched by daily records modified
// on or after day. Each affected (account, month) pair is rebuilt once
// per run from all of that month's daily records, so it does not matter
// how many daily records inside the month changed. Returns a non-empty
// resume cursor when the time budget ran out.
func (a *Aggregator) Monthly(ctx context.Context, day time.Time, cursor string) (string, error) {
	started := time.Now()
	since := stats.DateOf(day)
	today := stats.DateOf(time.Now().UTC())
	rebuilt := 0
	skipped := 0
	seen := make(map[string]bool)

	for {
		keys, next, err := a.store.DayStatsModifiedPage(ctx, since, cursor, modifiedPageSize)
		if err != nil {
			return "", err
		}
		for _, key := range keys {
			month, err := stats.MonthKey(key.Name)
			if err != nil {
				slog.Error("Malformed day record name", "account", key.Account, "name", key.Name)
				continue
			}
			pair := key.Account + "\x00" + month
			if seen[pair] {
				continue
			}
			seen[pair] = true

			rec, err := a.store.Record(ctx, key.Account, month)
			if err != nil {
				return "", err
			}
			if rec != nil && !rec.Modified.Before(today) {
				// Already rebuilt today, typically by an earlier page of
				// this same run.
				skipped++
				continue
			}
			days, err := stats.MonthDays(month)
			if err != nil {
				return "", err
			}
			parts, err := a.store.RecordsMulti(ctx, key.Account, days)
			if err != nil {
				return "", err
			}
			if rec == nil {
				rec = &stats.Record{Account: key.Account, Name: month, Score: stats.NullScore}
			}
			if !stats.Sum(rec, parts) {
				skipped++
				continue
			}
			if err := a.store.PutRecords(ctx, []*stats.Record{rec}); err != nil {
				return "", err
			}
			rebuilt++
		}
		cursor = next
		if cursor == "" {
			break
		}
		if time.Since(started) > monthlyTimeBudget {
			slog.Info("Monthly aggregation budget spent, yielding",
				"rebuilt", rebuilt, "skipped", skipped)
			return cursor, nil
		}
	}
	slog.Info("Monthly aggregation done", "rebuilt", rebuilt, "skipped", skipped,
		"elapsed", time.Since(started).Round(100*time.Millisecond))
	return "", nil
}
