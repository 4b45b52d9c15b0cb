package aggregator

import (
	"context"
	"log/slog"
	"time"

	"github.com/critiq-dev/reviewstats/internal/stats"
	"github.com/critiq-dev/reviewstats/internal/store"
)

const (
	accountPageSize      = 100
	rollingAccountBudget = 1000
	rollingTimeBudget    = 300 * time.Second
)

// Rolling rebuilds every account's 30-day rolling record from the
// account's daily records in the window ending at day. The record is
// rebuilt from scratch each time, so days that fell out of the window
// disappear without any decrement bookkeeping. Returns a non-empty
// resume cursor when the account or time budget ran out before the
// account list did.
func (a *Aggregator) Rolling(ctx context.Context, day time.Time, cursor string) (string, error) {
	started := time.Now()
	window := stats.WindowDays(day, 30)
	accounts := 0
	updated := 0

	for {
		emails, next, err := a.store.AccountPage(ctx, cursor, accountPageSize)
		if err != nil {
			return "", err
		}
		for _, email := range emails {
			accounts++
			days, err := a.store.RecordsMulti(ctx, email, window)
			if err != nil {
				return "", err
			}
			rec, err := a.store.Record(ctx, email, stats.RollingKey)
			if err != nil {
				return "", err
			}
			if len(days) == 0 {
				// Nothing left in the window; drop the stale rolling
				// record if one exists.
				if rec != nil {
					err = a.store.DeleteRecords(ctx, []store.RecordKey{{Account: email, Name: stats.RollingKey}})
					if err != nil {
						return "", err
					}
					updated++
				}
				continue
			}
			if rec == nil {
				rec = &stats.Record{Account: email, Name: stats.RollingKey, Score: stats.NullScore}
			}
			if stats.Sum(rec, days) {
				if err := a.store.PutRecords(ctx, []*stats.Record{rec}); err != nil {
					return "", err
				}
				updated++
			}
		}
		cursor = next
		if cursor == "" {
			break
		}
		if accounts >= rollingAccountBudget || time.Since(started) > rollingTimeBudget {
			slog.Info("Rolling aggregation budget spent, yielding",
				"accounts", accounts, "updated", updated)
			return cursor, nil
		}
	}
	slog.Info("Rolling aggregation done", "accounts", accounts, "updated", updated,
		"elapsed", time.Since(started).Round(100*time.Millisecond))
	return "", nil
}
