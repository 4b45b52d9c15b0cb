package aggregator

import (
	"context"
	"log/slog"
	"time"

	"github.com/critiq-dev/reviewstats/internal/stats"
	"github.com/critiq-dev/reviewstats/internal/store"
)

const (
	refreshPageSize   = 20
	refreshChunkSize  = 10
	refreshTimeBudget = 540 * time.Second
)

// Record kinds the refresher walks, in order.
const (
	KindDay    = "day"
	KindPeriod = "period"
)

// RefreshScores walks stored records of the given kind in a bounded time
// slice. In refresh mode it recomputes each record's score and writes
// back only the ones that changed. In destroy mode it deletes every
// record it visits, used when the classification algorithm itself
// changed and the stored values are no longer meaningful.
//
// Returns the kind and cursor to resume from and whether more work
// remains. Day records are exhausted first, then period records from a
// fresh cursor.
func (a *Aggregator) RefreshScores(ctx context.Context, kind, cursor string, destroy bool) (string, string, bool, error) {
	started := time.Now()
	visited := 0
	changed := 0

	var updates []*stats.Record
	var removals []store.RecordKey

	flush := func() error {
		if len(updates) > 0 {
			if err := a.store.PutRecords(ctx, updates); err != nil {
				return err
			}
			updates = nil
		}
		if len(removals) > 0 {
			if err := a.store.DeleteRecords(ctx, removals); err != nil {
				return err
			}
			removals = nil
		}
		return nil
	}

	for {
		records, next, err := a.store.RecordPage(ctx, kind, cursor, refreshPageSize)
		if err != nil {
			return kind, cursor, true, err
		}
		for _, rec := range records {
			visited++
			if destroy {
				removals = append(removals, store.RecordKey{Account: rec.Account, Name: rec.Name})
				changed++
				if len(removals) == refreshChunkSize {
					if err := flush(); err != nil {
						return kind, cursor, true, err
					}
				}
				continue
			}
			old := rec.Score
			rec.Rescore()
			if rec.Score == old {
				continue
			}
			changed++
			updates = append(updates, rec)
			if len(updates) == refreshChunkSize {
				if err := flush(); err != nil {
					return kind, cursor, true, err
				}
			}
		}
		if err := flush(); err != nil {
			return kind, cursor, true, err
		}
		if next == "" {
			if kind == KindDay {
				// Day records exhausted; start over on the period
				// records.
				slog.Info("Score refresh finished day records, moving on",
					"visited", visited, "changed", changed, "destroy", destroy)
				return KindPeriod, "", true, nil
			}
			slog.Info("Score refresh done", "visited", visited, "changed", changed,
				"destroy", destroy, "elapsed", time.Since(started).Round(100*time.Millisecond))
			return kind, "", false, nil
		}
		cursor = next
		if time.Since(started) > refreshTimeBudget {
			slog.Info("Score refresh budget spent, yielding",
				"kind", kind, "visited", visited, "changed", changed)
			return kind, cursor, true, nil
		}
	}
}
