package aggregator

import (
	"context"
	"time"

	"github.com/critiq-dev/reviewstats/internal/stats"
	"github.com/critiq-dev/reviewstats/internal/store"
)

// Store is the persistence surface the aggregators run against.
// *store.Store satisfies it.
type Store interface {
	MessagePage(ctx context.Context, since time.Time, cursor string, size int) ([]store.MessageKey, string, error)
	IssueByID(ctx context.Context, id int64) (*stats.Issue, error)
	IssueMessages(ctx context.Context, issueID int64) ([]*stats.Message, error)
	HasOwnedIssue(ctx context.Context, email string) (bool, error)
	AccountPage(ctx context.Context, cursor string, size int) ([]string, string, error)
	Record(ctx context.Context, account, name string) (*stats.Record, error)
	RecordsMulti(ctx context.Context, account string, names []string) ([]*stats.Record, error)
	PutRecords(ctx context.Context, records []*stats.Record) error
	DeleteRecords(ctx context.Context, keys []store.RecordKey) error
	DayStatsModifiedPage(ctx context.Context, since time.Time, cursor string, size int) ([]store.RecordKey, string, error)
	RecordPage(ctx context.Context, kind, cursor string, size int) ([]*stats.Record, string, error)
}

// Aggregator runs the daily, rolling and monthly aggregation passes and
// the score refresher against a single store.
type Aggregator struct {
	store Store
}

func New(s Store) *Aggregator {
	return &Aggregator{store: s}
}
