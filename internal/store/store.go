package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/critiq-dev/reviewstats/internal/stats"
)

// Store provides database operations for the stats pipeline: read-only
// access to issues and messages, and the daily/period stats records.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a store on top of an existing connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// MessageKey is the slim scan shape used by the daily aggregator: enough
// to order the scan and dedupe issues without fetching message bodies.
type MessageKey struct {
	ID      int64
	IssueID int64
	SentAt  time.Time
}

// RecordKey identifies one stats record.
type RecordKey struct {
	Account string
	Name    string
}

// MessagePage returns one page of non-draft message keys sent at or
// after since, in (sent_at, id) order. An empty cursor starts from the
// beginning; an empty page means the scan is done.
func (s *Store) MessagePage(ctx context.Context, since time.Time, cursor string, size int) ([]MessageKey, string, error) {
	query := `
		SELECT id, issue_id, sent_at
		FROM messages
		WHERE NOT draft AND sent_at >= $1`
	args := []any{since}

	if cursor != "" {
		parts, err := decodeCursor(cursor, 2)
		if err != nil {
			return nil, "", err
		}
		ts, err := time.Parse(time.RFC3339Nano, parts[0])
		if err != nil {
			return nil, "", fmt.Errorf("malformed cursor timestamp: %w", err)
		}
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("malformed cursor id: %w", err)
		}
		query += ` AND (sent_at, id) > ($2, $3)`
		args = append(args, ts, id)
	}
	query += fmt.Sprintf(` ORDER BY sent_at, id LIMIT $%d`, len(args)+1)
	args = append(args, size)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to scan messages: %w", err)
	}
	defer rows.Close()

	var keys []MessageKey
	for rows.Next() {
		var k MessageKey
		if err := rows.Scan(&k.ID, &k.IssueID, &k.SentAt); err != nil {
			return nil, "", fmt.Errorf("failed to scan message key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("failed to scan messages: %w", err)
	}
	if len(keys) == 0 {
		return nil, "", nil
	}
	last := keys[len(keys)-1]
	next := encodeCursor(last.SentAt.UTC().Format(time.RFC3339Nano), strconv.FormatInt(last.ID, 10))
	return keys, next, nil
}

// IssueByID fetches a single issue.
func (s *Store) IssueByID(ctx context.Context, id int64) (*stats.Issue, error) {
	issue := &stats.Issue{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, owner, reviewers, cc, created FROM issues WHERE id = $1`, id,
	).Scan(&issue.ID, &issue.Owner, &issue.Reviewers, &issue.CC, &issue.Created)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("issue %d not found", id)
		}
		return nil, fmt.Errorf("failed to get issue %d: %w", id, err)
	}
	return issue, nil
}

// IssueMessages returns the issue's full non-draft message history in
// send order.
func (s *Store) IssueMessages(ctx context.Context, issueID int64) ([]*stats.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, issue_id, sender, recipients, sent_at, draft, body
		FROM messages
		WHERE issue_id = $1 AND NOT draft
		ORDER BY sent_at, id`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages for issue %d: %w", issueID, err)
	}
	defer rows.Close()

	var messages []*stats.Message
	for rows.Next() {
		m := &stats.Message{}
		if err := rows.Scan(&m.ID, &m.IssueID, &m.Sender, &m.Recipients, &m.SentAt, &m.Draft, &m.Body); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// HasOwnedIssue is the existence probe behind the people classifier.
func (s *Store) HasOwnedIssue(ctx context.Context, email string) (bool, error) {
	var owned bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM issues WHERE owner = $1)`, email,
	).Scan(&owned)
	if err != nil {
		return false, fmt.Errorf("failed to probe account %s: %w", email, err)
	}
	return owned, nil
}

// AccountPage returns one page of account emails in ascending order.
func (s *Store) AccountPage(ctx context.Context, cursor string, size int) ([]string, string, error) {
	query := `SELECT email FROM accounts`
	args := []any{}
	if cursor != "" {
		parts, err := decodeCursor(cursor, 1)
		if err != nil {
			return nil, "", err
		}
		query += ` WHERE email > $1`
		args = append(args, parts[0])
	}
	query += fmt.Sprintf(` ORDER BY email LIMIT $%d`, len(args)+1)
	args = append(args, size)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, "", fmt.Errorf("failed to scan account: %w", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("failed to list accounts: %w", err)
	}
	if len(emails) == 0 {
		return nil, "", nil
	}
	return emails, encodeCursor(emails[len(emails)-1]), nil
}

// recordTable picks the backing table from the record name shape: two
// dashes is a calendar day, everything else is a period summary.
func recordTable(name string) string {
	if strings.Count(name, "-") == 2 {
		return "stats_day"
	}
	return "stats_period"
}

func scanRecord(row pgx.Row) (*stats.Record, error) {
	r := &stats.Record{}
	var entries []byte
	var score *float64
	if err := row.Scan(&r.Account, &r.Name, &entries, &score, &r.Modified); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(entries, &r.Entries); err != nil {
		return nil, fmt.Errorf("failed to decode entries for %s/%s: %w", r.Account, r.Name, err)
	}
	if score != nil {
		r.Score = *score
	} else {
		r.Score = stats.NullScore
	}
	return r, nil
}

func scanRecords(rows pgx.Rows) ([]*stats.Record, error) {
	var records []*stats.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stats record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Record fetches one stats record by name, from whichever table the name
// shape selects. Returns nil without error when the record is absent.
func (s *Store) Record(ctx context.Context, account, name string) (*stats.Record, error) {
	r, err := scanRecord(s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT account, name, entries, score, modified FROM %s WHERE account = $1 AND name = $2`,
		recordTable(name)), account, name))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get stats %s/%s: %w", account, name, err)
	}
	return r, nil
}

// RecordsMulti fetches the subset of the named records that exist for an
// account, all names selecting the same table.
func (s *Store) RecordsMulti(ctx context.Context, account string, names []string) ([]*stats.Record, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT account, name, entries, score, modified FROM %s WHERE account = $1 AND name = ANY($2) ORDER BY name`,
		recordTable(names[0])), account, names)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats for %s: %w", account, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// PutRecords upserts stats records in one batch round trip. The
// null-score sentinel is persisted as SQL NULL so ranking queries can
// exclude unscored rows. Callers rescore before writing.
func (s *Store) PutRecords(ctx context.Context, records []*stats.Record) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		entries, err := json.Marshal(r.Entries)
		if err != nil {
			return fmt.Errorf("failed to encode entries for %s/%s: %w", r.Account, r.Name, err)
		}
		var score *float64
		if r.Score != stats.NullScore {
			score = &r.Score
		}
		batch.Queue(fmt.Sprintf(`
			INSERT INTO %s (account, name, entries, score, modified)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (account, name)
			DO UPDATE SET entries = EXCLUDED.entries, score = EXCLUDED.score, modified = NOW()`,
			recordTable(r.Name)), r.Account, r.Name, entries, score)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to put stats batch: %w", err)
	}
	return nil
}

// DeleteRecords removes stats records in one batch round trip.
func (s *Store) DeleteRecords(ctx context.Context, keys []RecordKey) error {
	if len(keys) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, k := range keys {
		batch.Queue(fmt.Sprintf(`DELETE FROM %s WHERE account = $1 AND name = $2`,
			recordTable(k.Name)), k.Account, k.Name)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to delete stats batch: %w", err)
	}
	return nil
}

// DayStatsModifiedPage pages over daily record keys whose record changed
// at or after since. Drives the monthly aggregator.
func (s *Store) DayStatsModifiedPage(ctx context.Context, since time.Time, cursor string, size int) ([]RecordKey, string, error) {
	query := `
		SELECT account, name, modified
		FROM stats_day
		WHERE modified >= $1`
	args := []any{since}

	if cursor != "" {
		parts, err := decodeCursor(cursor, 3)
		if err != nil {
			return nil, "", err
		}
		ts, err := time.Parse(time.RFC3339Nano, parts[0])
		if err != nil {
			return nil, "", fmt.Errorf("malformed cursor timestamp: %w", err)
		}
		query += ` AND (modified, account, name) > ($2, $3, $4)`
		args = append(args, ts, parts[1], parts[2])
	}
	query += fmt.Sprintf(` ORDER BY modified, account, name LIMIT $%d`, len(args)+1)
	args = append(args, size)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to scan modified day stats: %w", err)
	}
	defer rows.Close()

	var keys []RecordKey
	var lastModified time.Time
	for rows.Next() {
		var k RecordKey
		if err := rows.Scan(&k.Account, &k.Name, &lastModified); err != nil {
			return nil, "", fmt.Errorf("failed to scan day stats key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("failed to scan modified day stats: %w", err)
	}
	if len(keys) == 0 {
		return nil, "", nil
	}
	last := keys[len(keys)-1]
	next := encodeCursor(lastModified.UTC().Format(time.RFC3339Nano), last.Account, last.Name)
	return keys, next, nil
}

// RecordPage pages over an entire stats table in (account, name) order.
// Drives the score refresher. kind is "day" or "period".
func (s *Store) RecordPage(ctx context.Context, kind, cursor string, size int) ([]*stats.Record, string, error) {
	table := "stats_day"
	if kind == "period" {
		table = "stats_period"
	}
	query := fmt.Sprintf(`SELECT account, name, entries, score, modified FROM %s`, table)
	args := []any{}
	if cursor != "" {
		parts, err := decodeCursor(cursor, 2)
		if err != nil {
			return nil, "", err
		}
		query += ` WHERE (account, name) > ($1, $2)`
		args = append(args, parts[0], parts[1])
	}
	query += fmt.Sprintf(` ORDER BY account, name LIMIT $%d`, len(args)+1)
	args = append(args, size)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to page %s: %w", table, err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, "", err
	}
	if len(records) == 0 {
		return nil, "", nil
	}
	last := records[len(records)-1]
	return records, encodeCursor(last.Account, last.Name), nil
}

// Ranked returns up to limit records for one period key, ascending by
// score. Rows that were never scored are excluded from ranking.
func (s *Store) Ranked(ctx context.Context, name string, limit int) ([]*stats.Record, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT account, name, entries, score, modified
		FROM %s
		WHERE name = $1 AND score IS NOT NULL
		ORDER BY score
		LIMIT $2`, recordTable(name)), name, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to rank %s: %w", name, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Unranked returns up to limit records for one period key that have no
// score yet, ordered by account. These back the "needs improvement"
// section of the leaderboard.
func (s *Store) Unranked(ctx context.Context, name string, limit int) ([]*stats.Record, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT account, name, entries, score, modified
		FROM %s
		WHERE name = $1 AND score IS NULL
		ORDER BY account
		LIMIT $2`, recordTable(name)), name, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unranked %s: %w", name, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// RankedMonths returns the merged leaderboard for a multi-month window
// (a quarter or a year): the month records are fetched in one query,
// merged per account by issue-id union, and re-sorted by the merged
// score.
func (s *Store) RankedMonths(ctx context.Context, mergedName string, months []string, limit int) ([]*stats.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT account, name, entries, score, modified
		FROM stats_period
		WHERE name = ANY($1) AND score IS NOT NULL
		ORDER BY score
		LIMIT $2`, months, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to rank months %v: %w", months, err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}

	byAccount := make(map[string][]*stats.Record)
	var order []string
	for _, r := range records {
		if _, ok := byAccount[r.Account]; !ok {
			order = append(order, r.Account)
		}
		byAccount[r.Account] = append(byAccount[r.Account], r)
	}

	merged := make([]*stats.Record, 0, len(order))
	for _, account := range order {
		out := &stats.Record{Account: account, Name: mergedName}
		stats.Sum(out, byAccount[account])
		merged = append(merged, out)
	}
	sortRecordsByScore(merged)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func sortRecordsByScore(records []*stats.Record) {
	sort.SliceStable(records, func(i, j int) bool { return records[i].Score < records[j].Score })
}
