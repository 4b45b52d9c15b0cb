package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/critiq-dev/reviewstats/internal/stats"
)

// Queue names the runner consumes and re-enqueues on.
const (
	QueueUpdateStats   = "update-stats"
	QueueRefreshScores = "refresh-scores"
)

// chainDelay spaces chained tasks apart to reduce storage contention. A
// task continuing itself from a cursor re-enqueues with no delay.
const chainDelay = 15 * time.Second

// TaskPayload is the JSON body carried on both queues. Tasks is the
// remaining chain for update-stats; Kind, Destroy and TaskCount belong
// to refresh-scores.
type TaskPayload struct {
	Tasks     []string `json:"tasks,omitempty"`
	Date      string   `json:"date,omitempty"`
	Cursor    string   `json:"cursor,omitempty"`
	Kind      string   `json:"kind,omitempty"`
	Destroy   bool     `json:"destroy,omitempty"`
	TaskCount int      `json:"taskCount,omitempty"`
}

// Enqueuer is the slice of the work queue the runner needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, payload []byte, delay time.Duration) error
}

// Recorder receives analytics events for completed aggregation passes.
type Recorder interface {
	Capture(event string, props map[string]any)
}

// Runner dispatches queued task payloads to the aggregators and keeps
// the chain moving: a task that yields a cursor is re-enqueued at once,
// a finished task hands the rest of the chain back to the queue after a
// short delay.
type Runner struct {
	agg       *Aggregator
	queue     Enqueuer
	analytics Recorder
}

func NewRunner(agg *Aggregator, queue Enqueuer, analytics Recorder) *Runner {
	return &Runner{agg: agg, queue: queue, analytics: analytics}
}

// HandleUpdateStats runs the first task of the payload's chain. Malformed
// payloads and unknown task names are logged and acknowledged so the
// queue stops redelivering them; storage errors are returned so the
// queue retries the invocation from the committed cursor.
func (r *Runner) HandleUpdateStats(ctx context.Context, payload []byte) error {
	var p TaskPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		slog.Error("Malformed update-stats payload, dropping", "error", err)
		return nil
	}
	if len(p.Tasks) == 0 {
		slog.Error("Empty update-stats task chain, dropping")
		return nil
	}
	date, err := time.Parse("2006-01-02", p.Date)
	if err != nil {
		slog.Error("Malformed update-stats date, dropping", "date", p.Date)
		return nil
	}

	task := p.Tasks[0]
	cursor := ""
	switch {
	case strings.Count(task, "-") == 2:
		day, err := time.Parse("2006-01-02", task)
		if err != nil {
			slog.Error("Malformed daily task, dropping chain", "task", task)
			return nil
		}
		res, err := r.agg.Daily(ctx, day)
		if err != nil {
			return fmt.Errorf("daily %s: %w", task, err)
		}
		r.analytics.Capture("aggregation_daily", map[string]any{
			"day": task, "messages": res.Messages, "issues": res.Issues, "updated": res.Updated,
		})
	case task == stats.RollingKey:
		cursor, err = r.agg.Rolling(ctx, date.AddDate(0, 0, -1), p.Cursor)
		if err != nil {
			return fmt.Errorf("rolling: %w", err)
		}
	case task == "monthly":
		cursor, err = r.agg.Monthly(ctx, date.AddDate(0, 0, -1), p.Cursor)
		if err != nil {
			return fmt.Errorf("monthly: %w", err)
		}
	default:
		slog.Error("Unknown task name, dropping chain", "task", task)
		return nil
	}

	if cursor != "" {
		// Same task continues from where the budget cut it off.
		return r.enqueue(ctx, QueueUpdateStats, TaskPayload{
			Tasks: p.Tasks, Date: p.Date, Cursor: cursor,
		}, 0)
	}
	if rest := p.Tasks[1:]; len(rest) > 0 {
		return r.enqueue(ctx, QueueUpdateStats, TaskPayload{
			Tasks: rest, Date: p.Date,
		}, chainDelay)
	}
	return nil
}

// HandleRefreshScores runs one refresher time slice and re-enqueues
// itself until both record kinds are exhausted.
func (r *Runner) HandleRefreshScores(ctx context.Context, payload []byte) error {
	var p TaskPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		slog.Error("Malformed refresh-scores payload, dropping", "error", err)
		return nil
	}
	kind := p.Kind
	if kind == "" {
		kind = KindDay
	}
	nextKind, nextCursor, more, err := r.agg.RefreshScores(ctx, kind, p.Cursor, p.Destroy)
	if err != nil {
		return fmt.Errorf("refresh scores %s: %w", kind, err)
	}
	if !more {
		r.analytics.Capture("score_refresh_done", map[string]any{
			"destroy": p.Destroy, "invocations": p.TaskCount + 1,
		})
		return nil
	}
	return r.enqueue(ctx, QueueRefreshScores, TaskPayload{
		Kind: nextKind, Cursor: nextCursor, Destroy: p.Destroy, TaskCount: p.TaskCount + 1,
	}, 0)
}

func (r *Runner) enqueue(ctx context.Context, queue string, p TaskPayload, delay time.Duration) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal task payload: %w", err)
	}
	if err := r.queue.Enqueue(ctx, queue, body, delay); err != nil {
		return fmt.Errorf("enqueue %s: %w", queue, err)
	}
	return nil
}

// ExpandTasks validates a requested task list and expands month items
// into their elapsed days. Accepted items: a day (YYYY-MM-DD), a month
// (YYYY-MM, expanded), "30" and "monthly". Duplicates after expansion
// are rejected.
func ExpandTasks(items []string, today time.Time) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(task string) error {
		if seen[task] {
			return fmt.Errorf("duplicate task %q", task)
		}
		seen[task] = true
		out = append(out, task)
		return nil
	}

	todayDate := stats.DateOf(today)
	for _, item := range items {
		switch {
		case item == stats.RollingKey || item == "monthly":
			if err := add(item); err != nil {
				return nil, err
			}
		case strings.Count(item, "-") == 2:
			day, err := time.Parse("2006-01-02", item)
			if err != nil {
				return nil, fmt.Errorf("invalid day %q", item)
			}
			if day.After(todayDate) {
				return nil, fmt.Errorf("day %q is in the future", item)
			}
			if err := add(item); err != nil {
				return nil, err
			}
		case strings.Count(item, "-") == 1:
			days, err := stats.MonthDays(item)
			if err != nil {
				return nil, fmt.Errorf("invalid month %q", item)
			}
			for _, d := range days {
				dayTime, _ := time.Parse("2006-01-02", d)
				if dayTime.After(todayDate) {
					break
				}
				if err := add(d); err != nil {
					return nil, err
				}
			}
		default:
			return nil, fmt.Errorf("unrecognized task %q", item)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no tasks to run")
	}
	return out, nil
}
