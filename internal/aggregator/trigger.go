package aggregator

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/critiq-dev/reviewstats/internal/stats"
)

// Trigger enqueues the daily aggregation chain shortly after each UTC
// midnight: yesterday's daily pass, then the rolling window, then the
// monthly pass. The chain is safe to fire more than once.
type Trigger struct {
	queue Enqueuer

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewTrigger(queue Enqueuer) *Trigger {
	return &Trigger{
		queue:  queue,
		stopCh: make(chan struct{}),
	}
}

// Run starts the trigger loop in the background.
func (t *Trigger) Run(ctx context.Context) {
	slog.Info("Daily trigger starting", "next", nextMidnight(time.Now().UTC()))
	t.wg.Add(1)
	go t.loop(ctx)
}

// Stop shuts the trigger down. Safe to call multiple times.
func (t *Trigger) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
		t.wg.Wait()
		slog.Info("Daily trigger stopped")
	})
}

func (t *Trigger) loop(ctx context.Context) {
	defer t.wg.Done()

	for {
		timer := time.NewTimer(time.Until(nextMidnight(time.Now().UTC())))
		select {
		case <-timer.C:
			t.fire(ctx)
		case <-t.stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

func (t *Trigger) fire(ctx context.Context) {
	today := time.Now().UTC()
	yesterday := today.AddDate(0, 0, -1)
	payload := TaskPayload{
		Tasks: []string{stats.DayKey(yesterday), stats.RollingKey, "monthly"},
		Date:  stats.DayKey(today),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal daily chain payload", "error", err)
		return
	}
	if err := t.queue.Enqueue(ctx, QueueUpdateStats, body, 0); err != nil {
		slog.Error("Failed to enqueue daily chain", "error", err)
		return
	}
	slog.Info("Daily aggregation chain enqueued", "tasks", payload.Tasks, "date", payload.Date)
}

func nextMidnight(now time.Time) time.Time {
	return stats.DateOf(now).AddDate(0, 0, 1)
}
