package aggregator

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/critiq-dev/reviewstats/internal/stats"
)

var taskToday = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type enqueued struct {
	queue   string
	payload TaskPayload
	delay   time.Duration
}

// stubQueue records enqueued payloads.
type stubQueue struct {
	items []enqueued
}

func (q *stubQueue) Enqueue(_ context.Context, queue string, payload []byte, delay time.Duration) error {
	var p TaskPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	q.items = append(q.items, enqueued{queue: queue, payload: p, delay: delay})
	return nil
}

type nopRecorder struct{}

func (nopRecorder) Capture(string, map[string]any) {}

func TestHandleUpdateStats_ChainsTasks(t *testing.T) {
	f := newFakeStore()
	reviewedIssue(f)
	f.accounts = []string{"o@x.com", "r@x.com"}
	q := &stubQueue{}
	runner := NewRunner(New(f), q, nopRecorder{})
	ctx := context.Background()

	payload, _ := json.Marshal(TaskPayload{
		Tasks: []string{"2024-03-03", "30", "monthly"},
		Date:  "2024-03-04",
	})
	if err := runner.HandleUpdateStats(ctx, payload); err != nil {
		t.Fatal(err)
	}
	if rec, _ := f.Record(ctx, "r@x.com", "2024-03-01"); rec == nil {
		t.Fatal("daily task did not run")
	}
	if len(q.items) != 1 {
		t.Fatalf("enqueued %d payloads, want 1", len(q.items))
	}
	next := q.items[0]
	if next.queue != QueueUpdateStats || !reflect.DeepEqual(next.payload.Tasks, []string{"30", "monthly"}) {
		t.Errorf("chained payload = %+v", next.payload)
	}
	if next.delay != chainDelay {
		t.Errorf("chained delay = %v, want %v", next.delay, chainDelay)
	}

	// Run the rest of the chain to exhaustion.
	for len(q.items) > 0 {
		item := q.items[0]
		q.items = q.items[1:]
		body, _ := json.Marshal(item.payload)
		if err := runner.HandleUpdateStats(ctx, body); err != nil {
			t.Fatal(err)
		}
	}
	if rolling, _ := f.Record(ctx, "r@x.com", "30"); rolling == nil {
		t.Error("rolling task did not run")
	}
	if month, _ := f.Record(ctx, "r@x.com", "2024-03"); month == nil {
		t.Error("monthly task did not run")
	}
}

func TestHandleUpdateStats_DropsBadPayloads(t *testing.T) {
	q := &stubQueue{}
	runner := NewRunner(New(newFakeStore()), q, nopRecorder{})
	ctx := context.Background()

	for _, payload := range []string{
		"{not json",
		`{"tasks":[],"date":"2024-03-04"}`,
		`{"tasks":["2024-03-03"],"date":"not a date"}`,
		`{"tasks":["bogus"],"date":"2024-03-04"}`,
	} {
		if err := runner.HandleUpdateStats(ctx, []byte(payload)); err != nil {
			t.Errorf("bad payload %q must be acked, got %v", payload, err)
		}
	}
	if len(q.items) != 0 {
		t.Errorf("bad payloads must not re-enqueue: %+v", q.items)
	}
}

func TestHandleRefreshScores_SelfReschedules(t *testing.T) {
	f := newFakeStore()
	now := time.Now().UTC()
	f.records["r@x.com/2024-03-01"] = &stats.Record{
		Account: "r@x.com", Name: "2024-03-01", Modified: now, Score: 42,
		Entries: []stats.IssueStat{{Issue: 1, Latency: 100, Type: stats.Normal}},
	}
	q := &stubQueue{}
	runner := NewRunner(New(f), q, nopRecorder{})
	ctx := context.Background()

	payload, _ := json.Marshal(TaskPayload{})
	if err := runner.HandleRefreshScores(ctx, payload); err != nil {
		t.Fatal(err)
	}
	if len(q.items) != 1 {
		t.Fatalf("enqueued %d payloads, want 1", len(q.items))
	}
	next := q.items[0].payload
	if next.Kind != KindPeriod || next.TaskCount != 1 {
		t.Errorf("continuation = %+v, want period kind with counter 1", next)
	}

	body, _ := json.Marshal(next)
	if err := runner.HandleRefreshScores(ctx, body); err != nil {
		t.Fatal(err)
	}
	if len(q.items) != 1 {
		t.Error("exhausted refresh must not reschedule again")
	}
}

func TestExpandTasks(t *testing.T) {
	tests := []struct {
		name    string
		items   []string
		want    []string
		wantErr bool
	}{
		{
			name:  "days and specials pass through",
			items: []string{"2024-03-01", "30", "monthly"},
			want:  []string{"2024-03-01", "30", "monthly"},
		},
		{
			name:  "month expands to its days",
			items: []string{"2024-02"},
			want: func() []string {
				out := make([]string, 29)
				for i := range out {
					out[i] = time.Date(2024, 2, i+1, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
				}
				return out
			}(),
		},
		{
			name:  "current month stops at today",
			items: []string{"2024-03"},
			want: func() []string {
				out := make([]string, 15)
				for i := range out {
					out[i] = time.Date(2024, 3, i+1, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
				}
				return out
			}(),
		},
		{"future day rejected", []string{"2024-03-16"}, nil, true},
		{"impossible day rejected", []string{"2024-02-30"}, nil, true},
		{"duplicate rejected", []string{"2024-03-01", "2024-03-01"}, nil, true},
		{"month overlapping day rejected", []string{"2024-03-01", "2024-03"}, nil, true},
		{"garbage rejected", []string{"banana"}, nil, true},
		{"empty list rejected", nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandTasks(tt.items, taskToday)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ExpandTasks(%v) expected error, got %v", tt.items, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExpandTasks(%v): %v", tt.items, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExpandTasks(%v) = %v, want %v", tt.items, got, tt.want)
			}
		})
	}
}
