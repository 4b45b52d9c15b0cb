package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	popTimeout   = 30 * time.Second
	pumpInterval = 5 * time.Second
	retryDelay   = 30 * time.Second
)

// HandlerFunc processes one payload. Returning an error means the work
// was not done and the payload should be redelivered later; handlers
// must drop malformed payloads themselves and return nil for those.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Worker pops payloads off registered queues and runs their handlers.
// Delivery is at-least-once: a failed handler puts the payload back
// with a delay, so handlers must be idempotent.
type Worker struct {
	client   *Client
	handlers map[string]HandlerFunc

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewWorker(client *Client) *Worker {
	return &Worker{
		client:   client,
		handlers: make(map[string]HandlerFunc),
		stopCh:   make(chan struct{}),
	}
}

// Register binds a handler to a queue name. Must be called before Start.
func (w *Worker) Register(queue string, h HandlerFunc) {
	w.handlers[queue] = h
}

// Start launches n consumer goroutines per registered queue plus one
// delayed-entry pump per queue.
func (w *Worker) Start(n int) {
	for queue, handler := range w.handlers {
		for i := 0; i < n; i++ {
			w.wg.Add(1)
			go w.consume(queue, handler)
		}
		w.wg.Add(1)
		go w.pump(queue)
	}
	slog.Info("Queue workers started", "queues", len(w.handlers), "per_queue", n)
}

// Stop shuts all consumers down. Safe to call multiple times. Handlers
// already running finish their current payload.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.wg.Wait()
		slog.Info("Queue workers stopped")
	})
}

func (w *Worker) consume(queue string, handler HandlerFunc) {
	defer w.wg.Done()

	ctx := context.Background()
	for {
		select {
		case <-w.stopCh:
			return
		default:
		}
		payload, ok := w.client.Pop(ctx, queue, popTimeout)
		if !ok {
			continue
		}
		if err := handler(ctx, payload); err != nil {
			slog.Error("Task failed, redelivering", "queue", queue, "error", err, "delay", retryDelay)
			if qerr := w.client.Enqueue(ctx, queue, payload, retryDelay); qerr != nil {
				slog.Error("Failed to redeliver task, dropping", "queue", queue, "error", qerr)
			}
		}
	}
}

func (w *Worker) pump(queue string) {
	defer w.wg.Done()

	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()

	ctx := context.Background()
	for {
		select {
		case <-ticker.C:
			if err := w.client.PumpDelayed(ctx, queue); err != nil {
				slog.Error("Delayed queue pump failed", "queue", queue, "error", err)
			}
		case <-w.stopCh:
			return
		}
	}
}
