package analytics

import (
	"log/slog"

	"github.com/posthog/posthog-go"
)

// Client wraps the PostHog client with nil-safe methods.
// A zero-value Client is a no-op (safe to use without initialization).
type Client struct {
	ph posthog.Client
}

// New creates a PostHog analytics client. Returns a no-op client if
// apiKey is empty.
func New(apiKey string) *Client {
	if apiKey == "" {
		return &Client{}
	}
	ph, err := posthog.NewWithConfig(apiKey, posthog.Config{
		Endpoint: "https://us.i.posthog.com",
	})
	if err != nil {
		slog.Warn("Failed to init posthog, analytics disabled", "error", err)
		return &Client{}
	}
	return &Client{ph: ph}
}

// Close flushes pending events and closes the client.
func (c *Client) Close() {
	if c.ph != nil {
		c.ph.Close()
	}
}

// Capture enqueues a server-side event asynchronously. Safe to call on
// a no-op client.
func (c *Client) Capture(event string, props map[string]any) {
	if c.ph == nil {
		return
	}
	p := posthog.NewProperties()
	for k, v := range props {
		p.Set(k, v)
	}
	_ = c.ph.Enqueue(posthog.Capture{
		DistinctId: "reviewstats-server",
		Event:      event,
		Properties: p,
	})
}
