package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "reviewstats:queue:"
	delayedSfx = ":delayed"
)

// Client is a small Redis-backed work queue. Each named queue is a list
// of raw payloads; delayed deliveries sit in a companion sorted set
// scored by their due time until the pump moves them over.
type Client struct {
	rdb *redis.Client
}

func New(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	c := &Client{rdb: redis.NewClient(opts)}
	if err := c.rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return c, nil
}

func (c *Client) Close() error { return c.rdb.Close() }

func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Enqueue pushes a payload onto the named queue, optionally delayed.
func (c *Client) Enqueue(ctx context.Context, queue string, payload []byte, delay time.Duration) error {
	if delay <= 0 {
		return c.rdb.RPush(ctx, keyPrefix+queue, payload).Err()
	}
	due := float64(time.Now().Add(delay).UnixMilli())
	return c.rdb.ZAdd(ctx, keyPrefix+queue+delayedSfx, redis.Z{Score: due, Member: payload}).Err()
}

// Pop blocks until a payload is available on the named queue or the
// timeout elapses. Returns (nil, false) on timeout.
func (c *Client) Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, bool) {
	res, err := c.rdb.BLPop(ctx, timeout, keyPrefix+queue).Result()
	if err != nil || len(res) < 2 {
		return nil, false
	}
	return []byte(res[1]), true
}

// PumpDelayed moves every due delayed payload onto the live queue.
// Called periodically by the worker.
func (c *Client) PumpDelayed(ctx context.Context, queue string) error {
	key := keyPrefix + queue + delayedSfx
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	due, err := c.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return fmt.Errorf("reading delayed queue %s: %w", queue, err)
	}
	for _, payload := range due {
		pipe := c.rdb.TxPipeline()
		pipe.ZRem(ctx, key, payload)
		pipe.RPush(ctx, keyPrefix+queue, payload)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("promoting delayed payload on %s: %w", queue, err)
		}
	}
	return nil
}

// Len reports pending live entries on the named queue.
func (c *Client) Len(ctx context.Context, queue string) (int64, error) {
	return c.rdb.LLen(ctx, keyPrefix+queue).Result()
}
