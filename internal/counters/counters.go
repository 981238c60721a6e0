// Package counters provides Redis-backed attempt counters and the per-session
// lock used by the reveal barrier.
package counters

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Counters tracks how many analysis runs each direction has consumed. The
// count only grows; resubmission cycles never reset it.
type Counters struct {
	client *redis.Client
	prefix string
}

// New connects to Redis and verifies the connection.
func New(redisURL string) (*Counters, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewWithClient(client), nil
}

// NewWithClient wraps an existing Redis client.
func NewWithClient(client *redis.Client) *Counters {
	return &Counters{
		client: client,
		prefix: "attempts:",
	}
}

func (c *Counters) key(sessionID uuid.UUID, direction string) string {
	return c.prefix + sessionID.String() + ":" + direction
}

func (c *Counters) Get(ctx context.Context, sessionID uuid.UUID, direction string) (int, error) {
	n, err := c.client.Get(ctx, c.key(sessionID, direction)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get attempt counter: %w", err)
	}
	return n, nil
}

func (c *Counters) Incr(ctx context.Context, sessionID uuid.UUID, direction string) (int, error) {
	n, err := c.client.Incr(ctx, c.key(sessionID, direction)).Result()
	if err != nil {
		return 0, fmt.Errorf("incr attempt counter: %w", err)
	}
	return int(n), nil
}

// Client exposes the underlying connection so the lock can share it.
func (c *Counters) Client() *redis.Client {
	return c.client
}

func (c *Counters) Close() error {
	return c.client.Close()
}

func (c *Counters) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
