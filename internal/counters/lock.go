package counters

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockTTL        = 10 * time.Second
	lockRetryDelay = 50 * time.Millisecond
	lockRetries    = 40
)

// SessionLock is a Redis SETNX lock. Coarse by design: reveal checks are
// short, and the TTL bounds how long a crashed holder can block a session.
type SessionLock struct {
	client *redis.Client
	prefix string
}

func NewSessionLock(client *redis.Client) *SessionLock {
	return &SessionLock{
		client: client,
		prefix: "lock:",
	}
}

// WithLock runs fn while holding the named lock, retrying acquisition for up
// to the lock TTL. The lock is released only if this caller still owns it.
func (l *SessionLock) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	lockKey := l.prefix + key
	token := uuid.NewString()

	acquired := false
	for i := 0; i < lockRetries; i++ {
		ok, err := l.client.SetNX(ctx, lockKey, token, lockTTL).Result()
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			acquired = true
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
	if !acquired {
		return fmt.Errorf("acquire lock %s: timed out", key)
	}

	defer func() {
		// Compare-and-delete so an expired lock taken over by another
		// caller is never released out from under them.
		releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{lockKey}, token)
	}()

	return fn(ctx)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
