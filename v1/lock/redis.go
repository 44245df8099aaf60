package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	sharederrors "github.com/mirkobrombin/go-shared/v1/errors"
	"github.com/mirkobrombin/go-shared/v1/syncbus"
)

// DefaultRedisPollInterval bounds how long Acquire waits between attempts
// when no release notification arrives, e.g. after a TTL expiry.
const DefaultRedisPollInterval = 50 * time.Millisecond

var delScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

// Redis implements Locker using a Redis backend. Each hold stores a random
// token as the key's value so that only that holder can release it.
type Redis struct {
	client *redis.Client
	bus    syncbus.Bus
	poll   time.Duration
}

// RedisOption configures a Redis locker.
type RedisOption func(*Redis)

// WithRedisPollInterval overrides DefaultRedisPollInterval.
func WithRedisPollInterval(d time.Duration) RedisOption {
	return func(r *Redis) { r.poll = d }
}

// NewRedis returns a new Redis locker using the provided client. bus may be
// nil, in which case waiters only poll.
func NewRedis(client *redis.Client, bus syncbus.Bus, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		bus:    bus,
		poll:   DefaultRedisPollInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TryLock attempts to obtain the lock without waiting.
func (r *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// Acquire blocks until the lock is obtained or the context is cancelled.
func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	for {
		token, ok, wake, stop, err := r.attempt(ctx, key, ttl)
		if err != nil || ok {
			stop()
			return token, err
		}
		timer := time.NewTimer(r.poll)
		select {
		case _, open := <-wake:
			if !open {
				// The bus went away; wait out the poll interval instead.
				select {
				case <-timer.C:
				case <-ctx.Done():
				}
			}
		case <-timer.C:
		case <-ctx.Done():
		}
		timer.Stop()
		stop()
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}
}

// attempt subscribes to release notifications before trying the lock so a
// release between the two is not missed. A closed bus leaves wake nil and
// the caller polls.
func (r *Redis) attempt(ctx context.Context, key string, ttl time.Duration) (string, bool, <-chan struct{}, func(), error) {
	var wake chan struct{}
	subCtx, cancel := context.WithCancel(ctx)
	if r.bus != nil {
		ch, err := r.bus.Subscribe(subCtx, unlockTopic(key))
		switch {
		case errors.Is(err, sharederrors.ErrConnectionClosed):
		case err != nil:
			return "", false, nil, cancel, err
		default:
			wake = ch
		}
	}
	token, ok, err := r.TryLock(ctx, key, ttl)
	return token, ok, wake, cancel, err
}

// Release frees the hold named by token. It returns ErrLockLost if the key
// expired or is held under another token.
func (r *Redis) Release(ctx context.Context, key, token string) error {
	n, err := delScript.Run(ctx, r.client, []string{key}, token).Int64()
	if err != nil && err != redis.Nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("lock: release %q: %w", key, sharederrors.ErrLockLost)
	}
	if r.bus != nil {
		if err := r.bus.Publish(ctx, unlockTopic(key)); err != nil {
			slog.Warn("lock: publishing release failed", "key", key, "error", err)
		}
	}
	return nil
}
