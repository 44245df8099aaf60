package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	sharederrors "github.com/mirkobrombin/go-shared/v1/errors"
)

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

// Breaker decorates a Locker with circuit breaker logic. After threshold
// consecutive backend errors it rejects TryLock and Acquire with
// ErrCircuitOpen for timeout, then lets a single probe through. Release is
// always forwarded so held keys can still be freed.
type Breaker struct {
	locker    Locker
	mu        sync.Mutex
	state     state
	failures  int
	threshold int
	timeout   time.Duration
	lastFail  time.Time
}

// NewBreaker returns locker guarded by a circuit breaker.
func NewBreaker(locker Locker, threshold int, timeout time.Duration) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	return &Breaker{locker: locker, threshold: threshold, timeout: timeout}
}

// IsHealthy returns true unless the circuit is open.
func (b *Breaker) IsHealthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state != stateOpen || time.Since(b.lastFail) > b.timeout
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return true
	case stateOpen:
		if time.Since(b.lastFail) > b.timeout {
			b.state = stateHalfOpen
			return true
		}
	}
	return false
}

// record updates the breaker from the outcome of a backend call. Context
// errors come from the caller and leave the breaker alone.
func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.state = stateClosed
		b.failures = 0
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if b.state == stateHalfOpen {
			b.state = stateOpen
		}
		return
	}
	b.lastFail = time.Now()
	b.failures++
	if b.state == stateHalfOpen || b.failures >= b.threshold {
		b.state = stateOpen
	}
}

// TryLock implements Locker.TryLock.
func (b *Breaker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if !b.allow() {
		return "", false, sharederrors.ErrCircuitOpen
	}
	token, ok, err := b.locker.TryLock(ctx, key, ttl)
	b.record(err)
	return token, ok, err
}

// Acquire implements Locker.Acquire.
func (b *Breaker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if !b.allow() {
		return "", sharederrors.ErrCircuitOpen
	}
	token, err := b.locker.Acquire(ctx, key, ttl)
	b.record(err)
	return token, err
}

// Release implements Locker.Release.
func (b *Breaker) Release(ctx context.Context, key, token string) error {
	return b.locker.Release(ctx, key, token)
}
