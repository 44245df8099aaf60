package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	sharederrors "github.com/mirkobrombin/go-shared/v1/errors"
)

// Keyed adapts one key of a Locker into a shared.Lock.
//
// Lock has no way to return an error, so a backend failure during Lock
// panics with that error; use LockContext (or Resource.AcquireContext) to get
// it as a value instead. Unlock and TryLock log backend failures.
//
// Keyed also implements shared.OwnedLocker: guards built on it release the
// token of their own acquisition, so a holder whose TTL ran out cannot free
// the key for whoever took it next. Plain Unlock releases the most recent
// token taken through Lock, LockContext or TryLock.
type Keyed struct {
	locker Locker
	key    string
	ttl    time.Duration

	mu    sync.Mutex
	token string
}

// KeyedOption configures a Keyed lock.
type KeyedOption func(*Keyed)

// WithTTL makes the lock expire ttl after it was taken.
func WithTTL(ttl time.Duration) KeyedOption {
	return func(k *Keyed) { k.ttl = ttl }
}

// NewKeyed returns a lock over key of locker.
func NewKeyed(locker Locker, key string, opts ...KeyedOption) *Keyed {
	k := &Keyed{locker: locker, key: key}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Key returns the locked key.
func (k *Keyed) Key() string {
	return k.key
}

// Lock blocks until the key is locked.
func (k *Keyed) Lock() {
	if err := k.LockContext(context.Background()); err != nil {
		panic(fmt.Errorf("lock: acquire %q: %w", k.key, err))
	}
}

// LockContext blocks until the key is locked or ctx is done.
func (k *Keyed) LockContext(ctx context.Context) error {
	token, err := k.locker.Acquire(ctx, k.key, k.ttl)
	if err != nil {
		return err
	}
	k.setToken(token)
	return nil
}

// TryLock locks the key only if it is free.
func (k *Keyed) TryLock() bool {
	token, ok := k.tryAcquire()
	if ok {
		k.setToken(token)
	}
	return ok
}

// Unlock releases the key taken by the last Lock, LockContext or TryLock.
func (k *Keyed) Unlock() {
	k.mu.Lock()
	token := k.token
	k.token = ""
	k.mu.Unlock()
	k.release(token)
}

// LockOwned blocks until the key is locked or ctx is done and returns a
// function releasing exactly that hold.
func (k *Keyed) LockOwned(ctx context.Context) (func(), error) {
	token, err := k.locker.Acquire(ctx, k.key, k.ttl)
	if err != nil {
		return nil, err
	}
	return func() { k.release(token) }, nil
}

// TryLockOwned is the non-blocking form of LockOwned.
func (k *Keyed) TryLockOwned() (func(), bool) {
	token, ok := k.tryAcquire()
	if !ok {
		return nil, false
	}
	return func() { k.release(token) }, true
}

func (k *Keyed) tryAcquire() (string, bool) {
	token, ok, err := k.locker.TryLock(context.Background(), k.key, k.ttl)
	if err != nil {
		slog.Warn("lock: try lock failed", "key", k.key, "error", err)
		return "", false
	}
	return token, ok
}

func (k *Keyed) setToken(token string) {
	k.mu.Lock()
	k.token = token
	k.mu.Unlock()
}

func (k *Keyed) release(token string) {
	err := k.locker.Release(context.Background(), k.key, token)
	switch {
	case err == nil:
	case errors.Is(err, sharederrors.ErrLockLost):
		slog.Warn("lock: hold lost before release", "key", k.key)
	default:
		slog.Warn("lock: release failed", "key", k.key, "error", err)
	}
}
