package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	sharederrors "github.com/mirkobrombin/go-shared/v1/errors"
)

type lockState struct {
	token  string
	timer  *time.Timer
	notify chan struct{}
}

// InMemory implements Locker using local memory. All holders of a key must
// share the same InMemory.
type InMemory struct {
	mu    sync.Mutex
	locks map[string]*lockState
}

// NewInMemory returns a new in-memory locker.
func NewInMemory() *InMemory {
	return &InMemory{locks: make(map[string]*lockState)}
}

// TryLock attempts to obtain the lock without waiting. It returns true on success.
func (l *InMemory) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.locks[key]; ok {
		return "", false, nil
	}
	st := &lockState{token: uuid.NewString(), notify: make(chan struct{})}
	if ttl > 0 {
		st.timer = time.AfterFunc(ttl, func() { l.expire(key, st) })
	}
	l.locks[key] = st
	return st.token, true, nil
}

// Acquire blocks until the lock is obtained or the context is cancelled.
func (l *InMemory) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	for {
		token, ok, err := l.TryLock(ctx, key, ttl)
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		l.mu.Lock()
		st := l.locks[key]
		l.mu.Unlock()
		if st == nil {
			continue
		}
		select {
		case <-st.notify:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Release frees the hold named by token. It returns ErrLockLost if the key
// is free or held under another token.
func (l *InMemory) Release(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.locks[key]
	if !ok || st.token != token {
		return fmt.Errorf("lock: release %q: %w", key, sharederrors.ErrLockLost)
	}
	if st.timer != nil {
		st.timer.Stop()
	}
	close(st.notify)
	delete(l.locks, key)
	return nil
}

// expire drops st if it is still the state held for key.
func (l *InMemory) expire(key string, st *lockState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.locks[key]; ok && cur == st {
		close(st.notify)
		delete(l.locks, key)
		slog.Debug("lock: ttl expired", "key", key)
	}
}
