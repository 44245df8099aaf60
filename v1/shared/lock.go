package shared

import (
	"context"
	"fmt"
	"time"
)

// Lock is the mutual-exclusion capability a Resource is built on.
// *sync.Mutex satisfies it as is.
//
// Unlock must only be called by the current holder; calling it otherwise is
// a contract violation and is not detected here.
type Lock interface {
	Lock()
	Unlock()
	TryLock() bool
}

// ContextLocker is implemented by locks whose blocking acquire can be
// abandoned when ctx is done.
type ContextLocker interface {
	LockContext(ctx context.Context) error
}

// OwnedLocker is implemented by locks that tell holders apart, typically
// because a hold can expire and pass to someone else. Each successful acquire
// returns the function releasing exactly that acquisition; calling it after
// the hold was lost leaves the current holder alone. Resources prefer these
// methods over Lock, TryLock and Unlock.
type OwnedLocker interface {
	LockOwned(ctx context.Context) (unlock func(), err error)
	TryLockOwned() (unlock func(), ok bool)
}

// DefaultPollInterval is used by LockContext for locks that do not implement
// ContextLocker.
const DefaultPollInterval = time.Millisecond

// LockContext acquires l, giving up when ctx is done. Locks implementing
// ContextLocker are delegated to; any other lock is polled with TryLock every
// poll interval. On error the lock is not held.
func LockContext(ctx context.Context, l Lock, poll time.Duration) error {
	if cl, ok := l.(ContextLocker); ok {
		return cl.LockContext(ctx)
	}
	if l.TryLock() {
		return nil
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.TryLock() {
				return nil
			}
		}
	}
}

// lockBlocking acquires l and returns the release of that acquisition. An
// OwnedLocker error panics, as Lock itself has no way to report it.
func lockBlocking(l Lock) func() {
	if ol, ok := l.(OwnedLocker); ok {
		unlock, err := ol.LockOwned(context.Background())
		if err != nil {
			panic(fmt.Errorf("shared: acquire: %w", err))
		}
		return unlock
	}
	l.Lock()
	return l.Unlock
}

func tryLock(l Lock) (func(), bool) {
	if ol, ok := l.(OwnedLocker); ok {
		return ol.TryLockOwned()
	}
	if !l.TryLock() {
		return nil, false
	}
	return l.Unlock, true
}

func lockContext(ctx context.Context, l Lock, poll time.Duration) (func(), error) {
	if ol, ok := l.(OwnedLocker); ok {
		return ol.LockOwned(ctx)
	}
	if err := LockContext(ctx, l, poll); err != nil {
		return nil, err
	}
	return l.Unlock, nil
}

// noCopy may be added to structs which must not be copied after first use.
// See https://golang.org/issues/8005#issuecomment-190753527.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
