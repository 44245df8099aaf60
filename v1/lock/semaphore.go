package lock

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Semaphore is a process-local lock backed by a weighted semaphore of size
// one. Unlike sync.Mutex its blocking acquire can be abandoned through a
// context.
type Semaphore struct {
	sem *semaphore.Weighted
}

// NewSemaphore returns an unlocked Semaphore.
func NewSemaphore() *Semaphore {
	return &Semaphore{sem: semaphore.NewWeighted(1)}
}

// Lock blocks until the semaphore is acquired.
func (s *Semaphore) Lock() {
	_ = s.sem.Acquire(context.Background(), 1)
}

// Unlock releases the semaphore. It panics if the semaphore is not held.
func (s *Semaphore) Unlock() {
	s.sem.Release(1)
}

// TryLock acquires the semaphore only if it is free.
func (s *Semaphore) TryLock() bool {
	return s.sem.TryAcquire(1)
}

// LockContext acquires the semaphore or returns ctx.Err().
func (s *Semaphore) LockContext(ctx context.Context) error {
	return s.sem.Acquire(ctx, 1)
}
