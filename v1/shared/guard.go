package shared

import (
	"sync/atomic"
	"time"
)

// Guard gives access to a protected value while holding its lock.
//
// A Guard is either holding or released. Release and Move both leave it
// released, and a released Guard never unlocks again, so `defer g.Release()`
// is always safe. Guards are used by pointer and must not be copied.
type Guard[T any] struct {
	unlock func()
	value  *T
	held   atomic.Bool

	since     time.Time
	onRelease func(held time.Duration)
}

// newGuard blocks until l is acquired.
func newGuard[T any](l Lock, v *T) *Guard[T] {
	return newGuardHolding(lockBlocking(l), v, true)
}

// newGuardHolding wraps an acquisition whose state the caller already knows;
// it never locks on its own. unlock releases exactly that acquisition.
func newGuardHolding[T any](unlock func(), v *T, held bool) *Guard[T] {
	g := &Guard[T]{unlock: unlock, value: v}
	if held {
		g.since = time.Now()
	}
	g.held.Store(held)
	return g
}

// Value returns the protected value. The pointer is only valid to use while
// the guard holds the lock.
func (g *Guard[T]) Value() *T {
	return g.value
}

// Do calls fn with the protected value.
func (g *Guard[T]) Do(fn func(v *T)) {
	fn(g.value)
}

// Locked reports whether the guard currently holds its lock.
func (g *Guard[T]) Locked() bool {
	return g != nil && g.held.Load()
}

// Release unlocks the lock if the guard still holds it. Calling it again, on
// a moved-from guard or on a nil guard does nothing.
func (g *Guard[T]) Release() {
	if g == nil || !g.held.Swap(false) {
		return
	}
	held := time.Since(g.since)
	g.unlock()
	if g.onRelease != nil {
		g.onRelease(held)
	}
}

// Move transfers ownership of the lock to a new guard. g is left released
// and will not unlock; only the returned guard does. Moving a nil guard
// yields a released guard with no value.
func (g *Guard[T]) Move() *Guard[T] {
	if g == nil {
		return &Guard[T]{}
	}
	dst := &Guard[T]{
		unlock:    g.unlock,
		value:     g.value,
		since:     g.since,
		onRelease: g.onRelease,
	}
	dst.held.Store(g.held.Swap(false))
	return dst
}

// MoveInto releases whatever dst holds and then transfers g's ownership to
// it. Moving a guard into itself is a no-op; moving a nil guard only
// releases dst.
func (g *Guard[T]) MoveInto(dst *Guard[T]) {
	if g == dst {
		return
	}
	dst.Release()
	if g == nil {
		return
	}
	dst.unlock = g.unlock
	dst.value = g.value
	dst.since = g.since
	dst.onRelease = g.onRelease
	dst.held.Store(g.held.Swap(false))
}
