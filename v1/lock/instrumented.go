package lock

import (
	"context"

	"github.com/mirkobrombin/go-shared/v1/metrics"
	"github.com/mirkobrombin/go-shared/v1/shared"
)

// Instrumented wraps a lock and counts its operations in
// metrics.LockOpCounter under the given name.
type Instrumented struct {
	name  string
	inner shared.Lock
}

// NewInstrumented returns inner wrapped with operation counters.
func NewInstrumented(name string, inner shared.Lock) *Instrumented {
	return &Instrumented{name: name, inner: inner}
}

func (i *Instrumented) Lock() {
	i.inner.Lock()
	i.count("lock", "ok")
}

func (i *Instrumented) Unlock() {
	i.inner.Unlock()
	i.count("unlock", "ok")
}

func (i *Instrumented) TryLock() bool {
	if i.inner.TryLock() {
		i.count("trylock", "ok")
		return true
	}
	i.count("trylock", "busy")
	return false
}

// LockContext acquires the inner lock, through its own LockContext when it
// has one.
func (i *Instrumented) LockContext(ctx context.Context) error {
	if err := shared.LockContext(ctx, i.inner, shared.DefaultPollInterval); err != nil {
		i.count("lock", "error")
		return err
	}
	i.count("lock", "ok")
	return nil
}

func (i *Instrumented) count(op, result string) {
	metrics.LockOpCounter.WithLabelValues(i.name, op, result).Inc()
}
