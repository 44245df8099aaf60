package shared

import (
	"context"
	"reflect"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mirkobrombin/go-shared/v1/metrics"
)

const (
	modeBlocking = "blocking"
	modeTry      = "try"
	modeContext  = "context"

	resultOK    = "ok"
	resultBusy  = "busy"
	resultError = "error"
)

// Resource pairs a lock with the value it protects. The pairing is fixed at
// construction; the lock and the value are owned by the caller and must
// outlive the Resource and every Guard it hands out.
//
// A Resource must not be copied.
type Resource[T any] struct {
	noCopy noCopy

	lock  Lock
	value *T
	opts  options
}

// New returns a Resource protecting v with l. It panics if either is nil.
func New[T any](l Lock, v *T, opts ...Option) *Resource[T] {
	if l == nil {
		panic("shared: nil lock")
	}
	if v == nil {
		panic("shared: nil resource value")
	}
	return &Resource[T]{
		lock:  l,
		value: v,
		opts:  newOptions(reflect.TypeOf((*T)(nil)).Elem().String(), opts),
	}
}

// Name returns the name the resource reports in metrics and spans.
func (r *Resource[T]) Name() string {
	return r.opts.name
}

// Acquire blocks until the lock is held and returns a guard holding it.
func (r *Resource[T]) Acquire() *Guard[T] {
	start := time.Now()
	g := newGuard(r.lock, r.value)
	r.acquired(g, modeBlocking, start)
	return g
}

// TryAcquire takes the lock without waiting. When the lock is busy it returns
// false and leaves the lock untouched.
func (r *Resource[T]) TryAcquire() (*Guard[T], bool) {
	unlock, ok := tryLock(r.lock)
	if !ok {
		r.observe(modeTry, resultBusy)
		return nil, false
	}
	g := newGuardHolding(unlock, r.value, true)
	r.acquired(g, modeTry, time.Time{})
	return g, true
}

// AcquireContext blocks until the lock is held or ctx is done. Errors from
// the lock are returned unchanged.
func (r *Resource[T]) AcquireContext(ctx context.Context) (*Guard[T], error) {
	ctx, span := r.opts.tracer.Start(ctx, "shared.Acquire", trace.WithAttributes(
		attribute.String("shared.resource", r.opts.name),
	))
	defer span.End()

	start := time.Now()
	unlock, err := lockContext(ctx, r.lock, r.opts.pollInterval)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.observe(modeContext, resultError)
		return nil, err
	}
	g := newGuardHolding(unlock, r.value, true)
	r.acquired(g, modeContext, start)
	span.SetAttributes(attribute.Int64("shared.wait_ns", int64(time.Since(start))))
	return g, nil
}

// With runs fn while holding the lock. The lock is released when fn returns
// or panics.
func (r *Resource[T]) With(fn func(v *T)) {
	g := r.Acquire()
	defer g.Release()
	fn(g.Value())
}

// TryWith runs fn only if the lock can be taken without waiting and reports
// whether it ran.
func (r *Resource[T]) TryWith(fn func(v *T)) bool {
	g, ok := r.TryAcquire()
	if !ok {
		return false
	}
	defer g.Release()
	fn(g.Value())
	return true
}

func (r *Resource[T]) valueType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func (r *Resource[T]) acquired(g *Guard[T], mode string, start time.Time) {
	if !r.opts.metrics {
		return
	}
	r.observe(mode, resultOK)
	if !start.IsZero() {
		metrics.WaitHistogram.WithLabelValues(r.opts.name).Observe(time.Since(start).Seconds())
	}
	name := r.opts.name
	g.onRelease = func(held time.Duration) {
		metrics.ReleaseCounter.WithLabelValues(name).Inc()
		metrics.HoldHistogram.WithLabelValues(name).Observe(held.Seconds())
	}
}

func (r *Resource[T]) observe(mode, result string) {
	if r.opts.metrics {
		metrics.AcquireCounter.WithLabelValues(r.opts.name, mode, result).Inc()
	}
}
