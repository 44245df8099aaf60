package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	redis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/mirkobrombin/go-shared/v1/metrics"
	"github.com/mirkobrombin/go-shared/v1/shared"
	"github.com/mirkobrombin/go-shared/v1/syncbus"
)

var (
	_ shared.Lock          = (*Keyed)(nil)
	_ shared.ContextLocker = (*Keyed)(nil)
	_ shared.OwnedLocker   = (*Keyed)(nil)
	_ shared.Lock          = (*Semaphore)(nil)
	_ shared.ContextLocker = (*Semaphore)(nil)
	_ shared.Lock          = (*Instrumented)(nil)
	_ shared.ContextLocker = (*Instrumented)(nil)
	_ Locker               = (*InMemory)(nil)
	_ Locker               = (*Redis)(nil)
	_ Locker               = (*Breaker)(nil)
)

func TestKeyedOverInMemory(t *testing.T) {
	locker := NewInMemory()
	a := NewKeyed(locker, "res")
	b := NewKeyed(locker, "res")

	a.Lock()
	if b.TryLock() {
		t.Fatal("second handle locked a held key")
	}
	a.Unlock()
	if !b.TryLock() {
		t.Fatal("key not free after unlock")
	}
	b.Unlock()
	if !a.TryLock() {
		t.Fatal("key not free after second unlock")
	}
	a.Unlock()
	if a.Key() != "res" {
		t.Fatalf("unexpected key %q", a.Key())
	}
}

func TestKeyedTTL(t *testing.T) {
	k := NewKeyed(NewInMemory(), "res", WithTTL(10*time.Millisecond))
	k.Lock()
	time.Sleep(30 * time.Millisecond)
	if !k.TryLock() {
		t.Fatal("ttl did not expire the key")
	}
	k.Unlock()
}

func TestKeyedOwnedReleaseIsPerHold(t *testing.T) {
	k := NewKeyed(NewInMemory(), "res", WithTTL(50*time.Millisecond))
	first, ok := k.TryLockOwned()
	if !ok {
		t.Fatal("first hold failed")
	}
	time.Sleep(80 * time.Millisecond)
	second, err := k.LockOwned(context.Background())
	if err != nil {
		t.Fatalf("second hold: %v", err)
	}
	first()
	if _, ok := k.TryLockOwned(); ok {
		t.Fatal("expired hold released the current one")
	}
	second()
	release, ok := k.TryLockOwned()
	if !ok {
		t.Fatal("key not free after current hold released")
	}
	release()
}

type failingLocker struct{ err error }

func (f failingLocker) TryLock(context.Context, string, time.Duration) (string, bool, error) {
	return "", false, f.err
}
func (f failingLocker) Acquire(context.Context, string, time.Duration) (string, error) {
	return "", f.err
}
func (f failingLocker) Release(context.Context, string, string) error { return f.err }

func TestKeyedBackendErrors(t *testing.T) {
	boom := errors.New("boom")
	k := NewKeyed(failingLocker{err: boom}, "res")

	if k.TryLock() {
		t.Fatal("TryLock succeeded on failing backend")
	}
	k.Unlock()

	v := 0
	r := shared.New(k, &v)
	if _, err := r.AcquireContext(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected backend error, got %v", err)
	}

	defer func() {
		rec := recover()
		err, ok := rec.(error)
		if !ok || !errors.Is(err, boom) {
			t.Fatalf("expected panic with backend error, got %v", rec)
		}
	}()
	k.Lock()
}

// Two processes sharing a Redis server protect the same value: only one of
// them can hold it at a time.
func TestKeyedRedisResourceAcrossNodes(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	bus := syncbus.NewRedisBus(client, "")
	defer bus.Close()

	counter := 0
	node1 := shared.New(NewKeyed(NewRedis(client, bus), "counter"), &counter)
	node2 := shared.New(NewKeyed(NewRedis(client, bus), "counter"), &counter)

	g, ok := node1.TryAcquire()
	if !ok {
		t.Fatal("node1 could not lock")
	}
	if _, ok := node2.TryAcquire(); ok {
		t.Fatal("node2 locked while node1 holds")
	}
	g.Release()

	var eg errgroup.Group
	for _, node := range []*shared.Resource[int]{node1, node2} {
		node := node
		eg.Go(func() error {
			for i := 0; i < 20; i++ {
				g, err := node.AcquireContext(context.Background())
				if err != nil {
					return err
				}
				*g.Value()++
				g.Release()
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if counter != 40 {
		t.Fatalf("expected 40 increments, got %d", counter)
	}
}

func TestSemaphore(t *testing.T) {
	s := NewSemaphore()
	s.Lock()
	if s.TryLock() {
		t.Fatal("TryLock succeeded while held")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := s.LockContext(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	s.Unlock()
	if err := s.LockContext(context.Background()); err != nil {
		t.Fatalf("lock context: %v", err)
	}
	s.Unlock()
}

func TestSemaphoreResourceMutualExclusion(t *testing.T) {
	total := 0
	r := shared.New(NewSemaphore(), &total)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.With(func(v *int) { *v++ })
			}
		}()
	}
	wg.Wait()
	if total != 800 {
		t.Fatalf("expected 800, got %d", total)
	}
}

func TestInstrumentedCountsOperations(t *testing.T) {
	var mu sync.Mutex
	l := NewInstrumented("instrumented-test", &mu)

	l.Lock()
	if l.TryLock() {
		t.Fatal("TryLock succeeded while held")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := l.LockContext(ctx); err == nil {
		t.Fatal("expected LockContext to time out")
	}
	l.Unlock()
	if err := l.LockContext(context.Background()); err != nil {
		t.Fatalf("lock context: %v", err)
	}
	l.Unlock()

	checks := []struct {
		op, result string
		want       float64
	}{
		{"lock", "ok", 2},
		{"lock", "error", 1},
		{"trylock", "busy", 1},
		{"unlock", "ok", 2},
	}
	for _, c := range checks {
		got := testutil.ToFloat64(metrics.LockOpCounter.WithLabelValues("instrumented-test", c.op, c.result))
		if got != c.want {
			t.Fatalf("%s/%s: expected %v got %v", c.op, c.result, c.want, got)
		}
	}
}
