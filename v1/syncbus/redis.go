package syncbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	redis "github.com/redis/go-redis/v9"

	sharederrors "github.com/mirkobrombin/go-shared/v1/errors"
)

// DefaultRedisPrefix namespaces the pub/sub channels used by RedisBus.
const DefaultRedisPrefix = "shared:bus:"

type redisSubscription struct {
	pubsub *redis.PubSub
	chans  []chan struct{}
}

// RedisBus implements Bus using Redis pub/sub.
type RedisBus struct {
	client *redis.Client
	prefix string

	mu        sync.Mutex
	subs      map[string]*redisSubscription
	closed    bool
	published atomic.Uint64
	delivered atomic.Uint64
}

// NewRedisBus returns a RedisBus publishing on channels named prefix+key.
// An empty prefix selects DefaultRedisPrefix.
func NewRedisBus(client *redis.Client, prefix string) *RedisBus {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisBus{client: client, prefix: prefix, subs: make(map[string]*redisSubscription)}
}

// Publish implements Bus.Publish.
func (b *RedisBus) Publish(ctx context.Context, key string) error {
	if err := b.client.Publish(ctx, b.prefix+key, "1").Err(); err != nil {
		return err
	}
	b.published.Add(1)
	return nil
}

// Subscribe implements Bus.Subscribe. It returns once Redis has confirmed the
// subscription, so a Publish issued afterwards is not missed.
func (b *RedisBus) Subscribe(ctx context.Context, key string) (chan struct{}, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, sharederrors.ErrConnectionClosed
	}
	sub := b.subs[key]
	if sub == nil {
		ps := b.client.Subscribe(context.Background(), b.prefix+key)
		if _, err := ps.Receive(ctx); err != nil {
			b.mu.Unlock()
			_ = ps.Close()
			return nil, err
		}
		sub = &redisSubscription{pubsub: ps}
		b.subs[key] = sub
		go b.dispatch(key, ps)
	}
	ch := make(chan struct{}, 1)
	sub.chans = append(sub.chans, ch)
	b.mu.Unlock()

	unsubscribeOnDone(ctx, b, key, ch)
	return ch, nil
}

func (b *RedisBus) dispatch(key string, ps *redis.PubSub) {
	for range ps.Channel() {
		b.mu.Lock()
		var n uint64
		if sub := b.subs[key]; sub != nil && sub.pubsub == ps {
			n = fanOut(sub.chans)
		}
		b.mu.Unlock()
		b.delivered.Add(n)
	}
}

// Unsubscribe implements Bus.Unsubscribe.
func (b *RedisBus) Unsubscribe(ctx context.Context, key string, ch chan struct{}) error {
	b.mu.Lock()
	sub := b.subs[key]
	if sub == nil {
		b.mu.Unlock()
		return nil
	}
	sub.chans, _ = remove(sub.chans, ch)
	if len(sub.chans) > 0 {
		b.mu.Unlock()
		return nil
	}
	delete(b.subs, key)
	b.mu.Unlock()
	return sub.pubsub.Close()
}

// Close ends every subscription. Later subscriptions fail with
// ErrConnectionClosed; the client itself is left open.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*redisSubscription)
	b.closed = true
	for _, sub := range subs {
		for _, ch := range sub.chans {
			close(ch)
		}
	}
	b.mu.Unlock()

	for key, sub := range subs {
		if err := sub.pubsub.Close(); err != nil {
			slog.Warn("syncbus: closing redis subscription failed", "key", key, "error", err)
		}
	}
	return nil
}

// Metrics returns the published and delivered counts.
func (b *RedisBus) Metrics() Metrics {
	return Metrics{Published: b.published.Load(), Delivered: b.delivered.Load()}
}
