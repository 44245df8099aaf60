package shared

import (
	"context"
	"fmt"
	"reflect"
)

// Holder is implemented by *Resource[T] for every T. It lets resources of
// different value types share one Bundle.
type Holder interface {
	valueType() reflect.Type
}

// Bundle is a fixed set of resources with distinct value types. Any one of
// them is acquired by naming its value type:
//
//	b := shared.NewBundle(counter, names)
//	g := shared.Acquire[int](b)
//	defer g.Release()
//
// A Bundle only dispatches; each resource keeps its own lock, so acquiring
// one type never blocks on another. It is read-only after construction and
// safe for concurrent use.
type Bundle struct {
	resources map[reflect.Type]Holder
	order     []reflect.Type
}

// NewBundle groups resources. It panics if a resource is nil or two resources
// protect the same value type.
func NewBundle(resources ...Holder) *Bundle {
	b := &Bundle{
		resources: make(map[reflect.Type]Holder, len(resources)),
		order:     make([]reflect.Type, 0, len(resources)),
	}
	for i, r := range resources {
		if r == nil || reflect.ValueOf(r).IsNil() {
			panic(fmt.Sprintf("shared: nil resource at position %d", i))
		}
		t := r.valueType()
		if _, dup := b.resources[t]; dup {
			panic(fmt.Sprintf("shared: duplicate resource of type %s", t))
		}
		b.resources[t] = r
		b.order = append(b.order, t)
	}
	return b
}

// Len returns the number of resources in the bundle.
func (b *Bundle) Len() int {
	return len(b.order)
}

// Types returns the value types of the bundled resources in construction
// order.
func (b *Bundle) Types() []reflect.Type {
	return append([]reflect.Type(nil), b.order...)
}

// Has reports whether b holds a resource of value type T.
func Has[T any](b *Bundle) bool {
	_, ok := b.resources[reflect.TypeOf((*T)(nil)).Elem()]
	return ok
}

// Get returns the resource of value type T. It panics if there is none.
func Get[T any](b *Bundle) *Resource[T] {
	t := reflect.TypeOf((*T)(nil)).Elem()
	h, ok := b.resources[t]
	if !ok {
		panic(fmt.Sprintf("shared: bundle has no resource of type %s", t))
	}
	return h.(*Resource[T])
}

// Acquire blocks until the resource of value type T is locked. It panics if
// the bundle has no such resource.
func Acquire[T any](b *Bundle) *Guard[T] {
	return Get[T](b).Acquire()
}

// TryAcquire locks the resource of value type T without waiting. It panics
// if the bundle has no such resource.
func TryAcquire[T any](b *Bundle) (*Guard[T], bool) {
	return Get[T](b).TryAcquire()
}

// AcquireContext locks the resource of value type T, giving up when ctx is
// done. It panics if the bundle has no such resource.
func AcquireContext[T any](ctx context.Context, b *Bundle) (*Guard[T], error) {
	return Get[T](b).AcquireContext(ctx)
}
