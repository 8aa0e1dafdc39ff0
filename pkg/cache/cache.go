// Package cache is a concurrent map whose elements expire.
package cache

import (
	"time"

	"github.com/plgd-dev/coap-engine/pkg/sync"
)

type Element[T any] struct {
	validUntil time.Time
	data       T
	onExpire   func(d T)
}

func (e *Element[T]) IsExpired(now time.Time) bool {
	if e.validUntil.IsZero() {
		return false
	}
	return now.After(e.validUntil)
}

func (e *Element[T]) Data() T {
	return e.data
}

type Cache[K comparable, V any] struct {
	data *sync.Map[K, *Element[V]]
}

func NewCache[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{
		data: sync.NewMap[K, *Element[V]](),
	}
}

// NewElement creates element that can be stored in the cache. A zero
// validUntil never expires.
func NewElement[V any](data V, validUntil time.Time, onExpire func(d V)) *Element[V] {
	if onExpire == nil {
		onExpire = func(V) {}
	}
	return &Element[V]{data: data, validUntil: validUntil, onExpire: onExpire}
}

// LoadOrStore returns the unexpired element stored for key with loaded set,
// or stores e and returns it.
func (c *Cache[K, V]) LoadOrStore(key K, e *Element[V]) (actual *Element[V], loaded bool) {
	now := time.Now()
	c.data.ReplaceWithFunc(key, func(oldValue *Element[V], oldLoaded bool) (*Element[V], bool) {
		if oldLoaded && !oldValue.IsExpired(now) {
			actual = oldValue
			return oldValue, false
		}
		actual = e
		return e, false
	})
	return actual, actual != e
}

// Load returns the unexpired element stored for key.
func (c *Cache[K, V]) Load(key K) (*Element[V], bool) {
	a, ok := c.data.Load(key)
	if !ok || a.IsExpired(time.Now()) {
		return nil, false
	}
	return a, true
}

func (c *Cache[K, V]) Delete(key K) bool {
	return c.data.Delete(key)
}

func (c *Cache[K, V]) Length() int {
	return c.data.Length()
}

// CheckExpirations deletes the elements expired at now and invokes their
// onExpire functions.
func (c *Cache[K, V]) CheckExpirations(now time.Time) {
	expired := c.data.DeleteFunc(func(_ K, e *Element[V]) bool {
		return e.IsExpired(now)
	})
	for _, e := range expired {
		e.onExpire(e.data)
	}
}
