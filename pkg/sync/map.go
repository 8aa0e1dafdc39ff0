// Package sync provides a generic map guarded by a RWMutex.
package sync

import (
	"sync"

	"golang.org/x/exp/maps"
)

// Map is like a Go map[K]V but is safe for concurrent use by multiple goroutines.
type Map[K comparable, V any] struct {
	mutex sync.RWMutex
	data  map[K]V
}

// NewMap creates map.
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		data: make(map[K]V),
	}
}

// Store sets the value for a key.
func (m *Map[K, V]) Store(key K, value V) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.data[key] = value
}

// Load returns the value stored in the map for a key.
func (m *Map[K, V]) Load(key K) (value V, ok bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	value, ok = m.data[key]
	return value, ok
}

// ReplaceWithFunc calls onReplaceFunc under the write lock with the current
// value and stores what it returns, or deletes the key when doDelete is set.
func (m *Map[K, V]) ReplaceWithFunc(key K, onReplaceFunc func(oldValue V, oldLoaded bool) (newValue V, doDelete bool)) (oldValue V, oldLoaded bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	v, ok := m.data[key]
	newValue, del := onReplaceFunc(v, ok)
	if del {
		delete(m.data, key)
		return v, ok
	}
	m.data[key] = newValue
	return v, ok
}

// Delete deletes the value for a key.
func (m *Map[K, V]) Delete(key K) (deleted bool) {
	_, deleted = m.PullOut(key)
	return deleted
}

// PullOut loads and deletes the value for a key.
func (m *Map[K, V]) PullOut(key K) (value V, ok bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	value, ok = m.data[key]
	delete(m.data, key)
	return value, ok
}

// DeleteFunc deletes every entry for which del returns true and returns the
// deleted entries.
func (m *Map[K, V]) DeleteFunc(del func(key K, value V) bool) map[K]V {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	deleted := make(map[K]V)
	maps.DeleteFunc(m.data, func(key K, value V) bool {
		if del(key, value) {
			deleted[key] = value
			return true
		}
		return false
	})
	return deleted
}

// CopyData returns a shallow copy of the map. Callers iterate the copy
// without holding the lock.
func (m *Map[K, V]) CopyData() map[K]V {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return maps.Clone(m.data)
}

// Length returns number of stored values.
func (m *Map[K, V]) Length() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.data)
}
