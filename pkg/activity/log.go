// Package activity provides the capped, de-duplicated feed shared by the
// relay and the client session.
package activity

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is how many entries a feed keeps.
const DefaultCapacity = 200

// Log is an append-only feed keyed by ID. Appending an ID that is already
// held is a no-op, so an optimistic local entry and its relay echo collapse
// to one. When full, the oldest entry is evicted and its ID forgotten.
//
// Entries are only ever read with Peek, so recency in the cache is
// insertion order.
type Log[T any] struct {
	// mu keeps Keys and the Peeks that follow consistent with each other.
	mu    sync.RWMutex
	key   func(T) string
	cache *lru.Cache[string, T]
}

func New[T any](capacity int, key func(T) string) *Log[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	// Only fails on a non-positive size.
	cache, _ := lru.New[string, T](capacity)
	return &Log[T]{key: key, cache: cache}
}

// Append adds item and reports whether it was new.
func (l *Log[T]) Append(item T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	held, _ := l.cache.ContainsOrAdd(l.key(item), item)
	return !held
}

// Has reports whether an entry with id is currently held.
func (l *Log[T]) Has(id string) bool {
	return l.cache.Contains(id)
}

func (l *Log[T]) Len() int {
	return l.cache.Len()
}

// Entries returns a copy, most recent first.
func (l *Log[T]) Entries() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()

	keys := l.cache.Keys()
	out := make([]T, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		if v, ok := l.cache.Peek(keys[i]); ok {
			out = append(out, v)
		}
	}
	return out
}

// Recent returns at most n entries, most recent first.
func (l *Log[T]) Recent(n int) []T {
	entries := l.Entries()
	if n > 0 && n < len(entries) {
		return entries[:n]
	}
	return entries
}
