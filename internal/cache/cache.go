// Package cache implements the renderer's four content-addressed,
// no-eviction artifact caches (spec.md §3, §5, §9). Entries are
// content-keyed (equal key ⇒ equal output) and are never evicted within a
// process — boundedness is the host application's concern, not the core's
// (spec.md §9 "Global mutable state"). Built on patrickmn/go-cache, an
// in-memory store well suited to a process-lifetime, never-evicted cache.
package cache

import (
	gocache "github.com/patrickmn/go-cache"

	"github.com/shirotsuki/phrase-renderer/internal/keys"
)

// Store is a type-safe, content-addressed, no-eviction cache for one
// artifact kind.
type Store[T any] struct {
	c *gocache.Cache
}

// NewStore constructs an empty Store. cache.NoExpiration and a disabled
// cleanup interval give entries the "never evicted within a process"
// lifetime spec.md requires.
func NewStore[T any]() *Store[T] {
	return &Store[T]{c: gocache.New(gocache.NoExpiration, gocache.NoExpiration)}
}

// Get returns the cached value for key, if present.
func (s *Store[T]) Get(key keys.Key) (T, bool) {
	var zero T
	v, ok := s.c.Get(string(key))
	if !ok {
		return zero, false
	}
	value, ok := v.(T)
	if !ok {
		return zero, false
	}
	return value, true
}

// Has reports whether key is present, without materializing the value —
// the probe a cacheable task's IsCached function uses.
func (s *Store[T]) Has(key keys.Key) bool {
	_, ok := s.c.Get(string(key))
	return ok
}

// Set stores value under key with no expiration. Only called after a
// stage fully succeeds — a failed stage leaves the cache untouched
// (spec.md §5).
func (s *Store[T]) Set(key keys.Key, value T) {
	s.c.Set(string(key), value, gocache.NoExpiration)
}

// Len returns the number of cached entries.
func (s *Store[T]) Len() int {
	return s.c.ItemCount()
}

// Keys returns every key currently cached, in no particular order.
func (s *Store[T]) Keys() []keys.Key {
	items := s.c.Items()
	out := make([]keys.Key, 0, len(items))
	for k := range items {
		out = append(out, keys.Key(k))
	}
	return out
}
