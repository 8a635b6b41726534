package jidcache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// ttlStore is a bounded map whose entries expire after ttl.
// At capacity it evicts the oldest-inserted key. Overwriting a key keeps its
// original position. Expired entries are removed lazily on access and still
// count toward capacity until then.
type ttlStore[V any] struct {
	mu    sync.Mutex
	items map[string]entry[V]
	// order holds keys in insertion order, oldest first.
	order []string

	ttl       time.Duration
	max       int
	now       func() time.Time
	evictions int64
}

func newTTLStore[V any](ttl time.Duration, max int, now func() time.Time) *ttlStore[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if max <= 0 {
		max = DefaultMaxEntries
	}
	if now == nil {
		now = time.Now
	}
	return &ttlStore[V]{
		items: make(map[string]entry[V]),
		order: make([]string, 0, max),
		ttl:   ttl,
		max:   max,
		now:   now,
	}
}

func (s *ttlStore[V]) get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero V
	ent, ok := s.items[key]
	if !ok {
		return zero, false
	}
	if s.now().Sub(ent.storedAt) >= s.ttl {
		s.removeLocked(key)
		return zero, false
	}
	return ent.value, true
}

// set stores value under key and reports the evicted key, if any.
func (s *ttlStore[V]) set(key string, value V) (evicted string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[key]; ok {
		s.items[key] = entry[V]{value: value, storedAt: s.now()}
		return ""
	}

	if len(s.items) >= s.max && len(s.order) > 0 {
		evicted = s.order[0]
		s.order = s.order[1:]
		delete(s.items, evicted)
		s.evictions++
	}

	s.items[key] = entry[V]{value: value, storedAt: s.now()}
	s.order = append(s.order, key)
	return evicted
}

func (s *ttlStore[V]) delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(key)
}

func (s *ttlStore[V]) removeLocked(key string) {
	if _, ok := s.items[key]; !ok {
		return
	}
	delete(s.items, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *ttlStore[V]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *ttlStore[V]) evictionCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictions
}

func (s *ttlStore[V]) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]entry[V])
	s.order = make([]string, 0, s.max)
}
