// Package concmap is the sharded concurrent map used by the symbol
// resolver (spec.md §4.2: "process-wide concurrent map keyed by (name,
// version)") and the mergeable-section fragment maps (spec.md §4.5,
// further specialized in internal/iobj's FragmentShard for the
// content-identity rule that applies only to fragments). It generalizes
// flapc's single-threaded bucket/chain FlapHashMap (hashmap.go) — which
// mapped a fixed uint64 key to a float64 value with no locking — into a
// generic, sharded, lock-per-shard map safe for concurrent access from the
// parallel resolution/parsing stages.
package concmap

import (
	"hash/fnv"
	"sync"
)

// Map is a fixed-shard-count concurrent map. Sharding by key hash bounds
// lock contention the same way flapc's bucket/chain design bounded probe
// length, just with a mutex guarding each bucket's chain instead of a
// single-threaded direct access.
type Map[V any] struct {
	shards []*shard[V]
	mask   uint64
}

type shard[V any] struct {
	mu   sync.RWMutex
	data map[string]V
}

// New creates a Map with numShards rounded up to the next power of two (so
// the shard index can be computed with a mask, as flapc's bucket index was
// computed with a modulo against a fixed bucket count).
func New[V any](numShards int) *Map[V] {
	n := 1
	for n < numShards {
		n <<= 1
	}
	if n < 1 {
		n = 1
	}
	m := &Map[V]{shards: make([]*shard[V], n), mask: uint64(n - 1)}
	for i := range m.shards {
		m.shards[i] = &shard[V]{data: make(map[string]V)}
	}
	return m
}

func (m *Map[V]) shardFor(key string) *shard[V] {
	h := fnv.New64a()
	h.Write([]byte(key))
	return m.shards[h.Sum64()&m.mask]
}

func (m *Map[V]) Get(key string) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

func (m *Map[V]) Set(key string, v V) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = v
}

// GetOrInsert returns the existing value for key, or installs and returns
// fresh() if absent. This is the primitive spec.md §4.2's symbol
// resolution "insertion uses an atomic compare-and-exchange on a small
// current-owner field" is built from: the map entry itself (a *Symbol) is
// installed exactly once; subsequent resolution priority races are then
// resolved on that shared *Symbol via iobj.Outranks under the caller's own
// locking or atomic fields, not by this map.
func (m *Map[V]) GetOrInsert(key string, fresh func() V) V {
	s := m.shardFor(key)
	s.mu.RLock()
	if v, ok := s.data[key]; ok {
		s.mu.RUnlock()
		return v
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.data[key]; ok {
		return v
	}
	v := fresh()
	s.data[key] = v
	return v
}

// Len returns the total number of entries across all shards. Used by
// stage 2 (resolution) to report symbol-table size and by tests.
func (m *Map[V]) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.data)
		s.mu.RUnlock()
	}
	return n
}

// Range calls fn for every entry. fn must not call back into the same Map
// (shard locks are held per-shard during iteration, so a reentrant call
// targeting the same shard would deadlock).
func (m *Map[V]) Range(fn func(key string, v V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.data {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}
