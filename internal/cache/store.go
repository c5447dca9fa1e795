// Package cache holds scored command lines in memory, bounded by both a
// capacity (least-recently-used eviction) and a time-to-live checked lazily
// on read. There is no background sweeper and no persistence.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/gzhole/kubeguard/internal/guardian"
)

const (
	DefaultCapacity = 1024
	DefaultTTL      = time.Hour
)

// entry is owned by the store and replaced, never mutated, on re-insert.
type entry struct {
	key        string
	result     guardian.Result
	insertedAt time.Time
}

// Store is a thread-safe LRU+TTL cache of scoring results keyed by a
// fingerprint of the exact command text. One mutex guards the map and the
// recency list together.
type Store struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	order    *list.List // front = most recently used
	now      func() time.Time
	metrics  Metrics
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces time.Now; used by tests to drive expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// New creates a store. Non-positive capacity or ttl fall back to the defaults.
func New(capacity int, ttl time.Duration, opts ...Option) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
		now:      time.Now,
		metrics:  NoopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fingerprint returns the cache key for text: hex SHA-256 of its exact bytes.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached result for text. A live hit becomes most recently
// used; an expired entry is removed and reported as a miss.
func (s *Store) Get(text string) (guardian.Result, bool) {
	key := Fingerprint(text)

	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		s.metrics.Miss()
		return guardian.Result{}, false
	}

	e := elem.Value.(*entry)
	if s.now().Sub(e.insertedAt) > s.ttl {
		s.removeElement(elem)
		s.metrics.Expire()
		s.metrics.Miss()
		s.metrics.Size(len(s.items))
		return guardian.Result{}, false
	}

	s.order.MoveToFront(elem)
	s.metrics.Hit()
	return e.result, true
}

// Put stores result for text with the current time, replacing any previous
// entry, and evicts the least recently used entry if capacity is exceeded.
func (s *Store) Put(text string, result guardian.Result) {
	key := Fingerprint(text)
	e := &entry{key: key, result: result}

	s.mu.Lock()
	defer s.mu.Unlock()

	e.insertedAt = s.now()
	if elem, ok := s.items[key]; ok {
		elem.Value = e
		s.order.MoveToFront(elem)
	} else {
		s.items[key] = s.order.PushFront(e)
	}

	for len(s.items) > s.capacity {
		oldest := s.order.Back()
		if oldest == nil {
			break
		}
		s.removeElement(oldest)
		s.metrics.Evict()
	}
	s.metrics.Size(len(s.items))
}

// Len returns the number of stored entries, including expired ones that have
// not been read yet.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) Capacity() int { return s.capacity }

func (s *Store) TTL() time.Duration { return s.ttl }

func (s *Store) removeElement(elem *list.Element) {
	s.order.Remove(elem)
	delete(s.items, elem.Value.(*entry).key)
}
