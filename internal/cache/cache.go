// Package cache provides the in-memory store for computed ledger views.
// Entries expire after a TTL and the least recently used entry is dropped
// when the store is full. A background sweeper reclaims expired entries
// that are never read again.
package cache

import (
	"container/list"
	"sync"
	"time"
)

type entry[T any] struct {
	key     string
	value   T
	expires time.Time
}

// Store is a fixed-capacity LRU map with per-entry expiry.
type Store[T any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	byKey    map[string]*list.Element
	order    *list.List // front = most recently used

	sweepStop chan struct{}
	sweepDone chan struct{}
}

func New[T any](capacity int, ttl time.Duration) *Store[T] {
	return &Store[T]{
		capacity: capacity,
		ttl:      ttl,
		byKey:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached value for key. An expired entry is removed and
// reported as a miss.
func (s *Store[T]) Get(key string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	elem, ok := s.byKey[key]
	if !ok {
		return zero, false
	}
	ent := elem.Value.(*entry[T])
	if time.Now().After(ent.expires) {
		s.remove(elem)
		return zero, false
	}
	s.order.MoveToFront(elem)
	return ent.value, true
}

// Put stores value under key, refreshing its expiry. When the store is at
// capacity the least recently used entry is evicted.
func (s *Store[T]) Put(key string, value T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent := &entry[T]{key: key, value: value, expires: time.Now().Add(s.ttl)}
	if elem, ok := s.byKey[key]; ok {
		elem.Value = ent
		s.order.MoveToFront(elem)
		return
	}
	s.byKey[key] = s.order.PushFront(ent)
	if s.order.Len() > s.capacity {
		if oldest := s.order.Back(); oldest != nil {
			s.remove(oldest)
		}
	}
}

// Drop removes key if present.
func (s *Store[T]) Drop(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.byKey[key]; ok {
		s.remove(elem)
	}
}

// Flush discards every cached entry.
func (s *Store[T]) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byKey = make(map[string]*list.Element)
	s.order.Init()
}

// Sweep removes every expired entry and reports how many were dropped.
func (s *Store[T]) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	swept := 0
	for elem := s.order.Front(); elem != nil; {
		next := elem.Next()
		if now.After(elem.Value.(*entry[T]).expires) {
			s.remove(elem)
			swept++
		}
		elem = next
	}
	return swept
}

// Len returns the number of live entries, expired or not.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// StartSweeper runs Sweep every interval until StopSweeper is called.
func (s *Store[T]) StartSweeper(interval time.Duration) {
	s.sweepStop = make(chan struct{})
	s.sweepDone = make(chan struct{})
	go func() {
		defer close(s.sweepDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.sweepStop:
				return
			}
		}
	}()
}

// StopSweeper stops the background sweeper and waits for it to exit.
// Safe to call when the sweeper was never started.
func (s *Store[T]) StopSweeper() {
	if s.sweepStop == nil {
		return
	}
	close(s.sweepStop)
	<-s.sweepDone
	s.sweepStop = nil
}

// caller must hold mu
func (s *Store[T]) remove(elem *list.Element) {
	delete(s.byKey, elem.Value.(*entry[T]).key)
	s.order.Remove(elem)
}
