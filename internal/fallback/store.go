// Package fallback is the process-local, best-effort store both engines
// switch to while the durable store's circuit is open. It is bounded, keeps
// nothing across restarts and is never shared between instances.
package fallback

import (
	"context"
	"path"
	"sync"
	"time"

	"pdfcache/internal/ports"
)

var _ ports.Store = (*Store)(nil)

type item struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
	storedAt  time.Time
}

type Store struct {
	mu       sync.Mutex
	items    map[string]item
	capacity int
	now      func() time.Time
}

func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = 256
	}
	return &Store{
		items:    make(map[string]item),
		capacity: capacity,
		now:      time.Now,
	}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[key]
	if !ok {
		return nil, ports.ErrNotFound
	}
	if !it.expiresAt.IsZero() && s.now().After(it.expiresAt) {
		delete(s.items, key)
		return nil, ports.ErrNotFound
	}
	return it.value, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[key]; !exists && len(s.items) >= s.capacity {
		s.evictOneLocked()
	}

	it := item{value: value, storedAt: s.now()}
	if ttl > 0 {
		it.expiresAt = it.storedAt.Add(ttl)
	}
	s.items[key] = it
	return nil
}

func (s *Store) Delete(_ context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, k := range keys {
		if _, ok := s.items[k]; ok {
			delete(s.items, k)
			n++
		}
	}
	return n, nil
}

// Keys matches the same glob dialect the durable store uses. path.Match's
// only special separator is '/', which cannot occur in derived keys, so '*'
// crosses the ':' namespace delimiter here as well.
func (s *Store) Keys(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var keys []string
	for k, it := range s.items {
		if !it.expiresAt.IsZero() && now.After(it.expiresAt) {
			delete(s.items, k)
			continue
		}
		ok, err := path.Match(pattern, k)
		if err != nil {
			return nil, err
		}
		if ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// evictOneLocked drops an expired entry if one exists, otherwise the oldest
// write. Best-effort: good enough for an outage buffer, not an LRU.
func (s *Store) evictOneLocked() {
	now := s.now()
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for k, it := range s.items {
		if !it.expiresAt.IsZero() && now.After(it.expiresAt) {
			delete(s.items, k)
			return
		}
		if oldestKey == "" || it.storedAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = it.storedAt
		}
	}
	if oldestKey != "" {
		delete(s.items, oldestKey)
	}
}
