package ratelimit

import (
	"context"
	"sync"
	"time"
)

type record struct {
	count   int64
	resetAt time.Time
}

// MemoryStore is a process-local Store. Counters reset on restart and are
// not shared between instances.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*record
	stop    context.CancelFunc
}

// NewMemoryStore starts a sweeper that drops expired windows every interval
// until ctx is done or Close is called. interval <= 0 disables sweeping.
func NewMemoryStore(ctx context.Context, interval time.Duration) *MemoryStore {
	ctx, cancel := context.WithCancel(ctx)
	s := &MemoryStore{records: make(map[string]*record), stop: cancel}
	if interval > 0 {
		go s.sweep(ctx, interval)
	}
	return s
}

func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration, now time.Time) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || now.After(rec.resetAt) {
		rec = &record{count: 1, resetAt: now.Add(window)}
		s.records[key] = rec
		return rec.count, rec.resetAt, nil
	}
	rec.count++
	return rec.count, rec.resetAt, nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error {
	s.stop()
	return nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *MemoryStore) sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.evictExpired(now)
		}
	}
}

func (s *MemoryStore) evictExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, rec := range s.records {
		if now.After(rec.resetAt) {
			delete(s.records, k)
		}
	}
}
