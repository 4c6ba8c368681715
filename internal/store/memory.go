package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/clipcast/api/internal/model"
)

type memoryEntry struct {
	rec      model.StatusRecord
	deadline time.Time
}

// MemoryStatusStore is an in-process StatusStore for tests and local runs
type MemoryStatusStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStatusStore creates an empty store using the wall clock
func NewMemoryStatusStore() *MemoryStatusStore {
	return NewMemoryStatusStoreWithClock(time.Now)
}

// NewMemoryStatusStoreWithClock creates a store whose expiry follows now
func NewMemoryStatusStoreWithClock(now func() time.Time) *MemoryStatusStore {
	return &MemoryStatusStore{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

func (s *MemoryStatusStore) Set(_ context.Context, rec *model.StatusRecord, ttl time.Duration) error {
	if rec == nil || rec.JobID == "" {
		return errors.New("status record requires a job id")
	}
	if ttl <= 0 {
		return fmt.Errorf("status ttl must be positive, got %s", ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[rec.JobID] = memoryEntry{rec: *rec, deadline: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStatusStore) Get(_ context.Context, jobID string) (*model.StatusRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(jobID)
	if !ok {
		return nil, ErrNotFound
	}
	rec := entry.rec
	return &rec, nil
}

func (s *MemoryStatusStore) Delete(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, jobID)
	return nil
}

func (s *MemoryStatusStore) RefreshTTL(_ context.Context, jobID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(jobID)
	if !ok {
		return ErrNotFound
	}
	if ttl <= 0 {
		delete(s.entries, jobID)
		return nil
	}
	entry.deadline = s.now().Add(ttl)
	s.entries[jobID] = entry
	return nil
}

func (s *MemoryStatusStore) ShortenTTL(_ context.Context, jobID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(jobID)
	if !ok {
		return nil
	}
	if ttl <= 0 {
		delete(s.entries, jobID)
		return nil
	}
	if deadline := s.now().Add(ttl); deadline.Before(entry.deadline) {
		entry.deadline = deadline
		s.entries[jobID] = entry
	}
	return nil
}

// TTL returns the remaining lifetime of a key, or false if it is gone
func (s *MemoryStatusStore) TTL(jobID string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(jobID)
	if !ok {
		return 0, false
	}
	return entry.deadline.Sub(s.now()), true
}

// live must be called with mu held. Expired entries are dropped lazily.
func (s *MemoryStatusStore) live(jobID string) (memoryEntry, bool) {
	entry, ok := s.entries[jobID]
	if !ok {
		return memoryEntry{}, false
	}
	if !s.now().Before(entry.deadline) {
		delete(s.entries, jobID)
		return memoryEntry{}, false
	}
	return entry, true
}
