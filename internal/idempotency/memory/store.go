package memory

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/dejobratic/opsapi/internal/idempotency"
)

// Store keeps idempotency records in process memory. The mutex stands in for
// the unique constraint a shared store provides, so it is only correct for a
// single instance; use it for tests and local development.
type Store struct {
	mu    sync.RWMutex
	items map[string]idempotency.Record
	now   func() time.Time
}

// NewStore creates a new in-memory idempotency store.
func NewStore() *Store {
	return &Store{
		items: make(map[string]idempotency.Record),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Claim inserts a pending record if the key is unknown.
func (s *Store) Claim(_ context.Context, key, requestHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; ok {
		return false, nil
	}
	s.items[key] = idempotency.Record{
		Key:         key,
		Status:      idempotency.StatusPending,
		RequestHash: requestHash,
		CreatedAt:   s.now(),
	}
	return true, nil
}

// Lookup returns a copy of the stored record, or nil.
func (s *Store) Lookup(_ context.Context, key string) (*idempotency.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.items[key]
	if !ok {
		return nil, nil
	}
	rec.Body = bytes.Clone(rec.Body)
	return &rec, nil
}

// Complete attaches the outcome to a pending record.
func (s *Store) Complete(_ context.Context, key string, outcome idempotency.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.items[key]
	if !ok {
		return idempotency.ErrNotClaimed
	}
	if rec.Status == idempotency.StatusCompleted {
		if rec.Fingerprint == outcome.Fingerprint {
			return nil
		}
		return idempotency.ErrOutcomeMismatch
	}

	completedAt := s.now()
	rec.Status = idempotency.StatusCompleted
	rec.StatusCode = outcome.StatusCode
	rec.Fingerprint = outcome.Fingerprint
	rec.Body = bytes.Clone(outcome.Body)
	rec.CompletedAt = &completedAt
	s.items[key] = rec
	return nil
}

// Release removes a pending record.
func (s *Store) Release(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[key]
	if !ok || rec.Status != idempotency.StatusPending {
		return false, nil
	}
	delete(s.items, key)
	return true, nil
}

// Sweep removes completed records finished before the cutoff.
func (s *Store) Sweep(_ context.Context, completedBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for key, rec := range s.items {
		if rec.Status == idempotency.StatusCompleted && rec.CompletedAt != nil && rec.CompletedAt.Before(completedBefore) {
			delete(s.items, key)
			removed++
		}
	}
	return removed, nil
}
