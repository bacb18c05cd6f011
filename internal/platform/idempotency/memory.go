package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps reservations in process. The storefront runs a single instance
// per cart backend, so an in-memory store is sufficient.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore constructs an empty memory-backed store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Reserve implements Store.
func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (ReservationState, Record, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[key]
	if !ok || !now.Before(record.ExpiresAt) {
		record = Record{Fingerprint: fingerprint, ExpiresAt: now.Add(ttl)}
		s.records[key] = record
		return ReservationStateNew, record, nil
	}
	if record.Fingerprint != fingerprint {
		return 0, Record{}, ErrFingerprintMismatch
	}
	if record.Completed {
		return ReservationStateCompleted, record, nil
	}
	return ReservationStatePending, record, nil
}

// SaveResponse implements Store.
func (s *MemoryStore) SaveResponse(_ context.Context, key, fingerprint string, rec Record, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[key]; ok && existing.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	rec.Fingerprint = fingerprint
	rec.Completed = true
	rec.Headers = replayableHeaders(rec.Headers)
	rec.Body = append([]byte(nil), rec.Body...)
	rec.ExpiresAt = now.Add(ttl)
	s.records[key] = rec
	return nil
}

// Release implements Store.
func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
	return nil
}

// CleanupExpired implements Store.
func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, record := range s.records {
		if now.Before(record.ExpiresAt) {
			continue
		}
		delete(s.records, key)
		removed++
	}
	return removed, nil
}
