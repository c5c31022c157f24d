// Package memory provides the in-memory audit store used in tests and
// single-process deployments.
package memory

import (
	"context"
	"sync"

	"veristry/internal/audit"
	id "veristry/pkg/domain"
)

// Store is an append-only in-memory audit log.
type Store struct {
	mu      sync.RWMutex
	records []audit.Record
}

func New() *Store {
	return &Store{}
}

func (s *Store) Append(ctx context.Context, rec audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *Store) ListByRequest(ctx context.Context, requestID id.RequestID) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Record
	for _, rec := range s.records {
		if rec.RequestID == requestID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Len returns the total number of appended records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
