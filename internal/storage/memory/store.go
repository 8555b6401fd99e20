// Package memory is the in-memory access log used in tests and in
// deployments that do not persist request records.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ooyeku/crux/internal/storage"
)

// maxRecords bounds memory growth; the oldest records are dropped.
const maxRecords = 1024

// Store is a bounded in-memory access log.
type Store struct {
	mu      sync.Mutex
	records []storage.AccessRecord
}

var _ storage.AccessLog = (*Store)(nil)

// New creates an empty store.
func New() *Store { return &Store{} }

// Record implements storage.AccessLog.
func (s *Store) Record(_ context.Context, rec storage.AccessRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	s.mu.Lock()
	s.records = append(s.records, rec)
	if len(s.records) > maxRecords {
		s.records = s.records[len(s.records)-maxRecords:]
	}
	s.mu.Unlock()
	return nil
}

// Recent implements storage.AccessLog, newest first.
func (s *Store) Recent(_ context.Context, limit int) ([]storage.AccessRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.records)
	if limit > n {
		limit = n
	}
	out := make([]storage.AccessRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// Close implements storage.AccessLog.
func (s *Store) Close() error { return nil }
