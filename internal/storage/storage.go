// Package storage defines the access-log store the dispatcher records
// completed requests into. Recording is best effort: a store failure is
// logged, never surfaced to the client.
package storage

import (
	"context"
	"time"
)

// AccessRecord is one completed request.
type AccessRecord struct {
	RequestID  string
	Method     string
	Path       string
	Route      string
	Status     int
	ClientIP   string
	DurationMS int64
	CreatedAt  time.Time
}

// AccessLog persists request records.
type AccessLog interface {
	Record(ctx context.Context, rec AccessRecord) error
	Recent(ctx context.Context, limit int) ([]AccessRecord, error)
	Close() error
}
