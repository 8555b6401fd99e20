// Package cache implements the response cache consulted by the middleware
// chain: a key to cached-body mapping with per-entry TTLs, deterministic
// content-hash ETags, and lazy expiration on lookup.
package cache

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DefaultTTL applies when Set is called with a zero TTL.
const DefaultTTL = 60 * time.Second

// Entry is one cached response. An entry is logically absent once
// now >= ExpiresAt even while still physically present; Get never returns
// a stale entry.
type Entry struct {
	Body         []byte
	ETag         string
	LastModified time.Time
	TTL          time.Duration
	ExpiresAt    time.Time
	ContentType  string
}

// Expired reports whether the entry is past its expiry at the given time.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// MaxAge returns the TTL in whole seconds, for Cache-Control max-age.
func (e *Entry) MaxAge() int {
	return int(e.TTL / time.Second)
}

// Store is the response cache contract. Implementations are internally
// thread safe: every read-modify-write on the underlying map happens under
// the implementation's own mutual exclusion.
type Store interface {
	// Get returns the live entry for key, lazily evicting it first if
	// expired. Callers never observe a stale entry.
	Get(ctx context.Context, key string) (*Entry, bool)
	// Set stores body under key, replacing any existing entry. A zero ttl
	// uses the store default. The ETag is derived from a content hash of
	// body, so identical bodies always produce identical ETags.
	Set(ctx context.Context, key string, body []byte, ttl time.Duration, contentType string)
	// Invalidate removes one key.
	Invalidate(ctx context.Context, key string)
	// InvalidatePrefix removes every key that starts with prefix.
	InvalidatePrefix(ctx context.Context, prefix string)
	// Cleanup sweeps expired entries eagerly, bounding growth from keys
	// that are written once and never read.
	Cleanup(ctx context.Context)
}

// ContentETag computes the deterministic content-hash ETag for a body.
// The value is unquoted; header writers quote it.
func ContentETag(body []byte) string {
	sum := xxhash.Sum64(body)
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(sum >> (56 - 8*i))
	}
	return hex.EncodeToString(b[:])
}
