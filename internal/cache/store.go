package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by a Store when a key has no value.
var ErrKeyNotFound = errors.New("cache: key not found")

// Store is the remote key-value backing store for the cache layer.
// Implementations must provide atomic single-key reads and writes; the
// cache layer does not rely on cross-key transactions.
type Store interface {
	// Get retrieves a value, or ErrKeyNotFound
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value. Values are kept until deleted: staleness is the
	// cache layer's business, and hard-expired entries must stay readable
	// for the miss-fallback path.
	Set(ctx context.Context, key string, value string) error

	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// Ping checks the backing store connection
	Ping(ctx context.Context) error

	// Close closes any connections and cleans up resources
	Close() error
}

// Entry wraps a cached payload with its staleness bookkeeping.
type Entry struct {
	Payload        json.RawMessage `json:"payload"`
	CreatedAt      time.Time       `json:"created_at"`
	LastAccessedAt time.Time       `json:"last_accessed_at"`
	TTLSeconds     int64           `json:"ttl_seconds"`
	Tag            string          `json:"tag,omitempty"`
}

// Age returns how long ago the entry's payload was fetched.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}
