// Package provider defines the byte store that partitions are written to.
//
// Implementations MUST be byte-for-byte transparent: Get returns exactly the
// []byte previously passed to Set for a key. Compression or any other transform
// belongs in the codec layer, never in a provider.
//
// The keyspace "sw:<ns>:" is owned by swcache storage. Foreign writes under it
// fail frame validation and are deleted on read.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs, safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL (<= 0 means no expiry). Cost is a
	// hint (storage passes the frame size) and may be ignored.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort). Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// PrefixDeleter is implemented by providers that can enumerate their keys.
// Storage uses it to purge a whole partition in one pass, including frames
// whose manifest entry was lost.
type PrefixDeleter interface {
	// DelPrefix removes every key starting with prefix and reports how many.
	DelPrefix(ctx context.Context, prefix string) (int, error)
}
