package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 512

// Sentinel errors for cache operations.
var (
	ErrNilStore   = errors.New("cache: store is nil")
	ErrNilDB      = errors.New("cache: database is nil")
	ErrInvalidKey = errors.New("cache: key is invalid")
	ErrKeyTooLong = errors.New("cache: key exceeds max length")
)

// Store is the durable key-value cache behind the read path.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Errors: reads never error; they return (nil, false) on miss, and any
//     storage-engine failure is logged and reported as a miss. Caching is
//     strictly best-effort and must never abort the caller's request flow.
//   - Expiry: entries past their TTL are absent for Get but retained for
//     GetIgnoringExpiration until overwritten or deleted.
type Store interface {
	// Get retrieves a fresh value. Returns (nil, false) on miss or when
	// the entry's TTL has passed.
	Get(ctx context.Context, key string) ([]byte, bool)

	// GetIgnoringExpiration retrieves a value regardless of TTL. Used only
	// for the offline stale-fallback path, never for normal reads.
	GetIgnoringExpiration(ctx context.Context, key string) ([]byte, bool)

	// Set stores a value with the given TTL. TTL<=0 means no caching.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a cached value. Idempotent - no error on miss.
	Delete(ctx context.Context, key string) error

	// DeleteMany removes a set of cached values in one call.
	DeleteMany(ctx context.Context, keys []string) error
}

// ValidateKey checks if a key is valid for caching.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	// Reject keys with newlines or carriage returns
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
