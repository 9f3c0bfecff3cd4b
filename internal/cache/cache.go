// Package cache holds serialized read-views (feeds, explore pages, single posts) in a
// namespaced TTL store. The cache is never authoritative: every operation on the Layer
// fails open, so a broken backend degrades reads to the source of truth.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMiss is returned by a Backend when the key is absent or expired.
	ErrMiss = errors.New("cache: miss")
	// ErrCacheUnavailable means the backend could not be reached in time or the
	// breaker in front of it is open.
	ErrCacheUnavailable = errors.New("cache: backend unavailable")
	// ErrCacheOperationFailed covers backend errors and (de)serialization failures.
	ErrCacheOperationFailed = errors.New("cache: operation failed")
)

// Backend is the storage behind the Layer. Implementations must be safe for
// concurrent use, and deleting a key that does not exist is not an error.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// PrefixScanner is implemented by backends that can enumerate their own keys by
// prefix. The Layer keeps a KeyIndex for backends that cannot.
type PrefixScanner interface {
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)
}

// EvictionNotifier is implemented by backends that expire keys themselves. fn is
// called with the expired keys while the backend still holds its write lock, so a
// concurrent Set of the same key is ordered after it.
type EvictionNotifier interface {
	OnEvict(fn func(keys ...string))
}
