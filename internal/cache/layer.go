package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/anonto42/nano-midea/social/internal/metrics"
	"github.com/anonto42/nano-midea/social/pkg/logger"
)

// Options tune how the Layer guards its backend.
type Options struct {
	// OpTimeout bounds every backend call.
	OpTimeout time.Duration
	// BreakerFailures consecutive failures open the breaker.
	BreakerFailures uint32
	// BreakerOpen is how long the breaker stays open before probing again.
	BreakerOpen time.Duration
}

func (o Options) withDefaults() Options {
	if o.OpTimeout <= 0 {
		o.OpTimeout = 300 * time.Millisecond
	}
	if o.BreakerFailures == 0 {
		o.BreakerFailures = 5
	}
	if o.BreakerOpen <= 0 {
		o.BreakerOpen = 30 * time.Second
	}
	return o
}

// Layer is the fail-open front of a Backend. Get reports absence on any failure, Set
// and the invalidation calls become no-ops; errors are logged at warn and never
// returned. A Layer without a backend (or a nil *Layer) bypasses the cache entirely.
type Layer struct {
	backend Backend
	scanner PrefixScanner
	index   *KeyIndex
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	log     logger.Logger
}

// NewLayer wraps backend. When the backend cannot scan by prefix, the Layer records
// issued keys in a KeyIndex to support namespace invalidation.
func NewLayer(backend Backend, opts Options, log logger.Logger) *Layer {
	opts = opts.withDefaults()
	l := &Layer{backend: backend, timeout: opts.OpTimeout, log: log}
	if backend == nil {
		return l
	}
	if scanner, ok := backend.(PrefixScanner); ok {
		l.scanner = scanner
	} else {
		l.index = NewKeyIndex()
		if notifier, ok := backend.(EvictionNotifier); ok {
			notifier.OnEvict(l.forget)
		}
	}
	l.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "cache",
		MaxRequests: 1,
		Timeout:     opts.BreakerOpen,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrMiss)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn(context.Background(), "Cache circuit breaker changed state",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return l
}

// Enabled reports whether a backend is configured.
func (l *Layer) Enabled() bool {
	return l != nil && l.backend != nil
}

// Get returns the cached value for key. The second result is false on a miss and on
// any backend failure.
func (l *Layer) Get(ctx context.Context, key string) ([]byte, bool) {
	if !l.Enabled() {
		metrics.ObserveCacheOp("get", metrics.ResultBypass)
		return nil, false
	}
	opCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	out, err := l.breaker.Execute(func() (interface{}, error) {
		val, err := l.backend.Get(opCtx, key)
		return val, err
	})
	switch {
	case err == nil:
		metrics.ObserveCacheOp("get", metrics.ResultHit)
		val, _ := out.([]byte)
		return val, true
	case errors.Is(err, ErrMiss):
		metrics.ObserveCacheOp("get", metrics.ResultMiss)
	default:
		l.fail(ctx, "get", err, "key", key)
	}
	return nil, false
}

// Set stores value under key for ttl.
func (l *Layer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if !l.Enabled() {
		metrics.ObserveCacheOp("set", metrics.ResultBypass)
		return
	}
	// Recorded before the write so an invalidation racing the write still sees the
	// key, and again after it in case an expiry of the previous value dropped it.
	l.track(key)
	opCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	_, err := l.breaker.Execute(func() (interface{}, error) {
		return nil, l.backend.Set(opCtx, key, value, ttl)
	})
	if err != nil {
		l.fail(ctx, "set", err, "key", key)
		return
	}
	l.track(key)
	metrics.ObserveCacheOp("set", metrics.ResultOK)
}

// Invalidate erases individual keys.
func (l *Layer) Invalidate(ctx context.Context, keys ...string) {
	if !l.Enabled() || len(keys) == 0 {
		return
	}
	l.forget(keys...)
	l.delete(ctx, keys)
}

// InvalidateNamespaces erases every key issued under each namespace in one
// best-effort pass. A namespace that cannot be enumerated is skipped; the
// others are still erased.
func (l *Layer) InvalidateNamespaces(ctx context.Context, namespaces ...string) {
	if !l.Enabled() || len(namespaces) == 0 {
		return
	}
	var keys []string
	for _, ns := range namespaces {
		nsKeys, err := l.keysIn(ctx, ns)
		if err != nil {
			l.fail(ctx, "scan", err, "namespace", ns)
			continue
		}
		keys = append(keys, nsKeys...)
	}
	if !l.delete(ctx, keys) {
		l.track(keys...)
	}
}

func (l *Layer) track(keys ...string) {
	if l.index == nil {
		return
	}
	for _, key := range keys {
		l.index.Add(key)
	}
	metrics.CacheIndexedKeysGauge.Set(float64(l.index.Size()))
}

func (l *Layer) forget(keys ...string) {
	if l.index == nil {
		return
	}
	l.index.Forget(keys...)
	metrics.CacheIndexedKeysGauge.Set(float64(l.index.Size()))
}

func (l *Layer) keysIn(ctx context.Context, ns string) ([]string, error) {
	if l.index != nil {
		keys := l.index.Take(ns)
		metrics.CacheIndexedKeysGauge.Set(float64(l.index.Size()))
		return keys, nil
	}
	opCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	out, err := l.breaker.Execute(func() (interface{}, error) {
		return l.scanner.ScanPrefix(opCtx, ns+":")
	})
	if err != nil {
		return nil, err
	}
	scanned, _ := out.([]string)
	// feed:* also matches feed:user:*; keep only keys of this namespace.
	keys := scanned[:0]
	for _, key := range scanned {
		if NamespaceOf(key) == ns {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (l *Layer) delete(ctx context.Context, keys []string) bool {
	if len(keys) == 0 {
		return true
	}
	opCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	_, err := l.breaker.Execute(func() (interface{}, error) {
		return nil, l.backend.Delete(opCtx, keys...)
	})
	if err != nil {
		l.fail(ctx, "delete", err, "keys", len(keys))
		return false
	}
	metrics.ObserveCacheOp("delete", metrics.ResultOK)
	metrics.CacheInvalidatedKeysCounter.Add(float64(len(keys)))
	return true
}

// GetJSON decodes the cached value for key into dst. It reports false on a miss, on a
// backend failure and on a value that does not decode.
func (l *Layer) GetJSON(ctx context.Context, key string, dst any) bool {
	raw, ok := l.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		l.fail(ctx, "decode", err, "key", key)
		return false
	}
	return true
}

// SetJSON encodes v and stores it under key for ttl.
func (l *Layer) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) {
	if !l.Enabled() {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		l.fail(ctx, "encode", err, "key", key)
		return
	}
	l.Set(ctx, key, raw, ttl)
}

// Close releases the backend.
func (l *Layer) Close() error {
	if !l.Enabled() {
		return nil
	}
	return l.backend.Close()
}

func (l *Layer) fail(ctx context.Context, op string, err error, fields ...any) {
	err = classify(op, err)
	result := metrics.ResultError
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		result = metrics.ResultRejected
	}
	metrics.ObserveCacheOp(op, result)
	fields = append(fields, "op", op, "error", err.Error())
	l.log.Warn(ctx, "Cache operation failed, bypassing cache", fields...)
}

func classify(op string, err error) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %w", ErrCacheUnavailable, op, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrCacheOperationFailed, op, err)
	}
}
