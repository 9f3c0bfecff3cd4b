package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

func (it memoryItem) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && !now.Before(it.expiresAt)
}

// MemoryBackend is an in-process TTL map. Expired entries are dropped lazily on read
// and by a janitor goroutine. It cannot scan by prefix.
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time

	onEvict func(keys ...string)

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryBackend starts a backend whose janitor sweeps every interval. A non-positive
// interval disables the janitor.
func NewMemoryBackend(sweepInterval time.Duration) *MemoryBackend {
	m := &MemoryBackend{
		items: make(map[string]memoryItem),
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	if sweepInterval > 0 {
		go m.janitor(sweepInterval)
	}
	return m
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	it, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrMiss
	}
	if it.expired(m.now()) {
		m.mu.Lock()
		if cur, ok := m.items[key]; ok && cur.expired(m.now()) {
			delete(m.items, key)
			m.evicted(key)
		}
		m.mu.Unlock()
		return nil, ErrMiss
	}
	return it.value, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	it := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		it.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.items[key] = it
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, key := range keys {
		delete(m.items, key)
	}
	m.mu.Unlock()
	return nil
}

// OnEvict registers fn to hear about keys dropped by expiry.
func (m *MemoryBackend) OnEvict(fn func(keys ...string)) {
	m.mu.Lock()
	m.onEvict = fn
	m.mu.Unlock()
}

// evicted must be called with m.mu held.
func (m *MemoryBackend) evicted(keys ...string) {
	if m.onEvict != nil && len(keys) > 0 {
		m.onEvict(keys...)
	}
}

// Close stops the janitor.
func (m *MemoryBackend) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}

func (m *MemoryBackend) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stop:
			return
		}
	}
}

func (m *MemoryBackend) sweep() {
	now := m.now()
	var expired []string
	m.mu.Lock()
	for key, it := range m.items {
		if it.expired(now) {
			delete(m.items, key)
			expired = append(expired, key)
		}
	}
	m.evicted(expired...)
	m.mu.Unlock()
}
