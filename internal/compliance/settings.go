package compliance

import (
	"context"
	"sync"
	"time"
)

// SettingsStore holds the single active settings version.
type SettingsStore interface {
	Get(ctx context.Context) (Settings, error)
	// Put validates and stores s, bumping the version.
	Put(ctx context.Context, s Settings) (Settings, error)
}

// MemorySettings is the in-memory settings store for tests and local runs.
type MemorySettings struct {
	mu      sync.Mutex
	current Settings
	clock   func() time.Time
}

func NewMemorySettings() *MemorySettings {
	return &MemorySettings{current: DefaultSettings(), clock: time.Now}
}

func (m *MemorySettings) Get(ctx context.Context) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, nil
}

func (m *MemorySettings) Put(ctx context.Context, s Settings) (Settings, error) {
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Version = m.current.Version + 1
	s.UpdatedAt = m.clock().UTC()
	m.current = s
	return s, nil
}

// CachedSettings caches reads for a short TTL so the gate does not hit the
// store on every single decision. The TTL must stay short: it bounds how
// long an administrator change can go unenforced.
type CachedSettings struct {
	inner SettingsStore
	ttl   time.Duration
	clock func() time.Time

	mu        sync.Mutex
	cached    Settings
	fetchedAt time.Time
}

func NewCachedSettings(inner SettingsStore, ttl time.Duration) *CachedSettings {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &CachedSettings{inner: inner, ttl: ttl, clock: time.Now}
}

func (c *CachedSettings) Get(ctx context.Context) (Settings, error) {
	now := c.clock()
	c.mu.Lock()
	if !c.fetchedAt.IsZero() && now.Sub(c.fetchedAt) < c.ttl {
		s := c.cached
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	s, err := c.inner.Get(ctx)
	if err != nil {
		return Settings{}, err
	}
	c.mu.Lock()
	c.cached = s
	c.fetchedAt = now
	c.mu.Unlock()
	return s, nil
}

// Put writes through and drops the cache so the new version is visible
// immediately on this process.
func (c *CachedSettings) Put(ctx context.Context, s Settings) (Settings, error) {
	out, err := c.inner.Put(ctx, s)
	if err != nil {
		return Settings{}, err
	}
	c.mu.Lock()
	c.cached = out
	c.fetchedAt = c.clock()
	c.mu.Unlock()
	return out, nil
}
