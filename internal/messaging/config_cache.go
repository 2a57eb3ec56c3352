package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/arteita/fretebot/pkg/logging"
)

// DefaultConfigTTL is how long a loaded provider snapshot is reused.
const DefaultConfigTTL = 60 * time.Second

// ConfigSource loads the active provider credentials from storage. Either
// backend may be nil when it has no active row.
type ConfigSource interface {
	LoadProviderConfig(ctx context.Context) (ProviderConfig, error)
}

// ConfigCache keeps a provider snapshot for a fixed TTL. Backends missing from
// the source fall back to the process environment one by one.
type ConfigCache struct {
	source ConfigSource
	env    ProviderConfig
	ttl    time.Duration
	logger *logging.Logger
	now    func() time.Time

	mu       sync.RWMutex
	snapshot ProviderConfig
	loaded   bool
	loadedAt time.Time
}

// NewConfigCache builds a cache. A nil source serves the env config only.
func NewConfigCache(source ConfigSource, env ProviderConfig, ttl time.Duration, logger *logging.Logger) *ConfigCache {
	if ttl <= 0 {
		ttl = DefaultConfigTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ConfigCache{source: source, env: env, ttl: ttl, logger: logger, now: time.Now}
}

// Get returns the current snapshot, reloading when it is older than the TTL.
// It never fails: a source error serves the last good snapshot, or the
// environment when nothing was ever loaded, and the next call retries.
func (c *ConfigCache) Get(ctx context.Context) ProviderConfig {
	c.mu.RLock()
	if c.fresh() {
		cfg := c.snapshot
		c.mu.RUnlock()
		return cfg
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	// another caller may have reloaded while we waited for the write lock
	if c.fresh() {
		return c.snapshot
	}

	if c.source == nil {
		c.store(c.env)
		return c.snapshot
	}

	loaded, err := c.source.LoadProviderConfig(ctx)
	if err != nil {
		c.logger.Warn("provider config load failed", "error", err, "stale", c.loaded)
		if c.loaded {
			return c.snapshot
		}
		return c.env
	}
	c.store(c.merge(loaded))
	return c.snapshot
}

// Invalidate forces the next Get to reload.
func (c *ConfigCache) Invalidate() {
	c.mu.Lock()
	c.loadedAt = time.Time{}
	c.mu.Unlock()
}

// fresh must be called with mu held.
func (c *ConfigCache) fresh() bool {
	return c.loaded && !c.loadedAt.IsZero() && c.now().Sub(c.loadedAt) < c.ttl
}

func (c *ConfigCache) store(cfg ProviderConfig) {
	c.snapshot = cfg
	c.loaded = true
	c.loadedAt = c.now()
}

func (c *ConfigCache) merge(loaded ProviderConfig) ProviderConfig {
	out := loaded
	if !out.Evolution.Valid() {
		out.Evolution = c.env.Evolution
	}
	if !out.Official.Valid() {
		out.Official = c.env.Official
	}
	return out
}
