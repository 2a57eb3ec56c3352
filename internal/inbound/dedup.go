package inbound

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultDedupTTL is how long a provider message id is remembered.
const DefaultDedupTTL = 24 * time.Hour

// Deduper remembers which provider message ids were already accepted.
type Deduper interface {
	// Claim records the id and reports whether this is its first sighting.
	Claim(ctx context.Context, provider, messageID string) (bool, error)
	// Release forgets the id, e.g. when enqueueing failed after a claim.
	Release(ctx context.Context, provider, messageID string) error
}

func dedupKey(provider, messageID string) string {
	return "fretebot:inbound:seen:" + provider + ":" + messageID
}

// RedisDeduper shares claims across API replicas.
type RedisDeduper struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if client == nil {
		panic("inbound: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &RedisDeduper{redis: client, ttl: ttl}
}

func (d *RedisDeduper) Claim(ctx context.Context, provider, messageID string) (bool, error) {
	ok, err := d.redis.SetNX(ctx, dedupKey(provider, messageID), 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("inbound: claim %s: %w", messageID, err)
	}
	return ok, nil
}

func (d *RedisDeduper) Release(ctx context.Context, provider, messageID string) error {
	if err := d.redis.Del(ctx, dedupKey(provider, messageID)).Err(); err != nil {
		return fmt.Errorf("inbound: release %s: %w", messageID, err)
	}
	return nil
}

// MemoryDeduper keeps claims in process memory with a TTL.
type MemoryDeduper struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	ttl   time.Duration
	now   func() time.Time
	calls int
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &MemoryDeduper{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

func (d *MemoryDeduper) Claim(ctx context.Context, provider, messageID string) (bool, error) {
	key := dedupKey(provider, messageID)
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.calls%256 == 0 {
		d.evictLocked(now)
	}
	if exp, ok := d.seen[key]; ok && now.Before(exp) {
		return false, nil
	}
	d.seen[key] = now.Add(d.ttl)
	return true, nil
}

func (d *MemoryDeduper) Release(ctx context.Context, provider, messageID string) error {
	d.mu.Lock()
	delete(d.seen, dedupKey(provider, messageID))
	d.mu.Unlock()
	return nil
}

func (d *MemoryDeduper) evictLocked(now time.Time) {
	for k, exp := range d.seen {
		if !now.Before(exp) {
			delete(d.seen, k)
		}
	}
}

// ProcessedStore is the durable marker table.
type ProcessedStore interface {
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
	Forget(ctx context.Context, provider, eventID string) error
}

// PostgresDeduper claims ids in the processed_events table. Expiry is handled
// by a periodic purge rather than per-key TTL.
type PostgresDeduper struct {
	store ProcessedStore
}

func NewPostgresDeduper(store ProcessedStore) *PostgresDeduper {
	if store == nil {
		panic("inbound: processed store cannot be nil")
	}
	return &PostgresDeduper{store: store}
}

func (d *PostgresDeduper) Claim(ctx context.Context, provider, messageID string) (bool, error) {
	return d.store.MarkProcessed(ctx, provider, messageID)
}

func (d *PostgresDeduper) Release(ctx context.Context, provider, messageID string) error {
	return d.store.Forget(ctx, provider, messageID)
}

var (
	_ Deduper = (*RedisDeduper)(nil)
	_ Deduper = (*MemoryDeduper)(nil)
	_ Deduper = (*PostgresDeduper)(nil)
)
