package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	sessionKeyPrefix = "fretebot:session:"
	sessionIndexKey  = "fretebot:session:index"
)

// RedisStore shares sessions across API replicas. Keys expire on their own
// after the idle timeout; a sorted-set index by last activity backs Sweep.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewRedisStore builds a store whose keys live for ttl after the last write.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	return &RedisStore{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("fretebot.internal.session"),
	}
}

var _ Store = (*RedisStore)(nil)

func (r *RedisStore) Get(ctx context.Context, key string) (*Session, error) {
	ctx, span := r.tracer.Start(ctx, "session.get")
	defer span.End()

	data, err := r.redis.Get(ctx, sessionKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("session: load %s: %w", key, err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: decode %s: %w", key, err)
	}
	return &s, nil
}

func (r *RedisStore) Put(ctx context.Context, key string, s *Session) error {
	ctx, span := r.tracer.Start(ctx, "session.put")
	defer span.End()

	data, err := json.Marshal(s)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: encode %s: %w", key, err)
	}
	pipe := r.redis.TxPipeline()
	pipe.Set(ctx, sessionKey(key), data, r.ttl)
	pipe.ZAdd(ctx, sessionIndexKey, redis.Z{Score: float64(s.LastActivity.UnixMilli()), Member: key})
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: persist %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	pipe := r.redis.TxPipeline()
	pipe.Del(ctx, sessionKey(key))
	pipe.ZRem(ctx, sessionIndexKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: delete %s: %w", key, err)
	}
	return nil
}

// sweepScript deletes each candidate only while its index score is still
// below the cutoff, so a Put racing the sweep keeps its session.
var sweepScript = redis.NewScript(`
local removed = 0
local cutoff = tonumber(ARGV[1])
for i = 2, #KEYS do
	local score = redis.call("ZSCORE", KEYS[1], ARGV[i])
	if score and tonumber(score) < cutoff then
		redis.call("DEL", KEYS[i])
		redis.call("ZREM", KEYS[1], ARGV[i])
		removed = removed + 1
	end
end
return removed
`)

func (r *RedisStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	ctx, span := r.tracer.Start(ctx, "session.sweep")
	defer span.End()

	cutoffMs := strconv.FormatInt(cutoff.UnixMilli(), 10)
	stale, err := r.redis.ZRangeByScore(ctx, sessionIndexKey, &redis.ZRangeBy{Min: "-inf", Max: "(" + cutoffMs}).Result()
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("session: sweep index: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(stale)+1)
	args := make([]any, 0, len(stale)+1)
	keys = append(keys, sessionIndexKey)
	args = append(args, cutoffMs)
	for _, k := range stale {
		keys = append(keys, sessionKey(k))
		args = append(args, k)
	}
	removed, err := sweepScript.Run(ctx, r.redis, keys, args...).Int()
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("session: sweep delete: %w", err)
	}
	return removed, nil
}

func sessionKey(key string) string {
	return sessionKeyPrefix + key
}
