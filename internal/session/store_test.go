package session

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arteita/fretebot/internal/freight"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func storesUnderTest(t *testing.T) map[string]Store {
	client, _ := setupTestRedis(t)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  NewRedisStore(client, 10*time.Minute),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := store.Get(ctx, "5531991570107")
			require.True(t, errors.Is(err, ErrNotFound))

			now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
			s := &Session{
				State:        StateAwaitingMissingFields,
				Draft:        freight.Draft{Origin: freight.String("Uberaba"), Tons: freight.Float(30)},
				Missing:      []freight.Field{freight.FieldDestination},
				LastActivity: now,
				DriverID:     "drv-1",
				DriverName:   "Joao",
			}
			require.NoError(t, store.Put(ctx, "5531991570107", s))

			got, err := store.Get(ctx, "5531991570107")
			require.NoError(t, err)
			assert.Equal(t, StateAwaitingMissingFields, got.State)
			assert.Equal(t, "Uberaba", *got.Draft.Origin)
			assert.Equal(t, 30.0, *got.Draft.Tons)
			assert.Equal(t, []freight.Field{freight.FieldDestination}, got.Missing)
			assert.True(t, now.Equal(got.LastActivity))

			require.NoError(t, store.Delete(ctx, "5531991570107"))
			_, err = store.Get(ctx, "5531991570107")
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestStoreSweepRemovesOnlyStaleSessions(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
			require.NoError(t, store.Put(ctx, "stale", &Session{State: StateAwaitingConfirmation, LastActivity: now.Add(-11 * time.Minute)}))
			require.NoError(t, store.Put(ctx, "fresh", &Session{State: StateAwaitingTicket, LastActivity: now.Add(-time.Minute)}))

			removed, err := store.Sweep(ctx, now.Add(-10*time.Minute))
			require.NoError(t, err)
			assert.Equal(t, 1, removed)

			_, err = store.Get(ctx, "stale")
			assert.True(t, errors.Is(err, ErrNotFound))
			_, err = store.Get(ctx, "fresh")
			assert.NoError(t, err)
		})
	}
}

// afterCommandHook runs fn once, right after the first command named name.
type afterCommandHook struct {
	name string
	fn   func(ctx context.Context)
	done bool
}

func (h *afterCommandHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *afterCommandHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if !h.done && cmd.Name() == h.name {
			h.done = true
			h.fn(ctx)
		}
		return err
	}
}

func (h *afterCommandHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisSweepKeepsSessionRefreshedMidSweep(t *testing.T) {
	client, mr := setupTestRedis(t)
	other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { other.Close() })

	ctx := context.Background()
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	sweeper := NewRedisStore(client, time.Hour)
	writer := NewRedisStore(other, time.Hour)

	require.NoError(t, writer.Put(ctx, "5531991570107", &Session{State: StateAwaitingTicket, LastActivity: now.Add(-20 * time.Minute)}))
	require.NoError(t, writer.Put(ctx, "5511988887777", &Session{State: StateAwaitingTicket, LastActivity: now.Add(-20 * time.Minute)}))

	client.AddHook(&afterCommandHook{name: "zrangebyscore", fn: func(ctx context.Context) {
		require.NoError(t, writer.Put(ctx, "5531991570107", &Session{State: StateAwaitingConfirmation, LastActivity: now}))
	}})

	removed, err := sweeper.Sweep(ctx, now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	got, err := writer.Get(ctx, "5531991570107")
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingConfirmation, got.State)

	_, err = writer.Get(ctx, "5511988887777")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	s := &Session{State: StateAwaitingMissingFields, Missing: []freight.Field{freight.FieldPlate}}
	require.NoError(t, store.Put(ctx, "k", s))

	s.Missing[0] = freight.FieldDate
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, freight.FieldPlate, got.Missing[0])
}

func TestRedisStoreKeysExpire(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisStore(client, 10*time.Minute)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "k", &Session{State: StateAwaitingTicket, LastActivity: time.Now()}))

	mr.FastForward(11 * time.Minute)
	_, err := store.Get(ctx, "k")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSessionExpired(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	s := &Session{LastActivity: now.Add(-10*time.Minute - time.Second)}
	assert.True(t, s.Expired(now, 10*time.Minute))
	s.LastActivity = now.Add(-9 * time.Minute)
	assert.False(t, s.Expired(now, 10*time.Minute))
	assert.False(t, (*Session)(nil).Expired(now, 10*time.Minute))
}
