package cache

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(context.Background(), "redis://"+mr.Addr(), 0, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStoreRoundTripAndTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	require.NoError(t, store.Set(ctx, "price:p:A", []byte(`{"price":"10"}`), time.Second))

	got, err := store.Get(ctx, "price:p:A")
	require.NoError(t, err)
	assert.JSONEq(t, `{"price":"10"}`, string(got))

	ttl, err := store.TTL(ctx, "price:p:A")
	require.NoError(t, err)
	assert.Equal(t, time.Second, ttl)

	mr.FastForward(1100 * time.Millisecond)

	_, err = store.Get(ctx, "price:p:A")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisStoreKeysScan(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	for _, key := range []string{"price:p1:A", "price:p1:Best Buy", "price:p2:A"} {
		require.NoError(t, store.Set(ctx, key, []byte("1"), time.Minute))
	}

	keys, err := store.Keys(ctx, "price:p1:*")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"price:p1:A", "price:p1:Best Buy"}, keys)

	require.NoError(t, store.Delete(ctx, keys...))
	keys, err = store.Keys(ctx, "price:p1:*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStoresAgreeOnEscapedPatterns(t *testing.T) {
	ctx := context.Background()
	redisStore, _ := newTestRedisStore(t)
	memoryStore, _ := newTestMemoryStore()

	for name, store := range map[string]Store{"redis": redisStore, "memory": memoryStore} {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"history:p:Shop*:1", "history:p:Shopee:2", "history:p:Sho?:3"} {
				require.NoError(t, store.Set(ctx, key, []byte("1"), time.Minute))
			}

			keys, err := store.Keys(ctx, "history:p:"+escapePattern("Shop*")+":*")
			require.NoError(t, err)
			assert.Equal(t, []string{"history:p:Shop*:1"}, keys)

			keys, err = store.Keys(ctx, "history:p:"+escapePattern("Sho?")+":*")
			require.NoError(t, err)
			assert.Equal(t, []string{"history:p:Sho?:3"}, keys)
		})
	}
}

func TestRedisStoreStats(t *testing.T) {
	store, _ := newTestRedisStore(t)
	stats := store.Stats(context.Background())
	assert.Equal(t, "connected", stats["status"])
	assert.Equal(t, "redis", stats["backend"])
}

func TestNewRedisStoreUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewRedisStore(ctx, "redis://127.0.0.1:1", 0, zerolog.Nop())
	assert.Error(t, err)
}
