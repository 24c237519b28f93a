package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestMemoryStore() (*MemoryStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.now = clock.Now
	return store, clock
}

func TestMemoryStoreTTL(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestMemoryStore()

	require.NoError(t, store.Set(ctx, "price:p:A", []byte("10"), time.Second))

	got, err := store.Get(ctx, "price:p:A")
	require.NoError(t, err)
	assert.Equal(t, []byte("10"), got)

	clock.Advance(1100 * time.Millisecond)

	_, err = store.Get(ctx, "price:p:A")
	assert.ErrorIs(t, err, ErrMiss)

	keys, err := store.Keys(ctx, "price:p:*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMemoryStoreNoTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestMemoryStore()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 0))
	clock.Advance(24 * time.Hour)

	_, err := store.Get(ctx, "k")
	assert.NoError(t, err)

	ttl, err := store.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, -1*time.Second, ttl)
}

func TestMemoryStoreKeysAndDelete(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestMemoryStore()

	for _, key := range []string{"price:p1:A", "price:p1:B", "price:p10:A", "comparison:x:all"} {
		require.NoError(t, store.Set(ctx, key, []byte("1"), time.Minute))
	}

	keys, err := store.Keys(ctx, "price:p1:*")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"price:p1:A", "price:p1:B"}, keys)

	exact, err := store.Keys(ctx, "comparison:x:all")
	require.NoError(t, err)
	assert.Len(t, exact, 1)

	require.NoError(t, store.Delete(ctx, "price:p1:A"))
	_, err = store.Get(ctx, "price:p1:A")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, store.Flush(ctx))
	all, err := store.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMemoryStoreConcurrentDistinctKeys(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i)
			for j := 0; j < 100; j++ {
				_ = store.Set(ctx, key, []byte{byte(j)}, time.Minute)
				_, _ = store.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()

	keys, err := store.Keys(ctx, "k*")
	require.NoError(t, err)
	assert.Len(t, keys, 50)
}

func TestMemoryStoreLastWriteWins(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestMemoryStore()

	require.NoError(t, store.Set(ctx, "k", []byte("old"), time.Minute))
	require.NoError(t, store.Set(ctx, "k", []byte("new"), time.Minute))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}
