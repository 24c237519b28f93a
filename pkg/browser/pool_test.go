package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	factory  *fakeFactory
	closed   atomic.Bool
	resetErr error
}

func (s *fakeSession) Navigate(context.Context, string, map[string]string) error { return nil }
func (s *fakeSession) WaitVisible(context.Context, string) error                 { return nil }
func (s *fakeSession) Text(context.Context, string) (string, error)              { return "", nil }
func (s *fakeSession) FirstHref(context.Context, []string) (string, error)       { return "", nil }
func (s *fakeSession) Reset(context.Context) error                               { return s.resetErr }

func (s *fakeSession) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.factory.open.Add(-1)
	}
	return nil
}

type fakeFactory struct {
	open    atomic.Int64
	maxOpen atomic.Int64
	failErr error
	closes  atomic.Int32
}

func (f *fakeFactory) NewSession(context.Context) (Session, error) {
	if f.failErr != nil {
		return nil, f.failErr
	}
	n := f.open.Add(1)
	for {
		m := f.maxOpen.Load()
		if n <= m || f.maxOpen.CompareAndSwap(m, n) {
			break
		}
	}
	return &fakeSession{factory: f}, nil
}

func (f *fakeFactory) Close() error {
	f.closes.Add(1)
	return nil
}

func runConcurrent(t *testing.T, pool *Pool, n int, hold time.Duration) []error {
	t.Helper()
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			errs[i] = pool.Do(ctx, func(Session) error {
				time.Sleep(hold)
				return nil
			})
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("fetches did not complete; pool deadlocked")
	}
	return errs
}

func TestPoolBoundWithoutOverflow(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewPool(factory, PoolConfig{Capacity: 5, Ceiling: 5}, zerolog.Nop())

	errs := runConcurrent(t, pool, 8, 50*time.Millisecond)
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.LessOrEqual(t, factory.maxOpen.Load(), int64(5))
	assert.LessOrEqual(t, pool.Stats().Peak, int64(5))
	assert.LessOrEqual(t, pool.Stats().Idle, 5)
	assert.Equal(t, int64(pool.Stats().Idle), factory.open.Load())
}

func TestPoolTransientOverflowClosedOnRelease(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewPool(factory, PoolConfig{Capacity: 5, Ceiling: 8}, zerolog.Nop())

	errs := runConcurrent(t, pool, 8, 50*time.Millisecond)
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.LessOrEqual(t, factory.maxOpen.Load(), int64(8))

	stats := pool.Stats()
	assert.LessOrEqual(t, stats.Idle, 5)
	assert.Equal(t, int64(stats.Idle), factory.open.Load())
}

func TestPoolReusesIdleSession(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewPool(factory, PoolConfig{Capacity: 2, Ceiling: 2}, zerolog.Nop())
	ctx := context.Background()

	s1, err := pool.Acquire(ctx)
	require.NoError(t, err)
	pool.Release(ctx, s1)

	s2, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, int64(1), pool.Stats().Created)
}

func TestPoolCreationFailure(t *testing.T) {
	boom := errors.New("out of memory")
	pool := NewPool(&fakeFactory{failErr: boom}, PoolConfig{Capacity: 1, Ceiling: 1}, zerolog.Nop())

	_, err := pool.Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.ErrorIs(t, err, boom)

	var pe *PoolExhaustedError
	assert.True(t, errors.As(err, &pe))

	// The failed attempt must not leak its slot.
	assert.Len(t, pool.slots, 0)
}

func TestPoolAcquireTimesOutAtCeiling(t *testing.T) {
	pool := NewPool(&fakeFactory{}, PoolConfig{Capacity: 1, Ceiling: 1}, zerolog.Nop())

	held, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	pool.Release(context.Background(), held)
	s, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, held, s)
}

func TestPoolDiscardsSessionThatFailsReset(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewPool(factory, PoolConfig{Capacity: 1, Ceiling: 1}, zerolog.Nop())
	ctx := context.Background()

	s, err := pool.Acquire(ctx)
	require.NoError(t, err)
	s.(*fakeSession).resetErr = errors.New("tab crashed")
	pool.Release(ctx, s)

	assert.True(t, s.(*fakeSession).closed.Load())
	assert.Equal(t, 0, pool.Stats().Idle)
	assert.Equal(t, int64(0), pool.Stats().Open)
}

func TestPoolClose(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewPool(factory, PoolConfig{Capacity: 2, Ceiling: 2}, zerolog.Nop())
	ctx := context.Background()

	a, err := pool.Acquire(ctx)
	require.NoError(t, err)
	b, err := pool.Acquire(ctx)
	require.NoError(t, err)
	pool.Release(ctx, a)

	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())
	assert.Equal(t, int32(1), factory.closes.Load())
	assert.True(t, a.(*fakeSession).closed.Load())

	pool.Release(ctx, b)
	assert.True(t, b.(*fakeSession).closed.Load())

	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, ErrPoolClosed)
}
