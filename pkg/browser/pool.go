package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var (
	ErrPoolExhausted = errors.New("render session pool exhausted")
	ErrPoolClosed    = errors.New("render session pool is closed")
)

// PoolExhaustedError reports a failed Acquire. Err is the session creation
// error or the context error that ended the wait.
type PoolExhaustedError struct {
	Open int
	Err  error
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("render session pool exhausted (%d open): %v", e.Open, e.Err)
}

func (e *PoolExhaustedError) Unwrap() []error { return []error{ErrPoolExhausted, e.Err} }

type PoolConfig struct {
	Capacity int // sessions kept idle for reuse (default: 5)
	Ceiling  int // hard limit on open sessions, pooled plus transient (default: 8)
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{Capacity: 5, Ceiling: 8}
}

// Pool bounds the number of open render sessions. Up to Capacity sessions are
// kept for reuse; beyond that, transient sessions are opened while fewer
// than Ceiling are open and are closed on release.
type Pool struct {
	factory SessionFactory
	idle    chan Session
	slots   chan struct{}
	cfg     PoolConfig
	logger  zerolog.Logger

	mu     sync.Mutex
	closed bool

	open    atomic.Int64
	peak    atomic.Int64
	created atomic.Int64
}

func NewPool(factory SessionFactory, cfg PoolConfig, logger zerolog.Logger) *Pool {
	def := DefaultPoolConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}
	if cfg.Ceiling < cfg.Capacity {
		cfg.Ceiling = cfg.Capacity
	}

	logger.Info().
		Int("capacity", cfg.Capacity).
		Int("ceiling", cfg.Ceiling).
		Msg("Render session pool initialized")

	return &Pool{
		factory: factory,
		idle:    make(chan Session, cfg.Capacity),
		slots:   make(chan struct{}, cfg.Ceiling),
		cfg:     cfg,
		logger:  logger,
	}
}

// Acquire returns an idle session, or opens a new one while under the
// ceiling. At the ceiling it waits for a release until ctx is done.
func (p *Pool) Acquire(ctx context.Context) (Session, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}

	select {
	case s := <-p.idle:
		return s, nil
	default:
	}

	select {
	case s := <-p.idle:
		return s, nil
	case p.slots <- struct{}{}:
		return p.openSession(ctx)
	case <-ctx.Done():
		return nil, &PoolExhaustedError{Open: int(p.open.Load()), Err: ctx.Err()}
	}
}

func (p *Pool) openSession(ctx context.Context) (Session, error) {
	s, err := p.factory.NewSession(ctx)
	if err != nil {
		<-p.slots
		return nil, &PoolExhaustedError{Open: int(p.open.Load()), Err: err}
	}
	n := p.open.Add(1)
	p.created.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	return s, nil
}

// Release hands a session back. It is reset and kept if the pool has room,
// otherwise closed.
func (p *Pool) Release(ctx context.Context, s Session) {
	if s == nil {
		return
	}

	if p.isClosed() {
		p.discard(s)
		return
	}

	if err := s.Reset(ctx); err != nil {
		p.logger.Debug().Err(err).Msg("Discarding session that failed to reset")
		p.discard(s)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.discard(s)
		return
	}
	select {
	case p.idle <- s:
	default:
		p.discard(s)
	}
}

// Do runs fn with an acquired session and always releases it.
func (p *Pool) Do(ctx context.Context, fn func(Session) error) error {
	s, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(context.WithoutCancel(ctx), s)
	return fn(s)
}

func (p *Pool) discard(s Session) {
	if err := s.Close(); err != nil {
		p.logger.Debug().Err(err).Msg("Closing render session")
	}
	p.open.Add(-1)
	<-p.slots
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type PoolStats struct {
	Capacity int   `json:"capacity"`
	Ceiling  int   `json:"ceiling"`
	Open     int64 `json:"open"`
	Idle     int   `json:"idle"`
	Peak     int64 `json:"peak"`
	Created  int64 `json:"created"`
}

func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Capacity: p.cfg.Capacity,
		Ceiling:  p.cfg.Ceiling,
		Open:     p.open.Load(),
		Idle:     len(p.idle),
		Peak:     p.peak.Load(),
		Created:  p.created.Load(),
	}
}

// Close disposes idle sessions and the factory. Sessions still checked out
// are closed when released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case s := <-p.idle:
			p.discard(s)
			continue
		default:
		}
		break
	}

	if err := p.factory.Close(); err != nil {
		return fmt.Errorf("closing session factory: %w", err)
	}
	p.logger.Info().Msg("Render session pool closed")
	return nil
}
