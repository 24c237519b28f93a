package scrapers

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
	"pricewatch-api/internal/models"
)

// Pacer spaces requests to each retailer according to its
// RateLimitPerMinute. Limiters are created on first use.
type Pacer struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewPacer() *Pacer {
	return &Pacer{limiters: make(map[string]*rate.Limiter)}
}

func (p *Pacer) limiter(cfg models.RetailerConfig) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.limiters[cfg.Name]
	if !ok {
		perMinute := cfg.RateLimitPerMinute
		if perMinute <= 0 {
			perMinute = 1
		}
		// A search and its extract go out back to back.
		burst := perMinute / 10
		if burst < 2 {
			burst = 2
		}
		l = rate.NewLimiter(rate.Limit(float64(perMinute)/60), burst)
		p.limiters[cfg.Name] = l
	}
	return l
}

// Wait blocks until a request to the retailer is allowed. It fails
// immediately when the wait would outlast ctx.
func (p *Pacer) Wait(ctx context.Context, cfg models.RetailerConfig) error {
	return p.limiter(cfg).Wait(ctx)
}

type PacerStatus struct {
	PerSecond float64 `json:"limit_per_second"`
	Burst     int     `json:"burst_capacity"`
	Tokens    float64 `json:"tokens_available"`
}

func (p *Pacer) Status() map[string]PacerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]PacerStatus, len(p.limiters))
	for name, l := range p.limiters {
		out[name] = PacerStatus{
			PerSecond: float64(l.Limit()),
			Burst:     l.Burst(),
			Tokens:    l.Tokens(),
		}
	}
	return out
}
