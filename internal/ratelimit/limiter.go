// Package ratelimit bounds outbound fetches with a global concurrency budget
// and a per-host token bucket.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pwieczorek/newsrelay/internal/metrics"
)

// ErrInvalidConfig is returned when the configured budgets can never admit a
// request.
var ErrInvalidConfig = errors.New("rate limiter config cannot admit any request")

// Config holds the limiter budgets.
type Config struct {
	// MaxConcurrent caps simultaneous outbound fetches across all hosts.
	MaxConcurrent int
	// PerHostRPS is the sustained request rate allowed per host.
	PerHostRPS float64
	// PerHostBurst is the per-host token bucket size.
	PerHostBurst int
}

// Limiter hands out permits combining both budgets.
type Limiter struct {
	slots chan struct{}

	mu       sync.Mutex
	perHost  map[string]*rate.Limiter
	hostRate rate.Limit
	burst    int
}

// New validates the config and builds a Limiter. A zero or negative
// concurrency budget fails fast instead of blocking every caller forever.
func New(cfg Config) (*Limiter, error) {
	if cfg.MaxConcurrent <= 0 {
		return nil, fmt.Errorf("%w: max concurrent fetches is %d", ErrInvalidConfig, cfg.MaxConcurrent)
	}
	r := rate.Limit(cfg.PerHostRPS)
	if cfg.PerHostRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.PerHostBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		slots:    make(chan struct{}, cfg.MaxConcurrent),
		perHost:  make(map[string]*rate.Limiter),
		hostRate: r,
		burst:    burst,
	}, nil
}

// Permit is a held concurrency slot. Release must be called exactly once.
type Permit struct {
	release func()
}

// Release returns the concurrency slot.
func (p Permit) Release() {
	if p.release != nil {
		p.release()
	}
}

// Acquire blocks until both a concurrency slot and a per-host token are
// available, or the context ends. Admission is FIFO-ish via the slot channel.
func (l *Limiter) Acquire(ctx context.Context, rawURL string) (Permit, error) {
	host := hostOf(rawURL)

	select {
	case <-ctx.Done():
		return Permit{}, fmt.Errorf("acquire permit: %w", ctx.Err())
	case l.slots <- struct{}{}:
	}

	start := time.Now()
	if err := l.hostLimiter(host).Wait(ctx); err != nil {
		<-l.slots
		return Permit{}, fmt.Errorf("rate limit wait for %s: %w", host, err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}

	var once sync.Once
	return Permit{release: func() {
		once.Do(func() { <-l.slots })
	}}, nil
}

func (l *Limiter) hostLimiter(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.perHost[host]
	if !ok {
		lim = rate.NewLimiter(l.hostRate, l.burst)
		l.perHost[host] = lim
	}
	return lim
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
