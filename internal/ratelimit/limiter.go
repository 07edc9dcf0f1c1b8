package ratelimit

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/config"
)

// Limiter paces requests to the scan target so probing does not trip
// upstream throttling or overwhelm small sites.
type Limiter struct {
	limiter      *rate.Limiter
	requestDelay time.Duration

	mu             sync.Mutex
	lastRequestMap map[string]time.Time
}

type Config struct {
	// RequestsPerSecond limits the global request rate
	RequestsPerSecond float64

	// BurstSize allows brief bursts above the rate limit
	BurstSize int

	// MinDelay is the minimum delay between requests to the same host
	MinDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 20.0,
		BurstSize:         10,
		MinDelay:          0,
	}
}

func FromConfig(cfg config.RateLimitConfig) Config {
	return Config{
		RequestsPerSecond: cfg.RequestsPerSecond,
		BurstSize:         cfg.BurstSize,
		MinDelay:          cfg.MinDelay,
	}
}

func NewLimiter(cfg Config) *Limiter {
	return &Limiter{
		limiter:        rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize),
		requestDelay:   cfg.MinDelay,
		lastRequestMap: make(map[string]time.Time),
	}
}

// Wait blocks until the global limiter allows a request
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// WaitForURL applies the global limit and then the per-host spacing for
// the host of rawURL. Unparseable URLs only get the global limit.
func (l *Limiter) WaitForURL(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return l.Wait(ctx)
	}
	return l.WaitForHost(ctx, u.Host)
}

// WaitForHost blocks until a request to host is allowed
func (l *Limiter) WaitForHost(ctx context.Context, host string) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	if l.requestDelay <= 0 {
		return nil
	}

	// Reserve the next slot under the lock, sleep outside it so other hosts are not blocked.
	l.mu.Lock()
	now := time.Now()
	next := now
	if last, ok := l.lastRequestMap[host]; ok && last.Add(l.requestDelay).After(now) {
		next = last.Add(l.requestDelay)
	}
	l.lastRequestMap[host] = next
	l.mu.Unlock()

	wait := time.Until(next)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats contains rate limiter statistics
type Stats struct {
	TrackedHosts int
	RequestDelay time.Duration
}

func (l *Limiter) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Stats{
		TrackedHosts: len(l.lastRequestMap),
		RequestDelay: l.requestDelay,
	}
}
