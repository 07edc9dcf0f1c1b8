package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLimiter(t *testing.T) {
	cfg := DefaultConfig()
	limiter := NewLimiter(cfg)

	require.NotNil(t, limiter)
	assert.Equal(t, cfg.MinDelay, limiter.GetStats().RequestDelay)
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.RateLimitConfig{
		RequestsPerSecond: 5,
		BurstSize:         2,
		MinDelay:          25 * time.Millisecond,
	})

	assert.Equal(t, 5.0, cfg.RequestsPerSecond)
	assert.Equal(t, 2, cfg.BurstSize)
	assert.Equal(t, 25*time.Millisecond, cfg.MinDelay)
}

func TestLimiter_Wait(t *testing.T) {
	limiter := NewLimiter(Config{
		RequestsPerSecond: 10.0,
		BurstSize:         2,
	})
	ctx := context.Background()

	// Burst requests should not block
	start := time.Now()
	require.NoError(t, limiter.Wait(ctx))
	require.NoError(t, limiter.Wait(ctx))
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	// Third request waits roughly 1/10 s
	start = time.Now()
	require.NoError(t, limiter.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_WaitForHost(t *testing.T) {
	cfg := Config{
		RequestsPerSecond: 100.0,
		BurstSize:         10,
		MinDelay:          50 * time.Millisecond,
	}
	limiter := NewLimiter(cfg)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, limiter.WaitForHost(ctx, "example.com"))
	assert.Less(t, time.Since(start), 20*time.Millisecond)

	start = time.Now()
	require.NoError(t, limiter.WaitForHost(ctx, "example.com"))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestLimiter_WaitForHost_DifferentHosts(t *testing.T) {
	limiter := NewLimiter(Config{
		RequestsPerSecond: 100.0,
		BurstSize:         10,
		MinDelay:          100 * time.Millisecond,
	})
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, limiter.WaitForHost(ctx, "example1.com"))
	require.NoError(t, limiter.WaitForHost(ctx, "example2.com"))
	require.NoError(t, limiter.WaitForHost(ctx, "example3.com"))

	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 3, limiter.GetStats().TrackedHosts)
}

func TestLimiter_WaitForURL(t *testing.T) {
	limiter := NewLimiter(Config{
		RequestsPerSecond: 100.0,
		BurstSize:         10,
		MinDelay:          10 * time.Millisecond,
	})
	ctx := context.Background()

	require.NoError(t, limiter.WaitForURL(ctx, "http://example.com/a?x=1"))
	require.NoError(t, limiter.WaitForURL(ctx, "http://example.com/b"))
	require.NoError(t, limiter.WaitForURL(ctx, "::not a url"))

	assert.Equal(t, 1, limiter.GetStats().TrackedHosts)
}

func TestLimiter_ContextCancellation(t *testing.T) {
	limiter := NewLimiter(Config{
		RequestsPerSecond: 100.0,
		BurstSize:         10,
		MinDelay:          time.Second,
	})

	require.NoError(t, limiter.WaitForHost(context.Background(), "example.com"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := limiter.WaitForHost(ctx, "example.com")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
