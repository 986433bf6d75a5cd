package services

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllow_NoRequests(t *testing.T) {
	service := NewRateLimitService(DefaultRateLimitConfig())
	assert.Equal(t, 0, service.Tracked())

	undo, err := service.Allow("owner-a", "203.0.113.1", t0)
	require.NoError(t, err)
	require.NotNil(t, undo)
	assert.Equal(t, 2, service.Tracked())
}

func TestAllow_OwnerExceeded(t *testing.T) {
	service := NewRateLimitService(RateLimitConfig{MaxOwnerRequests: 2, OwnerWindow: 10 * time.Minute})

	_, err := service.Allow("owner-a", "", t0)
	require.NoError(t, err)
	_, err = service.Allow("owner-a", "", t0.Add(time.Minute))
	require.NoError(t, err)
	_, err = service.Allow("owner-b", "", t0.Add(2*time.Minute))
	require.NoError(t, err)

	_, err = service.Allow("owner-a", "", t0.Add(2*time.Minute))
	var rlErr *RateLimitError
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, "owner", rlErr.Type)
	assert.Equal(t, t0.Add(10*time.Minute), rlErr.RetryAfter)

	// the oldest request leaves the window exactly at RetryAfter
	_, err = service.Allow("owner-a", "", t0.Add(10*time.Minute))
	assert.NoError(t, err)
}

func TestAllow_IPExceeded(t *testing.T) {
	service := NewRateLimitService(RateLimitConfig{MaxOwnerRequests: 100, OwnerWindow: time.Hour, MaxIPRequests: 3, IPWindow: time.Hour})

	for i := 0; i < 3; i++ {
		_, err := service.Allow("owner-"+string(rune('a'+i)), "198.51.100.7", t0)
		require.NoError(t, err)
	}

	_, err := service.Allow("owner-z", "198.51.100.7", t0.Add(time.Minute))
	var rlErr *RateLimitError
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, "ip", rlErr.Type)
	assert.Contains(t, rlErr.Error(), "IP address")

	_, err = service.Allow("owner-z", "198.51.100.8", t0.Add(time.Minute))
	assert.NoError(t, err)
}

func TestAllow_ZeroLimitsDisable(t *testing.T) {
	service := NewRateLimitService(RateLimitConfig{})
	for i := 0; i < 50; i++ {
		_, err := service.Allow("owner-a", "203.0.113.1", t0)
		require.NoError(t, err)
	}
}

func TestAllow_UndoGivesTheSlotBack(t *testing.T) {
	service := NewRateLimitService(RateLimitConfig{MaxOwnerRequests: 1, OwnerWindow: 10 * time.Minute})

	undo, err := service.Allow("owner-a", "203.0.113.1", t0)
	require.NoError(t, err)
	_, err = service.Allow("owner-a", "203.0.113.1", t0.Add(time.Second))
	require.Error(t, err)

	undo()
	assert.Equal(t, 0, service.Tracked())

	_, err = service.Allow("owner-a", "203.0.113.1", t0.Add(time.Second))
	assert.NoError(t, err)
}

func TestAllow_ConcurrentBurstRespectsLimit(t *testing.T) {
	service := NewRateLimitService(RateLimitConfig{MaxOwnerRequests: 5, OwnerWindow: 10 * time.Minute})

	var allowed int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := service.Allow("owner-a", "", t0); err == nil {
				atomic.AddInt32(&allowed, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(5), allowed)
}

func TestCleanupExpiredRateLimits(t *testing.T) {
	service := NewRateLimitService(DefaultRateLimitConfig())

	_, err := service.Allow("owner-a", "203.0.113.1", t0)
	require.NoError(t, err)
	_, err = service.Allow("owner-b", "", t0.Add(50*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 3, service.Tracked())

	removed := service.CleanupExpiredRateLimits(t0.Add(61 * time.Minute))
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, service.Tracked())
}
