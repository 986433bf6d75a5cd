package services

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitConfig holds hold-request rate limiting configuration
type RateLimitConfig struct {
	MaxOwnerRequests int           // Max hold requests per owner
	OwnerWindow      time.Duration // Time window for owner rate limit
	MaxIPRequests    int           // Max hold requests per IP
	IPWindow         time.Duration // Time window for IP rate limit
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxOwnerRequests: 5,                // 5 holds
		OwnerWindow:      10 * time.Minute, // per hold TTL
		MaxIPRequests:    30,               // 30 holds
		IPWindow:         1 * time.Hour,    // per hour
	}
}

// RateLimitError represents a rate limit exceeded error
type RateLimitError struct {
	Message    string
	RetryAfter time.Time
	Type       string // "owner" or "ip"
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// RateLimitService throttles hold requests so one session cannot sit on a
// trip's seats by re-holding them back to back. Counts live in memory; a
// restart forgets them.
type RateLimitService struct {
	config RateLimitConfig

	mu       sync.Mutex
	requests map[string][]time.Time // "<type>:<identifier>" -> request times, oldest first
}

// NewRateLimitService creates a new rate limit service
func NewRateLimitService(config RateLimitConfig) *RateLimitService {
	return &RateLimitService{
		config:   config,
		requests: make(map[string][]time.Time),
	}
}

// Allow checks the owner and IP limits and, when both pass, counts the hold
// request in the same critical section, so a burst of concurrent requests
// cannot all slip under the limit. The returned undo removes the request
// again; callers invoke it when the hold itself fails.
func (s *RateLimitService) Allow(owner, ip string, now time.Time) (undo func(), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocked(owner, ip, now); err != nil {
		return nil, err
	}

	var keys []string
	if owner != "" {
		keys = append(keys, "owner:"+owner)
	}
	if ip != "" {
		keys = append(keys, "ip:"+ip)
	}
	for _, key := range keys {
		s.requests[key] = append(s.requests[key], now)
	}

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, key := range keys {
			s.removeLocked(key, now)
		}
	}, nil
}

func (s *RateLimitService) checkLocked(owner, ip string, now time.Time) error {
	if owner != "" && s.config.MaxOwnerRequests > 0 {
		if count, oldest := s.countLocked("owner:"+owner, s.config.OwnerWindow, now); count >= s.config.MaxOwnerRequests {
			retryAfter := oldest.Add(s.config.OwnerWindow)
			return &RateLimitError{
				Message:    fmt.Sprintf("Too many seat holds for this session. Please try again after %s", retryAfter.Format("15:04:05")),
				RetryAfter: retryAfter,
				Type:       "owner",
			}
		}
	}

	if ip != "" && s.config.MaxIPRequests > 0 {
		if count, oldest := s.countLocked("ip:"+ip, s.config.IPWindow, now); count >= s.config.MaxIPRequests {
			retryAfter := oldest.Add(s.config.IPWindow)
			return &RateLimitError{
				Message:    fmt.Sprintf("Too many seat holds from this IP address. Please try again after %s", retryAfter.Format("15:04:05")),
				RetryAfter: retryAfter,
				Type:       "ip",
			}
		}
	}

	return nil
}

// removeLocked drops one request recorded at t under key
func (s *RateLimitService) removeLocked(key string, t time.Time) {
	times := s.requests[key]
	for i := len(times) - 1; i >= 0; i-- {
		if times[i].Equal(t) {
			times = append(times[:i], times[i+1:]...)
			break
		}
	}
	if len(times) == 0 {
		delete(s.requests, key)
		return
	}
	s.requests[key] = times
}

// countLocked drops entries older than the window and returns how many are
// left with the oldest of them
func (s *RateLimitService) countLocked(key string, window time.Duration, now time.Time) (int, time.Time) {
	times := s.requests[key]
	cutoff := now.Add(-window)
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	times = times[i:]
	if len(times) == 0 {
		delete(s.requests, key)
		return 0, time.Time{}
	}
	s.requests[key] = times
	return len(times), times[0]
}

// CleanupExpiredRateLimits removes identifiers with no request inside their window
func (s *RateLimitService) CleanupExpiredRateLimits(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	maxWindow := s.config.IPWindow
	if s.config.OwnerWindow > maxWindow {
		maxWindow = s.config.OwnerWindow
	}

	removed := 0
	for key := range s.requests {
		if count, _ := s.countLocked(key, maxWindow, now); count == 0 {
			removed++
		}
	}
	return removed
}

// Tracked returns how many identifiers currently have recorded requests
func (s *RateLimitService) Tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}
