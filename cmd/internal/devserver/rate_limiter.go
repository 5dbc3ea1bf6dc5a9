package devserver

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window limiter.
type RateLimiter struct {
	mu     sync.Mutex
	events []time.Time
	limit  int
	window time.Duration
}

// NewRateLimiter constructs a RateLimiter with safe defaults when inputs are invalid.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = rateLimitRequests
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{
		events: make([]time.Time, 0, limit+8),
		limit:  limit,
		window: window,
	}
}

// Allow reports whether an event at time "now" should be permitted, and records it if so.
func (r *RateLimiter) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune(now)
	if len(r.events) >= r.limit {
		return false
	}
	r.events = append(r.events, now)
	return true
}

// Remaining returns how many events are still allowed in the window ending at now.
func (r *RateLimiter) Remaining(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune(now)
	return max(0, r.limit-len(r.events))
}

// Limit returns the configured budget.
func (r *RateLimiter) Limit() int { return r.limit }

// Window returns the configured window.
func (r *RateLimiter) Window() time.Duration { return r.window }

func (r *RateLimiter) prune(now time.Time) {
	cut := now.Add(-r.window)
	dst := r.events[:0]
	for _, t := range r.events {
		if t.After(cut) {
			dst = append(dst, t)
		}
	}
	r.events = dst
}

// limiterSet hands out one RateLimiter per user.
type limiterSet struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	byUser map[string]*RateLimiter
}

func newLimiterSet(limit int, window time.Duration) *limiterSet {
	return &limiterSet{limit: limit, window: window, byUser: make(map[string]*RateLimiter)}
}

func (s *limiterSet) get(userID string) *RateLimiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	rl, ok := s.byUser[userID]
	if !ok {
		rl = NewRateLimiter(s.limit, s.window)
		s.byUser[userID] = rl
	}
	return rl
}
