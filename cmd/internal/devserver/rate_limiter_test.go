package devserver

import (
	"testing"
	"time"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	if !rl.Allow(now) || !rl.Allow(now.Add(time.Second)) {
		t.Fatalf("first two events should pass")
	}
	if rl.Allow(now.Add(2 * time.Second)) {
		t.Fatalf("third event should be limited")
	}
	if got := rl.Remaining(now.Add(2 * time.Second)); got != 0 {
		t.Fatalf("remaining = %d", got)
	}
	if got := rl.Remaining(now.Add(time.Minute + time.Millisecond)); got != 1 {
		t.Fatalf("remaining after first expiry = %d", got)
	}
	if !rl.Allow(now.Add(time.Minute + 2*time.Second)) {
		t.Fatalf("window should have slid")
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	if rl.Limit() != rateLimitRequests || rl.Window() != rateLimitWindow {
		t.Fatalf("limit=%d window=%s", rl.Limit(), rl.Window())
	}
}

func TestLimiterSet_PerUser(t *testing.T) {
	s := newLimiterSet(1, time.Hour)
	now := time.Now()
	if !s.get("a").Allow(now) || !s.get("b").Allow(now) {
		t.Fatalf("users should have separate budgets")
	}
	if s.get("a").Allow(now) {
		t.Fatalf("a should be limited")
	}
}
