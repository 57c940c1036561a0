package provider

import (
	"context"
	"sync"
	"time"
)

// RateLimit is a per-provider call budget: at most Calls requests within
// any PerSeconds-long window. Read-only after construction.
type RateLimit struct {
	Calls      int `json:"calls"`
	PerSeconds int `json:"per_seconds"`
}

func (r RateLimit) window() time.Duration {
	return time.Duration(r.PerSeconds) * time.Second
}

// RateLimiter enforces a sliding-window call budget. Exceeding the budget
// blocks the caller until budget is available rather than failing the call:
// rate limiting is a throttle, not a rejection mechanism. Safe for
// concurrent use; the waiting is cancellable through the context.
type RateLimiter struct {
	mu          sync.Mutex
	requests    []time.Time
	maxRequests int
	window      time.Duration
}

// NewRateLimiter creates a limiter for the given budget. A zero or negative
// budget disables limiting entirely.
func NewRateLimiter(limit RateLimit) *RateLimiter {
	return &RateLimiter{
		maxRequests: limit.Calls,
		window:      limit.window(),
		requests:    make([]time.Time, 0, max(limit.Calls, 1)),
	}
}

// Wait blocks until a request can be made within the budget, then records
// it. It returns a non-nil error only when ctx is cancelled while waiting.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil || r.maxRequests <= 0 {
		return ctx.Err()
	}

	for {
		r.mu.Lock()
		now := time.Now()
		r.pruneLocked(now)

		if len(r.requests) < r.maxRequests {
			r.requests = append(r.requests, now)
			r.mu.Unlock()
			return nil
		}

		// Window is full. Sleep until the oldest recorded request expires,
		// plus a small buffer so it has actually left the window, then
		// re-check under the lock.
		waitTime := r.window - now.Sub(r.requests[0]) + 10*time.Millisecond
		r.mu.Unlock()

		timer := time.NewTimer(waitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *RateLimiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-r.window)
	valid := r.requests[:0]
	for _, req := range r.requests {
		if req.After(cutoff) {
			valid = append(valid, req)
		}
	}
	r.requests = valid
}
