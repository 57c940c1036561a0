package provider

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterUnderBudgetDoesNotBlock(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{Calls: 3, PerSeconds: 10})

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := limiter.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v, want nil", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Wait() under budget took %v, want near-instant", elapsed)
	}
}

func TestRateLimiterBlocksWhenExhausted(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{Calls: 2, PerSeconds: 1})

	for i := 0; i < 2; i++ {
		if err := limiter.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v, want nil", err)
		}
	}

	start := time.Now()
	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v, want nil", err)
	}
	if elapsed := time.Since(start); elapsed < 500*time.Millisecond {
		t.Errorf("third Wait() returned after %v, want it to block until the window frees", elapsed)
	}
}

func TestRateLimiterWaitCancellation(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{Calls: 1, PerSeconds: 60})

	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v, want nil", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx)
	if err == nil {
		t.Fatal("Wait() with exhausted budget and cancelled context should return an error")
	}
	if err != context.DeadlineExceeded {
		t.Errorf("Wait() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestRateLimiterZeroBudgetDisablesLimiting(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{})

	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := limiter.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v, want nil", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("disabled limiter took %v for 100 calls, want near-instant", elapsed)
	}
}

func TestRateLimiterNilReceiver(t *testing.T) {
	var limiter *RateLimiter
	if err := limiter.Wait(context.Background()); err != nil {
		t.Errorf("nil limiter Wait() error = %v, want nil", err)
	}
}
