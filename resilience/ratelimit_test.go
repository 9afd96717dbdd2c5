package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{})

	if rl.config.Rate != 100 {
		t.Errorf("Rate = %v, want 100", rl.config.Rate)
	}
	if rl.config.Burst != 10 {
		t.Errorf("Burst = %d, want 10", rl.config.Burst)
	}
	if rl.config.MaxWait != time.Second {
		t.Errorf("MaxWait = %v, want 1s", rl.config.MaxWait)
	}
}

func TestRateLimiter_BurstThenReject(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 0.001, Burst: 3})

	for i := 0; i < 3; i++ {
		if !rl.Allow() {
			t.Fatalf("Allow() #%d = false, want true", i+1)
		}
	}
	if rl.Allow() {
		t.Error("Allow() after burst = true, want false")
	}
}

func TestRateLimiter_ExecuteRejects(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 0.001, Burst: 1})
	ctx := context.Background()

	if err := rl.Execute(ctx, okOp); err != nil {
		t.Fatalf("first Execute() error = %v", err)
	}
	if err := rl.Execute(ctx, okOp); !errors.Is(err, ErrRateLimitExceeded) {
		t.Errorf("second Execute() = %v, want ErrRateLimitExceeded", err)
	}
}

func TestRateLimiter_WaitWithinMaxWait(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 100, Burst: 1, WaitOnLimit: true, MaxWait: time.Second})
	ctx := context.Background()

	_ = rl.Execute(ctx, okOp)
	start := time.Now()
	if err := rl.Execute(ctx, okOp); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("waited far longer than one token interval")
	}
}

func TestRateLimiter_WaitBeyondMaxWaitFailsFast(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 0.01, Burst: 1, MaxWait: 10 * time.Millisecond})

	_ = rl.Allow()
	start := time.Now()
	err := rl.Wait(context.Background())
	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("Wait() = %v, want ErrRateLimitExceeded", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("Wait() blocked instead of failing fast")
	}
}

func TestRateLimiter_WaitCancelled(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 1, MaxWait: time.Minute})
	_ = rl.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := rl.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() = %v, want context.DeadlineExceeded", err)
	}
}

func TestRateLimiter_Reset(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 0.001, Burst: 2})
	_ = rl.AllowN(2)

	if rl.Tokens() >= 1 {
		t.Fatalf("Tokens() = %v, want < 1", rl.Tokens())
	}
	rl.Reset()
	if rl.Tokens() < 2 {
		t.Errorf("Tokens() after Reset = %v, want 2", rl.Tokens())
	}
}
