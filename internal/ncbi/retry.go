package ncbi

import (
	"context"
	"math"
	"time"
)

// Backoff computes exponentially increasing retry delays, capped at MaxDelay.
// It holds no mutable state and is safe to share across goroutines.
type Backoff struct {
	// MaxRetries is the number of retry attempts after the initial try.
	MaxRetries int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// Factor is the multiplier applied per attempt.
	Factor float64

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration
}

// DefaultBackoff matches the NCBI guidance used throughout this service.
func DefaultBackoff() Backoff {
	return Backoff{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Factor:     2.0,
		MaxDelay:   60 * time.Second,
	}
}

// Delay returns the wait before retry number attempt (0-indexed):
// min(BaseDelay * Factor^attempt, MaxDelay).
func (b Backoff) Delay(attempt int) time.Duration {
	d := time.Duration(float64(b.BaseDelay) * math.Pow(b.Factor, float64(attempt)))
	if d > b.MaxDelay || d < 0 {
		return b.MaxDelay
	}
	return d
}

// Wait sleeps for Delay(attempt), returning early if ctx is cancelled.
func (b Backoff) Wait(ctx context.Context, attempt int) error {
	return sleep(ctx, b.Delay(attempt))
}

// sleep waits for the given duration, respecting context cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
