// Package ncbi provides the rate-limited, retrying HTTP request core shared
// by every NCBI API client in this service.
//
// NCBI enforces strict rate limits on its public APIs: 3 requests/second
// without an API key, 10 requests/second with one. Exceeding the limit can
// get an IP blocked for 24+ hours, so every outbound call goes through a
// shared token-bucket Limiter before it touches the network.
package ncbi

import (
	"context"
	"sync"
	"time"
)

// Limiter is a token-bucket rate limiter for NCBI API calls.
//
// Tokens refill continuously in proportion to elapsed wall-clock time, so
// callers can burst up to the full capacity after an idle period and are then
// smoothly throttled to capacity/window sustained. The entire acquire
// computation, including the wait when no token is available, runs under a
// single mutex: token accounting is non-atomic read-modify-write state and
// two goroutines must never spend the same fractional token.
type Limiter struct {
	mu         sync.Mutex
	capacity   float64
	window     time.Duration
	available  float64
	lastRefill time.Time

	// now is swapped out in tests to control the clock.
	now func() time.Time
}

// NewLimiter creates a limiter allowing capacity requests per window.
//
// Example configurations:
//   - NewLimiter(3, time.Second) for PubMed without an API key
//   - NewLimiter(10, time.Second) with an API key
func NewLimiter(capacity int, window time.Duration) *Limiter {
	if capacity <= 0 {
		capacity = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &Limiter{
		capacity:   float64(capacity),
		window:     window,
		available:  float64(capacity),
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// Acquire blocks until a token is available, then consumes it.
//
// It returns an error only when ctx is cancelled while waiting. Abandoning
// the wait consumes no token: available and lastRefill keep the values they
// had when the wait began.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	elapsed := now.Sub(l.lastRefill)
	l.available = min(l.capacity, l.available+elapsed.Seconds()*l.capacity/l.window.Seconds())
	l.lastRefill = now

	if l.available >= 1 {
		l.available--
		return nil
	}

	// Wait for exactly one more token to accrue, then hand it straight to
	// the caller. The mutex stays held so later acquirers queue behind us.
	wait := time.Duration((1 - l.available) * float64(l.window) / l.capacity)
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		// The token that accrued during the wait is spent here, so the
		// refill clock must move past the wait too; otherwise the next
		// acquire counts the same interval again.
		l.available = 0
		l.lastRefill = l.now()
		return nil
	}
}

// UpdateLimit reconfigures the capacity in place, e.g. when an API key that
// grants a higher allowance becomes available mid-run.
//
// The available count is not reset. Narrowing the limit can therefore leave
// available > capacity until the next refill clamps it; that is a sharp edge,
// not a correctness bug.
func (l *Limiter) UpdateLimit(capacity int) {
	if capacity <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.capacity = float64(capacity)
}

// Tokens returns the number of tokens that would be available right now,
// without consuming anything or advancing the refill clock.
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	elapsed := l.now().Sub(l.lastRefill)
	return min(l.capacity, l.available+elapsed.Seconds()*l.capacity/l.window.Seconds())
}

// Capacity returns the currently configured capacity per window.
func (l *Limiter) Capacity() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int(l.capacity)
}
