package live

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
)

// Backoff spaces out reconnection attempts
type Backoff struct {
	MaxRetries    int // 0 retries forever
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// Jitter is the fraction of each delay shaved off at random, so clients
	// dropped together do not reconnect together
	Jitter float64

	rand func() float64
}

// DefaultBackoff returns the default reconnection strategy
func DefaultBackoff() *Backoff {
	return &Backoff{
		InitialDelay:  2 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        0.2,
	}
}

// NextDelay calculates the delay before retry number attempt (from 0). It
// never exceeds MaxDelay.
func (b *Backoff) NextDelay(attempt int) time.Duration {
	delay := math.Min(float64(b.InitialDelay)*math.Pow(b.BackoffFactor, float64(attempt)), float64(b.MaxDelay))
	if b.Jitter > 0 {
		r := rand.Float64
		if b.rand != nil {
			r = b.rand
		}
		delay -= delay * math.Min(b.Jitter, 1) * r()
	}
	return time.Duration(delay)
}

// ShouldRetry determines if another retry attempt should be made
func (b *Backoff) ShouldRetry(attempt int) bool {
	return b.MaxRetries <= 0 || attempt < b.MaxRetries
}

// Sleep waits out the delay of attempt on clk. It returns early with woken
// set when wake fires, and with ctx's error when ctx ends.
func (b *Backoff) Sleep(ctx context.Context, clk clock.Clock, attempt int, wake <-chan struct{}) (woken bool, err error) {
	timer := clk.Timer(b.NextDelay(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-wake:
		return true, nil
	case <-timer.C:
		return false, nil
	}
}
