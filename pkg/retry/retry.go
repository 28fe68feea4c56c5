// Package retry runs an operation again after transient failures, backing
// off exponentially between attempts. The remediation layer uses it to
// re-establish dropped destination connections without hammering the ingest.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Config controls the backoff schedule. MaxAttempts counts retries after the
// first attempt, so the operation runs at most MaxAttempts+1 times.
type Config struct {
	Enabled      bool
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retry runs fn until it succeeds, the attempt budget is spent, or ctx is
// done. With Enabled false, fn runs exactly once.
func Retry(ctx context.Context, config Config, fn func() error) error {
	if !config.Enabled {
		return fn()
	}

	var lastErr error
	for attempt := 0; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if attempt > 0 {
			select {
			case <-time.After(backoff(config, attempt-1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("max attempts (%d) exceeded: %w", config.MaxAttempts, lastErr)
}

// backoff returns the delay before the given retry (0-based), growing by
// Multiplier each step and capped at MaxDelay. Jitter spreads the delay
// ±25% so simultaneous reconnects don't stampede the same ingest.
func backoff(config Config, retry int) time.Duration {
	delay := float64(config.InitialDelay)
	for i := 0; i < retry; i++ {
		delay *= config.Multiplier
		if delay >= float64(config.MaxDelay) {
			break
		}
	}
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	if config.Jitter {
		delay *= 0.75 + rand.Float64()*0.5
	}

	return time.Duration(delay)
}
