// Package resilience re-executes failed work with exponential backoff. The
// engine uses it to re-run map and reduce tasks after transient failures,
// and the exporters use it around remote writes.
package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
	// Retryable reports whether a failed attempt may be re-run. Nil retries
	// every error.
	Retryable func(error) bool
	// OnRetry is called before each re-run with the attempt that failed.
	OnRetry func(attempt int, err error)
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2
	}
	if c.JitterFraction <= 0 {
		c.JitterFraction = 0.1
	}
	return c
}

// Backoff is the wait that follows the given failed attempt: the initial
// delay grown geometrically, jittered, and clamped to MaxDelay.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt-1))
	d *= 1 + c.JitterFraction*(2*rand.Float64()-1)
	switch {
	case d > float64(c.MaxDelay):
		return c.MaxDelay
	case d <= 0:
		return c.InitialDelay
	}
	return time.Duration(d)
}

// Retry runs fn until it succeeds, returns a non-retryable error, runs out
// of attempts or ctx is done. fn receives the 1-based attempt number.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func(attempt int) error) error {
	cfg = cfg.normalized()
	log := slog.With("component", "retry", "operation", name)

	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err == nil {
				return fmt.Errorf("%s: %w", name, ctxErr)
			}
			return fmt.Errorf("%s: stopped after attempt %d (%v): %w", name, attempt-1, err, ctxErr)
		}
		if err = fn(attempt); err == nil {
			if attempt > 1 {
				log.Info("recovered", "attempt", attempt)
			}
			return nil
		}
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return err
		}
		if attempt >= cfg.MaxAttempts {
			return fmt.Errorf("%s: all %d attempts failed: %w", name, cfg.MaxAttempts, err)
		}

		wait := cfg.Backoff(attempt)
		log.Warn("attempt failed", "attempt", attempt, "of", cfg.MaxAttempts, "wait", wait, "error", err)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}
}
