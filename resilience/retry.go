// Package resilience retries calls to flaky network services.
package resilience

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"github.com/agentuity/steam-mirror/logger"
	"github.com/cenkalti/backoff/v5"
)

// RetryConfig defines how a call is retried.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts uint
	// Backoff is the constant pause between attempts.
	Backoff time.Duration
	// Retryable decides whether an error is worth another attempt. A nil
	// Retryable retries every error.
	Retryable func(error) bool
	// Logger receives a warning for every failed attempt.
	Logger logger.Logger
}

// DefaultRetryConfig retries timeouts 30 times, 3 seconds apart.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 30,
		Backoff:     3 * time.Second,
		Retryable:   IsTimeout,
	}
}

// Retry calls fn until it succeeds, returns an error Retryable rejects, the
// attempts run out or ctx is done. The last error is returned.
func Retry[T any](ctx context.Context, config RetryConfig, fn func() (T, error)) (T, error) {
	attempts := config.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	attempt := 0
	operation := func() (T, error) {
		attempt++
		v, err := fn()
		if err != nil && config.Retryable != nil && !config.Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, wait time.Duration) {
		if config.Logger != nil {
			config.Logger.Warn("attempt %d/%d failed, retrying in %v: %v", attempt, attempts, wait, err)
		}
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(config.Backoff)),
		backoff.WithMaxTries(attempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
}

// RetryOn returns a Retryable matching errors that wrap any of targets.
func RetryOn(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
}

// IsTimeout reports whether err is a network or deadline timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
