// Package retry provides exponential-backoff retries for outbound provider
// calls (content generation, feed fetches). Casting is deliberately not
// retried: publishing is one-shot per activity.
package retry

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	defaultMaxAttempts  = 3
	defaultInitialDelay = 1 * time.Second
	defaultMaxDelay     = 10 * time.Second
)

// Config tunes the retry loop. Zero values select the defaults.
type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Do executes fn until it succeeds, a non-retryable error occurs, the
// attempt budget is exhausted, or the context is cancelled.
func Do(ctx context.Context, fn func() error, cfg Config) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialDelay
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxDelay
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		select {
		case <-time.After(backoff(attempt, cfg.InitialBackoff, cfg.MaxBackoff)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", cfg.MaxAttempts, lastErr)
}

// IsRetryable classifies an error by its message: timeouts, connection
// problems, rate limits and 5xx responses retry; authentication and client
// errors do not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	for _, p := range []string{"401", "403", "400", "404", "context canceled"} {
		if strings.Contains(msg, p) {
			return false
		}
	}
	for _, p := range []string{
		"deadline exceeded", "timeout", "connection refused",
		"connection reset", "temporary", "eof", "429",
		"too many requests", "rate limit", "5", "connection", "network",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// backoff is 2^attempt * initial, capped at max.
func backoff(attempt int, initial, max time.Duration) time.Duration {
	d := time.Duration(1<<uint(attempt)) * initial
	if d > max {
		return max
	}
	return d
}
