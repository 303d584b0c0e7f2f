package retry

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/nkissick-del/ragflow-scraper-sub000/core"
)

// ErrInvalidMaxAttempts indicates a non-positive attempt budget.
var ErrInvalidMaxAttempts = errors.New("max attempts must be greater than zero")

// Config bounds the retry behavior. All fields come from configuration,
// never hardcoded at call sites.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultConfig returns reasonable bounds for network calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
	}
}

// Do retries operation with exponential backoff plus jitter. Only errors
// classified transient by core.IsTransient are retried; permanent, resource,
// and unclassified errors fail immediately. Returns the last error when the
// attempt budget is exhausted.
func Do(ctx context.Context, cfg Config, operation func() error) error {
	if cfg.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		// Check context before attempting
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation()
		if lastErr == nil {
			if attempt > 1 {
				slog.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}

		if !core.IsTransient(lastErr) {
			return lastErr
		}

		slog.Debug("transient failure, will retry",
			"attempt", attempt, "maxAttempts", cfg.MaxAttempts, "error", lastErr)

		// Don't sleep after the last attempt
		if attempt == cfg.MaxAttempts {
			break
		}

		timer := time.NewTimer(backoff(cfg, attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

// backoff computes baseDelay * 2^(attempt-1), capped at MaxDelay, with up to
// 25% random jitter so concurrent retries do not synchronize.
func backoff(cfg Config, attempt int) time.Duration {
	delay := cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if cfg.MaxDelay > 0 && delay >= cfg.MaxDelay {
			delay = cfg.MaxDelay
			break
		}
	}
	if delay <= 0 {
		return 0
	}
	jitter := time.Duration(rand.Int64N(int64(delay)/4 + 1))
	return delay + jitter
}
