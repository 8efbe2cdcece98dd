// Package retry wraps outbound delivery operations with bounded retries and
// exponential backoff, so callers are not individually polluted with retry
// logic.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/hustleforge/hustleforge/internal/models"
)

// Default policy values.
const (
	DefaultAttempts  = 3
	DefaultBaseDelay = 5 * time.Second
)

// Policy describes how an operation is retried. The zero value behaves like
// Default(). Sleep may be overridden in tests; nil means time.Sleep.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	Sleep     func(time.Duration)
}

// Default returns the stock delivery retry policy.
func Default() Policy {
	return Policy{Attempts: DefaultAttempts, BaseDelay: DefaultBaseDelay}
}

// Do invokes op up to Attempts times, doubling the delay between attempts.
// Transient failures are the expected case here. Non-transient failures are
// not silently swallowed: they still consume attempts but are logged with
// full context before the final error propagates to the caller.
func (p Policy) Do(ctx context.Context, name string, op func() error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	delay := p.BaseDelay
	if delay <= 0 {
		delay = DefaultBaseDelay
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(); err == nil {
			if attempt > 1 {
				slog.Info("retry succeeded", "op", name, "attempt", attempt)
			}
			return nil
		}
		if models.IsTransient(err) {
			slog.Warn("retry attempt failed", "op", name, "attempt", attempt, "attempts", attempts, "error", err)
		} else {
			slog.Error("retry attempt failed with non-transient error", "op", name, "attempt", attempt, "attempts", attempts, "error", err)
		}
		if attempt < attempts {
			if ctx.Err() != nil {
				slog.Warn("retry aborted by context", "op", name, "attempt", attempt, "error", ctx.Err())
				return ctx.Err()
			}
			sleep(delay)
			delay *= 2
		}
	}
	slog.Error("retry exhausted", "op", name, "attempts", attempts, "error", err)
	return err
}
