package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// DefaultMaxAttempts bounds how often a single completion is tried.
const DefaultMaxAttempts = 3

// Retrier re-issues completions that failed with ErrOverloaded, backing
// off exponentially between attempts. Any other error fails immediately.
type Retrier struct {
	gen         TextGenerator
	maxAttempts int
	sleep       func(time.Duration)
}

// NewRetrier wraps gen. maxAttempts <= 0 falls back to DefaultMaxAttempts.
func NewRetrier(gen TextGenerator, maxAttempts int) *Retrier {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Retrier{
		gen:         gen,
		maxAttempts: maxAttempts,
		sleep:       time.Sleep,
	}
}

// Complete runs the wrapped generator with retries. After attempt n fails
// with overload it sleeps 2^n seconds before the next try, so the waits
// for the default three attempts are 2s and 4s.
func (r *Retrier) Complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		out, err := r.gen.Complete(ctx, prompt)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, ErrOverloaded) {
			return "", err
		}
		lastErr = err

		if attempt < r.maxAttempts {
			wait := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			slog.Warn("generative backend overloaded, retrying",
				"attempt", attempt, "wait", wait)
			r.sleep(wait)
		}

		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", ErrRequest, ctx.Err())
		}
	}
	return "", fmt.Errorf("giving up after %d attempts: %w", r.maxAttempts, lastErr)
}
