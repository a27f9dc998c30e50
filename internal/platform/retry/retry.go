// Package retry runs an operation with bounded attempts and classified backoff.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

type Action int

const (
	Stop  Action = iota // permanent error, abort immediately
	After               // rate-limited, back off before the next attempt
)

type Policy struct {
	MaxAttempts int
	// RateLimitBackoff is the first wait. It doubles after every retry.
	RateLimitBackoff time.Duration
	// MaxBackoff caps any single wait. Zero means no cap.
	MaxBackoff time.Duration
	// Delay extracts a server-provided wait from a rate-limited error. The
	// larger of it and the current backoff is used.
	Delay   func(err error) time.Duration
	OnRetry func(attempt int, err error, backoff time.Duration)
	// Clock drives the waits. Nil means the real clock.
	Clock clockwork.Clock
}

type Classify func(err error) Action
type Operation[T any] func() (T, error)

func Do[T any](ctx context.Context, p Policy, classify Classify, op Operation[T]) (T, error) {
	var zero T
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	backoff := p.RateLimitBackoff

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		val, err := op()
		if err == nil {
			return val, nil
		}

		if classify(err) == Stop {
			return zero, &PermanentError{Err: err}
		}

		if attempt == p.MaxAttempts {
			return zero, fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts, err)
		}

		wait := backoff
		if p.Delay != nil {
			if d := p.Delay(err); d > wait {
				wait = d
			}
		}
		if p.MaxBackoff > 0 && wait > p.MaxBackoff {
			wait = p.MaxBackoff
		}
		backoff *= 2

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}

		if err := Sleep(ctx, clock, wait); err != nil {
			return zero, fmt.Errorf("context cancelled during retry: %w", err)
		}
	}

	return zero, fmt.Errorf("retry: no attempts made")
}

// Sleep waits for d on clock or until ctx is done.
func Sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.Chan():
		return nil
	}
}

type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }
