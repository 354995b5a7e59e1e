// Package retry runs an operation again after transient failures, waiting
// an exponentially growing delay between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"recipeagent"
)

// ErrExhausted wraps the last error once every retry has been used.
var ErrExhausted = errors.New("retries exhausted")

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Policy describes how a failing operation is retried. The first attempt is
// not counted in Retries, so Retries=3 means at most four calls.
type Policy struct {
	Retries      int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Defaults to recipeagent.IsTransient.
	Retryable func(error) bool
	// Sleep defaults to a context-aware timer.
	Sleep Sleeper
	// Notify is called before each wait.
	Notify func(err error, retry int, delay time.Duration)
}

// DefaultPolicy waits 1s, 2s and 4s before the three retries.
func DefaultPolicy() Policy {
	return Policy{
		Retries:      3,
		InitialDelay: time.Second,
		Multiplier:   2,
	}
}

// Delays lists the wait before each retry.
func (p Policy) Delays() []time.Duration {
	b := p.backOff()
	out := make([]time.Duration, 0, max(p.Retries, 0))
	for range p.Retries {
		out = append(out, b.NextBackOff())
	}
	return out
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.RandomizationFactor = 0
	if p.InitialDelay > 0 {
		b.InitialInterval = p.InitialDelay
	}
	if p.Multiplier >= 1 {
		b.Multiplier = p.Multiplier
	} else {
		b.Multiplier = 2
	}
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	} else {
		b.MaxInterval = time.Hour
	}
	b.Reset()
	return b
}

// Do calls op until it succeeds, fails with an error that is not retryable,
// or the retries are used up. The attempt number passed to op starts at 0.
// Cancellation of ctx stops the loop, also while waiting.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	retryable := p.Retryable
	if retryable == nil {
		retryable = recipeagent.IsTransient
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Wait
	}
	b := p.backOff()

	var zero T
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		out, err := op(ctx, attempt)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%w: %w", ctx.Err(), err)
		}
		if !retryable(err) {
			return zero, err
		}
		if attempt >= p.Retries {
			return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt+1, err)
		}

		delay := b.NextBackOff()
		if p.Notify != nil {
			p.Notify(err, attempt+1, delay)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return zero, fmt.Errorf("%w: %w", serr, err)
		}
	}
}

// Wait blocks for d without spinning and returns early with ctx.Err().
func Wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
