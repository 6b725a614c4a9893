// Package retry runs an operation in an explicit attempt loop with exponential
// backoff and reports a tagged outcome.
package retry

import (
	"context"
	"errors"
	"time"
)

// Outcome tags how a retried operation ended
type Outcome int

const (
	Ok Outcome = iota
	TransientErr
	PermanentErr
)

func (o Outcome) String() string {
	switch o {
	case Ok:
		return "ok"
	case TransientErr:
		return "transient"
	case PermanentErr:
		return "permanent"
	}
	return "unknown"
}

// Result is the tagged result of Do
type Result[T any] struct {
	Value    T
	Outcome  Outcome
	Err      error
	Attempts int
}

// Policy bounds the attempt loop
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// OnRetry is called before sleeping for the next attempt
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Delay returns the backoff before the attempt following attempt n (1-based)
func (p Policy) Delay(n int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Do runs op until it succeeds, fails permanently, or the attempt budget runs
// out. Only errors reporting Temporary() true are retried. A context error is
// always permanent.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) Result[T] {
	attempts := max(p.MaxAttempts, 1)

	var res Result[T]
	for attempt := 1; attempt <= attempts; attempt++ {
		res.Attempts = attempt

		v, err := op(ctx, attempt)
		if err == nil {
			res.Value, res.Outcome, res.Err = v, Ok, nil
			return res
		}
		res.Err = err

		if ctx.Err() != nil || !IsTransient(err) {
			res.Outcome = PermanentErr
			return res
		}
		res.Outcome = TransientErr

		if attempt == attempts {
			break
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if err := sleep(ctx, delay); err != nil {
			res.Outcome, res.Err = PermanentErr, err
			return res
		}
	}

	return res
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type temporary interface {
	Temporary() bool
}

// IsTransient reports whether any error in the chain is marked temporary
func IsTransient(err error) bool {
	var t temporary
	return errors.As(err, &t) && t.Temporary()
}

// Transient marks err as retryable
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

type transientError struct {
	err error
}

func (e *transientError) Error() string   { return e.err.Error() }
func (e *transientError) Unwrap() error   { return e.err }
func (e *transientError) Temporary() bool { return true }
