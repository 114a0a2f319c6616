package service

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPermanent marks failures that must not be retried.
	ErrPermanent = errors.New("permanent failure")
	ErrDuplicate = errors.New("duplicate message")
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string   { return e.err.Error() }
func (e *permanentError) Unwrap() []error { return []error{e.err, ErrPermanent} }

// Permanent wraps err so IsRetryable reports false for it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsRetryable(err error) bool {
	return err != nil && !errors.Is(err, ErrPermanent)
}

// RetryPolicy re-invokes a unit of work up to MaxAttempts times with a fixed
// Delay between attempts while Retryable accepts the returned error.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Retryable   func(error) bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay:       60 * time.Second,
		Retryable:   IsRetryable,
	}
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable == nil {
		return IsRetryable(err)
	}
	return p.Retryable(err)
}

// Run calls fn until it succeeds, returns a non-retryable error, or the attempt
// cap is reached. The last error is returned wrapped on exhaustion.
func (p RetryPolicy) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !p.retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", attempts, err)
}
