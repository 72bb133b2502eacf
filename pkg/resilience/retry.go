package resilience

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy defines retry behavior for transient failures.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	// Retryable decides whether an error is worth another attempt. Nil retries everything
	// except rate limits and permanent errors.
	Retryable func(error) bool
}

func NewRetryPolicy(maxRetries int, backoff time.Duration) RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return RetryPolicy{MaxRetries: maxRetries, Backoff: backoff}
}

// PermanentError marks an error that must not be retried.
type PermanentError struct {
	Err error
}

func (e PermanentError) Error() string { return e.Err.Error() }
func (e PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the retry loop returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return PermanentError{Err: err}
}

func (r RetryPolicy) retryable(err error) bool {
	if r.Retryable != nil {
		return r.Retryable(err)
	}
	var perm PermanentError
	if errors.As(err, &perm) {
		return false
	}
	return !IsRateLimit(err)
}

// Do runs fn until it succeeds, the error is not retryable, retries are exhausted or ctx ends.
// Backoff grows linearly with the attempt number.
func (r RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var err error
	for i := 0; i <= r.MaxRetries; i++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if i == r.MaxRetries || !r.retryable(err) {
			return err
		}
		timer := time.NewTimer(r.Backoff * time.Duration(i+1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}
