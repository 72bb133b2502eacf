package resilience

import (
	"errors"
	"time"
)

// RateLimitError is a provider's 429 answer. RetryAfter is zero when the provider
// gave no hint.
type RateLimitError struct {
	Provider   string
	Message    string
	RetryAfter time.Duration
}

func (e RateLimitError) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Provider != "":
		return e.Provider + ": rate limited"
	default:
		return "rate limited"
	}
}

func IsRateLimit(err error) bool {
	var rl RateLimitError
	return errors.As(err, &rl)
}

func retryAfter(err error) time.Duration {
	var rl RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}
