package udl

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/shopclerk/shopclerk/internal/domain"
)

// RetryPolicy controls how failed data layer calls are retried with
// exponential backoff. Not-found and validation failures are permanent and
// never retried; only transient upstream errors are.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultRetryPolicy returns the engine default: 3 attempts, 100ms initial
// delay, 2x multiplier, 2s max delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     2 * time.Second,
	}
}

// Retryable classifies an error as transient or permanent.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var nf *domain.NotFoundError
	if errors.As(err, &nf) {
		return false
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return false
	}
	var ae *domain.AuthorizationError
	if errors.As(err, &ae) {
		return false
	}
	return true
}

// NextDelay returns the backoff delay for the given attempt number (1-indexed).
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Do runs fn up to MaxAttempts times, sleeping between retries with
// exponential backoff. Permanent errors are returned immediately; the last
// error is returned if all attempts fail. Cancellation via ctx aborts the
// backoff sleep.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !Retryable(err) {
			return err
		}
		if attempt < p.MaxAttempts {
			select {
			case <-time.After(p.NextDelay(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}
