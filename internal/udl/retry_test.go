package udl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopclerk/shopclerk/internal/domain"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: 4 * time.Millisecond}
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(&domain.NotFoundError{Kind: "product", ID: "X"}))
	assert.False(t, Retryable(&domain.ValidationError{Field: "sku", Message: "bad"}))
	assert.False(t, Retryable(&domain.AuthorizationError{ActionID: "applyDiscount"}))
	assert.True(t, Retryable(errors.New("connection reset")))
	assert.True(t, Retryable(&domain.UpstreamError{Method: "getPricing", Err: errors.New("timeout")}))
}

func TestNextDelayGrowsAndCaps(t *testing.T) {
	p := RetryPolicy{InitialDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: 300 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, p.NextDelay(1))
	assert.Equal(t, 200*time.Millisecond, p.NextDelay(2))
	assert.Equal(t, 300*time.Millisecond, p.NextDelay(3))
	assert.Equal(t, 300*time.Millisecond, p.NextDelay(10))
}

func TestDoRecoversAfterTransientFailure(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		return &domain.NotFoundError{Kind: "product", ID: "NOPE-1"}
	})
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		return errors.New("still down")
	})
	require.EqualError(t, err, "still down")
	assert.Equal(t, 3, calls)
}

func TestDoAbortsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxAttempts: 3, InitialDelay: time.Minute, Multiplier: 2, MaxDelay: time.Minute}
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	err := p.Do(ctx, func() error { return errors.New("down") })
	assert.ErrorIs(t, err, context.Canceled)
}
