package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeventeLantos/message-relay/internal/service"
)

func TestRetryPolicy_StopsOnSuccess(t *testing.T) {
	p := service.RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}

	calls := 0
	err := p.Run(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryPolicy_ExhaustsAttempts(t *testing.T) {
	p := service.RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond, Retryable: service.IsRetryable}

	calls := 0
	err := p.Run(context.Background(), func(context.Context) error {
		calls++
		return errors.New("still broken")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "still broken")
}

func TestRetryPolicy_PermanentErrorIsNotRetried(t *testing.T) {
	p := service.RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}
	cause := errors.New("bad data")

	calls := 0
	err := p.Run(context.Background(), func(context.Context) error {
		calls++
		return service.Permanent(cause)
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, service.ErrPermanent)
	assert.False(t, service.IsRetryable(err))
}

func TestRetryPolicy_ContextCancelStopsWaiting(t *testing.T) {
	p := service.RetryPolicy{MaxAttempts: 3, Delay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := p.Run(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := service.DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 60*time.Second, p.Delay)
	assert.Nil(t, service.Permanent(nil))
}
