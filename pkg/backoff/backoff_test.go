package backoff_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/powermem/pkg/backoff"
)

func TestRetryableClassification(t *testing.T) {
	assert.False(t, backoff.Retryable(nil))
	assert.False(t, backoff.Retryable(errors.New("invalid request")))
	assert.False(t, backoff.Retryable(context.Canceled))
	assert.False(t, backoff.Retryable(context.DeadlineExceeded))

	assert.True(t, backoff.Retryable(errors.New("API request failed with status code: 503")))
	assert.True(t, backoff.Retryable(errors.New("status code: 429 Too Many Requests")))
	assert.True(t, backoff.Retryable(errors.New("rate limit exceeded")))
	assert.True(t, backoff.Retryable(errors.New("dial tcp: connection refused")))
	assert.True(t, backoff.Retryable(errors.New("read: connection reset by peer")))
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	_, err := backoff.Retry(context.Background(), func() (string, error) {
		calls++
		return "", errors.New("bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	calls := 0
	result, err := backoff.Retry(context.Background(), func() (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("status code: 503")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 2, calls)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	_, err := backoff.Retry(context.Background(), func() (int, error) {
		calls++
		return 0, errors.New("status code: 500")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}
