package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() *Config {
	return &Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

type explicit struct{ retry bool }

func (e explicit) Error() string     { return "explicit" }
func (e explicit) IsRetryable() bool { return e.retry }

func TestDo_RetriesTransientErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("status 503: service unavailable")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorReturnsImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		return errors.New("status 401: invalid api key")
	})
	assert.EqualError(t, err, "status 401: invalid api key")
	assert.Equal(t, 1, calls)
}

func TestDo_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		return errors.New("connection reset by peer")
	})
	assert.Error(t, err)
	assert.Equal(t, 4, calls)
}

func TestDoWithResult_CancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxRetries: 5, InitialDelay: time.Second, Multiplier: 2}

	calls := 0
	_, err := DoWithResult(ctx, cfg, func() (int, error) {
		calls++
		cancel()
		return 0, errors.New("502 bad gateway")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("anthropic overloaded_error"), true},
		{errors.New("400 bad request"), false},
		{context.DeadlineExceeded, false},
		{explicit{retry: true}, true},
		{explicit{retry: false}, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsRetryable(tc.err), "%v", tc.err)
	}
}
