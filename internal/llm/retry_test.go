package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", &StatusError{Status: 429}, true},
		{"bad gateway", &StatusError{Status: 502}, true},
		{"bad request", &StatusError{Status: 400}, false},
		{"unauthorized", &StatusError{Status: 401}, false},
		{"network", fmt.Errorf("%w: dial tcp", ErrTransport), true},
		{"unsupported", ErrUnsupportedModel, false},
		{"canceled", fmt.Errorf("%w: %w", ErrTransport, context.Canceled), false},
		{"deadline", context.DeadlineExceeded, false},
		{"unknown", errors.New("something"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}

func TestCalculateDelay(t *testing.T) {
	base := 100 * time.Millisecond
	assert.Equal(t, base, CalculateDelay(base, 0, 0))
	assert.Equal(t, 4*base, CalculateDelay(base, 2, 0))

	for i := 0; i < 50; i++ {
		d := CalculateDelay(base, 1, 25)
		assert.GreaterOrEqual(t, d, 2*base)
		assert.LessOrEqual(t, d, 2*base+base/2)
	}
}

func newTestRetry(inner TextCompletionService, max int) *retrying {
	r := WithRetry(inner, RetryConfig{MaxRetries: max, BaseDelay: time.Millisecond}, nil).(*retrying)
	r.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return r
}

func TestWithRetry_RecoversFromTransient(t *testing.T) {
	calls := 0
	inner := CompletionFunc(func(ctx context.Context, modelID, apiKey, prompt string) (string, error) {
		calls++
		if calls < 3 {
			return "", &StatusError{Status: 503}
		}
		return "done", nil
	})
	out, err := newTestRetry(inner, 2).Complete(context.Background(), "m", "k", "p")
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_StopsOnPermanent(t *testing.T) {
	calls := 0
	inner := CompletionFunc(func(ctx context.Context, modelID, apiKey, prompt string) (string, error) {
		calls++
		return "", &StatusError{Status: 401}
	})
	_, err := newTestRetry(inner, 5).Complete(context.Background(), "m", "k", "p")
	assert.True(t, errors.Is(err, ErrAuthentication))
	assert.Equal(t, 1, calls)
}

func TestWithRetry_Exhausts(t *testing.T) {
	calls := 0
	inner := CompletionFunc(func(ctx context.Context, modelID, apiKey, prompt string) (string, error) {
		calls++
		return "", fmt.Errorf("%w: reset", ErrTransport)
	})
	_, err := newTestRetry(inner, 2).Complete(context.Background(), "m", "k", "p")
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Equal(t, 3, calls)
}

func TestWithRetry_DisabledReturnsInner(t *testing.T) {
	inner := CompletionFunc(func(ctx context.Context, modelID, apiKey, prompt string) (string, error) { return "", nil })
	_, isRetry := WithRetry(inner, RetryConfig{}, nil).(*retrying)
	assert.False(t, isRetry)
}
