package signal

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionErrorUnwraps(t *testing.T) {
	inner := errors.New("broken pipe")
	err := &ConnectionError{Op: "write", Err: inner}

	require.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "write")
	assert.Contains(t, err.Error(), "broken pipe")
}

func TestIsRateLimitError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"typed", &RateLimitError{Message: "slow down"}, true},
		{"wrapped typed", fmt.Errorf("sending: %w", &RateLimitError{Message: "slow down"}), true},
		{"proof required message", &RPCError{Code: -32602, Message: "Proof required"}, true},
		{"429 in message", errors.New("server said 429"), true},
		{"too many requests", errors.New("Too Many Requests"), true},
		{"unrelated", errors.New("user not registered"), false},
		{"unrelated rpc", &RPCError{Code: -32601, Message: "Method not found"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRateLimitError(tt.err))
		})
	}
}

func TestWrapDaemonError(t *testing.T) {
	t.Run("plain rpc error passes through", func(t *testing.T) {
		rpcErr := &RPCError{Code: -32601, Message: "Method not found"}
		assert.Equal(t, error(rpcErr), wrapDaemonError(rpcErr))
	})

	t.Run("retry hint on proof code wins even without indicator text", func(t *testing.T) {
		rpcErr := &RPCError{
			Code:    rateLimitedCode,
			Message: "Captcha challenge",
			Data:    json.RawMessage(`{"retryAfter":10}`),
		}

		var rateLimitErr *RateLimitError
		require.ErrorAs(t, wrapDaemonError(rpcErr), &rateLimitErr)
		assert.Equal(t, 10*time.Second, rateLimitErr.RetryAfter)
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, wrapDaemonError(nil))
	})

	t.Run("throttling becomes rate limit error", func(t *testing.T) {
		rpcErr := &RPCError{
			Code:    -32602,
			Message: "Proof required",
			Data:    json.RawMessage(`{"retryAfter":86400}`),
		}

		err := wrapDaemonError(rpcErr)

		var rateLimitErr *RateLimitError
		require.ErrorAs(t, err, &rateLimitErr)
		assert.Equal(t, 24*time.Hour, rateLimitErr.RetryAfter)
		// The original daemon error stays reachable for callers that
		// want the code.
		var inner *RPCError
		require.ErrorAs(t, err, &inner)
		assert.Equal(t, -32602, inner.Code)
	})
}

func TestExtractRetryAfter(t *testing.T) {
	tests := []struct {
		name string
		data string
		want time.Duration
	}{
		{"present", `{"retryAfter":30}`, 30 * time.Second},
		{"absent", `{}`, 0},
		{"empty payload", ``, 0},
		{"negative", `{"retryAfter":-5}`, 0},
		{"not json", `retry later`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractRetryAfter(json.RawMessage(tt.data)))
		})
	}
}
