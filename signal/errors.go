package signal

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common client errors.
var (
	// ErrNotConnected indicates a call was attempted with no live transport.
	ErrNotConnected = errors.New("not connected to signal-cli")

	// ErrShuttingDown indicates the client is tearing down and refuses new work.
	ErrShuttingDown = errors.New("client is shutting down")

	// ErrReconnectExhausted indicates the supervisor gave up after the
	// configured number of attempts; manual intervention is required.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted, manual reconnect required")
)

// ConnectionError represents a transport-level failure: the socket or
// process could not be opened, died underneath us, or never became ready.
type ConnectionError struct {
	Op  string // "dial", "spawn", "ready", "write"
	Err error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// TimeoutError indicates a specific call exceeded its deadline. The
// correlation entry has already been removed when this is returned.
type TimeoutError struct {
	Method string
	After  time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("call %q timed out after %v", e.Method, e.After)
}

// RPCError is a structured error object returned by the daemon. Code and
// Message are preserved exactly as signal-cli reported them.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// ParseError indicates a single inbound line could not be parsed. It is
// surfaced on the error event channel, never returned from a call.
type ParseError struct {
	Line string
	Err  error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("unparsable line from daemon: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError indicates a caller-supplied argument failed a
// precondition. It is raised before any network I/O happens.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RateLimitError indicates the daemon signaled throttling. RetryAfter is
// zero when the daemon gave no hint.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: retry after %v: %s", e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("rate limited: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// rateLimitedCode is the proof-required error code signal-cli returns when
// the server throttles a send.
const rateLimitedCode = -32602

// IsRateLimitError checks whether an error indicates daemon-side throttling.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	indicators := []string{
		"rate limit",
		"rate-limit",
		"ratelimit",
		"too many requests",
		"429",
		"proof required",
		"throttled",
	}
	for _, indicator := range indicators {
		if strings.Contains(errMsg, indicator) {
			return true
		}
	}

	return false
}

// wrapDaemonError converts a daemon error object into the richest error
// kind available: throttling responses become RateLimitError, everything
// else stays an RPCError.
func wrapDaemonError(rpcErr *RPCError) error {
	if rpcErr == nil {
		return nil
	}
	throttled := IsRateLimitError(rpcErr) ||
		(rpcErr.Code == rateLimitedCode && extractRetryAfter(rpcErr.Data) > 0)
	if throttled {
		return &RateLimitError{
			RetryAfter: extractRetryAfter(rpcErr.Data),
			Message:    rpcErr.Message,
			Err:        rpcErr,
		}
	}
	return rpcErr
}

// extractRetryAfter pulls a retry-after hint out of the error data payload.
// Returns 0 when no hint is present.
func extractRetryAfter(data json.RawMessage) time.Duration {
	if len(data) == 0 {
		return 0
	}
	var hint struct {
		RetryAfter int64 `json:"retryAfter"`
	}
	if err := json.Unmarshal(data, &hint); err != nil || hint.RetryAfter <= 0 {
		return 0
	}
	return time.Duration(hint.RetryAfter) * time.Second
}
