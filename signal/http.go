package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// defaultHTTPTimeout bounds one POST round trip when the per-call
// context carries no deadline of its own.
const defaultHTTPTimeout = 30 * time.Second

// HTTPTransport talks to signal-cli's HTTP endpoint: one POST per call,
// one response body per POST. It is stateless, so reconnection does not
// apply and daemon push notifications are not available in this mode.
// That limitation is inherent to the endpoint, not a gap in the client.
type HTTPTransport struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewHTTPTransport creates a transport for a signal-cli HTTP endpoint,
// e.g. "http://127.0.0.1:8080/api/v1/rpc".
func NewHTTPTransport(url string, logger *slog.Logger) *HTTPTransport {
	return &HTTPTransport{
		url:    url,
		client: &http.Client{Timeout: defaultHTTPTimeout},
		logger: logger,
	}
}

// Do implements UnaryTransport.Do.
func (t *HTTPTransport) Do(ctx context.Context, req *rpcRequest) (*rpcResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, &ConnectionError{Op: "post", Err: err}
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{
			RetryAfter: parseRetryAfterHeader(httpResp.Header.Get("Retry-After")),
			Message:    httpResp.Status,
		}
	}
	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusCreated {
		return nil, &ConnectionError{
			Op:  "post",
			Err: fmt.Errorf("unexpected status %s", httpResp.Status),
		}
	}

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &ConnectionError{Op: "post", Err: err}
	}

	var resp rpcResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &ParseError{Line: string(raw), Err: err}
	}
	if err := resp.validate(); err != nil {
		return nil, &ParseError{Line: string(raw), Err: err}
	}

	return &resp, nil
}

// parseRetryAfterHeader reads a Retry-After value, which servers send
// either as delay seconds or as an HTTP-date. Unparseable or elapsed
// values yield a zero hint.
func parseRetryAfterHeader(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// Close implements UnaryTransport.Close.
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
