// Package signal implements a client for the signal-cli JSON-RPC daemon:
// transports (child process, unix socket, TCP, HTTP), request/response
// correlation, automatic reconnection, and typed event routing.
package signal

import (
	"context"
	"sync"
)

// Transport is a persistent, newline-framed byte stream to the daemon.
// Implementations own exactly one OS handle (socket or child process)
// between a successful Connect and Close.
type Transport interface {
	// Connect establishes the channel. It returns once the transport is
	// confirmed usable: either the daemon produced its first line of
	// output, or a short grace period elapsed with the handle still alive.
	Connect(ctx context.Context) error

	// Send writes one framed payload. The trailing newline is appended by
	// the transport. Sending on a transport that is not connected returns
	// ErrNotConnected.
	Send(line []byte) error

	// Lines returns the channel of inbound framed payloads. A payload may
	// contain several newline-joined JSON documents; splitting is the
	// router's job.
	Lines() <-chan []byte

	// Done returns a channel that is closed when the transport terminates,
	// intentionally or not. After Done is closed, Err reports the cause.
	Done() <-chan struct{}

	// Err reports why the transport terminated. It returns nil for an
	// intentional Close and is only meaningful after Done is closed.
	Err() error

	// Close releases the OS handle. Safe to call more than once.
	Close() error
}

// UnaryTransport is the stateless alternative to Transport: one request,
// one response, no persistent channel. Only the HTTP variant implements
// it; calls through a UnaryTransport bypass the correlation map entirely.
type UnaryTransport interface {
	// Do sends a single request and waits for its single response.
	Do(ctx context.Context, req *rpcRequest) (*rpcResponse, error)

	// Close releases any pooled connections.
	Close() error
}

// MockTransport implements Transport for testing.
type MockTransport struct {
	mu          sync.Mutex
	sent        [][]byte
	onSend      func([]byte)
	connectErr  error
	terminated  bool
	intentional bool
	err         error

	lines chan []byte
	done  chan struct{}
}

// NewMockTransport creates a mock stream transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		lines: make(chan []byte, 100),
		done:  make(chan struct{}),
	}
}

// SetConnectError makes the next Connect fail.
func (m *MockTransport) SetConnectError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErr = err
}

// OnSend registers a hook invoked with every sent payload, e.g. an echo
// responder.
func (m *MockTransport) OnSend(f func([]byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSend = f
}

// SentLines returns every payload sent so far.
func (m *MockTransport) SentLines() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}

// PushLine simulates an inbound payload from the daemon.
func (m *MockTransport) PushLine(line string) {
	m.lines <- []byte(line)
}

// Fail simulates an unexpected transport death.
func (m *MockTransport) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terminated {
		return
	}
	m.terminated = true
	m.err = err
	close(m.done)
}

// Connect implements Transport.Connect.
func (m *MockTransport) Connect(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectErr
}

// Send implements Transport.Send.
func (m *MockTransport) Send(line []byte) error {
	m.mu.Lock()
	if m.terminated {
		m.mu.Unlock()
		return ErrNotConnected
	}
	buf := make([]byte, len(line))
	copy(buf, line)
	m.sent = append(m.sent, buf)
	hook := m.onSend
	m.mu.Unlock()

	if hook != nil {
		hook(buf)
	}
	return nil
}

// Lines implements Transport.Lines.
func (m *MockTransport) Lines() <-chan []byte {
	return m.lines
}

// Done implements Transport.Done.
func (m *MockTransport) Done() <-chan struct{} {
	return m.done
}

// Err implements Transport.Err.
func (m *MockTransport) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.intentional {
		return nil
	}
	return m.err
}

// Close implements Transport.Close.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terminated {
		return nil
	}
	m.terminated = true
	m.intentional = true
	close(m.done)
	return nil
}
