package signal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

const (
	// scanBufferInitial and scanBufferMax bound the reader's line buffer.
	// signal-cli can emit very large envelopes (attachments as base64).
	scanBufferInitial = 1024 * 1024
	scanBufferMax     = 10 * 1024 * 1024

	// lineChannelBuffer is the inbound payload channel capacity.
	lineChannelBuffer = 100

	// defaultDialTimeout bounds socket establishment.
	defaultDialTimeout = 10 * time.Second
)

// SocketTransport is a persistent unix-domain or TCP socket to a running
// signal-cli daemon. Messages are newline-delimited JSON in both
// directions. The transport is single-use: one Connect, one Close; the
// client builds a fresh instance for every reconnect attempt.
type SocketTransport struct {
	network string
	address string
	timeout time.Duration
	logger  *slog.Logger

	mu          sync.Mutex
	conn        net.Conn
	terminated  bool
	intentional bool
	err         error

	// writeMu serializes whole frames onto the socket so concurrent
	// senders cannot interleave partial writes.
	writeMu sync.Mutex

	lines chan []byte
	done  chan struct{}
}

// NewSocketTransport creates a transport for the given address.
// Supported address forms:
//   - "unix:///run/signal-cli.sock" → unix socket
//   - "tcp://host:port"             → TCP
//   - "/run/signal-cli.sock"        → unix socket (leading slash)
//   - "host:port"                   → TCP (default)
func NewSocketTransport(address string, logger *slog.Logger) *SocketTransport {
	network, addr := parseSocketAddress(address)
	return &SocketTransport{
		network: network,
		address: addr,
		timeout: defaultDialTimeout,
		logger:  logger,
		lines:   make(chan []byte, lineChannelBuffer),
		done:    make(chan struct{}),
	}
}

// parseSocketAddress extracts network kind and dial address.
func parseSocketAddress(address string) (network, addr string) {
	switch {
	case strings.HasPrefix(address, "unix://"):
		return "unix", strings.TrimPrefix(address, "unix://")
	case strings.HasPrefix(address, "tcp://"):
		return "tcp", strings.TrimPrefix(address, "tcp://")
	case strings.HasPrefix(address, "/"):
		return "unix", address
	default:
		return "tcp", address
	}
}

// Connect implements Transport.Connect.
func (t *SocketTransport) Connect(ctx context.Context) error {
	dialer := net.Dialer{Timeout: t.timeout}
	conn, err := dialer.DialContext(ctx, t.network, t.address)
	if err != nil {
		return &ConnectionError{Op: "dial", Err: err}
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	go t.readLoop(conn)

	t.logger.Debug("socket transport connected", "network", t.network, "address", t.address)
	return nil
}

// Send implements Transport.Send.
func (t *SocketTransport) Send(line []byte) error {
	t.mu.Lock()
	conn := t.conn
	terminated := t.terminated
	t.mu.Unlock()

	if conn == nil || terminated {
		return ErrNotConnected
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		return &ConnectionError{Op: "write", Err: err}
	}
	return nil
}

// readLoop pumps inbound frames until the socket dies.
func (t *SocketTransport) readLoop(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, scanBufferInitial), scanBufferMax)

	for scanner.Scan() {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		select {
		case t.lines <- line:
		case <-t.done:
			return
		}
	}

	readErr := scanner.Err()
	if readErr == nil {
		readErr = io.EOF
	}
	t.terminate(&ConnectionError{Op: "read", Err: readErr}, false)
}

// terminate records the cause of death and closes the done channel,
// exactly once.
func (t *SocketTransport) terminate(err error, intentional bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.terminated {
		return
	}
	t.terminated = true
	t.intentional = intentional
	t.err = err
	close(t.done)
}

// Lines implements Transport.Lines.
func (t *SocketTransport) Lines() <-chan []byte {
	return t.lines
}

// Done implements Transport.Done.
func (t *SocketTransport) Done() <-chan struct{} {
	return t.done
}

// Err implements Transport.Err.
func (t *SocketTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.intentional {
		return nil
	}
	return t.err
}

// Close implements Transport.Close.
func (t *SocketTransport) Close() error {
	t.terminate(nil, true)

	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			return fmt.Errorf("closing socket: %w", err)
		}
	}
	return nil
}
