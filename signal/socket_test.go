package signal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDaemonServer is a line-oriented unix-socket server standing in for
// a running signal-cli daemon.
type mockDaemonServer struct {
	listener net.Listener

	mu       sync.Mutex
	conn     net.Conn
	received []string
}

func newMockDaemonServer(t *testing.T) (*mockDaemonServer, string) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "signal-cli.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	s := &mockDaemonServer{listener: listener}
	go s.acceptLoop()
	t.Cleanup(func() { _ = listener.Close() })

	return s, socketPath
}

func (s *mockDaemonServer) acceptLoop() {
	conn, err := s.listener.Accept()
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		s.mu.Lock()
		s.received = append(s.received, scanner.Text())
		s.mu.Unlock()
	}
}

func (s *mockDaemonServer) push(t *testing.T, line string) {
	t.Helper()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.conn != nil
	}, time.Second, 5*time.Millisecond, "no client connected")

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	_, err := conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func (s *mockDaemonServer) receivedLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

func (s *mockDaemonServer) dropConnection(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.conn != nil
	}, time.Second, 5*time.Millisecond, "no client connected")

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func TestParseSocketAddress(t *testing.T) {
	tests := []struct {
		name        string
		address     string
		wantNetwork string
		wantAddr    string
	}{
		{"unix scheme", "unix:///run/signal-cli.sock", "unix", "/run/signal-cli.sock"},
		{"tcp scheme", "tcp://127.0.0.1:7583", "tcp", "127.0.0.1:7583"},
		{"bare path", "/run/signal-cli.sock", "unix", "/run/signal-cli.sock"},
		{"bare host port", "127.0.0.1:7583", "tcp", "127.0.0.1:7583"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			network, addr := parseSocketAddress(tt.address)
			assert.Equal(t, tt.wantNetwork, network)
			assert.Equal(t, tt.wantAddr, addr)
		})
	}
}

func TestSocketTransportSendAndReceive(t *testing.T) {
	server, socketPath := newMockDaemonServer(t)

	transport := NewSocketTransport(socketPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, transport.Connect(context.Background()))
	defer func() { _ = transport.Close() }()

	require.NoError(t, transport.Send([]byte(`{"jsonrpc":"2.0","id":"1","method":"version"}`)))
	require.Eventually(t, func() bool {
		return len(server.receivedLines()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, `{"jsonrpc":"2.0","id":"1","method":"version"}`, server.receivedLines()[0])

	server.push(t, `{"jsonrpc":"2.0","id":"1","result":{}}`)
	select {
	case line := <-transport.Lines():
		assert.JSONEq(t, `{"jsonrpc":"2.0","id":"1","result":{}}`, string(line))
	case <-time.After(time.Second):
		t.Fatal("inbound line never surfaced")
	}
}

func TestSocketTransportConcurrentSendsKeepFramesIntact(t *testing.T) {
	server, socketPath := newMockDaemonServer(t)

	transport := NewSocketTransport(socketPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, transport.Connect(context.Background()))
	defer func() { _ = transport.Close() }()

	const senders = 20
	// Pad each frame well past the pipe atomic-write size so interleaved
	// partial writes would corrupt lines.
	padding := strings.Repeat("x", 8192)

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			frame := fmt.Sprintf(`{"jsonrpc":"2.0","id":"%d","method":"send","params":{"note":"%s"}}`, i, padding)
			assert.NoError(t, transport.Send([]byte(frame)))
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return len(server.receivedLines()) == senders
	}, 2*time.Second, 5*time.Millisecond)

	seen := make(map[string]bool)
	for _, line := range server.receivedLines() {
		var frame struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &frame), "received a corrupted frame: %.80s", line)
		seen[frame.ID] = true
	}
	assert.Len(t, seen, senders)
}

func TestSocketTransportRemoteCloseIsUnintentional(t *testing.T) {
	server, socketPath := newMockDaemonServer(t)

	transport := NewSocketTransport(socketPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, transport.Connect(context.Background()))
	defer func() { _ = transport.Close() }()

	server.dropConnection(t)

	select {
	case <-transport.Done():
	case <-time.After(time.Second):
		t.Fatal("transport never noticed the dropped connection")
	}

	var connErr *ConnectionError
	require.ErrorAs(t, transport.Err(), &connErr)
	assert.Equal(t, "read", connErr.Op)
}

func TestSocketTransportCloseIsIntentional(t *testing.T) {
	_, socketPath := newMockDaemonServer(t)

	transport := NewSocketTransport(socketPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, transport.Connect(context.Background()))

	require.NoError(t, transport.Close())

	select {
	case <-transport.Done():
	case <-time.After(time.Second):
		t.Fatal("done channel not closed")
	}
	assert.NoError(t, transport.Err())

	// Sending on a closed transport fails fast.
	require.ErrorIs(t, transport.Send([]byte("{}")), ErrNotConnected)
}

func TestSocketTransportDialFailure(t *testing.T) {
	transport := NewSocketTransport(filepath.Join(t.TempDir(), "absent.sock"), slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := transport.Connect(context.Background())

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "dial", connErr.Op)
}
