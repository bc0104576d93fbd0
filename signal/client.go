package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// callTimer wraps a timeout timer that may be disabled (zero duration).
type callTimer struct {
	t *time.Timer
}

func newCallTimer(d time.Duration) *callTimer {
	if d <= 0 {
		return &callTimer{}
	}
	return &callTimer{t: time.NewTimer(d)}
}

func (ct *callTimer) c() <-chan time.Time {
	if ct.t == nil {
		return nil
	}
	return ct.t.C
}

func (ct *callTimer) stop() {
	if ct.t != nil {
		ct.t.Stop()
	}
}

// ConnectionState describes the client's lifecycle position.
type ConnectionState int32

// Connection states.
const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateShuttingDown
)

// String implements fmt.Stringer.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Client is the façade over one signal-cli connection: it owns the
// transport, the correlation map, the event emitter, and the
// reconnection supervisor.
type Client struct {
	cfg     Config
	logger  *slog.Logger
	emitter *Emitter
	pending *pendingCalls
	limiter *limiter

	// newID mints correlation tokens. Swappable in tests.
	newID func() string

	// newTransport builds the stream transport per the config. Swappable
	// so tests and embedders can supply their own channel.
	newTransport func() Transport

	supervisor *reconnectSupervisor

	mu          sync.Mutex
	state       ConnectionState
	transport   Transport
	unary       UnaryTransport
	intentional bool
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTransportFactory replaces the built-in stream transport
// construction. The factory is invoked on every connect attempt,
// including reconnects.
func WithTransportFactory(factory func() Transport) ClientOption {
	return func(c *Client) {
		c.newTransport = factory
	}
}

// NewClient creates a client for the given configuration. The client
// starts Disconnected; call Connect to establish the channel.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:     cfg,
		logger:  slog.Default(),
		emitter: NewEmitter(),
		pending: newPendingCalls(),
		limiter: newLimiter(cfg.MinRequestInterval, cfg.MaxConcurrentRequests),
		newID:   uuid.NewString,
		state:   StateDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.newTransport == nil {
		c.newTransport = c.buildTransport
	}

	c.supervisor = newReconnectSupervisor(
		cfg.ReconnectBase,
		cfg.MaxReconnectAttempts,
		func() error { return c.establish(context.Background()) },
		c.emitter,
		c.logger,
	)

	return c, nil
}

// Events returns the typed event emitter. Subscribe before Connect to
// observe everything from the first envelope on.
func (c *Client) Events() *Emitter {
	return c.emitter
}

// State reports the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// buildTransport constructs the stream transport named by the config.
// HTTP is handled separately in Connect since it is not a stream.
func (c *Client) buildTransport() Transport {
	onLog := func(ev LogEvent) {
		c.logger.Log(context.Background(), ev.Level, "signal-cli: "+ev.Line)
		c.emitter.emitLog(ev)
		if ev.Level == slog.LevelError {
			c.emitter.emitError(fmt.Errorf("signal-cli: %s", ev.Line))
		}
	}

	switch c.cfg.Transport {
	case TransportUnix, TransportTCP:
		return NewSocketTransport(c.cfg.Address, c.logger)
	default:
		return NewProcessTransport(ProcessConfig{
			Command:  c.cfg.Command,
			Args:     c.cfg.Args,
			Account:  c.cfg.Account,
			DataPath: c.cfg.DataPath,
		}, c.logger, onLog)
	}
}

// Connect establishes the configured channel.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnected, StateConnecting:
		c.mu.Unlock()
		return fmt.Errorf("already connected")
	case StateShuttingDown:
		c.mu.Unlock()
		return ErrShuttingDown
	case StateDisconnected:
	}
	c.state = StateConnecting
	c.intentional = false
	c.mu.Unlock()

	c.supervisor.resume()

	if c.cfg.Transport == TransportHTTP {
		c.mu.Lock()
		c.unary = NewHTTPTransport(c.cfg.URL, c.logger)
		c.state = StateConnected
		c.mu.Unlock()
		return nil
	}

	if err := c.establish(ctx); err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return err
	}
	return nil
}

// establish opens one stream transport and starts its pump and watcher.
// It is called both from Connect and from the reconnection supervisor.
func (c *Client) establish(ctx context.Context) error {
	t := c.newTransport()
	if err := t.Connect(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	if c.state == StateShuttingDown {
		c.mu.Unlock()
		_ = t.Close()
		return ErrShuttingDown
	}
	c.transport = t
	c.state = StateConnected
	c.mu.Unlock()

	go c.pump(t)
	go c.watch(t)

	c.logger.Info("connected to signal-cli", "transport", string(c.cfg.Transport))
	return nil
}

// pump feeds inbound payloads to the router until the transport dies.
func (c *Client) pump(t Transport) {
	router := newRouter(c.pending, c.emitter, c.logger)
	for {
		select {
		case line := <-t.Lines():
			router.dispatch(line)
		case <-t.Done():
			// Drain anything already buffered before giving up.
			for {
				select {
				case line := <-t.Lines():
					router.dispatch(line)
				default:
					return
				}
			}
		}
	}
}

// watch reacts to the transport's termination: it fails outstanding
// calls, emits a close event, and hands the decision to the supervisor.
func (c *Client) watch(t Transport) {
	<-t.Done()
	terminationErr := t.Err()

	c.mu.Lock()
	if c.transport != t {
		// A newer transport has already replaced this one.
		c.mu.Unlock()
		return
	}
	c.transport = nil
	intentional := c.intentional || terminationErr == nil
	if c.state == StateConnected || c.state == StateConnecting {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	if terminationErr != nil {
		c.pending.failAll(&ConnectionError{Op: "read", Err: terminationErr})
	} else {
		c.pending.failAll(ErrNotConnected)
	}

	c.emitter.emitClose(CloseEvent{Intentional: intentional, Err: terminationErr})
	c.supervisor.onClose(intentional)
}

// Disconnect closes the connection without reconnecting. The client can
// be connected again later.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.intentional = true
	t := c.transport
	u := c.unary
	c.unary = nil
	if c.state != StateShuttingDown {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	c.supervisor.stop()

	var err error
	if t != nil {
		err = t.Close()
	}
	if u != nil {
		if closeErr := u.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}

// GracefulShutdown tears the client down for good: it stops the
// supervisor, cooperatively terminates a process transport within the
// context's deadline, rejects every pending call, and closes all event
// channels. The client must not be reused afterwards.
func (c *Client) GracefulShutdown(ctx context.Context) error {
	c.mu.Lock()
	c.state = StateShuttingDown
	c.intentional = true
	t := c.transport
	c.transport = nil
	u := c.unary
	c.unary = nil
	c.mu.Unlock()

	c.supervisor.stop()

	var err error
	switch tt := t.(type) {
	case *ProcessTransport:
		err = tt.Shutdown(ctx)
	case nil:
	default:
		err = tt.Close()
	}
	if u != nil {
		if closeErr := u.Close(); err == nil {
			err = closeErr
		}
	}

	c.pending.failAll(ErrShuttingDown)
	c.emitter.emitClose(CloseEvent{Intentional: true})
	c.emitter.Close()

	c.mu.Lock()
	c.state = StateDisconnected
	c.mu.Unlock()

	return err
}

// Call issues one JSON-RPC request and waits for its response, the call
// timeout, or ctx, whichever settles first. It is safe for any number of
// concurrent callers; responses correlate by token, not arrival order.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	state := c.state
	t := c.transport
	u := c.unary
	c.mu.Unlock()

	if state == StateShuttingDown {
		return nil, ErrShuttingDown
	}

	if u != nil {
		return c.callUnary(ctx, u, method, params)
	}

	// Calls with no live transport fail immediately: never queued, no
	// timer started, no map entry created.
	if t == nil || state != StateConnected {
		return nil, ErrNotConnected
	}

	if err := c.limiter.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.limiter.release()

	id := c.newID()
	req := rpcRequest{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	ch := c.pending.register(id)
	if sendErr := t.Send(data); sendErr != nil {
		c.pending.remove(id)
		return nil, sendErr
	}

	timer := newCallTimer(c.cfg.CallTimeout)
	defer timer.stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		if res.resp.Error != nil {
			return nil, wrapDaemonError(res.resp.Error)
		}
		return res.resp.Result, nil
	case <-timer.c():
		c.pending.remove(id)
		return nil, &TimeoutError{Method: method, After: c.cfg.CallTimeout}
	case <-ctx.Done():
		c.pending.remove(id)
		return nil, fmt.Errorf("context canceled while waiting for %q: %w", method, ctx.Err())
	}
}

// callUnary is the HTTP path: one request, one response, no correlation
// map involved.
func (c *Client) callUnary(ctx context.Context, u UnaryTransport, method string, params any) (json.RawMessage, error) {
	if err := c.limiter.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.limiter.release()

	if c.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}

	resp, err := u.Do(ctx, &rpcRequest{
		JSONRPC: jsonRPCVersion,
		ID:      c.newID(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, wrapDaemonError(resp.Error)
	}
	return resp.Result, nil
}

// accountParams starts a params map carrying the account when one is
// configured (multi-account daemons require it).
func (c *Client) accountParams() map[string]any {
	params := make(map[string]any)
	if c.cfg.Account != "" {
		params["account"] = c.cfg.Account
	}
	return params
}
