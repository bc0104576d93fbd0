package signal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	// defaultReadyGrace is how long Connect waits for a first line of
	// output before accepting a silently-running daemon as connected.
	// Some signal-cli versions print no startup banner at all.
	defaultReadyGrace = 2 * time.Second

	// defaultShutdownGrace is the window between the terminate signal and
	// the force kill during graceful shutdown.
	defaultShutdownGrace = 10 * time.Second
)

// ProcessConfig configures the child-process transport.
type ProcessConfig struct {
	// Command is the signal-cli executable path.
	Command string

	// Args are extra command-line arguments inserted before the jsonRpc
	// subcommand.
	Args []string

	// Account is the registered phone number, passed as -a.
	Account string

	// DataPath is the signal-cli data directory, passed as --config.
	DataPath string

	// ReadyGrace bounds the wait for the daemon's first output.
	ReadyGrace time.Duration

	// ShutdownGrace bounds the wait for a graceful exit before the
	// process is force-killed.
	ShutdownGrace time.Duration
}

// ProcessTransport runs signal-cli as a child process in its streaming
// JSON-RPC mode and exchanges newline-delimited frames over its stdio
// pipes. stderr is diagnostic output, classified by severity and routed
// to the log callback, never treated as transport data.
type ProcessTransport struct {
	cfg    ProcessConfig
	logger *slog.Logger
	onLog  func(LogEvent)

	mu          sync.Mutex
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	terminated  bool
	intentional bool
	err         error

	// writeMu serializes whole frames onto stdin so concurrent senders
	// cannot interleave partial writes.
	writeMu sync.Mutex

	lines  chan []byte
	ready  chan struct{}
	done   chan struct{}
	exited chan struct{}

	readyOnce sync.Once
	pipesDone sync.WaitGroup
}

// NewProcessTransport creates a transport that will spawn signal-cli on
// Connect. onLog receives classified stderr lines; nil discards them.
func NewProcessTransport(cfg ProcessConfig, logger *slog.Logger, onLog func(LogEvent)) *ProcessTransport {
	if cfg.Command == "" {
		cfg.Command = "signal-cli"
	}
	if cfg.ReadyGrace == 0 {
		cfg.ReadyGrace = defaultReadyGrace
	}
	if cfg.ShutdownGrace == 0 {
		cfg.ShutdownGrace = defaultShutdownGrace
	}
	if onLog == nil {
		onLog = func(LogEvent) {}
	}
	return &ProcessTransport{
		cfg:    cfg,
		logger: logger,
		onLog:  onLog,
		lines:  make(chan []byte, lineChannelBuffer),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
}

// buildArgs assembles the signal-cli argument vector ending in the
// streaming jsonRpc subcommand.
func (t *ProcessTransport) buildArgs() []string {
	args := make([]string, 0, len(t.cfg.Args)+5)
	if t.cfg.DataPath != "" {
		args = append(args, "--config", t.cfg.DataPath)
	}
	if t.cfg.Account != "" {
		args = append(args, "-a", t.cfg.Account)
	}
	args = append(args, t.cfg.Args...)
	args = append(args, "jsonRpc")
	return args
}

// commandLine maps an executable and its arguments to the vector actually
// spawned. On Windows the daemon is launched through cmd.exe, which
// requires the executable path to be quoted when it contains spaces;
// everywhere else the executable is spawned directly and the OS argv
// carries spaces without quoting.
func commandLine(goos, execPath string, args []string) (string, []string) {
	if goos != "windows" {
		return execPath, args
	}
	argv := make([]string, 0, len(args)+2)
	argv = append(argv, "/C", quoteIfNeeded(execPath))
	argv = append(argv, args...)
	return "cmd", argv
}

// quoteIfNeeded wraps a path in double quotes when it contains spaces.
func quoteIfNeeded(path string) string {
	if strings.ContainsRune(path, ' ') && !strings.HasPrefix(path, `"`) {
		return `"` + path + `"`
	}
	return path
}

// Connect implements Transport.Connect: spawn, wire pipes, then wait for
// first output or the ready grace period with the process still alive.
func (t *ProcessTransport) Connect(ctx context.Context) error {
	name, argv := commandLine(runtime.GOOS, t.cfg.Command, t.buildArgs())
	cmd := exec.Command(name, argv...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &ConnectionError{Op: "spawn", Err: fmt.Errorf("stdin pipe: %w", err)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &ConnectionError{Op: "spawn", Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &ConnectionError{Op: "spawn", Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return &ConnectionError{Op: "spawn", Err: err}
	}

	t.mu.Lock()
	t.cmd = cmd
	t.stdin = stdin
	t.mu.Unlock()

	t.pipesDone.Add(2)
	go t.stdoutLoop(stdout)
	go t.stderrLoop(stderr)
	go t.waitLoop(cmd)

	t.logger.Debug("signal-cli spawned", "pid", cmd.Process.Pid)

	grace := time.NewTimer(t.cfg.ReadyGrace)
	defer grace.Stop()

	select {
	case <-ctx.Done():
		_ = t.Close()
		return &ConnectionError{Op: "ready", Err: ctx.Err()}
	case <-t.done:
		return &ConnectionError{Op: "ready", Err: t.Err()}
	case <-t.ready:
		return nil
	case <-grace.C:
		// No banner, but the process is alive: good enough.
		return nil
	}
}

// Send implements Transport.Send.
func (t *ProcessTransport) Send(line []byte) error {
	t.mu.Lock()
	stdin := t.stdin
	terminated := t.terminated
	t.mu.Unlock()

	if stdin == nil || terminated {
		return ErrNotConnected
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := fmt.Fprintf(stdin, "%s\n", line); err != nil {
		return &ConnectionError{Op: "write", Err: err}
	}
	return nil
}

// stdoutLoop pumps transport frames; the first line also marks readiness.
func (t *ProcessTransport) stdoutLoop(stdout io.Reader) {
	defer t.pipesDone.Done()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, scanBufferInitial), scanBufferMax)

	for scanner.Scan() {
		t.readyOnce.Do(func() { close(t.ready) })
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		select {
		case t.lines <- line:
		case <-t.done:
			return
		}
	}
}

// stderrLoop classifies diagnostic output by severity and forwards it to
// the log callback.
func (t *ProcessTransport) stderrLoop(stderr io.Reader) {
	defer t.pipesDone.Done()

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		level := classifyStderr(line)
		t.onLog(LogEvent{Level: level, Line: line})
	}
}

// benignStderrMarkers is the allow-list of expected warning chatter that
// signal-cli prints during normal shutdown and network churn. These are
// demoted to debug instead of surfacing as real warnings.
var benignStderrMarkers = []string{
	"InterruptedException",
	"Thread interrupted",
	"sleep interrupted",
	"Connection closed",
	"cancelled",
	"WebSocket",
}

// classifyStderr maps one stderr line to a log level: tagged errors stay
// errors, allow-listed chatter is demoted to debug, everything else is
// informational.
func classifyStderr(line string) slog.Level {
	for _, marker := range benignStderrMarkers {
		if strings.Contains(line, marker) {
			return slog.LevelDebug
		}
	}
	switch {
	case strings.Contains(line, "ERROR"):
		return slog.LevelError
	case strings.Contains(line, "WARN"):
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// waitLoop reaps the child and records why it exited.
func (t *ProcessTransport) waitLoop(cmd *exec.Cmd) {
	err := cmd.Wait()
	t.pipesDone.Wait()

	if err != nil {
		t.terminate(&ConnectionError{Op: "process", Err: err}, false)
	} else {
		t.terminate(&ConnectionError{Op: "process", Err: fmt.Errorf("signal-cli exited")}, false)
	}
	close(t.exited)
}

// terminate records the cause of death and closes done, exactly once.
func (t *ProcessTransport) terminate(err error, intentional bool) {
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
func (t *ProcessTransport) Lines() <-chan []byte {
	return t.lines
}

// Done implements Transport.Done.
func (t *ProcessTransport) Done() <-chan struct{} {
	return t.done
}

// Err implements Transport.Err.
func (t *ProcessTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.intentional {
		return nil
	}
	return t.err
}

// Close implements Transport.Close. It attempts a cooperative shutdown:
// close stdin and signal an interrupt, wait out the shutdown grace, then
// force-kill.
func (t *ProcessTransport) Close() error {
	return t.shutdown(context.Background())
}

// Shutdown is Close with a caller-controlled deadline.
func (t *ProcessTransport) Shutdown(ctx context.Context) error {
	return t.shutdown(ctx)
}

func (t *ProcessTransport) shutdown(ctx context.Context) error {
	t.terminate(nil, true)

	t.mu.Lock()
	cmd := t.cmd
	stdin := t.stdin
	t.cmd = nil
	t.stdin = nil
	t.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	// Closing stdin is the polite request: signal-cli exits its jsonRpc
	// loop on EOF.
	if stdin != nil {
		_ = stdin.Close()
	}
	_ = cmd.Process.Signal(os.Interrupt)

	grace := time.NewTimer(t.cfg.ShutdownGrace)
	defer grace.Stop()

	// waitLoop owns cmd.Wait and closes exited once the child is reaped.
	select {
	case <-t.exited:
		return nil
	case <-ctx.Done():
	case <-grace.C:
	}

	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("force-killing signal-cli: %w", err)
	}
	<-t.exited
	return nil
}
