package signal

import (
	"log/slog"
	"sync"
	"time"
)

// reconnectSupervisor schedules connection retries with exponential
// backoff after unexpected transport closures. Intentional shutdown
// never triggers it, and attempts beyond the cap are terminal until the
// caller reconnects manually.
type reconnectSupervisor struct {
	base        time.Duration
	maxAttempts int
	connect     func() error
	logger      *slog.Logger
	emitter     *Emitter

	// afterFunc is swappable so tests can observe scheduled delays
	// without waiting for them.
	afterFunc func(d time.Duration, f func()) *time.Timer

	mu       sync.Mutex
	attempts int
	timer    *time.Timer
	stopped  bool
}

func newReconnectSupervisor(base time.Duration, maxAttempts int, connect func() error, emitter *Emitter, logger *slog.Logger) *reconnectSupervisor {
	return &reconnectSupervisor{
		base:        base,
		maxAttempts: maxAttempts,
		connect:     connect,
		emitter:     emitter,
		logger:      logger,
		afterFunc:   time.AfterFunc,
	}
}

// onClose reacts to a transport termination. Exactly one reconnect is
// scheduled per unexpected close; the delay doubles with each attempt
// (base, 2·base, 4·base, ...).
func (s *reconnectSupervisor) onClose(intentional bool) {
	if intentional {
		s.logger.Info("transport closed intentionally, not reconnecting")
		return
	}
	s.schedule()
}

// schedule books the next reconnect attempt, or gives up if the cap is
// reached.
func (s *reconnectSupervisor) schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if s.timer != nil {
		// A reconnect is already booked; the schedule is never
		// re-entered concurrently.
		return
	}
	if s.attempts >= s.maxAttempts {
		s.logger.Error("reconnect attempts exhausted", "attempts", s.attempts)
		s.emitter.emitError(ErrReconnectExhausted)
		return
	}

	s.attempts++
	delay := s.base << (s.attempts - 1)
	s.logger.Warn("transport lost, scheduling reconnect",
		"attempt", s.attempts,
		"max_attempts", s.maxAttempts,
		"delay", delay)
	s.timer = s.afterFunc(delay, s.attempt)
}

// attempt runs one reconnect try. Success resets the backoff; failure
// books the next attempt.
func (s *reconnectSupervisor) attempt() {
	s.mu.Lock()
	s.timer = nil
	if s.stopped {
		s.mu.Unlock()
		return
	}
	attempt := s.attempts
	s.mu.Unlock()

	if err := s.connect(); err != nil {
		s.logger.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
		s.schedule()
		return
	}

	s.logger.Info("reconnected", "after_attempts", attempt)
	s.reset()
}

// reset clears the backoff state after a successful connection.
func (s *reconnectSupervisor) reset() {
	s.mu.Lock()
	s.attempts = 0
	s.mu.Unlock()
}

// stop cancels any pending reconnect timer. Called synchronously on
// client shutdown so no callback fires after teardown.
func (s *reconnectSupervisor) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// resume re-arms a stopped supervisor. Used when the caller manually
// reconnects after exhaustion or shutdown.
func (s *reconnectSupervisor) resume() {
	s.mu.Lock()
	s.stopped = false
	s.attempts = 0
	s.mu.Unlock()
}
