package signal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// limiter is the admission controller sitting above the correlation
// engine: it enforces a minimum interval between outgoing requests and a
// cap on concurrently outstanding calls. Either constraint may be
// disabled with a zero value.
type limiter struct {
	interval time.Duration
	slots    chan struct{}

	mu       sync.Mutex
	lastSend time.Time
}

func newLimiter(interval time.Duration, maxConcurrent int) *limiter {
	l := &limiter{interval: interval}
	if maxConcurrent > 0 {
		l.slots = make(chan struct{}, maxConcurrent)
	}
	return l
}

// acquire blocks until the call is admitted or ctx expires. Every
// successful acquire must be paired with a release.
func (l *limiter) acquire(ctx context.Context) error {
	if l.slots != nil {
		select {
		case l.slots <- struct{}{}:
		case <-ctx.Done():
			return fmt.Errorf("context canceled while waiting for a request slot: %w", ctx.Err())
		}
	}

	if l.interval > 0 {
		l.mu.Lock()
		wait := l.interval - time.Since(l.lastSend)
		if wait <= 0 {
			l.lastSend = time.Now()
			l.mu.Unlock()
			return nil
		}
		// Reserve the slot now so concurrent acquirers queue behind us.
		prev := l.lastSend
		reserved := time.Now().Add(wait)
		l.lastSend = reserved
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			// Give the pacing reservation back unless a later acquirer
			// already moved past it.
			l.mu.Lock()
			if l.lastSend.Equal(reserved) {
				l.lastSend = prev
			}
			l.mu.Unlock()
			if l.slots != nil {
				<-l.slots
			}
			return fmt.Errorf("context canceled while pacing requests: %w", ctx.Err())
		}
	}

	return nil
}

// release returns a concurrency slot.
func (l *limiter) release() {
	if l.slots != nil {
		<-l.slots
	}
}
