// Package bot is a small framework on top of the signal client: a
// single-flight action queue with per-user command cooldowns, admin
// gating, and inbound buffering while sends are in flight.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"
)

const (
	// defaultInterActionDelay spaces queued sends so the daemon is never
	// flooded.
	defaultInterActionDelay = 500 * time.Millisecond

	// defaultCleanupGrace is how long after a dispatch the attachment
	// temp files survive, giving the daemon time to read them.
	defaultCleanupGrace = 30 * time.Second

	// defaultDispatchTimeout bounds one queued send.
	defaultDispatchTimeout = 30 * time.Second
)

// ErrQueueStopped indicates the queue no longer accepts actions.
var ErrQueueStopped = errors.New("action queue stopped")

// Messenger is the slice of the signal client the queue dispatches
// through.
type Messenger interface {
	SendMessage(ctx context.Context, recipient, message string) (int64, error)
	SendAttachment(ctx context.Context, recipient, message string, paths []string) (int64, error)
	SendReaction(ctx context.Context, recipient, emoji, targetAuthor string, targetTimestamp int64, remove bool) error
}

// ActionKind tags the variants of a queued action.
type ActionKind int

// Action kinds.
const (
	ActionSendMessage ActionKind = iota
	ActionSendAttachment
	ActionSendReaction
)

// Action is one outbound side effect waiting in the queue.
type Action struct {
	Kind      ActionKind
	Recipient string
	Message   string

	// Attachments are file paths passed to the daemon.
	Attachments []string

	// CleanupPaths are temp files to delete after the cleanup grace
	// period once the action has been dispatched.
	CleanupPaths []string

	// Reaction fields.
	Emoji           string
	TargetAuthor    string
	TargetTimestamp int64
	Remove          bool
}

// ActionQueue serializes outbound actions into a strict FIFO drained by
// at most one goroutine per queue. Dispatch failures are logged and
// skipped; they never abort the rest of the queue.
type ActionQueue struct {
	messenger       Messenger
	logger          *slog.Logger
	interDelay      time.Duration
	cleanupGrace    time.Duration
	dispatchTimeout time.Duration

	// onIdle fires after the drain loop empties the queue. The bot uses
	// it to replay buffered inbound messages.
	onIdle func()

	mu       sync.Mutex
	items    []Action
	draining bool
	stopped  bool
	cleanups map[*time.Timer][]string

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// QueueOption configures the queue.
type QueueOption func(*ActionQueue)

// WithInterActionDelay sets the pause between dispatches.
func WithInterActionDelay(d time.Duration) QueueOption {
	return func(q *ActionQueue) {
		q.interDelay = d
	}
}

// WithCleanupGrace sets the delay before attachment temp files are
// deleted after dispatch.
func WithCleanupGrace(d time.Duration) QueueOption {
	return func(q *ActionQueue) {
		q.cleanupGrace = d
	}
}

// WithQueueLogger sets a custom logger.
func WithQueueLogger(logger *slog.Logger) QueueOption {
	return func(q *ActionQueue) {
		q.logger = logger
	}
}

// withOnIdle registers the queue-empty callback.
func withOnIdle(f func()) QueueOption {
	return func(q *ActionQueue) {
		q.onIdle = f
	}
}

// NewActionQueue creates an idle queue dispatching through messenger.
func NewActionQueue(messenger Messenger, opts ...QueueOption) *ActionQueue {
	q := &ActionQueue{
		messenger:       messenger,
		logger:          slog.Default(),
		interDelay:      defaultInterActionDelay,
		cleanupGrace:    defaultCleanupGrace,
		dispatchTimeout: defaultDispatchTimeout,
		cleanups:        make(map[*time.Timer][]string),
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends an action and starts the drain loop if the queue is
// idle. The boolean guard ensures at most one drain loop exists.
func (q *ActionQueue) Enqueue(action Action) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return ErrQueueStopped
	}
	q.items = append(q.items, action)
	if !q.draining {
		q.draining = true
		q.wg.Add(1)
		go q.drain()
	}
	return nil
}

// Draining reports whether the drain loop is running.
func (q *ActionQueue) Draining() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.draining
}

// Len reports how many actions are waiting.
func (q *ActionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// drain pops and dispatches actions until the queue empties or the
// queue stops.
func (q *ActionQueue) drain() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		if q.stopped || len(q.items) == 0 {
			q.draining = false
			idle := !q.stopped
			q.mu.Unlock()
			if idle && q.onIdle != nil {
				q.onIdle()
			}
			return
		}
		action := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		q.dispatch(action)

		select {
		case <-time.After(q.interDelay):
		case <-q.stopCh:
			q.mu.Lock()
			q.draining = false
			q.mu.Unlock()
			return
		}
	}
}

// dispatch executes one action. Failures are logged and the loop moves
// on; attachment cleanup runs eagerly when the dispatch itself failed.
func (q *ActionQueue) dispatch(action Action) {
	ctx, cancel := context.WithTimeout(context.Background(), q.dispatchTimeout)
	defer cancel()

	var err error
	switch action.Kind {
	case ActionSendMessage:
		_, err = q.messenger.SendMessage(ctx, action.Recipient, action.Message)
	case ActionSendAttachment:
		_, err = q.messenger.SendAttachment(ctx, action.Recipient, action.Message, action.Attachments)
	case ActionSendReaction:
		err = q.messenger.SendReaction(ctx, action.Recipient, action.Emoji, action.TargetAuthor, action.TargetTimestamp, action.Remove)
	default:
		q.logger.Error("unknown action kind", "kind", int(action.Kind))
		return
	}

	if err != nil {
		q.logger.Error("action dispatch failed",
			"recipient", action.Recipient,
			"error", err)
		removeFiles(action.CleanupPaths)
		return
	}

	q.scheduleCleanup(action.CleanupPaths)
}

// scheduleCleanup books delayed deletion of attachment temp files. The
// timers are tracked so Stop can clear them synchronously.
func (q *ActionQueue) scheduleCleanup(paths []string) {
	if len(paths) == 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		removeFiles(paths)
		return
	}

	var timer *time.Timer
	timer = time.AfterFunc(q.cleanupGrace, func() {
		removeFiles(paths)
		q.mu.Lock()
		delete(q.cleanups, timer)
		q.mu.Unlock()
	})
	q.cleanups[timer] = paths
}

// Stop halts the drain loop and clears every pending cleanup timer,
// deleting the files those timers were guarding. Waits for the drain
// loop to exit.
func (q *ActionQueue) Stop() {
	q.mu.Lock()
	q.stopped = true
	timers := q.cleanups
	q.cleanups = make(map[*time.Timer][]string)
	q.mu.Unlock()

	q.stopOnce.Do(func() { close(q.stopCh) })

	for timer, paths := range timers {
		if timer.Stop() {
			removeFiles(paths)
		}
	}

	q.wg.Wait()
}

// removeFiles deletes temp files, ignoring ones already gone.
func removeFiles(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			slog.Default().Debug("attachment cleanup failed", "path", p, "error", err)
		}
	}
}
