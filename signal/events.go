package signal

import (
	"log/slog"
	"sync"
)

// eventBuffer is the per-subscriber channel capacity. Emission never
// blocks; a subscriber that falls this far behind loses events.
const eventBuffer = 100

// MessageEvent is an inbound envelope pushed by the daemon.
type MessageEvent struct {
	Account  string
	Envelope *Envelope
}

// ReactionEvent is emitted when an envelope carries reaction fields.
type ReactionEvent struct {
	Account  string
	Envelope *Envelope
	Reaction *Reaction
}

// ReceiptEvent is emitted when an envelope carries receipt fields.
type ReceiptEvent struct {
	Account  string
	Envelope *Envelope
	Receipt  *ReceiptMessage
}

// TypingEvent is emitted when an envelope carries typing fields.
type TypingEvent struct {
	Account  string
	Envelope *Envelope
	Typing   *TypingMessage
}

// StoryEvent is emitted when an envelope carries story fields.
type StoryEvent struct {
	Account  string
	Envelope *Envelope
	Story    *StoryMessage
}

// LogEvent is diagnostic output from the daemon's stderr.
type LogEvent struct {
	Level slog.Level
	Line  string
}

// CloseEvent reports a transport termination. Err is nil for an
// intentional shutdown.
type CloseEvent struct {
	Intentional bool
	Err         error
}

// Emitter fans events out to subscribers over strongly-typed channels.
// Every channel supports any number of subscribers; each subscriber gets
// its own buffered channel and receives every event emitted after it
// subscribed.
type Emitter struct {
	mu sync.RWMutex

	messages      []chan *MessageEvent
	notifications []chan *Notification
	reactions     []chan *ReactionEvent
	receipts      []chan *ReceiptEvent
	typings       []chan *TypingEvent
	stories       []chan *StoryEvent
	errs          []chan error
	logs          []chan LogEvent
	closes        []chan CloseEvent

	closed bool
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// OnMessage subscribes to inbound message envelopes.
func (e *Emitter) OnMessage() <-chan *MessageEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan *MessageEvent, eventBuffer)
	e.messages = append(e.messages, ch)
	return ch
}

// OnNotification subscribes to all daemon push notifications, regardless
// of method.
func (e *Emitter) OnNotification() <-chan *Notification {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan *Notification, eventBuffer)
	e.notifications = append(e.notifications, ch)
	return ch
}

// OnReaction subscribes to reaction events.
func (e *Emitter) OnReaction() <-chan *ReactionEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan *ReactionEvent, eventBuffer)
	e.reactions = append(e.reactions, ch)
	return ch
}

// OnReceipt subscribes to receipt events.
func (e *Emitter) OnReceipt() <-chan *ReceiptEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan *ReceiptEvent, eventBuffer)
	e.receipts = append(e.receipts, ch)
	return ch
}

// OnTyping subscribes to typing events.
func (e *Emitter) OnTyping() <-chan *TypingEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan *TypingEvent, eventBuffer)
	e.typings = append(e.typings, ch)
	return ch
}

// OnStory subscribes to story events.
func (e *Emitter) OnStory() <-chan *StoryEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan *StoryEvent, eventBuffer)
	e.stories = append(e.stories, ch)
	return ch
}

// OnError subscribes to asynchronous errors: parse failures, reconnect
// exhaustion, daemon stderr errors. Call-site errors are returned from
// the calls themselves and never appear here.
func (e *Emitter) OnError() <-chan error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan error, eventBuffer)
	e.errs = append(e.errs, ch)
	return ch
}

// OnLog subscribes to daemon diagnostic output.
func (e *Emitter) OnLog() <-chan LogEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan LogEvent, eventBuffer)
	e.logs = append(e.logs, ch)
	return ch
}

// OnClose subscribes to transport termination events.
func (e *Emitter) OnClose() <-chan CloseEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan CloseEvent, eventBuffer)
	e.closes = append(e.closes, ch)
	return ch
}

func (e *Emitter) emitMessage(ev *MessageEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	for _, ch := range e.messages {
		deliver(ch, ev)
	}
}

func (e *Emitter) emitNotification(n *Notification) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	for _, ch := range e.notifications {
		deliver(ch, n)
	}
}

func (e *Emitter) emitReaction(ev *ReactionEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	for _, ch := range e.reactions {
		deliver(ch, ev)
	}
}

func (e *Emitter) emitReceipt(ev *ReceiptEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	for _, ch := range e.receipts {
		deliver(ch, ev)
	}
}

func (e *Emitter) emitTyping(ev *TypingEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	for _, ch := range e.typings {
		deliver(ch, ev)
	}
}

func (e *Emitter) emitStory(ev *StoryEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	for _, ch := range e.stories {
		deliver(ch, ev)
	}
}

func (e *Emitter) emitError(err error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	for _, ch := range e.errs {
		deliver(ch, err)
	}
}

func (e *Emitter) emitLog(ev LogEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	for _, ch := range e.logs {
		deliver(ch, ev)
	}
}

func (e *Emitter) emitClose(ev CloseEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	for _, ch := range e.closes {
		deliver(ch, ev)
	}
}

// Close closes every subscriber channel. Emitting after Close is a no-op.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for _, ch := range e.messages {
		close(ch)
	}
	for _, ch := range e.notifications {
		close(ch)
	}
	for _, ch := range e.reactions {
		close(ch)
	}
	for _, ch := range e.receipts {
		close(ch)
	}
	for _, ch := range e.typings {
		close(ch)
	}
	for _, ch := range e.stories {
		close(ch)
	}
	for _, ch := range e.errs {
		close(ch)
	}
	for _, ch := range e.logs {
		close(ch)
	}
	for _, ch := range e.closes {
		close(ch)
	}
}

// deliver performs a non-blocking send so one stalled subscriber cannot
// wedge the read loop.
func deliver[T any](ch chan T, ev T) {
	select {
	case ch <- ev:
	default:
	}
}
