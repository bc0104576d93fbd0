package bot

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/benoitpetit/signal-sdk-sub001/signal"
)

// defaultPermissionDenied is the reply sent when a non-admin invokes an
// admin-only command. Unlike the cooldown (which drops silently), the
// permission failure is answered explicitly so the user knows the
// command exists but is gated.
const defaultPermissionDenied = "You are not allowed to use this command."

// Message is the bot-level view of one inbound text message.
type Message struct {
	From      string
	FromName  string
	Text      string
	GroupID   string
	Timestamp int64
}

// ReplyTarget is where responses to this message go: the group when the
// message came from one, otherwise the sender.
func (m *Message) ReplyTarget() string {
	if m.GroupID != "" {
		return m.GroupID
	}
	return m.From
}

// Handler runs one command.
type Handler func(ctx context.Context, b *Bot, msg *Message)

// Command is a registered bot command.
type Command struct {
	Name        string
	Description string
	AdminOnly   bool
	Run         Handler
}

// Options configures a bot.
type Options struct {
	// Prefix marks command messages, default "!".
	Prefix string

	// CooldownWindow is the per-user minimum spacing between commands.
	CooldownWindow time.Duration

	// Admins may run admin-only commands.
	Admins []string

	// InterActionDelay spaces queued sends.
	InterActionDelay time.Duration

	// CleanupGrace delays attachment temp-file deletion after dispatch.
	CleanupGrace time.Duration

	// PermissionDenied overrides the admin-gate reply text.
	PermissionDenied string
}

// Bot wires a signal client's event stream to a command registry,
// serializing every outbound side effect through one action queue.
type Bot struct {
	messenger Messenger
	logger    *slog.Logger
	opts      Options

	queue    *ActionQueue
	cooldown *Cooldown
	history  *History

	mu        sync.Mutex
	commands  map[string]Command
	admins    map[string]struct{}
	buffered  []*Message
	replaying bool

	// fallback handles non-command messages when set.
	fallback Handler
}

// Option configures the bot.
type Option func(*Bot)

// WithBotLogger sets a custom logger.
func WithBotLogger(logger *slog.Logger) Option {
	return func(b *Bot) {
		b.logger = logger
	}
}

// WithHistory records every inbound and outbound message in the given
// archive.
func WithHistory(h *History) Option {
	return func(b *Bot) {
		b.history = h
	}
}

// WithFallback handles messages that are not commands.
func WithFallback(h Handler) Option {
	return func(b *Bot) {
		b.fallback = h
	}
}

// New creates a bot sending through messenger.
func New(messenger Messenger, opts Options, botOpts ...Option) *Bot {
	if opts.Prefix == "" {
		opts.Prefix = "!"
	}
	if opts.PermissionDenied == "" {
		opts.PermissionDenied = defaultPermissionDenied
	}

	b := &Bot{
		messenger: messenger,
		logger:    slog.Default(),
		opts:      opts,
		cooldown:  NewCooldown(opts.CooldownWindow),
		commands:  make(map[string]Command),
		admins:    make(map[string]struct{}),
	}
	for _, admin := range opts.Admins {
		b.admins[admin] = struct{}{}
	}
	for _, opt := range botOpts {
		opt(b)
	}

	queueOpts := []QueueOption{
		WithQueueLogger(b.logger),
		withOnIdle(b.replayBuffered),
	}
	if opts.InterActionDelay > 0 {
		queueOpts = append(queueOpts, WithInterActionDelay(opts.InterActionDelay))
	}
	if opts.CleanupGrace > 0 {
		queueOpts = append(queueOpts, WithCleanupGrace(opts.CleanupGrace))
	}
	b.queue = NewActionQueue(messenger, queueOpts...)

	return b
}

// Handle registers a command. Registering the same name twice replaces
// the earlier command.
func (b *Bot) Handle(cmd Command) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commands[strings.ToLower(cmd.Name)] = cmd
}

// IsAdmin reports whether user is in the admin set.
func (b *Bot) IsAdmin(user string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.admins[user]
	return ok
}

// Run consumes inbound message events until ctx is done or the channel
// closes. Wire it to the client with:
//
//	bot.Run(ctx, client.Events().OnMessage())
func (b *Bot) Run(ctx context.Context, messages <-chan *signal.MessageEvent) error {
	for {
		select {
		case <-ctx.Done():
			b.Stop()
			return ctx.Err()
		case ev, ok := <-messages:
			if !ok {
				b.Stop()
				return nil
			}
			b.handleEvent(ctx, ev)
		}
	}
}

// Stop halts the action queue and flushes its cleanup timers, and closes
// the history archive if one is attached.
func (b *Bot) Stop() {
	b.queue.Stop()
	if b.history != nil {
		if err := b.history.Close(); err != nil {
			b.logger.Error("closing history", "error", err)
		}
	}
}

// handleEvent converts an envelope into a Message and either processes
// it or, while the queue drains, buffers it for in-order replay.
func (b *Bot) handleEvent(ctx context.Context, ev *signal.MessageEvent) {
	msg := messageFromEvent(ev)
	if msg == nil {
		return
	}

	if b.history != nil {
		if err := b.history.RecordInbound(msg.From, msg.Text, msg.Timestamp); err != nil {
			b.logger.Error("recording inbound message", "error", err)
		}
	}

	// Buffer whenever a drain or replay is in flight, or older messages
	// are still waiting. A message may only jump to direct processing
	// when nothing arrived before it is left unprocessed.
	b.mu.Lock()
	deferred := b.queue.Draining() || b.replaying || len(b.buffered) > 0
	if deferred {
		b.buffered = append(b.buffered, msg)
	}
	b.mu.Unlock()

	if deferred {
		b.logger.Debug("buffered message while queue drains", "from", msg.From)
		return
	}

	b.process(ctx, msg)
}

// replayBuffered runs messages that arrived while the queue was
// draining, in arrival order. If a replayed command enqueues new
// actions, replay pauses and resumes after the next drain. The
// replaying flag keeps later arrivals buffered behind the message
// currently being replayed.
func (b *Bot) replayBuffered() {
	b.mu.Lock()
	if b.replaying {
		b.mu.Unlock()
		return
	}
	b.replaying = true
	b.mu.Unlock()

	for {
		b.mu.Lock()
		if len(b.buffered) == 0 || b.queue.Draining() {
			b.replaying = false
			b.mu.Unlock()
			return
		}
		msg := b.buffered[0]
		b.buffered = b.buffered[1:]
		b.mu.Unlock()

		b.process(context.Background(), msg)
	}
}

// process runs the command pipeline for one message: prefix check,
// cooldown, admin gate, handler.
func (b *Bot) process(ctx context.Context, msg *Message) {
	if !strings.HasPrefix(msg.Text, b.opts.Prefix) {
		if b.fallback != nil {
			b.fallback(ctx, b, msg)
		}
		return
	}

	name := commandName(msg.Text, b.opts.Prefix)
	b.mu.Lock()
	cmd, ok := b.commands[name]
	b.mu.Unlock()
	if !ok {
		b.logger.Debug("unknown command", "command", name, "from", msg.From)
		return
	}

	// Cooldown violations drop silently; replying would defeat the
	// point of throttling chatty users.
	if !b.cooldown.Allow(msg.From) {
		b.logger.Debug("command dropped by cooldown", "command", name, "from", msg.From)
		return
	}

	if cmd.AdminOnly && !b.IsAdmin(msg.From) {
		b.logger.Info("admin command denied", "command", name, "from", msg.From)
		b.Reply(msg, b.opts.PermissionDenied)
		return
	}

	cmd.Run(ctx, b, msg)
}

// commandName extracts the lowercased command word from a message.
func commandName(text, prefix string) string {
	rest := strings.TrimPrefix(text, prefix)
	if i := strings.IndexAny(rest, " \t\n"); i >= 0 {
		rest = rest[:i]
	}
	return strings.ToLower(rest)
}

// Reply queues a text reply to a message.
func (b *Bot) Reply(msg *Message, text string) {
	b.SendMessage(msg.ReplyTarget(), text)
}

// SendMessage queues a plain text send.
func (b *Bot) SendMessage(recipient, text string) {
	b.recordOutbound(recipient, text)
	if err := b.queue.Enqueue(Action{
		Kind:      ActionSendMessage,
		Recipient: recipient,
		Message:   text,
	}); err != nil {
		b.logger.Error("enqueue failed", "error", err)
	}
}

// SendAttachment queues a send with attachments. Paths listed in
// cleanup are temp files deleted after the post-dispatch grace period.
func (b *Bot) SendAttachment(recipient, text string, attachments, cleanup []string) {
	b.recordOutbound(recipient, text)
	if err := b.queue.Enqueue(Action{
		Kind:         ActionSendAttachment,
		Recipient:    recipient,
		Message:      text,
		Attachments:  attachments,
		CleanupPaths: cleanup,
	}); err != nil {
		b.logger.Error("enqueue failed", "error", err)
	}
}

// React queues an emoji reaction.
func (b *Bot) React(recipient, emoji, targetAuthor string, targetTimestamp int64) {
	if err := b.queue.Enqueue(Action{
		Kind:            ActionSendReaction,
		Recipient:       recipient,
		Emoji:           emoji,
		TargetAuthor:    targetAuthor,
		TargetTimestamp: targetTimestamp,
	}); err != nil {
		b.logger.Error("enqueue failed", "error", err)
	}
}

func (b *Bot) recordOutbound(recipient, text string) {
	if b.history == nil {
		return
	}
	if err := b.history.RecordOutbound(recipient, text); err != nil {
		b.logger.Error("recording outbound message", "error", err)
	}
}

// messageFromEvent extracts a text message from an envelope. Envelopes
// without a data message body (receipts, typing, reactions) return nil.
func messageFromEvent(ev *signal.MessageEvent) *Message {
	env := ev.Envelope
	if env == nil || env.DataMessage == nil || env.DataMessage.Message == "" {
		return nil
	}

	msg := &Message{
		From:      env.SourceNumber,
		FromName:  env.SourceName,
		Text:      env.DataMessage.Message,
		Timestamp: env.Timestamp,
	}
	if msg.From == "" {
		msg.From = env.Source
	}
	if env.DataMessage.GroupInfo != nil {
		msg.GroupID = env.DataMessage.GroupInfo.GroupID
	}
	return msg
}
