package signal

import (
	"bytes"
	"encoding/json"
	"log/slog"
)

// methodReceive is the notification method signal-cli uses for inbound
// envelopes.
const methodReceive = "receive"

// router classifies inbound transport payloads: responses resolve pending
// calls, notifications fan out as typed events, garbage becomes a
// ParseError event. One bad line never drops its siblings.
type router struct {
	pending *pendingCalls
	emitter *Emitter
	logger  *slog.Logger
}

func newRouter(pending *pendingCalls, emitter *Emitter, logger *slog.Logger) *router {
	return &router{
		pending: pending,
		emitter: emitter,
		logger:  logger,
	}
}

// dispatch splits a payload on line boundaries and routes each line
// independently.
func (r *router) dispatch(payload []byte) {
	for _, line := range bytes.Split(payload, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		r.route(line)
	}
}

// route handles one framed JSON document.
func (r *router) route(line []byte) {
	var probe struct {
		ID     string          `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		parseErr := &ParseError{Line: string(line), Err: err}
		r.logger.Debug("dropping unparsable line", "error", err)
		r.emitter.emitError(parseErr)
		return
	}

	// A line with an id is a response to one of our calls.
	if probe.ID != "" {
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			r.emitter.emitError(&ParseError{Line: string(line), Err: err})
			return
		}
		if err := resp.validate(); err != nil {
			r.emitter.emitError(&ParseError{Line: string(line), Err: err})
			return
		}
		if !r.pending.resolve(&resp) {
			r.logger.Debug("response for unknown call", "id", resp.ID)
		}
		return
	}

	// Method without id is a push notification.
	if probe.Method != "" {
		notif := &Notification{
			JSONRPC: jsonRPCVersion,
			Method:  probe.Method,
			Params:  probe.Params,
		}
		r.emitter.emitNotification(notif)
		if probe.Method == methodReceive {
			r.decompose(notif)
		}
		return
	}

	r.logger.Debug("line is neither response nor notification", "line", string(line))
}

// decompose breaks a receive notification's envelope into typed
// sub-events. The checks are independent and non-exclusive: a single
// envelope may emit several of them.
func (r *router) decompose(notif *Notification) {
	account, envelope := parseReceive(notif.Params)
	if envelope == nil {
		return
	}

	r.emitter.emitMessage(&MessageEvent{Account: account, Envelope: envelope})

	if envelope.DataMessage != nil && envelope.DataMessage.Reaction != nil {
		r.emitter.emitReaction(&ReactionEvent{
			Account:  account,
			Envelope: envelope,
			Reaction: envelope.DataMessage.Reaction,
		})
	}
	if envelope.ReceiptMessage != nil {
		r.emitter.emitReceipt(&ReceiptEvent{
			Account:  account,
			Envelope: envelope,
			Receipt:  envelope.ReceiptMessage,
		})
	}
	if envelope.TypingMessage != nil {
		r.emitter.emitTyping(&TypingEvent{
			Account:  account,
			Envelope: envelope,
			Typing:   envelope.TypingMessage,
		})
	}
	if envelope.StoryMessage != nil {
		r.emitter.emitStory(&StoryEvent{
			Account:  account,
			Envelope: envelope,
			Story:    envelope.StoryMessage,
		})
	}
}
