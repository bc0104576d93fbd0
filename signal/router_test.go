package signal

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter() (*router, *pendingCalls, *Emitter) {
	pending := newPendingCalls()
	emitter := NewEmitter()
	return newRouter(pending, emitter, slog.New(slog.NewTextHandler(io.Discard, nil))), pending, emitter
}

func recvEvent[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("expected event was never emitted")
		panic("unreachable")
	}
}

func assertNoEvent[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestRouteResolvesResponse(t *testing.T) {
	router, pending, _ := newTestRouter()
	ch := pending.register("call-1")

	router.route([]byte(`{"jsonrpc":"2.0","id":"call-1","result":{"timestamp":42}}`))

	res := recvEvent(t, ch)
	require.NoError(t, res.err)
	assert.Equal(t, "call-1", res.resp.ID)
	assert.Zero(t, pending.size())
}

func TestRouteEmitsNotification(t *testing.T) {
	router, _, emitter := newTestRouter()
	notifications := emitter.OnNotification()

	router.route([]byte(`{"jsonrpc":"2.0","method":"receive","params":{"envelope":{"source":"+15550001111","timestamp":99}}}`))

	notif := recvEvent(t, notifications)
	assert.Equal(t, "receive", notif.Method)
}

func TestDispatchIsolatesBadLines(t *testing.T) {
	router, pending, emitter := newTestRouter()
	errs := emitter.OnError()
	messages := emitter.OnMessage()
	ch := pending.register("call-7")

	// Three lines in one payload: garbage, a receive notification, and a
	// response. The garbage line must not take the other two with it.
	payload := []byte("{not json at all\n" +
		`{"jsonrpc":"2.0","method":"receive","params":{"envelope":{"source":"+15550001111","dataMessage":{"message":"hi"}}}}` + "\n" +
		`{"jsonrpc":"2.0","id":"call-7","result":{}}`)
	router.dispatch(payload)

	var parseErr *ParseError
	require.ErrorAs(t, recvEvent(t, errs), &parseErr)

	msg := recvEvent(t, messages)
	assert.Equal(t, "hi", msg.Envelope.DataMessage.Message)

	res := recvEvent(t, ch)
	require.NoError(t, res.err)
	assert.Zero(t, pending.size())
}

func TestDispatchSkipsBlankLines(t *testing.T) {
	router, _, emitter := newTestRouter()
	errs := emitter.OnError()

	router.dispatch([]byte("\n\n  \n"))

	assertNoEvent(t, errs)
}

func TestReceiveDecomposesReaction(t *testing.T) {
	router, _, emitter := newTestRouter()
	notifications := emitter.OnNotification()
	messages := emitter.OnMessage()
	reactions := emitter.OnReaction()

	router.route([]byte(`{"jsonrpc":"2.0","method":"receive","params":{"account":"+15551234567","envelope":{"source":"+15550001111","dataMessage":{"reaction":{"emoji":"👍","targetAuthor":"+15551234567","targetSentTimestamp":1700000000000,"isRemove":false}}}}}`))

	// A reaction envelope emits the generic notification, a message
	// event, and a typed reaction event.
	recvEvent(t, notifications)
	recvEvent(t, messages)

	reaction := recvEvent(t, reactions)
	assert.Equal(t, "👍", reaction.Reaction.Emoji)
	assert.Equal(t, "+15551234567", reaction.Reaction.TargetAuthor)
	assert.Equal(t, int64(1700000000000), reaction.Reaction.TargetSentTimestamp)
	assert.False(t, reaction.Reaction.IsRemove)
	assert.Equal(t, "+15551234567", reaction.Account)
}

func TestReceiveDecomposesReceiptAndTyping(t *testing.T) {
	router, _, emitter := newTestRouter()
	receipts := emitter.OnReceipt()
	typings := emitter.OnTyping()
	reactions := emitter.OnReaction()

	router.route([]byte(`{"jsonrpc":"2.0","method":"receive","params":{"envelope":{"source":"+15550001111","receiptMessage":{"when":123,"isRead":true,"timestamps":[123]}}}}`))
	router.route([]byte(`{"jsonrpc":"2.0","method":"receive","params":{"envelope":{"source":"+15550001111","typingMessage":{"action":"STARTED","timestamp":456}}}}`))

	receipt := recvEvent(t, receipts)
	assert.True(t, receipt.Receipt.IsRead)
	assert.Equal(t, []int64{123}, receipt.Receipt.Timestamps)

	typing := recvEvent(t, typings)
	assert.Equal(t, "STARTED", typing.Typing.Action)

	assertNoEvent(t, reactions)
}

func TestReceiveDecomposesStory(t *testing.T) {
	router, _, emitter := newTestRouter()
	stories := emitter.OnStory()

	router.route([]byte(`{"jsonrpc":"2.0","method":"receive","params":{"envelope":{"source":"+15550001111","storyMessage":{"allowsReplies":true,"textAttachment":{"text":"story text"}}}}}`))

	story := recvEvent(t, stories)
	assert.True(t, story.Story.AllowsReplies)
	require.NotNil(t, story.Story.TextAttachment)
	assert.Equal(t, "story text", story.Story.TextAttachment.Text)
}

func TestRouteRejectsResponseWithResultAndError(t *testing.T) {
	router, pending, emitter := newTestRouter()
	errs := emitter.OnError()
	ch := pending.register("call-9")

	router.route([]byte(`{"jsonrpc":"2.0","id":"call-9","result":{},"error":{"code":-1,"message":"boom"}}`))

	var parseErr *ParseError
	require.ErrorAs(t, recvEvent(t, errs), &parseErr)

	// The malformed response must not resolve the call.
	select {
	case <-ch:
		t.Fatal("call resolved by an invalid response")
	default:
	}
	pending.remove("call-9")
}

func TestRouteIgnoresUnknownResponseId(t *testing.T) {
	router, pending, _ := newTestRouter()

	// Must not panic or block.
	router.route([]byte(`{"jsonrpc":"2.0","id":"never-registered","result":{}}`))
	assert.Zero(t, pending.size())
}

func TestReceiveWithoutEnvelopeEmitsNothingTyped(t *testing.T) {
	router, _, emitter := newTestRouter()
	messages := emitter.OnMessage()

	router.route([]byte(`{"jsonrpc":"2.0","method":"receive","params":{}}`))

	assertNoEvent(t, messages)
}
