package bot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := OpenHistory(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestHistoryRecordAndRecent(t *testing.T) {
	h := openTestHistory(t)

	require.NoError(t, h.RecordInbound("+15550000001", "!ping", 1700000000000))
	require.NoError(t, h.RecordOutbound("+15550000001", "pong"))
	require.NoError(t, h.RecordInbound("+15550000002", "hello", 1700000001000))

	entries, err := h.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Newest first.
	assert.Equal(t, "hello", entries[0].Body)
	assert.Equal(t, DirectionInbound, entries[0].Direction)
	assert.Equal(t, "pong", entries[1].Body)
	assert.Equal(t, DirectionOutbound, entries[1].Direction)
	assert.Equal(t, int64(1700000000000), entries[2].SentAt)
	assert.WithinDuration(t, time.Now(), entries[0].CreatedAt, time.Minute)
}

func TestHistoryRecentRespectsLimit(t *testing.T) {
	h := openTestHistory(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, h.RecordOutbound("+15550000001", "spam"))
	}

	entries, err := h.Recent(2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestHistoryPeerFilter(t *testing.T) {
	h := openTestHistory(t)

	require.NoError(t, h.RecordInbound("+15550000001", "from alice", 1))
	require.NoError(t, h.RecordInbound("+15550000002", "from bob", 2))
	require.NoError(t, h.RecordOutbound("+15550000001", "to alice"))

	entries, err := h.PeerHistory("+15550000001", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "to alice", entries[0].Body)
	assert.Equal(t, "from alice", entries[1].Body)
}

func TestHistoryReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	h, err := OpenHistory(path)
	require.NoError(t, err)
	require.NoError(t, h.RecordOutbound("+15550000001", "persisted"))
	require.NoError(t, h.Close())

	h, err = OpenHistory(path)
	require.NoError(t, err)
	defer func() { _ = h.Close() }()

	entries, err := h.Recent(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "persisted", entries[0].Body)
}

func TestBotRecordsTrafficInHistory(t *testing.T) {
	h := openTestHistory(t)
	messenger := newRecordingMessenger()
	b := New(messenger, Options{InterActionDelay: time.Millisecond}, WithHistory(h))

	b.Handle(Command{
		Name: "ping",
		Run: func(ctx context.Context, b *Bot, msg *Message) {
			b.Reply(msg, "pong")
		},
	})

	b.handleEvent(context.Background(), textEvent("+15550000001", "!ping"))
	messenger.waitDispatches(t, 1)
	b.queue.Stop()

	entries, err := h.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, DirectionOutbound, entries[0].Direction)
	assert.Equal(t, "pong", entries[0].Body)
	assert.Equal(t, DirectionInbound, entries[1].Direction)
	assert.Equal(t, "!ping", entries[1].Body)
}
