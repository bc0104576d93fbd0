package signal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendSingleAttachmentUsesSingularParameter(t *testing.T) {
	client, mock := connectedClient(t, `{"timestamp":1,"results":[]}`)

	_, err := client.Send(context.Background(), &SendRequest{
		Recipient:   "+15550000001",
		Message:     "photo",
		Attachments: []string{"/tmp/a.png"},
	})
	require.NoError(t, err)

	_, params := lastCall(t, mock)
	assert.Equal(t, "/tmp/a.png", params["attachment"])
	assert.NotContains(t, params, "attachments")
}

func TestSendMultipleAttachmentsUsePluralParameter(t *testing.T) {
	client, mock := connectedClient(t, `{"timestamp":1,"results":[]}`)

	_, err := client.Send(context.Background(), &SendRequest{
		Recipient:   "+15550000001",
		Message:     "photos",
		Attachments: []string{"/tmp/a.png", "/tmp/b.png"},
	})
	require.NoError(t, err)

	_, params := lastCall(t, mock)
	assert.Equal(t, []any{"/tmp/a.png", "/tmp/b.png"}, params["attachments"])
	assert.NotContains(t, params, "attachment")
}

func TestSendWithQuote(t *testing.T) {
	client, mock := connectedClient(t, `{"timestamp":1,"results":[]}`)

	_, err := client.Send(context.Background(), &SendRequest{
		Recipient:      "+15550000001",
		Message:        "replying",
		QuoteTimestamp: 1700000000000,
		QuoteAuthor:    "+15550000002",
	})
	require.NoError(t, err)

	_, params := lastCall(t, mock)
	assert.Equal(t, float64(1700000000000), params["quoteTimestamp"])
	assert.Equal(t, "+15550000002", params["quoteAuthor"])
}

func TestSendExplicitGroupIDWinsOverHeuristic(t *testing.T) {
	client, mock := connectedClient(t, `{"timestamp":1,"results":[]}`)

	// An explicit GroupID forces group addressing even for a recipient
	// string the heuristic would call a phone number.
	_, err := client.Send(context.Background(), &SendRequest{
		GroupID: "shortid",
		Message: "to the group",
	})
	require.NoError(t, err)

	_, params := lastCall(t, mock)
	assert.Equal(t, "shortid", params["groupId"])
	assert.NotContains(t, params, "recipient")
}

func TestSendRequiresSomeAddress(t *testing.T) {
	client, _ := connectedClient(t, `{}`)

	_, err := client.Send(context.Background(), &SendRequest{Message: "to nobody"})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "recipient", validationErr.Field)
}

func TestSendReaction(t *testing.T) {
	client, mock := connectedClient(t, `{"timestamp":2}`)

	err := client.SendReaction(context.Background(), "+15550000001", "🔥", "+15550000002", 1700000000000, false)
	require.NoError(t, err)

	method, params := lastCall(t, mock)
	assert.Equal(t, "sendReaction", method)
	assert.Equal(t, "🔥", params["emoji"])
	assert.Equal(t, "+15550000002", params["targetAuthor"])
	assert.NotContains(t, params, "remove")
}

func TestSendReactionRemove(t *testing.T) {
	client, mock := connectedClient(t, `{"timestamp":2}`)

	err := client.SendReaction(context.Background(), "+15550000001", "🔥", "+15550000002", 1700000000000, true)
	require.NoError(t, err)

	_, params := lastCall(t, mock)
	assert.Equal(t, true, params["remove"])
}

func TestSendReactionRequiresEmoji(t *testing.T) {
	client, mock := connectedClient(t, `{}`)

	err := client.SendReaction(context.Background(), "+15550000001", "", "+15550000002", 1, false)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Empty(t, mock.SentLines())
}

func TestSendTypingToGroup(t *testing.T) {
	client, mock := connectedClient(t, `{}`)

	require.NoError(t, client.SendTyping(context.Background(), "grp=", false))

	method, params := lastCall(t, mock)
	assert.Equal(t, "sendTyping", method)
	assert.Equal(t, "grp=", params["groupId"])
	assert.NotContains(t, params, "stop")
}

func TestSendReceipt(t *testing.T) {
	client, mock := connectedClient(t, `{}`)

	require.NoError(t, client.SendReceipt(context.Background(), "+15550000001", 1700000000000, "read"))

	method, params := lastCall(t, mock)
	assert.Equal(t, "sendReceipt", method)
	assert.Equal(t, "read", params["type"])
	assert.Equal(t, float64(1700000000000), params["targetTimestamp"])
}
