package signal

import (
	"context"
	"encoding/json"
	"fmt"
)

// SendRequest describes one outgoing message.
type SendRequest struct {
	// Recipient is a phone number or group id. The group heuristic in
	// IsGroupID decides which parameter it becomes; set GroupID to force
	// group addressing.
	Recipient string

	// GroupID addresses a group explicitly.
	GroupID string

	Message     string
	Attachments []string
	Mentions    []Mention

	// QuoteTimestamp and QuoteAuthor attach a reply reference.
	QuoteTimestamp int64
	QuoteAuthor    string
}

// Send sends a message and returns the daemon's send result. Recipient
// validation happens before any network I/O.
func (c *Client) Send(ctx context.Context, req *SendRequest) (*SendResponse, error) {
	if req.Recipient == "" && req.GroupID == "" {
		return nil, &ValidationError{Field: "recipient", Reason: "either recipient or group id must be specified"}
	}
	if req.Recipient != "" && req.GroupID == "" {
		if err := ValidateRecipient(req.Recipient); err != nil {
			return nil, err
		}
	}

	params := c.accountParams()
	switch {
	case req.GroupID != "":
		params["groupId"] = req.GroupID
	case IsGroupID(req.Recipient):
		params["groupId"] = req.Recipient
	default:
		params["recipient"] = []string{req.Recipient}
	}

	params["message"] = req.Message
	if len(req.Attachments) == 1 {
		params["attachment"] = req.Attachments[0]
	} else if len(req.Attachments) > 1 {
		params["attachments"] = req.Attachments
	}
	if len(req.Mentions) > 0 {
		params["mentions"] = req.Mentions
	}
	if req.QuoteTimestamp != 0 {
		params["quoteTimestamp"] = req.QuoteTimestamp
		params["quoteAuthor"] = req.QuoteAuthor
	}

	result, err := c.Call(ctx, "send", params)
	if err != nil {
		return nil, fmt.Errorf("send failed: %w", err)
	}

	var resp SendResponse
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("parsing send response: %w", err)
	}
	return &resp, nil
}

// SendMessage is the plain-text convenience form of Send.
func (c *Client) SendMessage(ctx context.Context, recipient, message string) (int64, error) {
	resp, err := c.Send(ctx, &SendRequest{Recipient: recipient, Message: message})
	if err != nil {
		return 0, err
	}
	return resp.Timestamp, nil
}

// SendAttachment sends a message with file attachments.
func (c *Client) SendAttachment(ctx context.Context, recipient, message string, paths []string) (int64, error) {
	resp, err := c.Send(ctx, &SendRequest{Recipient: recipient, Message: message, Attachments: paths})
	if err != nil {
		return 0, err
	}
	return resp.Timestamp, nil
}

// SendReaction reacts to an earlier message with an emoji.
func (c *Client) SendReaction(ctx context.Context, recipient, emoji, targetAuthor string, targetTimestamp int64, remove bool) error {
	if err := ValidateRecipient(recipient); err != nil {
		return err
	}
	if emoji == "" {
		return &ValidationError{Field: "emoji", Reason: "cannot be empty"}
	}

	params := c.accountParams()
	if IsGroupID(recipient) {
		params["groupId"] = recipient
	} else {
		params["recipient"] = []string{recipient}
	}
	params["emoji"] = emoji
	params["targetAuthor"] = targetAuthor
	params["targetTimestamp"] = targetTimestamp
	if remove {
		params["remove"] = true
	}

	_, err := c.Call(ctx, "sendReaction", params)
	return err
}

// SendReceipt sends a read or viewed receipt for a message.
func (c *Client) SendReceipt(ctx context.Context, recipient string, targetTimestamp int64, receiptType string) error {
	if err := ValidatePhoneNumber(recipient); err != nil {
		return err
	}

	params := c.accountParams()
	params["recipient"] = []string{recipient}
	params["targetTimestamp"] = targetTimestamp
	params["type"] = receiptType

	_, err := c.Call(ctx, "sendReceipt", params)
	return err
}

// SendTyping sends a typing indicator. stop ends the indicator early.
func (c *Client) SendTyping(ctx context.Context, recipient string, stop bool) error {
	if err := ValidateRecipient(recipient); err != nil {
		return err
	}

	params := c.accountParams()
	if IsGroupID(recipient) {
		params["groupId"] = recipient
	} else {
		params["recipient"] = []string{recipient}
	}
	if stop {
		params["stop"] = true
	}

	_, err := c.Call(ctx, "sendTyping", params)
	return err
}
