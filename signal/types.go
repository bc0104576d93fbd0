package signal

import "encoding/json"

// Envelope is the daemon's wrapper around one inbound protocol event.
type Envelope struct {
	Source       string `json:"source"`
	SourceNumber string `json:"sourceNumber"`
	SourceUUID   string `json:"sourceUuid"`
	SourceName   string `json:"sourceName"`
	SourceDevice int    `json:"sourceDevice"`
	Timestamp    int64  `json:"timestamp"`

	// Payload kinds; any subset may be present.
	DataMessage    *DataMessage    `json:"dataMessage,omitempty"`
	SyncMessage    *SyncMessage    `json:"syncMessage,omitempty"`
	TypingMessage  *TypingMessage  `json:"typingMessage,omitempty"`
	ReceiptMessage *ReceiptMessage `json:"receiptMessage,omitempty"`
	StoryMessage   *StoryMessage   `json:"storyMessage,omitempty"`
}

// DataMessage is a standard message.
type DataMessage struct {
	Timestamp        int64        `json:"timestamp"`
	Message          string       `json:"message"`
	ExpiresInSeconds int          `json:"expiresInSeconds"`
	ViewOnce         bool         `json:"viewOnce"`
	Attachments      []Attachment `json:"attachments,omitempty"`
	Mentions         []Mention    `json:"mentions,omitempty"`
	Reaction         *Reaction    `json:"reaction,omitempty"`
	Quote            *Quote       `json:"quote,omitempty"`
	GroupInfo        *GroupInfo   `json:"groupInfo,omitempty"`
}

// Reaction is an emoji reaction to an earlier message.
type Reaction struct {
	Emoji               string `json:"emoji"`
	TargetAuthor        string `json:"targetAuthor"`
	TargetAuthorNumber  string `json:"targetAuthorNumber,omitempty"`
	TargetSentTimestamp int64  `json:"targetSentTimestamp"`
	IsRemove            bool   `json:"isRemove"`
}

// Quote is a reply reference to an earlier message.
type Quote struct {
	ID     int64  `json:"id"`
	Author string `json:"author"`
	Text   string `json:"text"`
}

// Mention marks a user mention inside a message body.
type Mention struct {
	Start  int    `json:"start"`
	Length int    `json:"length"`
	Author string `json:"author"`
}

// Attachment describes a file attached to a message.
type Attachment struct {
	ContentType     string `json:"contentType"`
	Filename        string `json:"filename"`
	ID              string `json:"id"`
	Size            int64  `json:"size"`
	Width           int    `json:"width,omitempty"`
	Height          int    `json:"height,omitempty"`
	Caption         string `json:"caption,omitempty"`
	UploadTimestamp int64  `json:"uploadTimestamp"`
}

// SyncMessage mirrors activity from another linked device.
type SyncMessage struct {
	SentMessage *SentSyncMessage `json:"sentMessage,omitempty"`
}

// SentSyncMessage is a message sent from another linked device.
type SentSyncMessage struct {
	Destination string       `json:"destination"`
	Timestamp   int64        `json:"timestamp"`
	Message     *DataMessage `json:"message,omitempty"`
}

// TypingMessage is a typing indicator. Action is STARTED or STOPPED.
type TypingMessage struct {
	Action    string `json:"action"`
	Timestamp int64  `json:"timestamp"`
	GroupID   string `json:"groupId,omitempty"`
}

// ReceiptMessage is a delivery, read, or viewed receipt.
type ReceiptMessage struct {
	When       int64   `json:"when"`
	IsDelivery bool    `json:"isDelivery"`
	IsRead     bool    `json:"isRead"`
	IsViewed   bool    `json:"isViewed"`
	Timestamps []int64 `json:"timestamps"`
}

// StoryMessage is a story posted by a contact.
type StoryMessage struct {
	AllowsReplies  bool        `json:"allowsReplies"`
	FileAttachment *Attachment `json:"fileAttachment,omitempty"`
	TextAttachment *TextStory  `json:"textAttachment,omitempty"`
}

// TextStory is the text variant of a story.
type TextStory struct {
	Text            string `json:"text"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
}

// GroupInfo identifies the group a message belongs to.
type GroupInfo struct {
	GroupID string `json:"groupId"`
	Type    string `json:"type"`
	Name    string `json:"name,omitempty"`
}

// SendResult reports per-recipient delivery status for one send.
type SendResult struct {
	RecipientAddress RecipientAddress `json:"recipientAddress"`
	Type             string           `json:"type"`
}

// RecipientAddress identifies one recipient of a send.
type RecipientAddress struct {
	UUID   string `json:"uuid,omitempty"`
	Number string `json:"number,omitempty"`
}

// SendResponse is the result payload of a send call.
type SendResponse struct {
	Timestamp int64        `json:"timestamp"`
	Results   []SendResult `json:"results"`
}

// receiveParams is the params shape of a "receive" notification.
type receiveParams struct {
	Account  string    `json:"account,omitempty"`
	Envelope *Envelope `json:"envelope"`
}

// parseReceive extracts the envelope from a receive notification's params.
func parseReceive(params json.RawMessage) (string, *Envelope) {
	var p receiveParams
	if err := json.Unmarshal(params, &p); err != nil {
		return "", nil
	}
	return p.Account, p.Envelope
}
