package model

import (
	"strings"
	"time"
)

type Status string

const (
	Queued   Status = "QUEUED"
	Sending  Status = "SENDING"
	Sent     Status = "SENT"
	Failed   Status = "FAILED"
	Received Status = "RECEIVED"
)

// Terminal reports whether no further automatic transition leaves s.
// FAILED is only terminal once the dispatcher has stopped retrying, which the
// status alone cannot tell; callers treat it as terminal for polling purposes.
func (s Status) Terminal() bool {
	return s == Sent || s == Failed || s == Received
}

var transitions = map[Status][]Status{
	Queued: {Sending},
	// SENDING -> SENDING covers a redelivered task after a worker died mid-send
	Sending: {Sending, Sent, Failed},
	// a re-attempt resets to SENDING; the failure cleanup path rewrites FAILED
	Failed: {Sending, Failed},
}

// CanTransition reports whether a message may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Direction string

const (
	Incoming Direction = "INCOMING"
	Outgoing Direction = "OUTGOING"
)

type MessageType string

const (
	SMS   MessageType = "SMS"
	MMS   MessageType = "MMS"
	Email MessageType = "EMAIL"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelText  Channel = "text"
)

// ParseMessageType accepts any casing ("sms", "Email", ...).
func ParseMessageType(raw string) (MessageType, error) {
	t := MessageType(strings.ToUpper(strings.TrimSpace(raw)))
	if t.Channel() == "" {
		return "", ErrUnsupportedMessageType
	}
	return t, nil
}

// Channel selects the transport family for t; empty for unknown types.
func (t MessageType) Channel() Channel {
	switch t {
	case Email:
		return ChannelEmail
	case SMS, MMS:
		return ChannelText
	default:
		return ""
	}
}

// Attachment is an opaque descriptor passed through to providers verbatim.
type Attachment map[string]any

type Message struct {
	ID                string       `json:"id"`
	ConversationID    string       `json:"conversation"`
	SenderID          string       `json:"sender"`
	RecipientID       string       `json:"recipient"`
	Type              MessageType  `json:"message_type"`
	Direction         Direction    `json:"direction"`
	Body              string       `json:"body"`
	Attachments       []Attachment `json:"attachments"`
	Status            Status       `json:"status"`
	LastError         *string      `json:"last_error"`
	ProviderMessageID *string      `json:"provider_message_id,omitempty"`
	Timestamp         time.Time    `json:"timestamp"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// Envelope is what a transport needs to deliver one outbound message.
type Envelope struct {
	To          string
	From        string
	Type        MessageType
	Body        string
	Attachments []Attachment
	Timestamp   time.Time
}

type ProviderResponse struct {
	StatusCode int
	Body       map[string]any
}
