package domain

import "time"

// Message roles. The conversation only ever contains these three.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single immutable entry in the conversation transcript.
// Timestamps are monotonically non-decreasing within a session; the store
// clamps them on append.
type Message struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// InboundMessage is a raw utterance arriving from a channel.
type InboundMessage struct {
	Channel   string
	ChatID    string
	SenderID  string
	Content   string
	Timestamp time.Time
}

// OutboundMessage is a reply routed back to the channel that asked.
type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
}

// MessageBus decouples channels from the turn engine. Inbound messages are
// queued FIFO; the engine consumes them one at a time.
type MessageBus interface {
	Publish(msg InboundMessage)
	Subscribe() <-chan InboundMessage
	SendOutbound(msg OutboundMessage)
	OnOutbound(channelName string, handler func(OutboundMessage))
	Close()
}
