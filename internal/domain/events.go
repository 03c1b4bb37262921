package domain

// EventType classifies inbound chat events.
type EventType string

const (
	EventFollow   EventType = "follow"
	EventMessage  EventType = "message"
	EventPostback EventType = "postback"
)

// InboundEvent is a normalized chat event. Text carries the message text
// for EventMessage and the postback data payload for EventPostback; both
// feed the same intent dispatch.
type InboundEvent struct {
	Type       EventType
	UserID     string
	ReplyToken string
	Text       string
}

// OutboundMessage is a provider-agnostic text message.
type OutboundMessage struct {
	Text string
}

// NewText builds a single-element outbound message slice, the common case.
func NewText(text string) []OutboundMessage {
	return []OutboundMessage{{Text: text}}
}
