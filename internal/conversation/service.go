package conversation

import (
	"context"
	"time"
)

// Service describes how the conversation engine should behave.
type Service interface {
	ProcessMessage(ctx context.Context, req MessageRequest) (*Response, error)
	GetHistory(ctx context.Context, conversationID string) ([]ChatMessage, error)
}

// Channel identifies which transport the conversation is happening on.
type Channel string

const (
	ChannelUnknown  Channel = ""
	ChannelWhatsApp Channel = "whatsapp"
)

// Intent labels how a reply was produced, for analytics and live-chat views.
const (
	IntentLLM         = "llm"
	IntentTrained     = "trained_pair"
	IntentAppointment = "appointment"
	IntentHandoff     = "handoff"
)

// MessageRequest represents one debounced turn in the conversation. Message
// holds the merged text of the guest's burst.
type MessageRequest struct {
	ConversationID string            `json:"conversation_id"`
	From           string            `json:"from"`
	ProfileName    string            `json:"profile_name,omitempty"`
	Message        string            `json:"message"`
	Channel        Channel           `json:"channel"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Response is the DTO handed back to the worker for delivery.
type Response struct {
	ConversationID string              `json:"conversation_id"`
	Message        string              `json:"message"`
	Intent         string              `json:"intent"`
	Language       string              `json:"language"`
	Handoff        bool                `json:"handoff"`
	Appointment    *AppointmentRequest `json:"appointment,omitempty"`
	Usage          TokenUsage          `json:"usage"`
	Timestamp      time.Time           `json:"timestamp"`
}

// UsageEvent is the analytics projection of a processed message.
type UsageEvent struct {
	ConversationID string
	Direction      string // "inbound" or "outbound"
	Intent         string
	Language       string
	Gender         string
	TokensIn       int
	TokensOut      int
	At             time.Time
}

// UsageRecorder persists usage events for the dashboard.
type UsageRecorder interface {
	RecordMessage(ctx context.Context, evt UsageEvent) error
}
