package livechat

import (
	"sync"
	"time"
)

// wildcard subscribes a consumer to every conversation.
const wildcard = "*"

const eventBuffer = 32

// Event is one live-console update: a guest message, a bot reply, or an
// agent message.
type Event struct {
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"` // "user", "assistant", or "agent"
	Text           string    `json:"text"`
	Intent         string    `json:"intent,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Hub fans conversation events out to SSE streams and agent consoles.
// Slow subscribers lose events rather than blocking the worker.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[chan Event]struct{}),
	}
}

// Subscribe registers a consumer for one conversation, or all conversations
// when conversationID is empty. The returned cancel func must be called.
func (h *Hub) Subscribe(conversationID string) (<-chan Event, func()) {
	if conversationID == "" {
		conversationID = wildcard
	}
	ch := make(chan Event, eventBuffer)

	h.mu.Lock()
	set, ok := h.subs[conversationID]
	if !ok {
		set = make(map[chan Event]struct{})
		h.subs[conversationID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[conversationID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, conversationID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to conversation-specific and wildcard
// subscribers.
func (h *Hub) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, key := range []string{evt.ConversationID, wildcard} {
		for ch := range h.subs[key] {
			select {
			case ch <- evt:
			default:
			}
		}
	}
}

// PublishMessage adapts Publish to the worker's event interface.
func (h *Hub) PublishMessage(conversationID, role, text, intent string) {
	h.Publish(Event{
		ConversationID: conversationID,
		Role:           role,
		Text:           text,
		Intent:         intent,
	})
}

// SubscriberCount reports active subscribers, for the health endpoint.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var n int
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}
