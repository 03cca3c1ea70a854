package livechat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/lumalaser/concierge/internal/conversation"
	"github.com/lumalaser/concierge/pkg/logging"
)

const heartbeatInterval = 15 * time.Second

// Messenger delivers agent messages to the guest's channel.
type Messenger interface {
	SendText(ctx context.Context, to, body string) error
}

// Handler serves the staff live-chat surface: an SSE event stream, a
// WebSocket console, and takeover/send/release endpoints.
type Handler struct {
	hub        *Hub
	messenger  Messenger
	transcript *conversation.TranscriptStore
	history    *conversation.HistoryStore
	profiles   *conversation.ProfileStore
	logger     *logging.Logger
}

func NewHandler(hub *Hub, messenger Messenger, transcript *conversation.TranscriptStore, history *conversation.HistoryStore, profiles *conversation.ProfileStore, logger *logging.Logger) *Handler {
	if hub == nil {
		panic("livechat: hub cannot be nil")
	}
	if profiles == nil {
		panic("livechat: profile store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		hub:        hub,
		messenger:  messenger,
		transcript: transcript,
		history:    history,
		profiles:   profiles,
		logger:     logger,
	}
}

// HandleStream serves conversation events as SSE. An empty conversation
// query streams every conversation.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	conversationID := r.URL.Query().Get("conversation")
	events, cancel := h.hub.Subscribe(conversationID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case evt := <-events:
			data, err := json.Marshal(evt)
			if err != nil {
				h.logger.Error("failed to encode live event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

type sendRequest struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
	Agent          string `json:"agent,omitempty"`
}

// HandleSend delivers an agent message to the guest and records it.
func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ConversationID == "" || strings.TrimSpace(req.Text) == "" {
		http.Error(w, "conversation_id and text are required", http.StatusBadRequest)
		return
	}

	if err := h.sendAgentMessage(r.Context(), req); err != nil {
		h.logger.Error("agent send failed", "error", err, "conversation_id", req.ConversationID)
		http.Error(w, "failed to deliver message", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "sent"})
}

func (h *Handler) sendAgentMessage(ctx context.Context, req sendRequest) error {
	phone := guestPhone(req.ConversationID)
	if h.messenger != nil {
		if err := h.messenger.SendText(ctx, phone, req.Text); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	if h.transcript != nil {
		if err := h.transcript.Append(ctx, req.ConversationID, conversation.TranscriptMessage{
			ID:        uuid.NewString(),
			Role:      "agent",
			From:      req.Agent,
			To:        phone,
			Body:      req.Text,
			Timestamp: now,
		}); err != nil {
			h.logger.Warn("failed to append agent transcript", "error", err)
		}
	}

	// The LLM sees agent messages as assistant turns, so the thread stays
	// coherent after release.
	if h.history != nil {
		history, err := h.history.Load(ctx, req.ConversationID)
		if err != nil && err != conversation.ErrConversationNotFound {
			h.logger.Warn("failed to load history for agent message", "error", err)
		} else {
			history = append(history, conversation.ChatMessage{
				Role:    conversation.ChatRoleAssistant,
				Content: req.Text,
			})
			if err := h.history.Save(ctx, req.ConversationID, history); err != nil {
				h.logger.Warn("failed to save history for agent message", "error", err)
			}
		}
	}

	h.hub.Publish(Event{
		ConversationID: req.ConversationID,
		Role:           "agent",
		Text:           req.Text,
		Timestamp:      now,
	})
	return nil
}

type takeoverRequest struct {
	ConversationID string `json:"conversation_id"`
	Reason         string `json:"reason,omitempty"`
}

// HandleTakeover silences the bot for a conversation.
func (h *Handler) HandleTakeover(w http.ResponseWriter, r *http.Request) {
	var req takeoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ConversationID == "" {
		http.Error(w, "conversation_id is required", http.StatusBadRequest)
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "agent takeover"
	}

	if err := h.profiles.SetHandoff(r.Context(), req.ConversationID, true, reason); err != nil {
		h.logger.Error("takeover failed", "error", err, "conversation_id", req.ConversationID)
		http.Error(w, "failed to take over conversation", http.StatusInternalServerError)
		return
	}
	h.logger.Info("conversation taken over", "conversation_id", req.ConversationID, "reason", reason)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "handoff"})
}

// HandleRelease returns a conversation to the bot.
func (h *Handler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	var req takeoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ConversationID == "" {
		http.Error(w, "conversation_id is required", http.StatusBadRequest)
		return
	}

	if err := h.profiles.SetHandoff(r.Context(), req.ConversationID, false, ""); err != nil {
		h.logger.Error("release failed", "error", err, "conversation_id", req.ConversationID)
		http.Error(w, "failed to release conversation", http.StatusInternalServerError)
		return
	}
	h.logger.Info("conversation released to bot", "conversation_id", req.ConversationID)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "bot"})
}

type consoleInbound struct {
	Type           string `json:"type"` // "send", "ping"
	ConversationID string `json:"conversation_id,omitempty"`
	Text           string `json:"text,omitempty"`
	Agent          string `json:"agent,omitempty"`
}

type consoleOutbound struct {
	Type  string `json:"type"` // "event", "pong", "error"
	Event *Event `json:"event,omitempty"`
	Text  string `json:"text,omitempty"`
}

// HandleConsole upgrades to WebSocket for the agent console: every
// conversation event streams down, and agents can reply inline.
func (h *Handler) HandleConsole(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveConsole(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveConsole(conn *websocket.Conn, r *http.Request) {
	events, cancel := h.hub.Subscribe("")
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg consoleInbound
			if err := websocket.JSON.Receive(conn, &msg); err != nil {
				return
			}
			switch msg.Type {
			case "ping":
				_ = websocket.JSON.Send(conn, consoleOutbound{Type: "pong"})
			case "send":
				if msg.ConversationID == "" || strings.TrimSpace(msg.Text) == "" {
					_ = websocket.JSON.Send(conn, consoleOutbound{Type: "error", Text: "conversation_id and text are required"})
					continue
				}
				if err := h.sendAgentMessage(r.Context(), sendRequest{
					ConversationID: msg.ConversationID,
					Text:           msg.Text,
					Agent:          msg.Agent,
				}); err != nil {
					_ = websocket.JSON.Send(conn, consoleOutbound{Type: "error", Text: "delivery failed"})
				}
			}
		}
	}()

	h.logger.Info("agent console connected")
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case evt := <-events:
			if err := websocket.JSON.Send(conn, consoleOutbound{Type: "event", Event: &evt}); err != nil {
				return
			}
		}
	}
}

// guestPhone recovers the deliverable address from a conversation ID of the
// form "wa:<phone>".
func guestPhone(conversationID string) string {
	return strings.TrimPrefix(conversationID, "wa:")
}
