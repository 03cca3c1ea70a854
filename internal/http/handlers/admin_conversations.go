package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lumalaser/concierge/internal/conversation"
	"github.com/lumalaser/concierge/internal/http/middleware"
	"github.com/lumalaser/concierge/pkg/logging"
)

// ExportPublisher enqueues transcript archive jobs.
type ExportPublisher interface {
	EnqueueExport(ctx context.Context, jobID string, req conversation.ExportRequest, opts ...conversation.PublishOption) error
}

// AdminConversationsHandler serves the conversation browser: list, read,
// export, and job status.
type AdminConversationsHandler struct {
	transcripts *conversation.TranscriptStore
	profiles    *conversation.ProfileStore
	jobs        conversation.JobRecorder
	publisher   ExportPublisher
	logger      *logging.Logger
}

func NewAdminConversationsHandler(
	transcripts *conversation.TranscriptStore,
	profiles *conversation.ProfileStore,
	jobs conversation.JobRecorder,
	publisher ExportPublisher,
	logger *logging.Logger,
) *AdminConversationsHandler {
	if transcripts == nil {
		panic("handlers: transcript store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminConversationsHandler{
		transcripts: transcripts,
		profiles:    profiles,
		jobs:        jobs,
		publisher:   publisher,
		logger:      logger,
	}
}

type conversationListItem struct {
	conversation.ConversationSummary
	Profile *conversation.Profile `json:"profile,omitempty"`
}

// ListConversations returns recent conversations, newest activity first.
// GET /admin/conversations
func (h *AdminConversationsHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.transcripts.ListRecent(r.Context(), 50)
	if err != nil {
		h.logger.Error("failed to list conversations", "error", err)
		http.Error(w, "failed to list conversations", http.StatusInternalServerError)
		return
	}

	items := make([]conversationListItem, 0, len(summaries))
	for _, s := range summaries {
		item := conversationListItem{ConversationSummary: s}
		if h.profiles != nil {
			if p, err := h.profiles.Load(r.Context(), s.ConversationID); err == nil {
				item.Profile = &p
			}
		}
		items = append(items, item)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"conversations": items})
}

// GetConversation returns one transcript with the guest profile.
// GET /admin/conversations/{conversationID}
func (h *AdminConversationsHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := pathConversationID(r)
	if conversationID == "" {
		http.Error(w, "missing conversation ID", http.StatusBadRequest)
		return
	}

	messages, err := h.transcripts.List(r.Context(), conversationID, 0)
	if err != nil {
		h.logger.Error("failed to load transcript", "error", err, "conversation_id", conversationID)
		http.Error(w, "failed to load conversation", http.StatusInternalServerError)
		return
	}

	resp := map[string]any{
		"conversation_id": conversationID,
		"messages":        messages,
	}
	if h.profiles != nil {
		if p, err := h.profiles.Load(r.Context(), conversationID); err == nil {
			resp["profile"] = p
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// ExportConversation enqueues a transcript archive job and returns its ID.
// POST /admin/conversations/{conversationID}/export
func (h *AdminConversationsHandler) ExportConversation(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		http.Error(w, "export not configured", http.StatusNotImplemented)
		return
	}
	conversationID := pathConversationID(r)
	if conversationID == "" {
		http.Error(w, "missing conversation ID", http.StatusBadRequest)
		return
	}

	// Attribute the export to the staff member whose token made the call.
	requestedBy := ""
	if claims, ok := middleware.AdminClaimsFromContext(r.Context()); ok {
		requestedBy = claims.Subject
	}

	jobID := uuid.NewString()
	if h.jobs != nil {
		if err := h.jobs.PutPending(r.Context(), &conversation.JobRecord{
			JobID:          jobID,
			ConversationID: conversationID,
		}); err != nil {
			h.logger.Error("failed to record export job", "error", err)
			http.Error(w, "failed to start export", http.StatusInternalServerError)
			return
		}
	}

	if err := h.publisher.EnqueueExport(r.Context(), jobID, conversation.ExportRequest{
		ConversationID: conversationID,
		RequestedBy:    requestedBy,
	}); err != nil {
		h.logger.Error("failed to enqueue export", "error", err, "conversation_id", conversationID)
		http.Error(w, "failed to start export", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"job_id": jobID,
		"status": string(conversation.JobStatusPending),
	})
}

// GetJob returns the status of a queued job.
// GET /admin/jobs/{jobID}
func (h *AdminConversationsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		http.Error(w, "job tracking not configured", http.StatusNotImplemented)
		return
	}
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		http.Error(w, "missing job ID", http.StatusBadRequest)
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, conversation.ErrJobNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to fetch job", "error", err, "job_id", jobID)
		http.Error(w, "failed to fetch job", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(job)
}

// pathConversationID reads the {conversationID} URL param. IDs like
// "wa:9715550001" arrive percent-encoded.
func pathConversationID(r *http.Request) string {
	raw := chi.URLParam(r, "conversationID")
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}
