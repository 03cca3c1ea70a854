package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lumalaser/concierge/internal/conversation"
	"github.com/lumalaser/concierge/pkg/logging"
)

// AdminTrainingHandler manages the trained question/answer pairs.
type AdminTrainingHandler struct {
	training *conversation.TrainingStore
	logger   *logging.Logger
}

func NewAdminTrainingHandler(training *conversation.TrainingStore, logger *logging.Logger) *AdminTrainingHandler {
	if training == nil {
		panic("handlers: training store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminTrainingHandler{training: training, logger: logger}
}

// ListPairs returns all trained pairs.
// GET /admin/training
func (h *AdminTrainingHandler) ListPairs(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.training.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list trained pairs", "error", err)
		http.Error(w, "failed to list trained pairs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"pairs": pairs})
}

// UpsertPair creates or updates a trained pair. A {pairID} URL param, when
// present, overrides any ID in the body.
// POST /admin/training, PUT /admin/training/{pairID}
func (h *AdminTrainingHandler) UpsertPair(w http.ResponseWriter, r *http.Request) {
	var pair conversation.TrainedPair
	if err := json.NewDecoder(r.Body).Decode(&pair); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if pairID := chi.URLParam(r, "pairID"); pairID != "" {
		pair.ID = pairID
	}

	saved, err := h.training.Upsert(r.Context(), pair)
	if err != nil {
		h.logger.Error("failed to save trained pair", "error", err)
		http.Error(w, "question and answer are required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(saved)
}

// DeletePair removes a trained pair.
// DELETE /admin/training/{pairID}
func (h *AdminTrainingHandler) DeletePair(w http.ResponseWriter, r *http.Request) {
	pairID := chi.URLParam(r, "pairID")
	if pairID == "" {
		http.Error(w, "missing pair ID", http.StatusBadRequest)
		return
	}

	if err := h.training.Delete(r.Context(), pairID); err != nil {
		if errors.Is(err, conversation.ErrPairNotFound) {
			http.Error(w, "pair not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to delete trained pair", "error", err, "pair_id", pairID)
		http.Error(w, "failed to delete trained pair", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
