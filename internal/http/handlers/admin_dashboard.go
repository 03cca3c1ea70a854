package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/lumalaser/concierge/internal/analytics"
	"github.com/lumalaser/concierge/internal/conversation"
	"github.com/lumalaser/concierge/pkg/logging"
)

// AnalyticsReader is the aggregate query surface the dashboard needs.
type AnalyticsReader interface {
	Summary(ctx context.Context, since time.Time) (*analytics.Summary, error)
	IntentBreakdown(ctx context.Context, since time.Time) ([]analytics.BucketCount, error)
	LanguageBreakdown(ctx context.Context, since time.Time) ([]analytics.BucketCount, error)
	GenderBreakdown(ctx context.Context, since time.Time) ([]analytics.BucketCount, error)
	DailyVolume(ctx context.Context, days int) ([]analytics.DailyCount, error)
}

// AppointmentReader lists recent booking requests.
type AppointmentReader interface {
	ListRecent(ctx context.Context, limit int) ([]conversation.AppointmentRequest, error)
}

// AdminDashboardHandler serves the staff dashboard overview.
type AdminDashboardHandler struct {
	analytics    AnalyticsReader
	appointments AppointmentReader
	logger       *logging.Logger
}

func NewAdminDashboardHandler(analytics AnalyticsReader, appointments AppointmentReader, logger *logging.Logger) *AdminDashboardHandler {
	if analytics == nil {
		panic("handlers: analytics reader cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminDashboardHandler{
		analytics:    analytics,
		appointments: appointments,
		logger:       logger,
	}
}

// DashboardResponse is the overview payload.
type DashboardResponse struct {
	Period       string                            `json:"period"`
	Summary      *analytics.Summary                `json:"summary"`
	Intents      []analytics.BucketCount           `json:"intents"`
	Languages    []analytics.BucketCount           `json:"languages"`
	Genders      []analytics.BucketCount           `json:"genders"`
	DailyVolume  []analytics.DailyCount            `json:"daily_volume"`
	Appointments []conversation.AppointmentRequest `json:"recent_appointments,omitempty"`
}

// GetDashboard returns the dashboard overview.
// GET /admin/dashboard?period=day|week|month
func (h *AdminDashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "week"
	}

	var since time.Time
	now := time.Now().UTC()
	switch period {
	case "day":
		since = now.AddDate(0, 0, -1)
	case "week":
		since = now.AddDate(0, 0, -7)
	case "month":
		since = now.AddDate(0, -1, 0)
	default:
		http.Error(w, "period must be day, week, or month", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	resp := DashboardResponse{Period: period}

	summary, err := h.analytics.Summary(ctx, since)
	if err != nil {
		h.logger.Error("dashboard summary failed", "error", err)
		http.Error(w, "failed to load dashboard", http.StatusInternalServerError)
		return
	}
	resp.Summary = summary

	// Breakdowns are best-effort; a partial dashboard beats a 500.
	if resp.Intents, err = h.analytics.IntentBreakdown(ctx, since); err != nil {
		h.logger.Warn("intent breakdown failed", "error", err)
	}
	if resp.Languages, err = h.analytics.LanguageBreakdown(ctx, since); err != nil {
		h.logger.Warn("language breakdown failed", "error", err)
	}
	if resp.Genders, err = h.analytics.GenderBreakdown(ctx, since); err != nil {
		h.logger.Warn("gender breakdown failed", "error", err)
	}
	if resp.DailyVolume, err = h.analytics.DailyVolume(ctx, 14); err != nil {
		h.logger.Warn("daily volume failed", "error", err)
	}
	if h.appointments != nil {
		if resp.Appointments, err = h.appointments.ListRecent(ctx, 20); err != nil {
			h.logger.Warn("recent appointments failed", "error", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
