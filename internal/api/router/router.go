// Package router assembles the HTTP surface of the concierge API.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumalaser/concierge/internal/channels/whatsapp"
	"github.com/lumalaser/concierge/internal/http/handlers"
	"github.com/lumalaser/concierge/internal/http/middleware"
	"github.com/lumalaser/concierge/internal/livechat"
	"github.com/lumalaser/concierge/pkg/logging"
)

// Config carries the handlers and middleware settings the router mounts.
// Nil optional handlers leave their routes unmounted.
type Config struct {
	Health        *handlers.HealthHandler
	Webhook       *whatsapp.WebhookHandler
	Dashboard     *handlers.AdminDashboardHandler
	Conversations *handlers.AdminConversationsHandler
	Training      *handlers.AdminTrainingHandler
	Live          *livechat.Handler

	AdminJWTSecret string
	AllowedOrigins []string
	WebhookRate    float64
	WebhookBurst   int
	Logger         *logging.Logger
}

// New builds the chi router with the public webhook surface and the
// JWT-protected admin surface.
func New(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	rate := cfg.WebhookRate
	if rate <= 0 {
		rate = 20
	}
	burst := cfg.WebhookBurst
	if burst <= 0 {
		burst = 40
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Compress(5))

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	if cfg.Webhook != nil {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(rate, burst))
			r.Get("/webhooks/whatsapp", cfg.Webhook.HandleVerification)
			r.Post("/webhooks/whatsapp", cfg.Webhook.HandleInbound)
		})
	}

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.AllowedOrigins))
		r.Use(middleware.AdminJWT(cfg.AdminJWTSecret))

		if cfg.Dashboard != nil {
			r.Get("/dashboard", cfg.Dashboard.GetDashboard)
		}
		if cfg.Conversations != nil {
			r.Get("/conversations", cfg.Conversations.ListConversations)
			r.Get("/conversations/{conversationID}", cfg.Conversations.GetConversation)
			r.Post("/conversations/{conversationID}/export", cfg.Conversations.ExportConversation)
			r.Get("/jobs/{jobID}", cfg.Conversations.GetJob)
		}
		if cfg.Training != nil {
			r.Get("/training", cfg.Training.ListPairs)
			r.Post("/training", cfg.Training.UpsertPair)
			r.Put("/training/{pairID}", cfg.Training.UpsertPair)
			r.Delete("/training/{pairID}", cfg.Training.DeletePair)
		}
		if cfg.Live != nil {
			r.Get("/live/stream", cfg.Live.HandleStream)
			r.Get("/live/console", cfg.Live.HandleConsole)
			r.Post("/live/send", cfg.Live.HandleSend)
			r.Post("/live/takeover", cfg.Live.HandleTakeover)
			r.Post("/live/release", cfg.Live.HandleRelease)
		}
	})

	return r
}
