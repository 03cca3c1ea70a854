package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumalaser/concierge/pkg/logging"
)

const readinessTimeout = 2 * time.Second

// LiveStats reports live-console activity for the readiness payload.
type LiveStats interface {
	SubscriberCount() int
}

// HealthHandler serves liveness and readiness probes. Liveness always
// succeeds while the process runs; readiness pings the dependencies.
type HealthHandler struct {
	db     *sql.DB
	redis  *redis.Client
	live   LiveStats
	logger *logging.Logger
}

func NewHealthHandler(db *sql.DB, redisClient *redis.Client, live LiveStats, logger *logging.Logger) *HealthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &HealthHandler{db: db, redis: redisClient, live: live, logger: logger}
}

// Liveness reports the process is up.
// GET /health
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Readiness reports whether the service can do useful work. Each
// configured dependency is pinged with a short deadline.
// GET /health/ready
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			h.logger.Warn("postgres readiness check failed", "error", err)
			checks["postgres"] = err.Error()
			healthy = false
		} else {
			checks["postgres"] = "ok"
		}
	}
	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			h.logger.Warn("redis readiness check failed", "error", err)
			checks["redis"] = err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	status := "ready"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	body := map[string]any{
		"status": status,
		"checks": checks,
	}
	if h.live != nil {
		body["live_subscribers"] = h.live.SubscriberCount()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
