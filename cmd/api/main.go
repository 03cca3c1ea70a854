package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/lumalaser/concierge/cmd/mainconfig"
	"github.com/lumalaser/concierge/internal/analytics"
	"github.com/lumalaser/concierge/internal/api/router"
	"github.com/lumalaser/concierge/internal/channels/whatsapp"
	appconfig "github.com/lumalaser/concierge/internal/config"
	"github.com/lumalaser/concierge/internal/conversation"
	"github.com/lumalaser/concierge/internal/debounce"
	"github.com/lumalaser/concierge/internal/http/handlers"
	"github.com/lumalaser/concierge/internal/livechat"
	"github.com/lumalaser/concierge/internal/observability/metrics"
	"github.com/lumalaser/concierge/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting concierge API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()
	m := metrics.New(prometheus.DefaultRegisterer)

	redisClient := newRedisClient(cfg)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not reachable at startup", "error", err)
	}

	transcripts := conversation.NewTranscriptStore(redisClient)
	profiles := conversation.NewProfileStore(redisClient, nil)
	history := conversation.NewHistoryStore(redisClient, nil)
	training := conversation.NewTrainingStore(redisClient)
	appointments := conversation.NewAppointmentStore(redisClient)

	var (
		pool           *pgxpool.Pool
		sqlDB          *sql.DB
		analyticsStore *analytics.Store
	)
	if cfg.DatabaseURL != "" {
		var err error
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		analyticsStore = analytics.NewStore(pool, logger)

		if sqlDB, err = sql.Open("pgx", cfg.DatabaseURL); err != nil {
			logger.Warn("readiness probe database handle unavailable", "error", err)
		} else {
			defer sqlDB.Close()
		}
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	dynamoClient := mainconfig.NewDynamoClient(awsCfg)
	jobStore := conversation.NewJobStore(dynamoClient, cfg.ConversationJobsTable, logger)

	var (
		publisher *conversation.Publisher
		memQueue  *conversation.MemoryQueue
	)
	if cfg.UseMemoryQueue {
		memQueue = conversation.NewMemoryQueue(64)
		publisher = conversation.NewPublisher(memQueue, logger)
		logger.Info("using in-memory conversation queue")
	} else {
		queue := conversation.NewSQSQueue(mainconfig.NewSQSClient(awsCfg), cfg.ConversationQueueURL)
		publisher = conversation.NewPublisher(queue, logger)
	}

	waClient := whatsapp.NewClient(cfg.WhatsAppAccessToken, cfg.WhatsAppPhoneNumberID)
	if cfg.WhatsAppGraphBaseURL != "" {
		waClient.SetGraphAPIBase(cfg.WhatsAppGraphBaseURL)
	}

	hub := livechat.NewHub()
	liveHandler := livechat.NewHandler(hub, waClient, transcripts, history, profiles, logger)

	// Guests send bursts of short fragments; the debouncer merges each burst
	// into one turn before it reaches the queue.
	var profileNames sync.Map
	debouncer := debounce.New(cfg.DebounceQuietPeriod, func(identity, merged string) error {
		m.DebounceFlush()
		name := ""
		if v, ok := profileNames.LoadAndDelete(identity); ok {
			name = v.(string)
		}
		req := conversation.MessageRequest{
			ConversationID: identity,
			From:           strings.TrimPrefix(identity, "wa:"),
			ProfileName:    name,
			Message:        merged,
			Channel:        conversation.ChannelWhatsApp,
		}

		enqCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		jobID := uuid.NewString()
		if err := jobStore.PutPending(enqCtx, &conversation.JobRecord{
			JobID:          jobID,
			ConversationID: identity,
			MessageRequest: &req,
		}); err != nil {
			logger.Warn("failed to record pending job", "error", err, "conversation_id", identity)
		}
		return publisher.EnqueueMessage(enqCtx, jobID, req)
	},
		debounce.WithLogger(logger),
		debounce.WithErrorFunc(func(identity string, err error) {
			logger.Error("debounced turn failed to enqueue", "conversation_id", identity, "error", err)
		}),
	)
	defer debouncer.Close()

	webhook := whatsapp.NewWebhookHandler(cfg.WhatsAppVerifyToken, cfg.WhatsAppAppSecret, func(msg whatsapp.ParsedInboundMessage) {
		m.InboundMessage("whatsapp")
		identity := "wa:" + msg.From
		if msg.ProfileName != "" {
			profileNames.Store(identity, msg.ProfileName)
		}
		debouncer.OnMessage(identity, msg.Text)
	})

	var dashboard *handlers.AdminDashboardHandler
	if analyticsStore != nil {
		dashboard = handlers.NewAdminDashboardHandler(analyticsStore, appointments, logger)
	}
	conversationsHandler := handlers.NewAdminConversationsHandler(transcripts, profiles, jobStore, publisher, logger)
	trainingHandler := handlers.NewAdminTrainingHandler(training, logger)

	r := router.New(router.Config{
		Health:         handlers.NewHealthHandler(sqlDB, redisClient, hub, logger),
		Webhook:        webhook,
		Dashboard:      dashboard,
		Conversations:  conversationsHandler,
		Training:       trainingHandler,
		Live:           liveHandler,
		AdminJWTSecret: cfg.AdminJWTSecret,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         logger,
	})

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	var inProcessWorker *conversation.Worker
	if cfg.UseMemoryQueue {
		inProcessWorker, err = startInProcessWorker(workerCtx, cfg, awsCfg, memQueue, jobStore, waClient, hub,
			transcripts, profiles, history, training, appointments, analyticsStore, m, logger)
		if err != nil {
			logger.Error("failed to start in-process worker", "error", err)
			os.Exit(1)
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE and websocket streams stay open
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	stopWorker()
	if inProcessWorker != nil {
		inProcessWorker.Wait()
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func newRedisClient(cfg *appconfig.Config) *redis.Client {
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts)
}
