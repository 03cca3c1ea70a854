package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/lumalaser/concierge/cmd/mainconfig"
	"github.com/lumalaser/concierge/internal/analytics"
	"github.com/lumalaser/concierge/internal/archive"
	"github.com/lumalaser/concierge/internal/channels/whatsapp"
	appconfig "github.com/lumalaser/concierge/internal/config"
	"github.com/lumalaser/concierge/internal/conversation"
	"github.com/lumalaser/concierge/internal/livechat"
	"github.com/lumalaser/concierge/internal/observability/metrics"
	"github.com/lumalaser/concierge/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting concierge conversation worker", "env", cfg.Env)

	ctx := context.Background()
	m := metrics.New(prometheus.DefaultRegisterer)

	// The worker has no API surface; expose /metrics on its own port so
	// Prometheus can still scrape the job and LLM instrumentation.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		addr := ":" + cfg.MetricsPort
		logger.Info("metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics listener stopped", "error", err)
		}
	}()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	queue := conversation.NewSQSQueue(mainconfig.NewSQSClient(awsCfg), cfg.ConversationQueueURL)
	jobStore := conversation.NewJobStore(mainconfig.NewDynamoClient(awsCfg), cfg.ConversationJobsTable, logger)

	redisOpts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("redis not reachable", "error", err)
		os.Exit(1)
	}

	transcripts := conversation.NewTranscriptStore(redisClient)
	profiles := conversation.NewProfileStore(redisClient, nil)
	history := conversation.NewHistoryStore(redisClient, nil)
	training := conversation.NewTrainingStore(redisClient)
	appointments := conversation.NewAppointmentStore(redisClient)

	llm, err := mainconfig.BuildLLMClient(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build LLM client", "error", err)
		os.Exit(1)
	}
	timedLLM := conversation.NewTimedLLMClient(llm, m)

	engine := conversation.NewEngine(
		conversation.EngineConfig{
			ClinicName:      cfg.ClinicName,
			DefaultLanguage: cfg.DefaultLanguage,
			Model:           cfg.OpenAIModel,
			MaxTokens:       int32(cfg.LLMMaxTokens),
			Temperature:     float32(cfg.LLMTemperature),
		},
		timedLLM,
		history,
		profiles,
		training,
		appointments,
		conversation.NewSentimentRouter(logger),
		mainconfig.BuildNotifier(cfg, awsCfg, logger),
		logger,
	)

	waClient := whatsapp.NewClient(cfg.WhatsAppAccessToken, cfg.WhatsAppPhoneNumberID)
	if cfg.WhatsAppGraphBaseURL != "" {
		waClient.SetGraphAPIBase(cfg.WhatsAppGraphBaseURL)
	}

	opts := []conversation.WorkerOption{
		conversation.WithWorkerCount(cfg.WorkerCount),
		conversation.WithTranscriptStore(transcripts),
		conversation.WithLivePublisher(livechat.NewHub()),
		conversation.WithMetrics(m),
	}
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		opts = append(opts, conversation.WithUsageRecorder(analytics.NewStore(pool, logger)))
	}
	if cfg.ArchiveBucket != "" {
		s3Client := mainconfig.NewS3Client(awsCfg, cfg.AWSEndpointOverride)
		opts = append(opts, conversation.WithArchiver(archive.NewStore(s3Client, cfg.ArchiveBucket, logger)))
	}

	worker := conversation.NewWorker(engine, queue, jobStore, waClient, profiles, logger, opts...)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	worker.Start(runCtx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down conversation worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("conversation worker stopped")
	case <-doneCtx.Done():
		logger.Error("conversation worker shutdown timed out", "error", doneCtx.Err())
	}
}
