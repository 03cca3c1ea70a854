package main

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"

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

// startInProcessWorker runs the conversation worker inside the API process.
// Used with the in-memory queue in development, where a separate worker
// binary would never see the queued jobs.
func startInProcessWorker(
	ctx context.Context,
	cfg *appconfig.Config,
	awsCfg aws.Config,
	queue *conversation.MemoryQueue,
	jobStore *conversation.JobStore,
	messenger *whatsapp.Client,
	hub *livechat.Hub,
	transcripts *conversation.TranscriptStore,
	profiles *conversation.ProfileStore,
	history *conversation.HistoryStore,
	training *conversation.TrainingStore,
	appointments *conversation.AppointmentStore,
	analyticsStore *analytics.Store,
	m *metrics.Metrics,
	logger *logging.Logger,
) (*conversation.Worker, error) {
	llm, err := mainconfig.BuildLLMClient(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if m != nil {
		llm = conversation.NewTimedLLMClient(llm, m)
	}

	engine := conversation.NewEngine(
		conversation.EngineConfig{
			ClinicName:      cfg.ClinicName,
			DefaultLanguage: cfg.DefaultLanguage,
			Model:           cfg.OpenAIModel,
			MaxTokens:       int32(cfg.LLMMaxTokens),
			Temperature:     float32(cfg.LLMTemperature),
		},
		llm,
		history,
		profiles,
		training,
		appointments,
		conversation.NewSentimentRouter(logger),
		mainconfig.BuildNotifier(cfg, awsCfg, logger),
		logger,
	)

	opts := []conversation.WorkerOption{
		conversation.WithWorkerCount(cfg.WorkerCount),
		conversation.WithTranscriptStore(transcripts),
		conversation.WithLivePublisher(hub),
	}
	if m != nil {
		opts = append(opts, conversation.WithMetrics(m))
	}
	if analyticsStore != nil {
		opts = append(opts, conversation.WithUsageRecorder(analyticsStore))
	}
	if cfg.ArchiveBucket != "" {
		s3Client := mainconfig.NewS3Client(awsCfg, cfg.AWSEndpointOverride)
		opts = append(opts, conversation.WithArchiver(archive.NewStore(s3Client, cfg.ArchiveBucket, logger)))
	}

	worker := conversation.NewWorker(engine, queue, jobStore, messenger, profiles, logger, opts...)
	worker.Start(ctx)
	return worker, nil
}
