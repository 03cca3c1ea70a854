package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lumalaser/concierge/pkg/logging"
)

// ReplyMessenger delivers replies back to the guest's channel.
type ReplyMessenger interface {
	SendText(ctx context.Context, to, body string) error
}

// LiveEventPublisher fans processed messages out to the live-chat console.
type LiveEventPublisher interface {
	PublishMessage(conversationID, role, text, intent string)
}

// TranscriptArchiver writes a conversation transcript to long-term storage
// and returns its location.
type TranscriptArchiver interface {
	Archive(ctx context.Context, conversationID string, messages []TranscriptMessage) (string, error)
}

// MetricsRecorder receives worker-side instrumentation events. A nil
// recorder disables instrumentation.
type MetricsRecorder interface {
	OutboundReply(intent string)
	Handoff()
	JobStarted()
	JobFinished()
}

// Worker consumes conversation jobs from the queue and invokes the engine.
type Worker struct {
	processor  Service
	queue      queueClient
	jobs       JobUpdater
	messenger  ReplyMessenger
	profiles   *ProfileStore
	transcript *TranscriptStore
	usage      UsageRecorder
	live       LiveEventPublisher
	archiver   TranscriptArchiver
	metrics    MetricsRecorder
	logger     *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	transcript       *TranscriptStore
	usage            UsageRecorder
	live             LiveEventPublisher
	archiver         TranscriptArchiver
	metrics          MetricsRecorder
}

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithTranscriptStore wires the Redis transcript store used by the admin UI.
func WithTranscriptStore(store *TranscriptStore) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.transcript = store
	}
}

// WithUsageRecorder wires analytics persistence for processed messages.
func WithUsageRecorder(recorder UsageRecorder) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.usage = recorder
	}
}

// WithLivePublisher wires the live-chat event stream.
func WithLivePublisher(pub LiveEventPublisher) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.live = pub
	}
}

// WithArchiver wires transcript export to object storage.
func WithArchiver(archiver TranscriptArchiver) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.archiver = archiver
	}
}

// WithMetrics wires job and reply instrumentation.
func WithMetrics(recorder MetricsRecorder) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.metrics = recorder
	}
}

func NewWorker(processor Service, queue queueClient, jobs JobUpdater, messenger ReplyMessenger, profiles *ProfileStore, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if processor == nil {
		panic("conversation: processor cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if jobs == nil {
		panic("conversation: job store cannot be nil")
	}
	if profiles == nil {
		panic("conversation: profile store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		processor:  processor,
		queue:      queue,
		jobs:       jobs,
		messenger:  messenger,
		profiles:   profiles,
		transcript: cfg.transcript,
		usage:      cfg.usage,
		live:       cfg.live,
		archiver:   cfg.archiver,
		metrics:    cfg.metrics,
		logger:     logger,
		cfg:        cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("conversation worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("conversation worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive conversation jobs", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		w.logger.Error("failed to decode conversation job", "error", err)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	if w.metrics != nil {
		w.metrics.JobStarted()
		defer w.metrics.JobFinished()
	}

	var err error
	switch payload.Kind {
	case jobTypeMessage:
		err = w.handleGuestMessage(ctx, payload)
	case jobTypeExport:
		err = w.handleExport(ctx, payload)
	default:
		err = fmt.Errorf("conversation: unknown job type %q", payload.Kind)
	}

	if err != nil {
		w.logger.Error("conversation job failed", "error", err, "job_id", payload.ID, "kind", payload.Kind)
		if payload.TrackStatus {
			if storeErr := w.jobs.MarkFailed(ctx, payload.ID, err.Error()); storeErr != nil {
				w.logger.Error("failed to update job status", "error", storeErr, "job_id", payload.ID)
			}
		}
	}

	w.deleteMessage(context.Background(), msg.ReceiptHandle)
}

func (w *Worker) handleGuestMessage(ctx context.Context, payload queuePayload) error {
	req := payload.Message
	w.logger.Info("processing guest message",
		"job_id", payload.ID,
		"conversation_id", req.ConversationID,
	)

	w.appendTranscript(ctx, req.ConversationID, TranscriptMessage{
		Role:      "user",
		From:      req.From,
		Body:      req.Message,
		Timestamp: time.Now().UTC(),
	})
	if w.live != nil {
		w.live.PublishMessage(req.ConversationID, "user", req.Message, "")
	}
	w.recordUsage(ctx, UsageEvent{
		ConversationID: req.ConversationID,
		Direction:      "inbound",
		At:             time.Now().UTC(),
	})

	profile, err := w.profiles.Load(ctx, req.ConversationID)
	if err != nil {
		return err
	}
	if profile.Handoff {
		// Staff own the conversation; the bot stays silent and the live
		// console already received the message.
		w.logger.Info("conversation in handoff, bot reply suppressed",
			"conversation_id", req.ConversationID,
			"reason", profile.HandoffReason,
		)
		if payload.TrackStatus {
			if err := w.jobs.MarkCompleted(ctx, payload.ID, nil, req.ConversationID); err != nil {
				w.logger.Error("failed to update job status", "error", err, "job_id", payload.ID)
			}
		}
		return nil
	}

	resp, err := w.processor.ProcessMessage(ctx, req)
	if err != nil {
		w.sendFallback(ctx, req)
		return err
	}

	if w.messenger != nil && resp.Message != "" {
		if err := w.messenger.SendText(ctx, req.From, resp.Message); err != nil {
			w.logger.Error("failed to deliver reply",
				"error", err,
				"conversation_id", req.ConversationID,
			)
		}
	}
	if w.metrics != nil && resp.Message != "" {
		w.metrics.OutboundReply(resp.Intent)
		if resp.Handoff {
			w.metrics.Handoff()
		}
	}

	w.appendTranscript(ctx, req.ConversationID, TranscriptMessage{
		Role:      "assistant",
		To:        req.From,
		Body:      resp.Message,
		Intent:    resp.Intent,
		Timestamp: time.Now().UTC(),
	})
	if w.live != nil {
		w.live.PublishMessage(req.ConversationID, "assistant", resp.Message, resp.Intent)
	}
	w.recordUsage(ctx, UsageEvent{
		ConversationID: req.ConversationID,
		Direction:      "outbound",
		Intent:         resp.Intent,
		Language:       resp.Language,
		Gender:         profile.Gender,
		TokensIn:       int(resp.Usage.InputTokens),
		TokensOut:      int(resp.Usage.OutputTokens),
		At:             time.Now().UTC(),
	})

	if payload.TrackStatus {
		if err := w.jobs.MarkCompleted(ctx, payload.ID, resp, resp.ConversationID); err != nil {
			w.logger.Error("failed to update job status", "error", err, "job_id", payload.ID)
		}
	}
	return nil
}

func (w *Worker) handleExport(ctx context.Context, payload queuePayload) error {
	if w.archiver == nil || w.transcript == nil {
		return errors.New("conversation: export requested but archiving is not configured")
	}

	conversationID := payload.Export.ConversationID
	messages, err := w.transcript.List(ctx, conversationID, 0)
	if err != nil {
		return err
	}

	location, err := w.archiver.Archive(ctx, conversationID, messages)
	if err != nil {
		return err
	}

	w.logger.Info("transcript archived",
		"conversation_id", conversationID,
		"location", location,
		"messages", len(messages),
	)
	if payload.TrackStatus {
		if err := w.jobs.MarkCompleted(ctx, payload.ID, &Response{
			ConversationID: conversationID,
			Message:        location,
			Timestamp:      time.Now().UTC(),
		}, conversationID); err != nil {
			w.logger.Error("failed to update job status", "error", err, "job_id", payload.ID)
		}
	}
	return nil
}

func (w *Worker) sendFallback(ctx context.Context, req MessageRequest) {
	if w.messenger == nil {
		return
	}
	body := "Sorry, I'm having trouble responding right now. Please try again in a moment."
	if DetectLanguage(req.Message) == "ar" {
		body = "عذراً، أواجه مشكلة في الرد حالياً. نرجو المحاولة بعد قليل."
	}
	if err := w.messenger.SendText(ctx, req.From, body); err != nil {
		w.logger.Warn("failed to send fallback reply", "error", err)
	}
}

func (w *Worker) appendTranscript(ctx context.Context, conversationID string, msg TranscriptMessage) {
	if w.transcript == nil {
		return
	}
	if err := w.transcript.Append(ctx, conversationID, msg); err != nil {
		w.logger.Warn("failed to append transcript", "error", err, "conversation_id", conversationID)
	}
}

func (w *Worker) recordUsage(ctx context.Context, evt UsageEvent) {
	if w.usage == nil {
		return
	}
	if err := w.usage.RecordMessage(ctx, evt); err != nil {
		w.logger.Warn("failed to record usage event", "error", err)
	}
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete conversation job", "error", err)
	}
}
