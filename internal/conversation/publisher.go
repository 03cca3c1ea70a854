package conversation

import (
	"context"
	"fmt"

	"github.com/lumalaser/concierge/pkg/logging"
)

// Publisher enqueues conversation jobs for asynchronous processing.
type Publisher struct {
	queue  queueClient
	logger *logging.Logger
}

func NewPublisher(queue queueClient, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// EnqueueMessage publishes a debounced turn for the worker.
func (p *Publisher) EnqueueMessage(ctx context.Context, jobID string, req MessageRequest, opts ...PublishOption) error {
	return p.enqueue(ctx, queuePayload{
		ID:          jobID,
		Kind:        jobTypeMessage,
		Message:     req,
		TrackStatus: true,
	}, opts...)
}

// EnqueueExport publishes a transcript archive job.
func (p *Publisher) EnqueueExport(ctx context.Context, jobID string, req ExportRequest, opts ...PublishOption) error {
	return p.enqueue(ctx, queuePayload{
		ID:          jobID,
		Kind:        jobTypeExport,
		Export:      req,
		TrackStatus: true,
	}, opts...)
}

func (p *Publisher) enqueue(ctx context.Context, payload queuePayload, opts ...PublishOption) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for _, opt := range opts {
		opt(&payload)
	}

	payload, body, err := encodePayload(payload)
	if err != nil {
		return err
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("conversation: failed to enqueue job: %w", err)
	}

	p.logger.Debug("conversation job enqueued", "job_id", payload.ID, "kind", payload.Kind)
	return nil
}
