package conversation

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveOne(t *testing.T, queue *MemoryQueue) queuePayload {
	t.Helper()
	msgs, err := queue.Receive(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var payload queuePayload
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Body), &payload))
	return payload
}

func TestPublisherEnqueueMessage(t *testing.T) {
	queue := NewMemoryQueue(4)
	publisher := NewPublisher(queue, nil)

	req := MessageRequest{
		ConversationID: "wa:9715550001",
		From:           "9715550001",
		Message:        "hello how are you book appointment",
		Channel:        ChannelWhatsApp,
	}
	require.NoError(t, publisher.EnqueueMessage(context.Background(), "job-1", req))

	payload := receiveOne(t, queue)
	assert.Equal(t, "job-1", payload.ID)
	assert.Equal(t, jobTypeMessage, payload.Kind)
	assert.Equal(t, req.Message, payload.Message.Message)
	assert.True(t, payload.TrackStatus)
}

func TestPublisherEnqueueExport(t *testing.T) {
	queue := NewMemoryQueue(4)
	publisher := NewPublisher(queue, nil)

	err := publisher.EnqueueExport(context.Background(), "job-2", ExportRequest{
		ConversationID: "wa:9715550001",
		RequestedBy:    "admin",
	})
	require.NoError(t, err)

	payload := receiveOne(t, queue)
	assert.Equal(t, jobTypeExport, payload.Kind)
	assert.Equal(t, "wa:9715550001", payload.Export.ConversationID)
}

func TestPublisherGeneratesJobID(t *testing.T) {
	queue := NewMemoryQueue(4)
	publisher := NewPublisher(queue, nil)

	require.NoError(t, publisher.EnqueueMessage(context.Background(), "", MessageRequest{
		ConversationID: "wa:9715550002",
		Message:        "hi",
	}))

	payload := receiveOne(t, queue)
	assert.NotEmpty(t, payload.ID)
}

func TestPublisherWithoutJobTracking(t *testing.T) {
	queue := NewMemoryQueue(4)
	publisher := NewPublisher(queue, nil)

	req := MessageRequest{ConversationID: "wa:9715550003", Message: "hi"}
	require.NoError(t, publisher.EnqueueMessage(context.Background(), "job-3", req, WithoutJobTracking()))

	payload := receiveOne(t, queue)
	assert.False(t, payload.TrackStatus)
}
