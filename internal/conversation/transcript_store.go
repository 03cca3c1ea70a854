package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	transcriptTTL      = 90 * 24 * time.Hour
	transcriptMaxItems = 500
	transcriptIndexKey = "transcripts:index"
)

// TranscriptMessage is one dashboard-facing transcript entry. Unlike the LLM
// history it keeps delivery metadata and is never truncated for prompting.
type TranscriptMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // "user", "assistant", or "agent"
	From      string    `json:"from"`
	To        string    `json:"to"`
	Body      string    `json:"body"`
	Intent    string    `json:"intent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationSummary is one row in the dashboard conversation list.
type ConversationSummary struct {
	ConversationID string    `json:"conversation_id"`
	LastActivity   time.Time `json:"last_activity"`
}

// TranscriptStore keeps full per-conversation transcripts in Redis lists,
// with a sorted-set index ordered by last activity.
type TranscriptStore struct {
	redis *redis.Client
}

func NewTranscriptStore(redis *redis.Client) *TranscriptStore {
	if redis == nil {
		panic("conversation: redis client cannot be nil")
	}
	return &TranscriptStore{redis: redis}
}

// Append adds a message to the conversation transcript and bumps the index.
func (s *TranscriptStore) Append(ctx context.Context, conversationID string, msg TranscriptMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("conversation: failed to marshal transcript message: %w", err)
	}

	key := transcriptKey(conversationID)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -transcriptMaxItems, -1)
	pipe.Expire(ctx, key, transcriptTTL)
	pipe.ZAdd(ctx, transcriptIndexKey, redis.Z{
		Score:  float64(msg.Timestamp.UnixMilli()),
		Member: conversationID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("conversation: failed to append transcript: %w", err)
	}
	return nil
}

// List returns up to limit most recent messages in chronological order.
func (s *TranscriptStore) List(ctx context.Context, conversationID string, limit int64) ([]TranscriptMessage, error) {
	if limit <= 0 {
		limit = transcriptMaxItems
	}
	raw, err := s.redis.LRange(ctx, transcriptKey(conversationID), -limit, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to load transcript: %w", err)
	}

	messages := make([]TranscriptMessage, 0, len(raw))
	for _, item := range raw {
		var msg TranscriptMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("conversation: failed to decode transcript message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// ListRecent returns conversations ordered by most recent activity.
func (s *TranscriptStore) ListRecent(ctx context.Context, limit int64) ([]ConversationSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	entries, err := s.redis.ZRevRangeWithScores(ctx, transcriptIndexKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to list conversations: %w", err)
	}

	summaries := make([]ConversationSummary, 0, len(entries))
	for _, e := range entries {
		id, ok := e.Member.(string)
		if !ok {
			continue
		}
		summaries = append(summaries, ConversationSummary{
			ConversationID: id,
			LastActivity:   time.UnixMilli(int64(e.Score)).UTC(),
		})
	}
	return summaries, nil
}

func transcriptKey(id string) string {
	return fmt.Sprintf("transcript:%s", id)
}
