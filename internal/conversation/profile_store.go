package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const profileTTL = 30 * 24 * time.Hour

// Profile holds what we have inferred about a guest. Language and gender are
// sticky once detected so greetings stay consistent across sessions.
type Profile struct {
	ConversationID string    `json:"conversation_id"`
	Name           string    `json:"name,omitempty"`
	Language       string    `json:"language,omitempty"` // "ar" or "en"
	Gender         string    `json:"gender,omitempty"`   // "female", "male", or ""
	Handoff        bool      `json:"handoff"`
	HandoffReason  string    `json:"handoff_reason,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ProfileStore persists guest profiles in Redis.
type ProfileStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

func NewProfileStore(redis *redis.Client, tracer trace.Tracer) *ProfileStore {
	if redis == nil {
		panic("conversation: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("concierge.internal.conversation.profile")
	}
	return &ProfileStore{
		redis:  redis,
		tracer: tracer,
	}
}

// Load returns the stored profile, or a zero-valued profile if none exists.
func (s *ProfileStore) Load(ctx context.Context, conversationID string) (Profile, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_profile")
	defer span.End()

	data, err := s.redis.Get(ctx, profileKey(conversationID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Profile{ConversationID: conversationID}, nil
		}
		span.RecordError(err)
		return Profile{}, fmt.Errorf("conversation: failed to load profile: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		span.RecordError(err)
		return Profile{}, fmt.Errorf("conversation: failed to decode profile: %w", err)
	}
	return p, nil
}

// Save persists the profile with a sliding TTL.
func (s *ProfileStore) Save(ctx context.Context, p Profile) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_profile")
	defer span.End()

	p.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(p)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal profile: %w", err)
	}
	if err := s.redis.Set(ctx, profileKey(p.ConversationID), data, profileTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist profile: %w", err)
	}
	return nil
}

// SetHandoff flips the human-takeover flag for a conversation.
func (s *ProfileStore) SetHandoff(ctx context.Context, conversationID string, active bool, reason string) error {
	p, err := s.Load(ctx, conversationID)
	if err != nil {
		return err
	}
	p.ConversationID = conversationID
	p.Handoff = active
	p.HandoffReason = reason
	if !active {
		p.HandoffReason = ""
	}
	return s.Save(ctx, p)
}

func profileKey(id string) string {
	return fmt.Sprintf("profile:%s", id)
}
