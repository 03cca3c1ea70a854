package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	appointmentTTL      = 90 * 24 * time.Hour
	appointmentIndexKey = "appointments:index"
)

// BookAppointmentTool is the function definition offered to the LLM so it
// can collect booking details instead of free-texting them.
var BookAppointmentTool = ToolDefinition{
	Name:        "book_appointment",
	Description: "Record an appointment request once the guest has given a service, a preferred day and a preferred time. Do not call it before all three are known.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"service": {
				"type": "string",
				"description": "The treatment the guest wants, e.g. 'full body laser', 'facial laser'"
			},
			"preferred_day": {
				"type": "string",
				"description": "The day the guest asked for, as they phrased it, e.g. 'tomorrow', 'Saturday', '2026-09-01'"
			},
			"preferred_time": {
				"type": "string",
				"description": "The time window the guest asked for, e.g. 'morning', '6pm'"
			},
			"notes": {
				"type": "string",
				"description": "Anything else relevant: skin area, package questions, first visit"
			}
		},
		"required": ["service", "preferred_day", "preferred_time"]
	}`),
}

// AppointmentRequest is a booking request captured from the conversation.
// The clinic confirms the exact slot by phone, so day and time stay as the
// guest phrased them.
type AppointmentRequest struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Phone          string    `json:"phone"`
	GuestName      string    `json:"guest_name,omitempty"`
	Service        string    `json:"service"`
	PreferredDay   string    `json:"preferred_day"`
	PreferredTime  string    `json:"preferred_time"`
	Notes          string    `json:"notes,omitempty"`
	Language       string    `json:"language"`
	CreatedAt      time.Time `json:"created_at"`
}

// ParseAppointmentArgs decodes the LLM tool-call arguments into a request.
func ParseAppointmentArgs(args json.RawMessage) (*AppointmentRequest, error) {
	var req AppointmentRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, fmt.Errorf("conversation: invalid book_appointment arguments: %w", err)
	}
	if strings.TrimSpace(req.Service) == "" {
		return nil, errors.New("conversation: book_appointment arguments missing service")
	}
	if strings.TrimSpace(req.PreferredDay) == "" || strings.TrimSpace(req.PreferredTime) == "" {
		return nil, errors.New("conversation: book_appointment arguments missing day or time")
	}
	return &req, nil
}

// AppointmentStore persists appointment requests in Redis for the staff
// dashboard to pick up.
type AppointmentStore struct {
	redis *redis.Client
}

func NewAppointmentStore(redis *redis.Client) *AppointmentStore {
	if redis == nil {
		panic("conversation: redis client cannot be nil")
	}
	return &AppointmentStore{redis: redis}
}

// Save assigns the request an ID and writes it with a dashboard index entry.
func (s *AppointmentStore) Save(ctx context.Context, req *AppointmentRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("conversation: failed to marshal appointment: %w", err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, appointmentKey(req.ID), data, appointmentTTL)
	pipe.ZAdd(ctx, appointmentIndexKey, redis.Z{
		Score:  float64(req.CreatedAt.UnixMilli()),
		Member: req.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("conversation: failed to save appointment: %w", err)
	}
	return nil
}

// ListRecent returns the newest appointment requests, newest first.
func (s *AppointmentStore) ListRecent(ctx context.Context, limit int) ([]AppointmentRequest, error) {
	if limit <= 0 {
		limit = 50
	}

	ids, err := s.redis.ZRevRange(ctx, appointmentIndexKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to list appointments: %w", err)
	}

	out := make([]AppointmentRequest, 0, len(ids))
	for _, id := range ids {
		raw, err := s.redis.Get(ctx, appointmentKey(id)).Result()
		if err == redis.Nil {
			continue // expired but still indexed
		}
		if err != nil {
			return nil, fmt.Errorf("conversation: failed to load appointment %s: %w", id, err)
		}
		var req AppointmentRequest
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			return nil, fmt.Errorf("conversation: failed to decode appointment %s: %w", id, err)
		}
		out = append(out, req)
	}
	return out, nil
}

func appointmentKey(id string) string {
	return fmt.Sprintf("appointment:%s", id)
}

// AppointmentConfirmation is the reply sent after a booking request is
// captured, in the guest's language.
func AppointmentConfirmation(req *AppointmentRequest, language string) string {
	if language == "ar" {
		return fmt.Sprintf(
			"تم تسجيل طلب حجزك لجلسة %s يوم %s في %s. سيتواصل معك فريق الاستقبال قريباً لتأكيد الموعد.",
			req.Service, req.PreferredDay, req.PreferredTime,
		)
	}
	return fmt.Sprintf(
		"Your booking request for %s on %s at %s has been recorded. Our reception team will contact you shortly to confirm the exact slot.",
		req.Service, req.PreferredDay, req.PreferredTime,
	)
}
