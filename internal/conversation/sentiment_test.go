package conversation

import (
	"context"
	"testing"
)

func TestSentimentRoute(t *testing.T) {
	r := NewSentimentRouter(nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		message  string
		escalate bool
		escType  EscalationType
	}{
		{"normal question", "how much is laser hair removal?", false, EscalationNone},
		{"booking request", "can I book a session tomorrow?", false, EscalationNone},
		{"burn complaint", "my skin is burning after yesterday's session", true, EscalationMedical},
		{"blister", "I got a blister on my arm", true, EscalationMedical},
		{"arabic burn", "عندي حروق بعد الجلسة", true, EscalationMedical},
		{"angry", "this is the worst service I have ever seen", true, EscalationAngry},
		{"threat", "I will report you and call my lawyer", true, EscalationAngry},
		{"refund", "I want a refund for my package", true, EscalationBilling},
		{"double charge", "you charged me twice this month", true, EscalationBilling},
		{"human request", "can I talk to a real person please", true, EscalationHumanRequest},
		{"arabic human request", "اريد موظف يرد علي", true, EscalationHumanRequest},
		{"empty", "", false, EscalationNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Route(ctx, tt.message)
			if got.Escalate != tt.escalate {
				t.Fatalf("Route(%q).Escalate = %v, want %v", tt.message, got.Escalate, tt.escalate)
			}
			if tt.escalate && got.Type != tt.escType {
				t.Errorf("Route(%q).Type = %s, want %s", tt.message, got.Type, tt.escType)
			}
		})
	}
}

func TestHandoffReplyLanguage(t *testing.T) {
	r := NewSentimentRouter(nil)

	res := &SentimentResult{Escalate: true, Type: EscalationMedical}
	en := r.HandoffReply(res, "en")
	ar := r.HandoffReply(res, "ar")

	if en == "" || ar == "" {
		t.Fatal("handoff replies must not be empty")
	}
	if en == ar {
		t.Error("expected language-specific replies")
	}
}

func TestIsHighPriority(t *testing.T) {
	r := NewSentimentRouter(nil)

	if !r.IsHighPriority(&SentimentResult{Escalate: true, Type: EscalationMedical, Confidence: 0.5}) {
		t.Error("medical concerns are always high priority")
	}
	if r.IsHighPriority(&SentimentResult{Escalate: false}) {
		t.Error("non-escalations are never high priority")
	}
	if r.IsHighPriority(&SentimentResult{Escalate: true, Type: EscalationHumanRequest, Confidence: 0.85}) {
		t.Error("a plain human request is not a page-worthy event")
	}
}
