package conversation

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeLLM struct {
	resp  LLMResponse
	err   error
	calls []LLMRequest
}

func (f *fakeLLM) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	f.calls = append(f.calls, req)
	return f.resp, f.err
}

type fakeNotifier struct {
	alerts int
	reason string
	urgent bool
}

func (f *fakeNotifier) NotifyHandoff(_ context.Context, _, reason, _ string, urgent bool) error {
	f.alerts++
	f.reason = reason
	f.urgent = urgent
	return nil
}

func newTestEngine(t *testing.T, llm LLMClient, notifier HandoffNotifier) (*Engine, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	engine := NewEngine(
		EngineConfig{ClinicName: "Luma Laser Clinic", DefaultLanguage: "en", Model: "gpt-4o-mini", MaxTokens: 512},
		llm,
		NewHistoryStore(client, nil),
		NewProfileStore(client, nil),
		NewTrainingStore(client),
		NewAppointmentStore(client),
		NewSentimentRouter(nil),
		notifier,
		nil,
	)
	return engine, client
}

func TestProcessMessageLLMReply(t *testing.T) {
	llm := &fakeLLM{resp: LLMResponse{Text: "Laser sessions start at 200 AED.", Usage: TokenUsage{InputTokens: 30, OutputTokens: 12}}}
	engine, _ := newTestEngine(t, llm, nil)
	ctx := context.Background()

	resp, err := engine.ProcessMessage(ctx, MessageRequest{
		ConversationID: "wa:9715550001",
		From:           "9715550001",
		ProfileName:    "Sara",
		Message:        "how much is a laser session?",
		Channel:        ChannelWhatsApp,
	})
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if resp.Intent != IntentLLM {
		t.Errorf("Intent = %q, want %q", resp.Intent, IntentLLM)
	}
	if resp.Message != llm.resp.Text {
		t.Errorf("Message = %q, want llm text", resp.Message)
	}
	if resp.Language != "en" {
		t.Errorf("Language = %q, want en", resp.Language)
	}
	if resp.Usage.OutputTokens != 12 {
		t.Errorf("Usage.OutputTokens = %d, want 12", resp.Usage.OutputTokens)
	}

	if len(llm.calls) != 1 {
		t.Fatalf("llm called %d times, want 1", len(llm.calls))
	}
	req := llm.calls[0]
	if len(req.System) != 1 || !strings.Contains(req.System[0], "Luma Laser Clinic") {
		t.Errorf("system prompt missing clinic name: %v", req.System)
	}
	if len(req.Tools) != 1 || req.Tools[0].Name != "book_appointment" {
		t.Errorf("booking tool not offered: %v", req.Tools)
	}

	history, err := engine.GetHistory(ctx, "wa:9715550001")
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history has %d messages, want 2", len(history))
	}
	if history[0].Role != ChatRoleUser || history[1].Role != ChatRoleAssistant {
		t.Errorf("unexpected history roles: %+v", history)
	}
}

func TestProcessMessageEscalatesBeforeLLM(t *testing.T) {
	llm := &fakeLLM{resp: LLMResponse{Text: "should not be used"}}
	notifier := &fakeNotifier{}
	engine, client := newTestEngine(t, llm, notifier)
	ctx := context.Background()

	resp, err := engine.ProcessMessage(ctx, MessageRequest{
		ConversationID: "wa:9715550002",
		From:           "9715550002",
		Message:        "my skin is burning after yesterday's session",
		Channel:        ChannelWhatsApp,
	})
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if !resp.Handoff || resp.Intent != IntentHandoff {
		t.Errorf("expected handoff response, got %+v", resp)
	}
	if len(llm.calls) != 0 {
		t.Error("llm must not be called on escalation")
	}
	if notifier.alerts != 1 {
		t.Errorf("notifier alerts = %d, want 1", notifier.alerts)
	}
	if !strings.Contains(notifier.reason, string(EscalationMedical)) {
		t.Errorf("alert reason = %q, want medical", notifier.reason)
	}
	if !notifier.urgent {
		t.Error("medical escalation must be flagged urgent")
	}

	profile, err := NewProfileStore(client, nil).Load(ctx, "wa:9715550002")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !profile.Handoff {
		t.Error("profile handoff flag not set")
	}
}

func TestProcessMessageTrainedPairShortCircuits(t *testing.T) {
	llm := &fakeLLM{resp: LLMResponse{Text: "should not be used"}}
	engine, client := newTestEngine(t, llm, nil)
	ctx := context.Background()

	if _, err := NewTrainingStore(client).Upsert(ctx, TrainedPair{
		Question: "what are your opening hours",
		Answer:   "We are open daily from 10am to 10pm.",
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	resp, err := engine.ProcessMessage(ctx, MessageRequest{
		ConversationID: "wa:9715550003",
		From:           "9715550003",
		Message:        "What are your opening hours?",
		Channel:        ChannelWhatsApp,
	})
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if resp.Intent != IntentTrained {
		t.Errorf("Intent = %q, want %q", resp.Intent, IntentTrained)
	}
	if resp.Message != "We are open daily from 10am to 10pm." {
		t.Errorf("Message = %q", resp.Message)
	}
	if len(llm.calls) != 0 {
		t.Error("llm must not be called when a trained pair matches")
	}
}

func TestProcessMessageBookingToolCall(t *testing.T) {
	llm := &fakeLLM{resp: LLMResponse{
		ToolCalls: []ToolCall{{
			Name:      "book_appointment",
			Arguments: json.RawMessage(`{"service":"full body laser","preferred_day":"Saturday","preferred_time":"evening"}`),
		}},
	}}
	engine, client := newTestEngine(t, llm, nil)
	ctx := context.Background()

	resp, err := engine.ProcessMessage(ctx, MessageRequest{
		ConversationID: "wa:9715550004",
		From:           "9715550004",
		ProfileName:    "Sara",
		Message:        "book me full body laser saturday evening please",
		Channel:        ChannelWhatsApp,
	})
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if resp.Intent != IntentAppointment {
		t.Errorf("Intent = %q, want %q", resp.Intent, IntentAppointment)
	}
	if resp.Appointment == nil {
		t.Fatal("Appointment is nil")
	}
	if resp.Appointment.Phone != "9715550004" || resp.Appointment.GuestName != "Sara" {
		t.Errorf("appointment missing guest details: %+v", resp.Appointment)
	}
	if !strings.Contains(resp.Message, "Saturday") {
		t.Errorf("confirmation missing day: %q", resp.Message)
	}

	saved, err := NewAppointmentStore(client).ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("saved %d appointments, want 1", len(saved))
	}
}

func TestProcessMessageArabicStickyLanguage(t *testing.T) {
	llm := &fakeLLM{resp: LLMResponse{Text: "أهلاً بكِ"}}
	engine, _ := newTestEngine(t, llm, nil)
	ctx := context.Background()

	resp, err := engine.ProcessMessage(ctx, MessageRequest{
		ConversationID: "wa:9715550005",
		From:           "9715550005",
		ProfileName:    "فاطمة",
		Message:        "مرحبا، كم سعر جلسة الليزر؟",
		Channel:        ChannelWhatsApp,
	})
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if resp.Language != "ar" {
		t.Errorf("Language = %q, want ar", resp.Language)
	}
	if !strings.Contains(llm.calls[0].System[0], "Reply in Arabic") {
		t.Error("system prompt does not request Arabic")
	}
	if !strings.Contains(llm.calls[0].System[0], "feminine") {
		t.Error("system prompt does not use feminine address for فاطمة")
	}

	// Sticks on a followup with no Arabic script.
	resp, err = engine.ProcessMessage(ctx, MessageRequest{
		ConversationID: "wa:9715550005",
		From:           "9715550005",
		Message:        "123",
		Channel:        ChannelWhatsApp,
	})
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if resp.Language != "ar" {
		t.Errorf("followup Language = %q, want sticky ar", resp.Language)
	}
}

func TestProcessMessageEmptyRejected(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeLLM{}, nil)
	if _, err := engine.ProcessMessage(context.Background(), MessageRequest{
		ConversationID: "wa:1", From: "1", Message: "   ",
	}); err == nil {
		t.Error("expected error for blank message")
	}
}

func TestProcessMessageEmptyLLMReplyFallsBack(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeLLM{resp: LLMResponse{StopReason: "length"}}, nil)

	resp, err := engine.ProcessMessage(context.Background(), MessageRequest{
		ConversationID: "wa:9715550006",
		From:           "9715550006",
		Message:        "hello there",
		Channel:        ChannelWhatsApp,
	})
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if resp.Message == "" {
		t.Error("expected a fallback reply, got empty message")
	}
}
