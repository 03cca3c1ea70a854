package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lumalaser/concierge/pkg/logging"
)

// HandoffNotifier alerts clinic staff when a conversation escalates.
// Implementations live in the notify package; nil disables alerts. urgent
// marks escalations staff should act on immediately.
type HandoffNotifier interface {
	NotifyHandoff(ctx context.Context, conversationID, reason, lastMessage string, urgent bool) error
}

// EngineConfig carries the tunables for the conversation engine.
type EngineConfig struct {
	ClinicName      string
	DefaultLanguage string
	Model           string
	MaxTokens       int32
	Temperature     float32
}

// Engine produces replies for debounced guest messages. Routing order:
// escalation check, trained pairs, then the LLM with the booking tool.
type Engine struct {
	cfg          EngineConfig
	llm          LLMClient
	history      *HistoryStore
	profiles     *ProfileStore
	training     *TrainingStore
	appointments *AppointmentStore
	sentiment    *SentimentRouter
	notifier     HandoffNotifier
	logger       *logging.Logger
	tracer       trace.Tracer
}

var _ Service = (*Engine)(nil)

func NewEngine(
	cfg EngineConfig,
	llm LLMClient,
	history *HistoryStore,
	profiles *ProfileStore,
	training *TrainingStore,
	appointments *AppointmentStore,
	sentiment *SentimentRouter,
	notifier HandoffNotifier,
	logger *logging.Logger,
) *Engine {
	if llm == nil {
		panic("conversation: llm client cannot be nil")
	}
	if history == nil || profiles == nil {
		panic("conversation: history and profile stores cannot be nil")
	}
	if sentiment == nil {
		panic("conversation: sentiment router cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}
	return &Engine{
		cfg:          cfg,
		llm:          llm,
		history:      history,
		profiles:     profiles,
		training:     training,
		appointments: appointments,
		sentiment:    sentiment,
		notifier:     notifier,
		logger:       logger,
		tracer:       otel.Tracer("concierge.internal.conversation.engine"),
	}
}

// ProcessMessage handles one debounced turn and returns the reply.
func (e *Engine) ProcessMessage(ctx context.Context, req MessageRequest) (*Response, error) {
	ctx, span := e.tracer.Start(ctx, "conversation.process_message")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", req.ConversationID))

	if strings.TrimSpace(req.Message) == "" {
		return nil, errors.New("conversation: message cannot be empty")
	}

	profile, err := e.refreshProfile(ctx, req)
	if err != nil {
		return nil, err
	}
	language := profile.Language
	if language == "" {
		language = e.cfg.DefaultLanguage
	}

	if result := e.sentiment.Route(ctx, req.Message); result.Escalate {
		return e.escalate(ctx, req, profile, language, result)
	}

	if e.training != nil {
		pair, score, err := e.training.Match(ctx, req.Message)
		if err != nil {
			e.logger.Error("trained pair lookup failed", "error", err)
		} else if pair != nil {
			e.logger.Info("trained pair matched",
				"conversation_id", req.ConversationID,
				"pair_id", pair.ID,
				"score", score,
			)
			e.appendHistory(ctx, req.ConversationID, req.Message, pair.Answer)
			return &Response{
				ConversationID: req.ConversationID,
				Message:        pair.Answer,
				Intent:         IntentTrained,
				Language:       language,
				Timestamp:      time.Now().UTC(),
			}, nil
		}
	}

	return e.complete(ctx, req, profile, language)
}

// GetHistory returns the stored chat history, empty when none exists.
func (e *Engine) GetHistory(ctx context.Context, conversationID string) ([]ChatMessage, error) {
	history, err := e.history.Load(ctx, conversationID)
	if errors.Is(err, ErrConversationNotFound) {
		return nil, nil
	}
	return history, err
}

// refreshProfile applies sticky language/gender detection and persists any
// change.
func (e *Engine) refreshProfile(ctx context.Context, req MessageRequest) (Profile, error) {
	profile, err := e.profiles.Load(ctx, req.ConversationID)
	if err != nil {
		return Profile{}, err
	}

	dirty := false
	if profile.Name == "" && req.ProfileName != "" {
		profile.Name = req.ProfileName
		dirty = true
	}
	if lang := DetectLanguage(req.Message); lang != "" && lang != profile.Language {
		profile.Language = lang
		dirty = true
	}
	if profile.Gender == "" && profile.Name != "" {
		if gender := GuessGender(profile.Name); gender != "" {
			profile.Gender = gender
			dirty = true
		}
	}

	if dirty {
		if err := e.profiles.Save(ctx, profile); err != nil {
			return Profile{}, err
		}
	}
	return profile, nil
}

func (e *Engine) escalate(ctx context.Context, req MessageRequest, profile Profile, language string, result *SentimentResult) (*Response, error) {
	reason := fmt.Sprintf("%s (%s)", result.Type, result.MatchedKeyword)
	if err := e.profiles.SetHandoff(ctx, req.ConversationID, true, reason); err != nil {
		return nil, err
	}

	if e.notifier != nil {
		urgent := e.sentiment.IsHighPriority(result)
		if err := e.notifier.NotifyHandoff(ctx, req.ConversationID, reason, req.Message, urgent); err != nil {
			e.logger.Error("handoff alert failed",
				"conversation_id", req.ConversationID,
				"error", err,
			)
		}
	}

	reply := e.sentiment.HandoffReply(result, language)
	e.appendHistory(ctx, req.ConversationID, req.Message, reply)

	return &Response{
		ConversationID: req.ConversationID,
		Message:        reply,
		Intent:         IntentHandoff,
		Language:       language,
		Handoff:        true,
		Timestamp:      time.Now().UTC(),
	}, nil
}

func (e *Engine) complete(ctx context.Context, req MessageRequest, profile Profile, language string) (*Response, error) {
	history, err := e.history.Load(ctx, req.ConversationID)
	if err != nil && !errors.Is(err, ErrConversationNotFound) {
		return nil, err
	}

	messages := append(history, ChatMessage{Role: ChatRoleUser, Content: req.Message})

	llmResp, err := e.llm.Complete(ctx, LLMRequest{
		Model:       e.cfg.Model,
		System:      []string{e.systemPrompt(profile, language)},
		Messages:    messages,
		Tools:       []ToolDefinition{BookAppointmentTool},
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: llm completion failed: %w", err)
	}

	resp := &Response{
		ConversationID: req.ConversationID,
		Message:        llmResp.Text,
		Intent:         IntentLLM,
		Language:       language,
		Usage:          llmResp.Usage,
		Timestamp:      time.Now().UTC(),
	}

	for _, call := range llmResp.ToolCalls {
		if call.Name != BookAppointmentTool.Name {
			e.logger.Warn("unexpected tool call", "tool", call.Name)
			continue
		}
		appt, err := ParseAppointmentArgs(call.Arguments)
		if err != nil {
			e.logger.Error("booking tool arguments rejected", "error", err)
			continue
		}
		appt.ConversationID = req.ConversationID
		appt.Phone = req.From
		appt.GuestName = profile.Name
		appt.Language = language
		if e.appointments != nil {
			if err := e.appointments.Save(ctx, appt); err != nil {
				return nil, err
			}
		}
		resp.Intent = IntentAppointment
		resp.Appointment = appt
		resp.Message = AppointmentConfirmation(appt, language)
		break
	}

	if resp.Message == "" {
		e.logger.Warn("llm returned empty reply",
			"conversation_id", req.ConversationID,
			"stop_reason", llmResp.StopReason,
		)
		resp.Message = e.fallbackReply(language)
	}

	e.appendHistory(ctx, req.ConversationID, req.Message, resp.Message)
	return resp, nil
}

// systemPrompt builds the clinic persona. Gender matters in Arabic, where
// verb forms and address differ.
func (e *Engine) systemPrompt(profile Profile, language string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the virtual receptionist of %s, a laser and skin-care clinic. ", e.cfg.ClinicName)
	b.WriteString("You answer on WhatsApp: warm, concise, no more than three short sentences per reply. ")
	b.WriteString("You help with treatments, prices, preparation advice and bookings. ")
	b.WriteString("Use the book_appointment tool once the guest has given a service, a day and a time; never invent confirmed slots. ")
	b.WriteString("For medical advice beyond aftercare basics, recommend speaking to the clinic's practitioners. ")

	if language == "ar" {
		b.WriteString("Reply in Arabic. ")
		switch profile.Gender {
		case "female":
			b.WriteString("Address the guest using feminine forms (e.g. أهلاً بكِ). ")
		case "male":
			b.WriteString("Address the guest using masculine forms. ")
		}
	} else {
		b.WriteString("Reply in English. ")
	}
	if profile.Name != "" {
		fmt.Fprintf(&b, "The guest's name is %s. ", profile.Name)
	}
	return strings.TrimSpace(b.String())
}

func (e *Engine) fallbackReply(language string) string {
	if language == "ar" {
		return "عذراً، لم أستطع معالجة رسالتك. هل يمكنك إعادة صياغتها؟"
	}
	return "Sorry, I couldn't process that. Could you rephrase it?"
}

// appendHistory best-effort persists the turn; a failed write costs context,
// not the reply.
func (e *Engine) appendHistory(ctx context.Context, conversationID, userMsg, reply string) {
	history, err := e.history.Load(ctx, conversationID)
	if err != nil && !errors.Is(err, ErrConversationNotFound) {
		e.logger.Error("history load failed", "conversation_id", conversationID, "error", err)
		return
	}
	history = append(history,
		ChatMessage{Role: ChatRoleUser, Content: userMsg},
		ChatMessage{Role: ChatRoleAssistant, Content: reply},
	)
	if err := e.history.Save(ctx, conversationID, history); err != nil {
		e.logger.Error("history save failed", "conversation_id", conversationID, "error", err)
	}
}
