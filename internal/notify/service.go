package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lumalaser/concierge/internal/conversation"
	"github.com/lumalaser/concierge/pkg/logging"
)

// Service sends operational alerts to clinic staff. It implements the
// conversation engine's HandoffNotifier.
type Service struct {
	sender     EmailSender
	alertEmail string
	clinicName string
	consoleURL string
	logger     *logging.Logger
}

var _ conversation.HandoffNotifier = (*Service)(nil)

// Config holds alert routing settings.
type Config struct {
	AlertEmail string // staff inbox for handoff alerts
	ClinicName string
	ConsoleURL string // live console link embedded in alerts
}

func NewService(sender EmailSender, cfg Config, logger *logging.Logger) *Service {
	if sender == nil {
		sender = NewStubEmailSender(logger)
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.ClinicName == "" {
		cfg.ClinicName = "Luma Laser Clinic"
	}
	return &Service{
		sender:     sender,
		alertEmail: cfg.AlertEmail,
		clinicName: cfg.ClinicName,
		consoleURL: cfg.ConsoleURL,
		logger:     logger,
	}
}

// NotifyHandoff emails staff that a conversation needs a human. Urgent
// escalations get a subject prefix so inbox rules can page on them.
func (s *Service) NotifyHandoff(ctx context.Context, conversationID, reason, lastMessage string, urgent bool) error {
	if s.alertEmail == "" {
		s.logger.Debug("handoff alert skipped: no alert email configured", "conversation_id", conversationID)
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "A WhatsApp conversation needs a human at %s.\n\n", s.clinicName)
	fmt.Fprintf(&b, "Conversation: %s\n", conversationID)
	fmt.Fprintf(&b, "Reason: %s\n", reason)
	if urgent {
		b.WriteString("Priority: urgent, please respond immediately\n")
	}
	fmt.Fprintf(&b, "Last message: %s\n", lastMessage)
	fmt.Fprintf(&b, "Time: %s\n", time.Now().UTC().Format(time.RFC3339))
	if s.consoleURL != "" {
		fmt.Fprintf(&b, "\nOpen the live console: %s?conversation=%s\n", s.consoleURL, conversationID)
	}

	subject := fmt.Sprintf("[%s] Guest needs a human: %s", s.clinicName, reason)
	if urgent {
		subject = "[URGENT] " + subject
	}

	msg := EmailMessage{
		To:      s.alertEmail,
		Subject: subject,
		Body:    b.String(),
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: handoff alert failed: %w", err)
	}

	s.logger.Info("handoff alert sent", "conversation_id", conversationID, "reason", reason, "urgent", urgent)
	return nil
}
