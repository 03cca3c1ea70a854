package mainconfig

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"

	appconfig "github.com/lumalaser/concierge/internal/config"
	"github.com/lumalaser/concierge/internal/conversation"
	"github.com/lumalaser/concierge/internal/notify"
	"github.com/lumalaser/concierge/pkg/logging"
)

// BuildLLMClient assembles the completion stack: OpenAI primary with a
// Gemini fallback when both keys are configured.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (conversation.LLMClient, error) {
	var primary, fallback conversation.LLMClient

	if cfg.OpenAIAPIKey != "" {
		client, err := conversation.NewOpenAILLMClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			return nil, err
		}
		primary = client
	}
	if cfg.GeminiAPIKey != "" {
		client, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		if primary == nil {
			primary = client
		} else {
			fallback = client
		}
	}

	switch {
	case primary == nil:
		return nil, errors.New("no LLM provider configured: set OPENAI_API_KEY or GEMINI_API_KEY")
	case fallback == nil:
		return primary, nil
	default:
		return conversation.NewFallbackLLMClient(primary, fallback, logger.Logger), nil
	}
}

// BuildNotifier picks the alert email transport: SendGrid first, then SES,
// falling back to a log-only stub.
func BuildNotifier(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) *notify.Service {
	var sender notify.EmailSender
	if cfg.SendGridAPIKey != "" {
		sender = notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	} else if cfg.SESFromEmail != "" {
		sender = notify.NewSESSender(NewSESClient(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.ClinicName,
		}, logger)
	}

	consoleURL := ""
	if cfg.PublicBaseURL != "" {
		consoleURL = cfg.PublicBaseURL + "/admin/live/console"
	}
	return notify.NewService(sender, notify.Config{
		AlertEmail: cfg.HandoffAlertEmail,
		ClinicName: cfg.ClinicName,
		ConsoleURL: consoleURL,
	}, logger)
}
