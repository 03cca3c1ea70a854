package conversation

import (
	"context"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lumalaser/concierge/pkg/logging"
)

var sentimentTracer = otel.Tracer("concierge/sentiment-router")

// EscalationType classifies why a message should leave the bot's hands.
type EscalationType string

const (
	EscalationNone         EscalationType = ""
	EscalationAngry        EscalationType = "ANGRY"
	EscalationMedical      EscalationType = "MEDICAL_CONCERN"
	EscalationBilling      EscalationType = "BILLING"
	EscalationHumanRequest EscalationType = "HUMAN_REQUEST"
)

// SentimentResult contains the routing decision for a message.
type SentimentResult struct {
	Escalate       bool
	Type           EscalationType
	Confidence     float64
	MatchedKeyword string
}

// SentimentRouter detects messages that must be routed to clinic staff
// instead of the LLM: anger, medical complaints after treatment, billing
// disputes, and explicit requests for a human.
type SentimentRouter struct {
	logger   *logging.Logger
	patterns map[EscalationType][]*sentimentPattern
}

type sentimentPattern struct {
	regex   *regexp.Regexp
	weight  float64
	keyword string
}

// NewSentimentRouter creates a router with the built-in pattern set.
func NewSentimentRouter(logger *logging.Logger) *SentimentRouter {
	if logger == nil {
		logger = logging.Default()
	}

	r := &SentimentRouter{
		logger:   logger,
		patterns: make(map[EscalationType][]*sentimentPattern),
	}

	r.patterns[EscalationAngry] = []*sentimentPattern{
		{regex: regexp.MustCompile(`(?i)\b(terrible|awful|worst|horrible)\s+(service|experience|clinic)\b`), weight: 0.9, keyword: "terrible service"},
		{regex: regexp.MustCompile(`(?i)\b(angry|furious|disgusted|fed\s*up)\b`), weight: 0.85, keyword: "angry"},
		{regex: regexp.MustCompile(`(?i)\b(complain|complaint|report\s+you|lawyer|sue)\b`), weight: 0.9, keyword: "complaint"},
		{regex: regexp.MustCompile(`(?i)\bnever\s+(coming|going)\s+back\b`), weight: 0.85, keyword: "never coming back"},
		{regex: regexp.MustCompile(`خدمة\s*(سيئة|فظيعة)`), weight: 0.9, keyword: "bad service (ar)"},
		{regex: regexp.MustCompile(`(غاضب|زعلان|مستاء)`), weight: 0.8, keyword: "angry (ar)"},
	}

	r.patterns[EscalationMedical] = []*sentimentPattern{
		{regex: regexp.MustCompile(`(?i)\b(burn(ed|t|ing)?|blister|scar(red|ring)?)\b`), weight: 0.95, keyword: "burn"},
		{regex: regexp.MustCompile(`(?i)\b(skin|face|leg|arm)\s+(hurts?|burning|swollen|red)\b`), weight: 0.9, keyword: "skin reaction"},
		{regex: regexp.MustCompile(`(?i)\b(allergic|reaction|rash|infection)\b`), weight: 0.85, keyword: "reaction"},
		{regex: regexp.MustCompile(`(?i)\b(severe|bad)\s+pain\b`), weight: 0.9, keyword: "severe pain"},
		{regex: regexp.MustCompile(`(حرق|حروق|التهاب|تحسس|طفح)`), weight: 0.95, keyword: "burn (ar)"},
		{regex: regexp.MustCompile(`(الم|ألم)\s*(شديد|قوي)`), weight: 0.9, keyword: "severe pain (ar)"},
	}

	r.patterns[EscalationBilling] = []*sentimentPattern{
		{regex: regexp.MustCompile(`(?i)\b(overcharged?|double\s+charged?|charged?\s+(me\s+)?twice)\b`), weight: 0.9, keyword: "overcharged"},
		{regex: regexp.MustCompile(`(?i)\b(want|need|get)\s+(a\s+|my\s+)?refund\b`), weight: 0.9, keyword: "refund"},
		{regex: regexp.MustCompile(`(?i)\bmoney\s+back\b`), weight: 0.85, keyword: "money back"},
		{regex: regexp.MustCompile(`(استرجاع|استرداد)\s*(المبلغ|الفلوس|المال)?`), weight: 0.85, keyword: "refund (ar)"},
	}

	r.patterns[EscalationHumanRequest] = []*sentimentPattern{
		{regex: regexp.MustCompile(`(?i)\b(talk|speak)\s+(to|with)\s+(a\s+)?(human|person|someone|agent|staff)\b`), weight: 0.95, keyword: "talk to human"},
		{regex: regexp.MustCompile(`(?i)\b(real\s+person|customer\s+service|receptionist)\b`), weight: 0.85, keyword: "real person"},
		{regex: regexp.MustCompile(`(?i)\bstop\s+(the\s+)?bot\b`), weight: 0.9, keyword: "stop bot"},
		{regex: regexp.MustCompile(`(اكلم|أكلم|ابغى|أبغى|اريد|أريد)\s*(موظف|انسان|إنسان|شخص)`), weight: 0.95, keyword: "talk to human (ar)"},
	}

	return r
}

// Route analyzes a message and returns the escalation decision.
func (r *SentimentRouter) Route(ctx context.Context, message string) *SentimentResult {
	ctx, span := sentimentTracer.Start(ctx, "sentiment.route")
	defer span.End()
	_ = ctx

	message = strings.TrimSpace(message)
	if message == "" {
		return &SentimentResult{}
	}

	var best *SentimentResult
	for escType, patterns := range r.patterns {
		for _, p := range patterns {
			if p.regex.MatchString(message) {
				if best == nil || p.weight > best.Confidence {
					best = &SentimentResult{
						Escalate:       true,
						Type:           escType,
						Confidence:     p.weight,
						MatchedKeyword: p.keyword,
					}
				}
			}
		}
	}

	if best == nil {
		return &SentimentResult{}
	}

	span.SetAttributes(
		attribute.String("sentiment.type", string(best.Type)),
		attribute.Float64("sentiment.confidence", best.Confidence),
		attribute.String("sentiment.keyword", best.MatchedKeyword),
	)
	r.logger.Info("escalation detected",
		"type", best.Type,
		"confidence", best.Confidence,
		"keyword", best.MatchedKeyword,
	)

	return best
}

// HandoffReply returns the acknowledgement sent to the guest when their
// conversation is routed to staff, in their language.
func (r *SentimentRouter) HandoffReply(result *SentimentResult, language string) string {
	arabic := language == "ar"

	switch result.Type {
	case EscalationMedical:
		if arabic {
			return "نأسف جداً لما تشعرين به. تم تحويل محادثتك فوراً إلى الطاقم الطبي وسيتواصلون معك في أقرب وقت. إذا كانت الأعراض شديدة نرجو مراجعة أقرب طوارئ."
		}
		return "I'm so sorry to hear that. Your conversation has been sent straight to our medical team and they will contact you shortly. If your symptoms are severe, please visit the nearest emergency care."
	case EscalationBilling:
		if arabic {
			return "نعتذر عن أي خطأ في الفواتير. تم تحويل طلبك إلى قسم المحاسبة وسيتواصلون معك قريباً."
		}
		return "Apologies for any billing issue. I've forwarded this to our accounts team and they will get back to you shortly."
	case EscalationHumanRequest:
		if arabic {
			return "بكل سرور! تم تحويلك إلى أحد موظفينا وسيرد عليك خلال دقائق."
		}
		return "Of course! I've connected you with one of our team members, they'll reply within a few minutes."
	default:
		if arabic {
			return "نأسف لتجربتك. تم إشعار إدارة العيادة وسيتواصل معك أحد الموظفين في أقرب وقت."
		}
		return "I'm sorry about your experience. Our clinic management has been notified and a team member will reach out to you shortly."
	}
}

// IsHighPriority returns true when staff should be paged immediately.
func (r *SentimentRouter) IsHighPriority(result *SentimentResult) bool {
	if !result.Escalate {
		return false
	}
	switch result.Type {
	case EscalationMedical:
		return true
	case EscalationAngry:
		return result.Confidence >= 0.85
	default:
		return result.Confidence >= 0.9
	}
}
