package rules

import (
	"strings"
	"time"

	"github.com/mikey/llm-mail-classifier/internal/core"
)

// rule is one ordered classification rule. A rule matches when any keyword
// appears in the corresponding lowercased message field.
type rule struct {
	name            string
	senderKeywords  []string
	subjectKeywords []string
	bodyKeywords    []string
	category        core.Category
	priority        core.Priority
	topics          []string
	actionRequired  bool
}

// urgencyKeywords force priority=high and action-required regardless of
// which category rule matched.
var urgencyKeywords = []string{
	"urgent",
	"asap",
	"immediately",
	"action required",
	"critical",
	"right away",
	"final notice",
	"overdue",
	"expires today",
}

var positiveKeywords = []string{
	"thank you",
	"thanks",
	"congrat",
	"great work",
	"well done",
	"appreciate",
	"awesome",
	"excited",
	"happy to",
}

var negativeKeywords = []string{
	"disappointed",
	"unacceptable",
	"complaint",
	"frustrated",
	"angry",
	"refund",
	"broken",
	"failure",
	"not working",
	"escalate",
}

// defaultRules is the ordered rule list. Order is authoritative: the first
// matching rule wins and there is no scoring among rules.
var defaultRules = []rule{
	{
		name:            "security",
		senderKeywords:  []string{"security@", "account-security", "no-reply@accounts"},
		subjectKeywords: []string{"password", "verify your", "security alert", "sign-in", "login attempt", "suspicious activity", "two-factor", "account locked"},
		bodyKeywords:    []string{"verify your identity", "reset your password", "unusual sign-in", "security code"},
		category:        core.CategorySecurity,
		priority:        core.PriorityHigh,
		topics:          []string{"security", "account"},
		actionRequired:  true,
	},
	{
		name:            "billing",
		senderKeywords:  []string{"billing@", "invoice@", "payments@"},
		subjectKeywords: []string{"invoice", "receipt", "payment", "billing", "subscription renew", "order confirmation", "statement"},
		bodyKeywords:    []string{"amount due", "payment method", "has been charged"},
		category:        core.CategoryBilling,
		priority:        core.PriorityMedium,
		topics:          []string{"billing", "payments"},
		actionRequired:  false,
	},
	{
		name:            "meetings",
		senderKeywords:  []string{"calendar-notification@", "meet@"},
		subjectKeywords: []string{"meeting", "invitation:", "invite", "calendar", "standup", "1:1", "rescheduled", "canceled event"},
		bodyKeywords:    []string{"has invited you", "join the meeting", "zoom.us/j/", "teams.microsoft.com"},
		category:        core.CategoryMeetings,
		priority:        core.PriorityMedium,
		topics:          []string{"meetings", "calendar"},
		actionRequired:  true,
	},
	{
		name:            "spam",
		subjectKeywords: []string{"you have won", "lottery", "free money", "act now", "limited time offer", "claim your prize", "miracle"},
		bodyKeywords:    []string{"click here to claim", "wire transfer", "one-time opportunity", "100% free", "risk free"},
		category:        core.CategorySpam,
		priority:        core.PriorityLow,
		topics:          []string{"spam"},
		actionRequired:  false,
	},
	{
		name:            "newsletter",
		senderKeywords:  []string{"newsletter@", "news@", "digest@", "weekly@"},
		subjectKeywords: []string{"newsletter", "digest", "weekly roundup", "this week in"},
		bodyKeywords:    []string{"unsubscribe", "view in browser", "email preferences"},
		category:        core.CategoryNewsletter,
		priority:        core.PriorityLow,
		topics:          []string{"newsletter"},
		actionRequired:  false,
	},
	{
		name:            "notification",
		senderKeywords:  []string{"no-reply@", "noreply@", "notifications@", "donotreply@", "notify@"},
		subjectKeywords: []string{"notification", "reminder", "alert:", "your build", "deployment", "completed successfully"},
		category:        core.CategoryNotification,
		priority:        core.PriorityLow,
		topics:          []string{"notifications"},
		actionRequired:  false,
	},
	{
		name:            "work",
		subjectKeywords: []string{"project", "deadline", "pull request", "code review", "sprint", "quarterly", "report", "proposal", "follow up"},
		bodyKeywords:    []string{"please review", "attached document", "status update", "action items"},
		category:        core.CategoryWork,
		priority:        core.PriorityMedium,
		topics:          []string{"work"},
		actionRequired:  false,
	},
	{
		name:            "personal",
		subjectKeywords: []string{"dinner", "birthday", "weekend", "vacation", "catch up", "congratulations"},
		bodyKeywords:    []string{"see you", "miss you", "family", "let's grab"},
		category:        core.CategoryPersonal,
		priority:        core.PriorityMedium,
		topics:          []string{"personal"},
		actionRequired:  false,
	},
}

// Engine classifies messages with an ordered first-match rule list. It is a
// pure fallback classifier: always available, no I/O, lowest confidence.
type Engine struct {
	rules      []rule
	confidence float64
}

// NewEngine creates a rule engine. confidence is the fixed score attached to
// every rule-sourced result, reflecting the rule set's accuracy ceiling.
func NewEngine(confidence float64) *Engine {
	return &Engine{
		rules:      defaultRules,
		confidence: confidence,
	}
}

// Classify maps a message to a provisional classification. Total function:
// every message gets a result, unmatched messages fall through to "other".
func (e *Engine) Classify(msg *core.Message) *core.ClassificationResult {
	sender := strings.ToLower(msg.From)
	subject := strings.ToLower(msg.Subject)
	body := strings.ToLower(msg.BodyExcerpt)

	result := &core.ClassificationResult{
		MessageID:    msg.ID,
		Category:     core.CategoryOther,
		Priority:     core.PriorityLow,
		Sentiment:    core.SentimentNeutral,
		Summary:      summarize(msg.Subject),
		Confidence:   e.confidence,
		Source:       core.SourceRule,
		Routing:      core.RoutingManualReview,
		ClassifiedAt: time.Now(),
	}

	for _, r := range e.rules {
		if matchAny(sender, r.senderKeywords) ||
			matchAny(subject, r.subjectKeywords) ||
			matchAny(body, r.bodyKeywords) {
			result.Category = r.category
			result.Priority = r.priority
			result.Topics = r.topics
			result.ActionRequired = r.actionRequired
			break
		}
	}

	// Urgency escalation is independent of the category rule.
	if matchAny(subject, urgencyKeywords) {
		result.Priority = core.PriorityHigh
		result.ActionRequired = true
	}

	result.Sentiment = scanSentiment(body)

	return result
}

// scanSentiment runs the independent keyword pass over the body text.
func scanSentiment(body string) core.Sentiment {
	positive := countMatches(body, positiveKeywords)
	negative := countMatches(body, negativeKeywords)
	switch {
	case negative > positive:
		return core.SentimentNegative
	case positive > negative:
		return core.SentimentPositive
	default:
		return core.SentimentNeutral
	}
}

func matchAny(field string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(field, kw) {
			return true
		}
	}
	return false
}

func countMatches(field string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(field, kw) {
			n++
		}
	}
	return n
}

func summarize(subject string) string {
	const maxSummary = 120
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "(no subject)"
	}
	if len(subject) > maxSummary {
		return subject[:maxSummary] + "..."
	}
	return subject
}
