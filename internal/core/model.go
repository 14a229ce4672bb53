package core

import (
	"fmt"
	"strings"
	"time"
)

// Category is the closed set of classification categories. The string values
// are stable across the API boundary; user-facing filtering depends on them.
type Category string

const (
	CategoryPersonal     Category = "personal"
	CategoryWork         Category = "work"
	CategoryNewsletter   Category = "newsletter"
	CategoryNotification Category = "notification"
	CategorySpam         Category = "spam"
	CategorySecurity     Category = "security"
	CategoryBilling      Category = "billing"
	CategoryMeetings     Category = "meetings"
	CategoryOther        Category = "other"
)

// Categories lists every valid category.
var Categories = []Category{
	CategoryPersonal,
	CategoryWork,
	CategoryNewsletter,
	CategoryNotification,
	CategorySpam,
	CategorySecurity,
	CategoryBilling,
	CategoryMeetings,
	CategoryOther,
}

// ParseCategory validates a raw string against the closed category set.
// Malformed values are a parse failure, not a silently-accepted string.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Priority is the closed set of message priorities.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority validates a raw string against the closed priority set.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return p, nil
	default:
		return "", fmt.Errorf("unknown priority %q", s)
	}
}

// Sentiment is the closed set of message sentiments.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// ParseSentiment validates a raw string against the closed sentiment set.
func ParseSentiment(s string) (Sentiment, error) {
	switch v := Sentiment(strings.ToLower(strings.TrimSpace(s))); v {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return v, nil
	default:
		return "", fmt.Errorf("unknown sentiment %q", s)
	}
}

// Source identifies which classifier produced a result.
type Source string

const (
	SourceRule   Source = "rule"
	SourceML     Source = "ml"
	SourceLLM    Source = "llm"
	SourceManual Source = "manual"
)

// SourceRank orders sources by authority. A stored result is only replaced
// by a result of equal or higher rank; manual overrides pin the top rank.
func SourceRank(s Source) int {
	switch s {
	case SourceManual:
		return 3
	case SourceLLM:
		return 2
	case SourceML:
		return 1
	default:
		return 0
	}
}

// Routing is the confidence scorer's decision on how a result is applied.
type Routing string

const (
	RoutingAutoExecute  Routing = "auto_execute"
	RoutingSuggest      Routing = "suggest"
	RoutingManualReview Routing = "manual_review"
)

// MaxTopics bounds the topics list on a classification result.
const MaxTopics = 3

// Message is an inbound email as handed over by the ingestion collaborator.
// It is immutable once ingested; the pipeline only reads it. ID must be
// stable and unique across retries of the same physical message.
type Message struct {
	ID          string
	From        string
	Subject     string
	BodyExcerpt string
	ReceivedAt  time.Time
	Flags       []string
}

// ClassificationResult is the authoritative classification for a message.
// At most one result is authoritative per message identity at any time.
type ClassificationResult struct {
	MessageID      string
	Category       Category
	Priority       Priority
	Sentiment      Sentiment
	Topics         []string
	ActionRequired bool
	Summary        string
	Confidence     float64
	Source         Source
	Routing        Routing
	ClassifiedAt   time.Time
	ProcessingID   string
}

// NewClassificationResult builds a result from raw enum strings, validating
// each against its closed set. Used at the teacher oracle boundary.
func NewClassificationResult(
	messageID string,
	category, priority, sentiment string,
	topics []string,
	actionRequired bool,
	summary string,
) (*ClassificationResult, error) {
	cat, err := ParseCategory(category)
	if err != nil {
		return nil, err
	}
	pri, err := ParsePriority(priority)
	if err != nil {
		return nil, err
	}
	sen, err := ParseSentiment(sentiment)
	if err != nil {
		return nil, err
	}
	if len(topics) > MaxTopics {
		topics = topics[:MaxTopics]
	}
	return &ClassificationResult{
		MessageID:      messageID,
		Category:       cat,
		Priority:       pri,
		Sentiment:      sen,
		Topics:         topics,
		ActionRequired: actionRequired,
		Summary:        summary,
		ClassifiedAt:   time.Now(),
	}, nil
}

// FeatureSet holds the extracted features of a message used by the local
// learned classifier and recorded on training samples.
type FeatureSet struct {
	Sender        string
	SenderDomain  string
	SubjectTokens []string
}

// TrainingSample records one prediction/ground-truth pair. Append-only,
// never mutated after creation.
type TrainingSample struct {
	MessageID   string
	Features    FeatureSet
	Predicted   Category
	Label       Category
	LabelSource Source
	Agreed      bool
	Confidence  float64
	CreatedAt   time.Time
}

// ClassifierState is a snapshot of the local learned classifier. Reads may
// be stale by design; only the training loop mutates the underlying state.
type ClassifierState struct {
	Accuracy           float64
	SampleCount        int64
	CategoryConfidence map[Category]float64
	Independent        bool
}

// JobPriority is the three-tier scheduling priority of a queue job.
type JobPriority int

const (
	JobPriorityLow JobPriority = iota
	JobPriorityMedium
	JobPriorityHigh
)

// QueueJob schedules a background classification for one message identity.
type QueueJob struct {
	MessageID  string
	Priority   JobPriority
	Attempts   int
	EnqueuedAt time.Time
}
