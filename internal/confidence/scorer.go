package confidence

import (
	"strings"
	"time"

	"github.com/mikey/llm-mail-classifier/internal/core"
)

// Weights holds the relative weight of each confidence signal. The defaults
// (0.4/0.3/0.2/0.05/0.05) come from configuration, not from this package.
type Weights struct {
	Accuracy      float64
	SenderHistory float64
	SubjectMatch  float64
	BodyLength    float64
	TimeOfDay     float64
}

// subjectPattern is one entry of the fixed high-signal subject lookup table.
type subjectPattern struct {
	substring string
	score     float64
}

// High-signal subject patterns. Matching any of these is strong evidence the
// category is mechanical (receipts, calendar traffic, account mail) and the
// classifier's call can be trusted more.
var subjectPatterns = []subjectPattern{
	{"out of office", 0.95},
	{"automatic reply", 0.95},
	{"invoice", 0.92},
	{"receipt", 0.92},
	{"invitation:", 0.90},
	{"meeting", 0.88},
	{"unsubscribe", 0.90},
	{"password", 0.90},
	{"verification code", 0.92},
	{"newsletter", 0.88},
	{"your order", 0.90},
}

// neutralSubjectScore applies when no high-signal pattern matches.
const neutralSubjectScore = 0.5

// bodyLengthNorm is the body size, in bytes, at which the length signal
// saturates at 1.0.
const bodyLengthNorm = 1000.0

// Scorer combines weighted signals into a single [0,1] confidence and a
// routing decision. No side effects; pure computation over available state.
type Scorer struct {
	weights          Weights
	autoThreshold    float64
	suggestThreshold float64
	senderPrior      float64
}

// NewScorer creates a confidence scorer. senderPrior is the neutral
// sender-history value used for first-contact senders, so unknown senders
// are not penalized to zero.
func NewScorer(weights Weights, autoThreshold, suggestThreshold, senderPrior float64) *Scorer {
	return &Scorer{
		weights:          weights,
		autoThreshold:    autoThreshold,
		suggestThreshold: suggestThreshold,
		senderPrior:      senderPrior,
	}
}

// Score computes the blended confidence for a message and routes it.
func (s *Scorer) Score(msg *core.Message, classifier core.LocalClassifier) (float64, core.Routing) {
	state := classifier.Snapshot()

	senderScore := s.senderPrior
	if acc, known := classifier.SenderAccuracy(msg.From); known {
		senderScore = acc
	}

	score := s.weights.Accuracy*state.Accuracy +
		s.weights.SenderHistory*senderScore +
		s.weights.SubjectMatch*subjectScore(msg.Subject) +
		s.weights.BodyLength*bodyLengthScore(msg.BodyExcerpt) +
		s.weights.TimeOfDay*timeOfDayScore(msg)

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return score, s.Route(score)
}

// Route maps a confidence to the routing decision.
func (s *Scorer) Route(confidence float64) core.Routing {
	switch {
	case confidence >= s.autoThreshold:
		return core.RoutingAutoExecute
	case confidence >= s.suggestThreshold:
		return core.RoutingSuggest
	default:
		return core.RoutingManualReview
	}
}

func subjectScore(subject string) float64 {
	subject = strings.ToLower(subject)
	best := neutralSubjectScore
	for _, p := range subjectPatterns {
		if strings.Contains(subject, p.substring) && p.score > best {
			best = p.score
		}
	}
	return best
}

func bodyLengthScore(body string) float64 {
	score := float64(len(body)) / bodyLengthNorm
	if score > 1 {
		return 1
	}
	return score
}

// timeOfDayScore favors business-hours mail, which tends to follow the
// patterns the classifier trained on.
func timeOfDayScore(msg *core.Message) float64 {
	t := msg.ReceivedAt
	if t.IsZero() {
		return 0.5
	}
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return 0.5
	}
	hour := t.Hour()
	if hour >= 9 && hour < 18 {
		return 1.0
	}
	return 0.5
}
