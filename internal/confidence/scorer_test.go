package confidence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mikey/llm-mail-classifier/internal/core"
)

// fakeClassifier provides fixed state for scorer arithmetic tests.
type fakeClassifier struct {
	accuracy     float64
	senderAcc    float64
	senderKnown  bool
	sampleCount  int64
	independence bool
}

func (f *fakeClassifier) Predict(msg *core.Message) (core.Category, float64) {
	return core.CategoryOther, 0
}

func (f *fakeClassifier) Update(sample core.TrainingSample) {}

func (f *fakeClassifier) FeaturesFor(msg *core.Message) core.FeatureSet {
	return core.FeatureSet{}
}

func (f *fakeClassifier) Snapshot() core.ClassifierState {
	return core.ClassifierState{
		Accuracy:    f.accuracy,
		SampleCount: f.sampleCount,
		Independent: f.independence,
	}
}

func (f *fakeClassifier) SenderAccuracy(sender string) (float64, bool) {
	return f.senderAcc, f.senderKnown
}

func (f *fakeClassifier) IndependentFor(confidence float64) bool {
	return f.independence
}

var testWeights = Weights{
	Accuracy:      0.4,
	SenderHistory: 0.3,
	SubjectMatch:  0.2,
	BodyLength:    0.05,
	TimeOfDay:     0.05,
}

func newTestScorer() *Scorer {
	return NewScorer(testWeights, 0.95, 0.80, 0.7)
}

// businessHours is a Tuesday mid-morning.
var businessHours = time.Date(2025, time.March, 4, 10, 0, 0, 0, time.UTC)

func TestScoreWeightedBlend(t *testing.T) {
	scorer := newTestScorer()
	classifier := &fakeClassifier{accuracy: 1.0}

	msg := &core.Message{
		ID:          "msg-1",
		From:        "billing@vendor.example",
		Subject:     "Invoice for March",
		BodyExcerpt: string(make([]byte, 500)),
		ReceivedAt:  businessHours,
	}

	score, routing := scorer.Score(msg, classifier)

	// 0.4*1.0 + 0.3*0.7 (unknown-sender prior) + 0.2*0.92 (invoice
	// pattern) + 0.05*0.5 (500/1000 bytes) + 0.05*1.0 (business hours)
	assert.InDelta(t, 0.869, score, 1e-9)
	assert.Equal(t, core.RoutingSuggest, routing)
}

func TestScoreUsesSenderHistoryWhenKnown(t *testing.T) {
	scorer := newTestScorer()
	unknown := &fakeClassifier{accuracy: 1.0}
	known := &fakeClassifier{accuracy: 1.0, senderAcc: 1.0, senderKnown: true}

	msg := &core.Message{
		ID:          "msg-1",
		From:        "alice@example.com",
		Subject:     "lunch",
		BodyExcerpt: "see you at noon",
		ReceivedAt:  businessHours,
	}

	unknownScore, _ := scorer.Score(msg, unknown)
	knownScore, _ := scorer.Score(msg, known)

	// A perfect sender history beats the neutral prior by its weight share.
	assert.InDelta(t, 0.3*(1.0-0.7), knownScore-unknownScore, 1e-9)
}

func TestScoreHighSignalSubjectReachesAutoExecute(t *testing.T) {
	scorer := newTestScorer()
	classifier := &fakeClassifier{accuracy: 1.0, senderAcc: 1.0, senderKnown: true}

	msg := &core.Message{
		ID:          "msg-1",
		From:        "hr@example.com",
		Subject:     "Out of office until Monday",
		BodyExcerpt: string(make([]byte, 2000)),
		ReceivedAt:  businessHours,
	}

	score, routing := scorer.Score(msg, classifier)
	assert.GreaterOrEqual(t, score, 0.95)
	assert.Equal(t, core.RoutingAutoExecute, routing)
}

func TestScoreClampsToUnitInterval(t *testing.T) {
	scorer := NewScorer(Weights{Accuracy: 2.0}, 0.95, 0.80, 0.7)
	classifier := &fakeClassifier{accuracy: 1.0}

	score, _ := scorer.Score(&core.Message{ReceivedAt: businessHours}, classifier)
	assert.LessOrEqual(t, score, 1.0)
}

func TestRouteThresholds(t *testing.T) {
	scorer := newTestScorer()

	tests := []struct {
		confidence float64
		want       core.Routing
	}{
		{0.99, core.RoutingAutoExecute},
		{0.95, core.RoutingAutoExecute},
		{0.94, core.RoutingSuggest},
		{0.80, core.RoutingSuggest},
		{0.79, core.RoutingManualReview},
		{0.0, core.RoutingManualReview},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, scorer.Route(tt.confidence), "confidence %.2f", tt.confidence)
	}
}

func TestTimeOfDayScore(t *testing.T) {
	saturday := time.Date(2025, time.March, 8, 10, 0, 0, 0, time.UTC)
	lateNight := time.Date(2025, time.March, 4, 23, 0, 0, 0, time.UTC)

	assert.Equal(t, 1.0, timeOfDayScore(&core.Message{ReceivedAt: businessHours}))
	assert.Equal(t, 0.5, timeOfDayScore(&core.Message{ReceivedAt: saturday}))
	assert.Equal(t, 0.5, timeOfDayScore(&core.Message{ReceivedAt: lateNight}))
	assert.Equal(t, 0.5, timeOfDayScore(&core.Message{}))
}

func TestSubjectScore(t *testing.T) {
	assert.Equal(t, 0.95, subjectScore("Automatic Reply: vacation"))
	assert.Equal(t, 0.92, subjectScore("your INVOICE is ready"))
	assert.Equal(t, neutralSubjectScore, subjectScore("hello there"))
}

func TestBodyLengthScoreSaturates(t *testing.T) {
	assert.Equal(t, 0.0, bodyLengthScore(""))
	assert.InDelta(t, 0.25, bodyLengthScore(string(make([]byte, 250))), 1e-9)
	assert.Equal(t, 1.0, bodyLengthScore(string(make([]byte, 5000))))
}
