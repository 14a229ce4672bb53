package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testAutoThreshold    = 0.95
	testSuggestThreshold = 0.80
	testFailurePenalty   = 0.15
)

func newTestTrainingLoop(classifier *stubClassifier, teacher *stubTeacher, scorer *stubScorer) *TrainingLoop {
	return NewTrainingLoop(
		classifier,
		teacher,
		&stubRules{},
		scorer,
		time.Second,
		testFailurePenalty,
		testSuggestThreshold,
		zap.NewNop(),
	)
}

func testMessage(id string) *Message {
	return &Message{
		ID:         id,
		From:       "alice@example.com",
		Subject:    "quarterly report",
		ReceivedAt: time.Now(),
	}
}

func TestTrainingRunConsultsTeacherAndTrains(t *testing.T) {
	classifier := &stubClassifier{predicted: CategoryWork, confidence: 0.6}
	teacher := &stubTeacher{judge: teacherVerdict(CategoryBilling)}
	scorer := &stubScorer{confidence: 0.85, autoThreshold: testAutoThreshold, suggestThreshold: testSuggestThreshold}
	loop := newTestTrainingLoop(classifier, teacher, scorer)

	result := loop.Run(context.Background(), testMessage("msg-1"))

	require.NotNil(t, result)
	assert.Equal(t, CategoryBilling, result.Category)
	assert.Equal(t, SourceLLM, result.Source)
	assert.Equal(t, 1, teacher.callCount())

	samples := classifier.recorded()
	require.Len(t, samples, 1)
	assert.Equal(t, CategoryWork, samples[0].Predicted)
	assert.Equal(t, CategoryBilling, samples[0].Label)
	assert.Equal(t, SourceLLM, samples[0].LabelSource)
	assert.False(t, samples[0].Agreed)
}

func TestTrainingRunRecordsAgreement(t *testing.T) {
	classifier := &stubClassifier{predicted: CategoryBilling, confidence: 0.6}
	teacher := &stubTeacher{judge: teacherVerdict(CategoryBilling)}
	scorer := &stubScorer{confidence: 0.85, autoThreshold: testAutoThreshold, suggestThreshold: testSuggestThreshold}
	loop := newTestTrainingLoop(classifier, teacher, scorer)

	loop.Run(context.Background(), testMessage("msg-1"))

	samples := classifier.recorded()
	require.Len(t, samples, 1)
	assert.True(t, samples[0].Agreed)
}

func TestTrainingRunSkipsTeacherWhenIndependent(t *testing.T) {
	classifier := &stubClassifier{predicted: CategoryWork, confidence: 0.9, independent: true}
	teacher := &stubTeacher{judge: teacherVerdict(CategoryBilling)}
	scorer := &stubScorer{confidence: 0.9, autoThreshold: testAutoThreshold, suggestThreshold: testSuggestThreshold}
	loop := newTestTrainingLoop(classifier, teacher, scorer)

	result := loop.Run(context.Background(), testMessage("msg-1"))

	assert.Equal(t, 0, teacher.callCount())
	assert.Equal(t, CategoryWork, result.Category)
	assert.Equal(t, SourceML, result.Source)
	// Skipping the teacher produces no training sample.
	assert.Empty(t, classifier.recorded())
}

func TestTrainingRunTeacherFailurePenalizesConfidence(t *testing.T) {
	classifier := &stubClassifier{predicted: CategoryWork, confidence: 0.7}
	teacher := &stubTeacher{judge: func(ctx context.Context, msg *Message) (*ClassificationResult, error) {
		return nil, errors.New("rate limited")
	}}
	// Blended confidence would land in auto-execute territory without the
	// penalty path.
	scorer := &stubScorer{confidence: 0.97, autoThreshold: testAutoThreshold, suggestThreshold: testSuggestThreshold}
	loop := newTestTrainingLoop(classifier, teacher, scorer)

	result := loop.Run(context.Background(), testMessage("msg-1"))

	require.NotNil(t, result)
	assert.Equal(t, CategoryWork, result.Category)
	assert.Equal(t, SourceML, result.Source)
	// An unverified guess is capped below the review threshold and then
	// penalized, so it can never auto-execute.
	assert.LessOrEqual(t, result.Confidence, testSuggestThreshold-testFailurePenalty)
	assert.Equal(t, RoutingManualReview, result.Routing)
	assert.Empty(t, classifier.recorded())
}

func TestTrainingRunTeacherFailureConfidenceFloorsAtZero(t *testing.T) {
	classifier := &stubClassifier{predicted: CategoryWork, confidence: 0.1}
	teacher := &stubTeacher{judge: func(ctx context.Context, msg *Message) (*ClassificationResult, error) {
		return nil, errors.New("timeout")
	}}
	scorer := &stubScorer{confidence: 0.05, autoThreshold: testAutoThreshold, suggestThreshold: testSuggestThreshold}
	loop := newTestTrainingLoop(classifier, teacher, scorer)

	result := loop.Run(context.Background(), testMessage("msg-1"))
	assert.GreaterOrEqual(t, result.Confidence, 0.0)
}

func TestApplyCorrectionTrainsAtMaximalConfidence(t *testing.T) {
	classifier := &stubClassifier{}
	loop := newTestTrainingLoop(classifier, &stubTeacher{}, &stubScorer{
		autoThreshold:    testAutoThreshold,
		suggestThreshold: testSuggestThreshold,
	})

	previous := &ClassificationResult{MessageID: "msg-1", Category: CategorySpam, Source: SourceLLM}
	corrected := &ClassificationResult{MessageID: "msg-1", Category: CategoryWork, Source: SourceManual}

	loop.ApplyCorrection(testMessage("msg-1"), previous, corrected)

	samples := classifier.recorded()
	require.Len(t, samples, 1)
	assert.Equal(t, CategorySpam, samples[0].Predicted)
	assert.Equal(t, CategoryWork, samples[0].Label)
	assert.Equal(t, SourceManual, samples[0].LabelSource)
	assert.Equal(t, 1.0, samples[0].Confidence)
	assert.False(t, samples[0].Agreed)
}

func TestApplyCorrectionWithoutOriginalMessage(t *testing.T) {
	classifier := &stubClassifier{}
	loop := newTestTrainingLoop(classifier, &stubTeacher{}, &stubScorer{
		autoThreshold:    testAutoThreshold,
		suggestThreshold: testSuggestThreshold,
	})

	corrected := &ClassificationResult{MessageID: "msg-1", Category: CategoryWork, Source: SourceManual}
	loop.ApplyCorrection(nil, nil, corrected)

	samples := classifier.recorded()
	require.Len(t, samples, 1)
	assert.Equal(t, CategoryWork, samples[0].Label)
	assert.Empty(t, samples[0].Features.Sender)
}
