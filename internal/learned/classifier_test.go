package learned

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-classifier/internal/core"
)

// memStateStore is an in-memory StateStore for classifier tests.
type memStateStore struct {
	mu    sync.Mutex
	state []byte
	saves int
}

func (s *memStateStore) LoadClassifierState(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, core.ErrNotFound
	}
	return s.state, nil
}

func (s *memStateStore) SaveClassifierState(ctx context.Context, snapshot []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = snapshot
	s.saves++
	return nil
}

func (s *memStateStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func testOptions() Options {
	return Options{
		MinSamples:      100,
		MinAccuracy:     0.90,
		ReviewThreshold: 0.80,
		AccuracyAlpha:   0.05,
		LearningRate:    0.1,
	}
}

func newTestClassifier(t *testing.T, opts Options) (*Classifier, *memStateStore) {
	t.Helper()
	store := &memStateStore{}
	c, err := NewClassifier(context.Background(), opts, store, zap.NewNop())
	require.NoError(t, err)
	return c, store
}

func sampleFor(msg *core.Message, label core.Category, agreed bool) core.TrainingSample {
	predicted := label
	if !agreed {
		predicted = core.CategoryOther
	}
	return core.TrainingSample{
		MessageID:   msg.ID,
		Predicted:   predicted,
		Label:       label,
		LabelSource: core.SourceLLM,
		Agreed:      agreed,
		Confidence:  1.0,
		CreatedAt:   time.Now(),
	}
}

func workMessage() *core.Message {
	return &core.Message{
		ID:         "msg-1",
		From:       "pm@corp.example",
		Subject:    "sprint planning notes",
		ReceivedAt: time.Now(),
	}
}

func TestFeaturesFor(t *testing.T) {
	c, _ := newTestClassifier(t, testOptions())

	features := c.FeaturesFor(&core.Message{
		From:    "Alice Example <ALICE@Corp.Example>",
		Subject: "Q3 Budget review: final numbers",
	})

	assert.Equal(t, "corp.example", features.SenderDomain)
	assert.Contains(t, features.SubjectTokens, "budget")
	assert.Contains(t, features.SubjectTokens, "review")
	assert.Contains(t, features.SubjectTokens, "final")
	// Tokens shorter than three runes are dropped.
	assert.NotContains(t, features.SubjectTokens, "q3")
}

func TestPredictUntrainedFallsBackToOther(t *testing.T) {
	c, _ := newTestClassifier(t, testOptions())

	category, confidence := c.Predict(workMessage())
	assert.Equal(t, core.CategoryOther, category)
	assert.Equal(t, 0.0, confidence)
}

func TestPredictLearnsFromSamples(t *testing.T) {
	c, _ := newTestClassifier(t, testOptions())
	msg := workMessage()

	sample := sampleFor(msg, core.CategoryWork, true)
	sample.Features = c.FeaturesFor(msg)
	for i := 0; i < 5; i++ {
		c.Update(sample)
	}

	category, confidence := c.Predict(msg)
	assert.Equal(t, core.CategoryWork, category)
	assert.Greater(t, confidence, 0.5)
}

func TestUpdateDisagreementShiftsWeight(t *testing.T) {
	c, _ := newTestClassifier(t, testOptions())
	msg := workMessage()
	features := c.FeaturesFor(msg)

	// Train toward spam first.
	spamSample := sampleFor(msg, core.CategorySpam, true)
	spamSample.Features = features
	for i := 0; i < 3; i++ {
		c.Update(spamSample)
	}

	// Corrections to work drain the spam weight and build the work weight.
	correction := core.TrainingSample{
		MessageID:   msg.ID,
		Features:    features,
		Predicted:   core.CategorySpam,
		Label:       core.CategoryWork,
		LabelSource: core.SourceLLM,
		Agreed:      false,
		Confidence:  1.0,
		CreatedAt:   time.Now(),
	}
	for i := 0; i < 6; i++ {
		c.Update(correction)
	}

	category, _ := c.Predict(msg)
	assert.Equal(t, core.CategoryWork, category)
}

func TestRollingAccuracyEWMA(t *testing.T) {
	c, _ := newTestClassifier(t, testOptions())
	msg := workMessage()

	agree := sampleFor(msg, core.CategoryWork, true)
	agree.Features = c.FeaturesFor(msg)

	c.Update(agree)
	// One agreement from zero: accuracy = alpha * 1.0.
	assert.InDelta(t, 0.05, c.Snapshot().Accuracy, 1e-9)

	c.Update(agree)
	assert.InDelta(t, 0.05*0.95+0.05, c.Snapshot().Accuracy, 1e-9)
	assert.Equal(t, int64(2), c.Snapshot().SampleCount)
}

func TestIndependenceRequiresSamplesAndAccuracy(t *testing.T) {
	opts := testOptions()
	opts.MinSamples = 3
	opts.AccuracyAlpha = 0.7
	c, _ := newTestClassifier(t, opts)
	msg := workMessage()

	agree := sampleFor(msg, core.CategoryWork, true)
	agree.Features = c.FeaturesFor(msg)

	// Two samples: accuracy crosses the bar but the sample count does not.
	c.Update(agree)
	c.Update(agree)
	assert.False(t, c.Snapshot().Independent)
	assert.False(t, c.IndependentFor(0.99))

	// Third agreement crosses both gates.
	c.Update(agree)
	require.True(t, c.Snapshot().Independent)
	assert.True(t, c.IndependentFor(0.99))

	// Per-message confidence below the review threshold still consults
	// the teacher.
	assert.False(t, c.IndependentFor(0.79))
}

func TestIndependenceLostWhenAccuracyDrops(t *testing.T) {
	opts := testOptions()
	opts.MinSamples = 2
	opts.AccuracyAlpha = 0.7
	c, _ := newTestClassifier(t, opts)
	msg := workMessage()

	agree := sampleFor(msg, core.CategoryWork, true)
	agree.Features = c.FeaturesFor(msg)
	disagree := sampleFor(msg, core.CategoryWork, false)
	disagree.Features = agree.Features

	c.Update(agree)
	c.Update(agree)
	c.Update(agree)
	require.True(t, c.Snapshot().Independent)

	c.Update(disagree)
	assert.False(t, c.Snapshot().Independent)
}

func TestSenderAccuracyLaplaceSmoothing(t *testing.T) {
	c, _ := newTestClassifier(t, testOptions())
	msg := workMessage()

	_, known := c.SenderAccuracy(msg.From)
	assert.False(t, known)

	sample := sampleFor(msg, core.CategoryWork, true)
	sample.Features = c.FeaturesFor(msg)
	c.Update(sample)

	acc, known := c.SenderAccuracy(msg.From)
	require.True(t, known)
	// (1 correct + 1) / (1 total + 2)
	assert.InDelta(t, 2.0/3.0, acc, 1e-9)
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	opts := testOptions()
	c, store := newTestClassifier(t, opts)
	msg := workMessage()

	sample := sampleFor(msg, core.CategoryWork, true)
	sample.Features = c.FeaturesFor(msg)
	for i := 0; i < 4; i++ {
		c.Update(sample)
	}
	require.NoError(t, c.Save(context.Background()))

	restored, err := NewClassifier(context.Background(), opts, store, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, c.Snapshot().SampleCount, restored.Snapshot().SampleCount)
	assert.InDelta(t, c.Snapshot().Accuracy, restored.Snapshot().Accuracy, 1e-9)

	category, _ := restored.Predict(msg)
	assert.Equal(t, core.CategoryWork, category)
}

func TestPersistEveryCheckpoints(t *testing.T) {
	opts := testOptions()
	opts.PersistEvery = 2
	c, store := newTestClassifier(t, opts)
	msg := workMessage()

	sample := sampleFor(msg, core.CategoryWork, true)
	sample.Features = c.FeaturesFor(msg)

	c.Update(sample)
	assert.Equal(t, 0, store.saveCount())
	c.Update(sample)
	assert.Equal(t, 1, store.saveCount())
}

func TestCorruptStateResetsToDefaults(t *testing.T) {
	store := &memStateStore{state: []byte("{not json")}

	c, err := NewClassifier(context.Background(), testOptions(), store, zap.NewNop())
	require.NoError(t, err)

	state := c.Snapshot()
	assert.Equal(t, int64(0), state.SampleCount)
	assert.Equal(t, 0.0, state.Accuracy)
	assert.False(t, state.Independent)
}

func TestOutOfRangeCountersResetToDefaults(t *testing.T) {
	store := &memStateStore{state: []byte(`{"accuracy": 7.5, "sample_count": -3}`)}

	c, err := NewClassifier(context.Background(), testOptions(), store, zap.NewNop())
	require.NoError(t, err)

	state := c.Snapshot()
	assert.Equal(t, int64(0), state.SampleCount)
	assert.Equal(t, 0.0, state.Accuracy)
}
