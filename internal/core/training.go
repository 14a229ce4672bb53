package core

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TrainingLoop orchestrates the local classifier against the teacher oracle.
// Each run walks Predicting -> (TeacherConsult | SkipTeacher) -> Reconciling
// -> Done and always produces a result; teacher failures degrade to the
// local prediction, never to an error.
type TrainingLoop struct {
	classifier LocalClassifier
	teacher    TeacherClient
	rules      RuleEngine
	scorer     ConfidenceScorer

	teacherTimeout  time.Duration
	failurePenalty  float64
	reviewThreshold float64

	logger *zap.Logger
}

// NewTrainingLoop creates a training loop. failurePenalty is subtracted from
// the local confidence when the teacher is unavailable, so an unverified
// guess is never promoted to high confidence.
func NewTrainingLoop(
	classifier LocalClassifier,
	teacher TeacherClient,
	rules RuleEngine,
	scorer ConfidenceScorer,
	teacherTimeout time.Duration,
	failurePenalty float64,
	reviewThreshold float64,
	logger *zap.Logger,
) *TrainingLoop {
	return &TrainingLoop{
		classifier:      classifier,
		teacher:         teacher,
		rules:           rules,
		scorer:          scorer,
		teacherTimeout:  teacherTimeout,
		failurePenalty:  failurePenalty,
		reviewThreshold: reviewThreshold,
		logger:          logger,
	}
}

// Run classifies one message through the full training path.
func (l *TrainingLoop) Run(ctx context.Context, msg *Message) *ClassificationResult {
	// Predicting.
	predicted, localConf := l.classifier.Predict(msg)

	// SkipTeacher: an independent classifier acts alone while its own
	// per-message confidence stays above the review threshold.
	if l.classifier.IndependentFor(localConf) {
		l.logger.Debug("Classifier independent, skipping teacher",
			zap.String("message_id", msg.ID),
			zap.String("category", string(predicted)),
			zap.Float64("local_confidence", localConf))
		return l.localResult(msg, predicted, 0)
	}

	// TeacherConsult.
	tctx, cancel := context.WithTimeout(ctx, l.teacherTimeout)
	defer cancel()

	verdict, err := l.teacher.Judge(tctx, msg)
	if err != nil {
		// Teacher timeout, rate limit or malformed output: proceed with
		// the local prediction at a penalized confidence.
		l.logger.Warn("Teacher oracle failed, using local prediction",
			zap.String("message_id", msg.ID),
			zap.Error(err))
		return l.localResult(msg, predicted, l.failurePenalty)
	}

	// Reconciling: the teacher's verdict is ground truth and becomes the
	// authoritative result.
	sample := TrainingSample{
		MessageID:   msg.ID,
		Features:    l.classifier.FeaturesFor(msg),
		Predicted:   predicted,
		Label:       verdict.Category,
		LabelSource: SourceLLM,
		Agreed:      predicted == verdict.Category,
		Confidence:  verdict.Confidence,
		CreatedAt:   time.Now(),
	}
	l.classifier.Update(sample)

	_, routing := l.scorer.Score(msg, l.classifier)
	verdict.Routing = routing
	verdict.Source = SourceLLM
	return verdict
}

// ApplyCorrection short-circuits the state machine for an explicit user
// correction: the correction is a maximal-confidence training sample and the
// corrected result is authoritative immediately. msg may be nil when the
// original message is no longer available.
func (l *TrainingLoop) ApplyCorrection(msg *Message, previous *ClassificationResult, corrected *ClassificationResult) {
	var features FeatureSet
	if msg != nil {
		features = l.classifier.FeaturesFor(msg)
	}
	var predicted Category
	if previous != nil {
		predicted = previous.Category
	}
	sample := TrainingSample{
		MessageID:   corrected.MessageID,
		Features:    features,
		Predicted:   predicted,
		Label:       corrected.Category,
		LabelSource: SourceManual,
		Agreed:      predicted == corrected.Category,
		Confidence:  1.0,
		CreatedAt:   time.Now(),
	}
	l.classifier.Update(sample)
}

// localResult builds an ml-sourced result from the local category
// prediction, filling the remaining fields (priority, sentiment, topics)
// from the rule engine's escalation passes.
func (l *TrainingLoop) localResult(msg *Message, predicted Category, penalty float64) *ClassificationResult {
	result := l.rules.Classify(msg)
	result.Category = predicted
	result.Source = SourceML

	conf, routing := l.scorer.Score(msg, l.classifier)
	if penalty > 0 {
		// Cap below the review threshold so a teacher outage can never
		// yield an auto-applied guess.
		if conf > l.reviewThreshold {
			conf = l.reviewThreshold
		}
		conf -= penalty
		if conf < 0 {
			conf = 0
		}
		routing = l.scorer.Route(conf)
	}
	result.Confidence = conf
	result.Routing = routing
	return result
}
