package core

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores and caches when no result exists for a
// message identity. It is the only "error" a read path may surface and means
// "no result yet", not a failure.
var ErrNotFound = errors.New("classification result not found")

// TeacherClient is the external high-cost classification authority used to
// generate ground truth. Implementations must be idempotent and side-effect
// free from the pipeline's perspective.
type TeacherClient interface {
	// Judge classifies a message. Malformed or unparsable output must be
	// returned as an error, never as a partially-valid result.
	Judge(ctx context.Context, msg *Message) (*ClassificationResult, error)
}

// ResultStore is the durable, authoritative storage tier. Get and Put are
// assumed atomic per key. Entries never expire.
type ResultStore interface {
	// Get returns the authoritative result for a message, or ErrNotFound.
	Get(ctx context.Context, messageID string) (*ClassificationResult, error)

	// Put replaces the authoritative result and appends to the retained
	// history. History is never silently deleted.
	Put(ctx context.Context, result *ClassificationResult) error

	// History returns every result ever stored for a message, oldest first.
	History(ctx context.Context, messageID string) ([]*ClassificationResult, error)
}

// ResultCache is the fast, best-effort storage tier. A cache failure must
// never surface past the tiered lookup.
type ResultCache interface {
	// Get returns the cached result for a message, or ErrNotFound.
	Get(ctx context.Context, messageID string) (*ClassificationResult, error)

	// Set stores a result with the given TTL.
	Set(ctx context.Context, result *ClassificationResult, ttl time.Duration) error

	// Evict removes a cached result.
	Evict(ctx context.Context, messageID string) error
}

// StateStore persists the local classifier's state across restarts. The
// snapshot is an opaque blob owned by the classifier; approximate staleness
// is acceptable.
type StateStore interface {
	LoadClassifierState(ctx context.Context) ([]byte, error)
	SaveClassifierState(ctx context.Context, snapshot []byte) error
}

// RuleEngine is the always-available, zero-latency fallback classifier.
// Classify is total: it never fails and never blocks.
type RuleEngine interface {
	Classify(msg *Message) *ClassificationResult
}

// LocalClassifier is the continuously-retrained local model.
type LocalClassifier interface {
	// Predict returns the most likely category and the classifier's own
	// confidence in it for this message.
	Predict(msg *Message) (Category, float64)

	// Update incorporates one training sample. Updates are serialized by
	// the implementation; the training loop is the only caller.
	Update(sample TrainingSample)

	// FeaturesFor extracts the feature set recorded on training samples.
	FeaturesFor(msg *Message) FeatureSet

	// Snapshot returns an eventually-consistent copy of the classifier
	// state for the confidence scorer.
	Snapshot() ClassifierState

	// SenderAccuracy reports the fraction of past messages from a sender
	// that were classified correctly, and whether the sender is known.
	SenderAccuracy(sender string) (float64, bool)

	// IndependentFor reports whether the classifier may skip the teacher
	// for a message it predicted with the given confidence.
	IndependentFor(confidence float64) bool
}

// ConfidenceScorer combines weighted signals into a confidence and a
// routing decision. Pure computation over already-available state.
type ConfidenceScorer interface {
	Score(msg *Message, classifier LocalClassifier) (float64, Routing)
	Route(confidence float64) Routing
}

// MessageSource is an ingestion producer feeding messages into the pipeline.
type MessageSource interface {
	Start() error
	Stop() error
}
