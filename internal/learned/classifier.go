package learned

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/mikey/llm-mail-classifier/internal/core"
)

// Options configures the learned classifier.
type Options struct {
	// MinSamples and MinAccuracy gate independence: both must be crossed
	// before the classifier may skip the teacher oracle.
	MinSamples  int64
	MinAccuracy float64

	// ReviewThreshold is the manual-review confidence boundary. Even an
	// independent classifier consults the teacher below it.
	ReviewThreshold float64

	// AccuracyAlpha is the EWMA smoothing factor for rolling accuracy.
	AccuracyAlpha float64

	// LearningRate is the per-sample feature weight nudge.
	LearningRate float64

	// PersistEvery checkpoints state to the StateStore after this many
	// updates. Zero disables periodic checkpoints.
	PersistEvery int
}

// senderStats tracks per-sender classification history.
type senderStats struct {
	Correct int64           `json:"correct"`
	Total   int64           `json:"total"`
	Recent  []core.Category `json:"recent"`
}

// recentWindow bounds the per-sender recent-category ring.
const recentWindow = 10

// recentBoost is the weight of the sender-recent-category-frequency feature.
const recentBoost = 0.5

// persistedState is the JSON snapshot written to the StateStore.
type persistedState struct {
	Accuracy           float64                              `json:"accuracy"`
	SampleCount        int64                                `json:"sample_count"`
	Weights            map[string]map[core.Category]float64 `json:"weights"`
	CategoryConfidence map[core.Category]float64            `json:"category_confidence"`
	Senders            map[string]*senderStats              `json:"senders"`
	SavedAt            time.Time                            `json:"saved_at"`
}

// Classifier is a feature-weighted local model predicting a message category
// from sender-domain, subject-token and sender-recent-category features.
// Updates are serialized; the training loop is the single writer.
type Classifier struct {
	mu     sync.RWMutex
	opts   Options
	store  core.StateStore
	logger *zap.Logger

	accuracy           float64
	sampleCount        int64
	weights            map[string]map[core.Category]float64
	categoryConfidence map[core.Category]float64
	senders            map[string]*senderStats

	updatesSinceSave int
}

// NewClassifier creates a classifier, restoring persisted state if any.
// Corrupt state (NaN accuracy, out-of-range counters) is reset to safe
// defaults rather than propagated.
func NewClassifier(ctx context.Context, opts Options, store core.StateStore, logger *zap.Logger) (*Classifier, error) {
	c := &Classifier{
		opts:               opts,
		store:              store,
		logger:             logger,
		weights:            make(map[string]map[core.Category]float64),
		categoryConfidence: make(map[core.Category]float64),
		senders:            make(map[string]*senderStats),
	}

	raw, err := store.LoadClassifierState(ctx)
	if err != nil {
		if err != core.ErrNotFound {
			return nil, fmt.Errorf("failed to load classifier state: %w", err)
		}
		logger.Info("No persisted classifier state, starting fresh")
		return c, nil
	}

	var state persistedState
	if err := json.Unmarshal(raw, &state); err != nil {
		logger.Warn("Persisted classifier state is corrupt, resetting", zap.Error(err))
		return c, nil
	}
	c.restore(&state)
	logger.Info("Restored classifier state",
		zap.Int64("samples", c.sampleCount),
		zap.Float64("accuracy", c.accuracy))
	return c, nil
}

func (c *Classifier) restore(state *persistedState) {
	if math.IsNaN(state.Accuracy) || state.Accuracy < 0 || state.Accuracy > 1 || state.SampleCount < 0 {
		c.logger.Warn("Classifier counters out of range, resetting to defaults",
			zap.Float64("accuracy", state.Accuracy),
			zap.Int64("samples", state.SampleCount))
		return
	}
	c.accuracy = state.Accuracy
	c.sampleCount = state.SampleCount
	if state.Weights != nil {
		c.weights = state.Weights
	}
	if state.CategoryConfidence != nil {
		c.categoryConfidence = state.CategoryConfidence
	}
	if state.Senders != nil {
		c.senders = state.Senders
	}
}

// FeaturesFor extracts the feature set for a message.
func (c *Classifier) FeaturesFor(msg *core.Message) core.FeatureSet {
	return core.FeatureSet{
		Sender:        strings.ToLower(strings.TrimSpace(msg.From)),
		SenderDomain:  senderDomain(msg.From),
		SubjectTokens: tokenize(msg.Subject),
	}
}

// Predict returns the highest-scoring category and the classifier's own
// confidence, which is the winning share of the total positive score.
func (c *Classifier) Predict(msg *core.Message) (core.Category, float64) {
	features := c.FeaturesFor(msg)

	c.mu.RLock()
	defer c.mu.RUnlock()

	scores := make(map[core.Category]float64)
	for _, key := range featureKeys(features) {
		for cat, w := range c.weights[key] {
			scores[cat] += w
		}
	}

	// Sender-recent-category frequency contributes a per-category boost.
	if stats, ok := c.senders[features.Sender]; ok && len(stats.Recent) > 0 {
		for _, cat := range stats.Recent {
			scores[cat] += recentBoost / float64(len(stats.Recent))
		}
	}

	var best core.Category
	var bestScore, total float64
	for _, cat := range core.Categories {
		s := scores[cat]
		if s <= 0 {
			continue
		}
		total += s
		if s > bestScore {
			best = cat
			bestScore = s
		}
	}

	if best == "" || total == 0 {
		return core.CategoryOther, 0
	}

	conf := bestScore / total
	if math.IsNaN(conf) || conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return best, conf
}

// Update incorporates one training sample: on agreement the label's features
// are reinforced, on disagreement weight shifts from the prediction to the
// label and rolling accuracy drops.
func (c *Classifier) Update(sample core.TrainingSample) {
	c.mu.Lock()

	lr := c.opts.LearningRate
	for _, key := range featureKeys(sample.Features) {
		if c.weights[key] == nil {
			c.weights[key] = make(map[core.Category]float64)
		}
		c.weights[key][sample.Label] += lr
		if !sample.Agreed && sample.Predicted != "" {
			w := c.weights[key][sample.Predicted] - lr
			if w < 0 {
				w = 0
			}
			c.weights[key][sample.Predicted] = w
		}
	}

	// Rolling accuracy is an EWMA over agreement outcomes.
	observed := 0.0
	if sample.Agreed {
		observed = 1.0
	}
	alpha := c.opts.AccuracyAlpha
	c.accuracy = (1-alpha)*c.accuracy + alpha*observed
	if math.IsNaN(c.accuracy) || c.accuracy < 0 || c.accuracy > 1 {
		c.logger.Warn("Rolling accuracy out of range, resetting", zap.Float64("accuracy", c.accuracy))
		c.accuracy = 0
	}
	c.sampleCount++

	prev := c.categoryConfidence[sample.Label]
	c.categoryConfidence[sample.Label] = (1-alpha)*prev + alpha*observed

	if sample.Features.Sender != "" {
		stats, ok := c.senders[sample.Features.Sender]
		if !ok {
			stats = &senderStats{}
			c.senders[sample.Features.Sender] = stats
		}
		stats.Total++
		if sample.Agreed {
			stats.Correct++
		}
		stats.Recent = append(stats.Recent, sample.Label)
		if len(stats.Recent) > recentWindow {
			stats.Recent = stats.Recent[len(stats.Recent)-recentWindow:]
		}
	}

	c.updatesSinceSave++
	checkpoint := c.opts.PersistEvery > 0 && c.updatesSinceSave >= c.opts.PersistEvery
	if checkpoint {
		c.updatesSinceSave = 0
	}
	c.mu.Unlock()

	if checkpoint {
		if err := c.Save(context.Background()); err != nil {
			c.logger.Error("Failed to checkpoint classifier state", zap.Error(err))
		}
	}
}

// Snapshot returns an eventually-consistent copy of the classifier state.
func (c *Classifier) Snapshot() core.ClassifierState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	confidences := make(map[core.Category]float64, len(c.categoryConfidence))
	for cat, v := range c.categoryConfidence {
		confidences[cat] = v
	}
	return core.ClassifierState{
		Accuracy:           c.accuracy,
		SampleCount:        c.sampleCount,
		CategoryConfidence: confidences,
		Independent:        c.independentLocked(),
	}
}

// SenderAccuracy reports the smoothed correctness ratio for a sender.
func (c *Classifier) SenderAccuracy(sender string) (float64, bool) {
	sender = strings.ToLower(strings.TrimSpace(sender))

	c.mu.RLock()
	defer c.mu.RUnlock()

	stats, ok := c.senders[sender]
	if !ok || stats.Total == 0 {
		return 0, false
	}
	// Laplace smoothing keeps one bad first impression from zeroing the
	// sender signal.
	return (float64(stats.Correct) + 1) / (float64(stats.Total) + 2), true
}

// IndependentFor reports whether the teacher may be skipped for a message
// predicted with the given confidence. Independence is re-evaluated per
// message: below the review threshold the teacher is always consulted.
func (c *Classifier) IndependentFor(confidence float64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.independentLocked() && confidence >= c.opts.ReviewThreshold
}

func (c *Classifier) independentLocked() bool {
	return c.sampleCount >= c.opts.MinSamples && c.accuracy >= c.opts.MinAccuracy
}

// Save persists the current state to the StateStore.
func (c *Classifier) Save(ctx context.Context) error {
	c.mu.RLock()
	state := persistedState{
		Accuracy:           c.accuracy,
		SampleCount:        c.sampleCount,
		Weights:            c.weights,
		CategoryConfidence: c.categoryConfidence,
		Senders:            c.senders,
		SavedAt:            time.Now(),
	}
	raw, err := json.Marshal(&state)
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal classifier state: %w", err)
	}
	if err := c.store.SaveClassifierState(ctx, raw); err != nil {
		return fmt.Errorf("failed to persist classifier state: %w", err)
	}
	return nil
}

func featureKeys(f core.FeatureSet) []string {
	keys := make([]string, 0, len(f.SubjectTokens)+1)
	if f.SenderDomain != "" {
		keys = append(keys, "domain:"+f.SenderDomain)
	}
	for _, tok := range f.SubjectTokens {
		keys = append(keys, "token:"+tok)
	}
	return keys
}

func senderDomain(from string) string {
	at := strings.LastIndex(from, "@")
	if at < 0 || at == len(from)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimRight(from[at+1:], ">"))
}

// maxSubjectTokens bounds the subject feature count per message.
const maxSubjectTokens = 12

// tokenize lowercases, NFC-normalizes and splits a subject into alphanumeric
// tokens of three or more runes.
func tokenize(subject string) []string {
	normalized := norm.NFC.String(strings.ToLower(subject))
	fields := strings.FieldsFunc(normalized, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		tokens = append(tokens, f)
		if len(tokens) == maxSubjectTokens {
			break
		}
	}
	return tokens
}
