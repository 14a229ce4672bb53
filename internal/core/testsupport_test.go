package core

import (
	"context"
	"errors"
	"sync"
	"time"
)

// errInfra simulates an infrastructure outage in the storage stubs.
var errInfra = errors.New("infrastructure unavailable")

// memStore is an in-memory ResultStore with switchable failure modes.
type memStore struct {
	mu      sync.Mutex
	results map[string]*ClassificationResult
	history map[string][]*ClassificationResult
	state   []byte

	failGet bool
	failPut bool

	putCalls int
}

func newMemStore() *memStore {
	return &memStore{
		results: make(map[string]*ClassificationResult),
		history: make(map[string][]*ClassificationResult),
	}
}

func (s *memStore) Get(ctx context.Context, messageID string) (*ClassificationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet {
		return nil, errInfra
	}
	result, ok := s.results[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	return result, nil
}

func (s *memStore) Put(ctx context.Context, result *ClassificationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putCalls++
	if s.failPut {
		return errInfra
	}
	s.results[result.MessageID] = result
	s.history[result.MessageID] = append(s.history[result.MessageID], result)
	return nil
}

func (s *memStore) History(ctx context.Context, messageID string) ([]*ClassificationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history[messageID], nil
}

func (s *memStore) LoadClassifierState(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, ErrNotFound
	}
	return s.state, nil
}

func (s *memStore) SaveClassifierState(ctx context.Context, snapshot []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = snapshot
	return nil
}

func (s *memStore) setFailures(get, put bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failGet = get
	s.failPut = put
}

func (s *memStore) stored(messageID string) *ClassificationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results[messageID]
}

// memCache is an in-memory ResultCache with switchable failure modes.
type memCache struct {
	mu      sync.Mutex
	entries map[string]*ClassificationResult

	failAll  bool
	setCalls int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]*ClassificationResult)}
}

func (c *memCache) Get(ctx context.Context, messageID string) (*ClassificationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return nil, errInfra
	}
	result, ok := c.entries[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	return result, nil
}

func (c *memCache) Set(ctx context.Context, result *ClassificationResult, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setCalls++
	if c.failAll {
		return errInfra
	}
	c.entries[result.MessageID] = result
	return nil
}

func (c *memCache) Evict(ctx context.Context, messageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return errInfra
	}
	delete(c.entries, messageID)
	return nil
}

func (c *memCache) setFailing(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failAll = fail
}

func (c *memCache) cached(messageID string) *ClassificationResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[messageID]
}

// stubTeacher is a TeacherClient with a programmable verdict.
type stubTeacher struct {
	mu    sync.Mutex
	judge func(ctx context.Context, msg *Message) (*ClassificationResult, error)
	calls int
}

func (t *stubTeacher) Judge(ctx context.Context, msg *Message) (*ClassificationResult, error) {
	t.mu.Lock()
	t.calls++
	judge := t.judge
	t.mu.Unlock()
	if judge == nil {
		return nil, errors.New("no teacher verdict configured")
	}
	return judge(ctx, msg)
}

func (t *stubTeacher) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

func teacherVerdict(category Category) func(ctx context.Context, msg *Message) (*ClassificationResult, error) {
	return func(ctx context.Context, msg *Message) (*ClassificationResult, error) {
		return &ClassificationResult{
			MessageID:    msg.ID,
			Category:     category,
			Priority:     PriorityMedium,
			Sentiment:    SentimentNeutral,
			Summary:      msg.Subject,
			Confidence:   1.0,
			Source:       SourceLLM,
			ClassifiedAt: time.Now(),
		}, nil
	}
}

// stubClassifier is a LocalClassifier with fixed prediction behavior.
type stubClassifier struct {
	mu          sync.Mutex
	predicted   Category
	confidence  float64
	independent bool
	state       ClassifierState
	samples     []TrainingSample
}

func (c *stubClassifier) Predict(msg *Message) (Category, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.predicted, c.confidence
}

func (c *stubClassifier) Update(sample TrainingSample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, sample)
}

func (c *stubClassifier) FeaturesFor(msg *Message) FeatureSet {
	return FeatureSet{Sender: msg.From}
}

func (c *stubClassifier) Snapshot() ClassifierState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *stubClassifier) SenderAccuracy(sender string) (float64, bool) {
	return 0, false
}

func (c *stubClassifier) IndependentFor(confidence float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.independent
}

func (c *stubClassifier) recorded() []TrainingSample {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TrainingSample, len(c.samples))
	copy(out, c.samples)
	return out
}

// stubScorer returns a fixed confidence and routes with real thresholds.
type stubScorer struct {
	confidence       float64
	autoThreshold    float64
	suggestThreshold float64
}

func (s *stubScorer) Score(msg *Message, classifier LocalClassifier) (float64, Routing) {
	return s.confidence, s.Route(s.confidence)
}

func (s *stubScorer) Route(confidence float64) Routing {
	switch {
	case confidence >= s.autoThreshold:
		return RoutingAutoExecute
	case confidence >= s.suggestThreshold:
		return RoutingSuggest
	default:
		return RoutingManualReview
	}
}

// stubRules is a RuleEngine producing a fixed provisional result.
type stubRules struct {
	category Category
}

func (r *stubRules) Classify(msg *Message) *ClassificationResult {
	category := r.category
	if category == "" {
		category = CategoryOther
	}
	return &ClassificationResult{
		MessageID:    msg.ID,
		Category:     category,
		Priority:     PriorityLow,
		Sentiment:    SentimentNeutral,
		Summary:      msg.Subject,
		Confidence:   0.7,
		Source:       SourceRule,
		Routing:      RoutingManualReview,
		ClassifiedAt: time.Now(),
	}
}
