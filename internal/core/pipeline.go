package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pipeline is the top-level coordinator. It decides which path a message
// takes (tiered hit, rule fallback, full training loop), guarantees at most
// one concurrent classification per message identity, and owns the worker
// pool draining the work queue.
type Pipeline struct {
	lookup   *TieredLookup
	rules    RuleEngine
	training *TrainingLoop
	queue    *WorkQueue
	workers  int
	logger   *zap.Logger

	mu       sync.Mutex
	inflight map[string]*inflightJob

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// inflightJob is the dedup entry for one message identity. Its presence in
// the in-flight set is the per-identity lock: only one queue job can exist
// for an identity at a time, so the worker holding the job holds the lock.
type inflightJob struct {
	msg    *Message
	done   chan struct{}
	result *ClassificationResult
}

// NewPipeline creates the coordinator. Start must be called before queued
// jobs are processed.
func NewPipeline(
	lookup *TieredLookup,
	rules RuleEngine,
	training *TrainingLoop,
	queue *WorkQueue,
	workers int,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		lookup:   lookup,
		rules:    rules,
		training: training,
		queue:    queue,
		workers:  workers,
		logger:   logger,
		inflight: make(map[string]*inflightJob),
	}
}

// Start launches the worker pool.
func (p *Pipeline) Start(ctx context.Context) {
	if p.started {
		return
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.logger.Info("Classification pipeline started", zap.Int("workers", p.workers))
}

// Stop closes the queue, cancels in-flight teacher calls and waits for the
// workers to drain.
func (p *Pipeline) Stop() {
	p.queue.Close()
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("Classification pipeline stopped")
}

// Ingest hands a message to the pipeline, fire-and-forget. It never blocks
// on a worker and never returns an error to the producer.
func (p *Pipeline) Ingest(msg *Message) {
	p.Classify(context.Background(), msg)
}

// Classify returns a result for the message immediately. On a tiered-lookup
// hit that result is final; on a miss the rule engine's provisional result
// is returned and a background job is enqueued to produce the authoritative
// one. Total function: infra failures degrade, they do not surface.
func (p *Pipeline) Classify(ctx context.Context, msg *Message) *ClassificationResult {
	result, err := p.lookup.Get(ctx, msg.ID)
	if err == nil {
		return result
	}

	provisional := p.rules.Classify(msg)

	if !errors.Is(err, ErrNotFound) {
		// Durable store unavailable: classification is temporarily
		// degraded to the rule path. The queued job retries the rest.
		p.logger.Warn("Tiered lookup unavailable, serving rule-based result",
			zap.String("message_id", msg.ID),
			zap.Error(err))
	} else if werr := p.writeBack(ctx, provisional, false); werr != nil {
		p.logger.Warn("Failed to store provisional result",
			zap.String("message_id", msg.ID),
			zap.Error(werr))
	}

	p.submit(msg)
	return provisional
}

// GetClassification is the polling read used by the API layer. ErrNotFound
// means "no result yet", not a failure.
func (p *Pipeline) GetClassification(ctx context.Context, messageID string) (*ClassificationResult, error) {
	return p.lookup.Get(ctx, messageID)
}

// Await blocks until the in-flight classification for a message finishes,
// then returns the stored result. Used by callers that want the finalized
// result rather than the provisional one.
func (p *Pipeline) Await(ctx context.Context, messageID string) (*ClassificationResult, error) {
	p.mu.Lock()
	entry := p.inflight[messageID]
	p.mu.Unlock()

	if entry != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-entry.done:
			if entry.result != nil {
				return entry.result, nil
			}
		}
	}
	return p.lookup.Get(ctx, messageID)
}

// Override applies an explicit user correction. It short-circuits the
// training state machine: the correction trains the classifier at maximal
// confidence and the manual result is written unconditionally, pinning
// source=manual until explicitly cleared.
func (p *Pipeline) Override(ctx context.Context, messageID string, corrected *ClassificationResult, actor string) error {
	corrected.MessageID = messageID
	corrected.Source = SourceManual
	corrected.Confidence = 1.0
	corrected.Routing = RoutingAutoExecute
	corrected.ClassifiedAt = time.Now()

	previous, err := p.lookup.Get(ctx, messageID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		p.logger.Warn("Could not read previous result for override",
			zap.String("message_id", messageID),
			zap.Error(err))
	}

	p.mu.Lock()
	var msg *Message
	if entry := p.inflight[messageID]; entry != nil {
		msg = entry.msg
	}
	p.mu.Unlock()

	p.training.ApplyCorrection(msg, previous, corrected)

	if err := p.lookup.Put(ctx, corrected); err != nil {
		return err
	}
	p.logger.Info("Applied manual override",
		zap.String("message_id", messageID),
		zap.String("category", string(corrected.Category)),
		zap.String("actor", actor))
	return nil
}

// submit registers a message in the in-flight set and enqueues its job. A
// second submit for the same identity attaches to the existing job instead
// of starting a duplicate.
func (p *Pipeline) submit(msg *Message) {
	p.mu.Lock()
	if _, ok := p.inflight[msg.ID]; ok {
		p.mu.Unlock()
		return
	}
	entry := &inflightJob{msg: msg, done: make(chan struct{})}
	p.inflight[msg.ID] = entry
	p.mu.Unlock()

	job := &QueueJob{
		MessageID: msg.ID,
		Priority:  PriorityFor(msg.ReceivedAt, time.Now()),
	}
	if !p.queue.Enqueue(job) {
		// Queue saturated: the provisional result stands.
		p.finish(entry, msg.ID, nil)
	}
}

func (p *Pipeline) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			return
		}
		p.process(ctx, job)
	}
}

// process runs one queued job to completion. Exactly one write-back is
// emitted per attempt.
func (p *Pipeline) process(ctx context.Context, job *QueueJob) {
	p.mu.Lock()
	entry := p.inflight[job.MessageID]
	p.mu.Unlock()
	if entry == nil {
		// Job was superseded or dropped; nothing to do.
		return
	}

	// A manual override that landed while the job was queued is pinned;
	// skip the training run entirely.
	if existing, err := p.lookup.Get(ctx, job.MessageID); err == nil && existing.Source == SourceManual {
		p.finish(entry, job.MessageID, existing)
		return
	}

	result := p.training.Run(ctx, entry.msg)

	if err := p.writeBack(ctx, result, false); err != nil {
		if p.queue.Retry(job) {
			// Entry stays in-flight so later requests keep attaching.
			return
		}
		// Retries exhausted: the provisional result is the de facto
		// final result. Degrade, never surface.
		p.logger.Error("Dropping job after exhausted retries",
			zap.String("message_id", job.MessageID),
			zap.Error(err))
		p.finish(entry, job.MessageID, nil)
		return
	}

	p.finish(entry, job.MessageID, result)
}

// writeBack persists a result honoring the monotonic source ranking: an
// existing result of a higher-ranked source is never overwritten except by
// an explicit override.
func (p *Pipeline) writeBack(ctx context.Context, result *ClassificationResult, force bool) error {
	if !force {
		existing, err := p.lookup.Get(ctx, result.MessageID)
		switch {
		case err == nil:
			if SourceRank(existing.Source) > SourceRank(result.Source) {
				p.logger.Debug("Skipping write-back of lower-ranked result",
					zap.String("message_id", result.MessageID),
					zap.String("existing_source", string(existing.Source)),
					zap.String("new_source", string(result.Source)))
				return nil
			}
		case errors.Is(err, ErrNotFound):
			// First write for this identity.
		default:
			return err
		}
	}
	return p.lookup.Put(ctx, result)
}

func (p *Pipeline) finish(entry *inflightJob, messageID string, result *ClassificationResult) {
	p.mu.Lock()
	delete(p.inflight, messageID)
	p.mu.Unlock()
	entry.result = result
	close(entry.done)
}
