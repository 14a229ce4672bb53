package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// TieredLookup reads and writes classification results across the two
// storage tiers. The durable store is authoritative; the cache is a
// best-effort accelerator that is never consulted ahead of it.
type TieredLookup struct {
	strategies []lookupStrategy
	store      ResultStore
	cache      ResultCache
	cacheTTL   time.Duration
	logger     *zap.Logger
}

// lookupStrategy is one named step of the ordered read chain. A strategy
// returning ok=false falls through to the next; a strategy returning an
// error aborts the chain.
type lookupStrategy struct {
	name string
	get  func(ctx context.Context, messageID string) (*ClassificationResult, bool, error)
}

// NewTieredLookup creates the tiered read/write path.
func NewTieredLookup(store ResultStore, cache ResultCache, cacheTTL time.Duration, logger *zap.Logger) *TieredLookup {
	t := &TieredLookup{
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
	t.strategies = []lookupStrategy{
		{name: "durable", get: t.fromStore},
		{name: "cache", get: t.fromCache},
	}
	return t
}

// Get returns the result for a message or ErrNotFound. A durable-store
// infrastructure failure is returned as an error so the caller can take the
// rule-engine fallback path; cache failures only degrade.
func (t *TieredLookup) Get(ctx context.Context, messageID string) (*ClassificationResult, error) {
	for _, s := range t.strategies {
		result, ok, err := s.get(ctx, messageID)
		if err != nil {
			return nil, fmt.Errorf("%s lookup failed: %w", s.name, err)
		}
		if ok {
			return result, nil
		}
	}
	return nil, ErrNotFound
}

func (t *TieredLookup) fromStore(ctx context.Context, messageID string) (*ClassificationResult, bool, error) {
	result, err := t.store.Get(ctx, messageID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		// Durable store unavailable is fatal for this lookup.
		return nil, false, err
	}
	// A durable hit with a cold cache is a cheap repopulation, not a
	// reclassification.
	if cerr := t.cache.Set(ctx, result, t.cacheTTL); cerr != nil {
		t.logger.Warn("Failed to refresh cache from durable hit",
			zap.String("message_id", messageID),
			zap.Error(cerr))
	}
	return result, true, nil
}

func (t *TieredLookup) fromCache(ctx context.Context, messageID string) (*ClassificationResult, bool, error) {
	result, err := t.cache.Get(ctx, messageID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			// Cache unavailable degrades to durable-only reads.
			t.logger.Warn("Cache unavailable, degrading to durable-only lookup",
				zap.String("message_id", messageID),
				zap.Error(err))
		}
		return nil, false, nil
	}
	return result, true, nil
}

// Put writes a result to both tiers. The durable write must complete before
// the cache write so a crash between the two never leaves the cache
// authoritative over an absent durable record.
func (t *TieredLookup) Put(ctx context.Context, result *ClassificationResult) error {
	if err := t.store.Put(ctx, result); err != nil {
		return fmt.Errorf("durable store write failed: %w", err)
	}
	if err := t.cache.Set(ctx, result, t.cacheTTL); err != nil {
		t.logger.Warn("Failed to write result to cache",
			zap.String("message_id", result.MessageID),
			zap.Error(err))
	}
	return nil
}

// Evict drops the cache entry for a message. The durable record stays.
func (t *TieredLookup) Evict(ctx context.Context, messageID string) {
	if err := t.cache.Evict(ctx, messageID); err != nil {
		t.logger.Warn("Failed to evict cache entry",
			zap.String("message_id", messageID),
			zap.Error(err))
	}
}
