package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueClosed is returned by Dequeue once the queue has been closed and
// drained.
var ErrQueueClosed = errors.New("work queue closed")

// WorkQueue is a bounded, three-tier priority queue of classification jobs.
// Ingestion never blocks on it: when full, Enqueue drops the job and the
// rule engine's provisional result stands.
type WorkQueue struct {
	mu     sync.Mutex
	levels [3][]*QueueJob
	size   int

	maxSize     int
	maxAttempts int
	baseBackoff time.Duration

	notify chan struct{}
	done   chan struct{}
	closed bool

	logger *zap.Logger
}

// NewWorkQueue creates a work queue. maxAttempts bounds retries per job;
// baseBackoff doubles per attempt.
func NewWorkQueue(maxSize, maxAttempts int, baseBackoff time.Duration, logger *zap.Logger) *WorkQueue {
	return &WorkQueue{
		maxSize:     maxSize,
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
		notify:      make(chan struct{}, maxSize),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// PriorityFor maps message recency to the three scheduling tiers.
func PriorityFor(receivedAt, now time.Time) JobPriority {
	age := now.Sub(receivedAt)
	switch {
	case age < time.Hour:
		return JobPriorityHigh
	case age < 24*time.Hour:
		return JobPriorityMedium
	default:
		return JobPriorityLow
	}
}

// Enqueue adds a job. Returns false when the queue is full or closed, in
// which case the job is dropped.
func (q *WorkQueue) Enqueue(job *QueueJob) bool {
	q.mu.Lock()
	if q.closed || q.size >= q.maxSize {
		full := !q.closed
		q.mu.Unlock()
		if full {
			q.logger.Warn("Work queue full, dropping job",
				zap.String("message_id", job.MessageID))
		}
		return false
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	level := q.levelFor(job.Priority)
	q.levels[level] = append(q.levels[level], job)
	q.size++
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Dequeue blocks until a job is available, the context is cancelled, or the
// queue is closed. Higher-priority tiers always drain first.
func (q *WorkQueue) Dequeue(ctx context.Context) (*QueueJob, error) {
	for {
		if job := q.pop(); job != nil {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.done:
			// Drain remaining jobs before reporting closure.
			if job := q.pop(); job != nil {
				return job, nil
			}
			return nil, ErrQueueClosed
		case <-q.notify:
		}
	}
}

// Retry schedules another attempt with exponential backoff. Returns false
// when the attempt budget is exhausted and the job must be dropped.
func (q *WorkQueue) Retry(job *QueueJob) bool {
	job.Attempts++
	if job.Attempts >= q.maxAttempts {
		q.logger.Warn("Job retries exhausted, falling back to provisional result",
			zap.String("message_id", job.MessageID),
			zap.Int("attempts", job.Attempts))
		return false
	}

	backoff := q.baseBackoff << (job.Attempts - 1)
	q.logger.Debug("Requeueing job with backoff",
		zap.String("message_id", job.MessageID),
		zap.Int("attempt", job.Attempts),
		zap.Duration("backoff", backoff))

	time.AfterFunc(backoff, func() {
		if !q.Enqueue(job) {
			q.logger.Warn("Dropped retry for closed or full queue",
				zap.String("message_id", job.MessageID))
		}
	})
	return true
}

// Len reports the number of queued jobs.
func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Close stops the queue. Blocked Dequeue calls drain what is left and then
// return ErrQueueClosed.
func (q *WorkQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	q.mu.Unlock()
}

func (q *WorkQueue) pop() *QueueJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	for level := 0; level < len(q.levels); level++ {
		if len(q.levels[level]) == 0 {
			continue
		}
		job := q.levels[level][0]
		q.levels[level] = q.levels[level][1:]
		q.size--
		return job
	}
	return nil
}

// levelFor converts a priority into a slice index; highest priority drains
// first.
func (q *WorkQueue) levelFor(p JobPriority) int {
	switch p {
	case JobPriorityHigh:
		return 0
	case JobPriorityMedium:
		return 1
	default:
		return 2
	}
}
