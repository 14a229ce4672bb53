package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPriorityFor(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		receivedAt time.Time
		want       JobPriority
	}{
		{"fresh message", now.Add(-5 * time.Minute), JobPriorityHigh},
		{"just under an hour", now.Add(-59 * time.Minute), JobPriorityHigh},
		{"a few hours old", now.Add(-3 * time.Hour), JobPriorityMedium},
		{"just under a day", now.Add(-23 * time.Hour), JobPriorityMedium},
		{"days old", now.Add(-48 * time.Hour), JobPriorityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PriorityFor(tt.receivedAt, now))
		})
	}
}

func TestWorkQueueDequeuesHighestPriorityFirst(t *testing.T) {
	q := NewWorkQueue(10, 3, time.Millisecond, zap.NewNop())
	defer q.Close()

	require.True(t, q.Enqueue(&QueueJob{MessageID: "low", Priority: JobPriorityLow}))
	require.True(t, q.Enqueue(&QueueJob{MessageID: "high", Priority: JobPriorityHigh}))
	require.True(t, q.Enqueue(&QueueJob{MessageID: "medium", Priority: JobPriorityMedium}))

	var order []string
	for i := 0; i < 3; i++ {
		job, err := q.Dequeue(context.Background())
		require.NoError(t, err)
		order = append(order, job.MessageID)
	}
	assert.Equal(t, []string{"high", "medium", "low"}, order)
}

func TestWorkQueueEnqueueDropsWhenFull(t *testing.T) {
	q := NewWorkQueue(2, 3, time.Millisecond, zap.NewNop())
	defer q.Close()

	assert.True(t, q.Enqueue(&QueueJob{MessageID: "a"}))
	assert.True(t, q.Enqueue(&QueueJob{MessageID: "b"}))
	assert.False(t, q.Enqueue(&QueueJob{MessageID: "c"}))
	assert.Equal(t, 2, q.Len())
}

func TestWorkQueueDequeueHonorsContext(t *testing.T) {
	q := NewWorkQueue(10, 3, time.Millisecond, zap.NewNop())
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorkQueueCloseDrainsRemainingJobs(t *testing.T) {
	q := NewWorkQueue(10, 3, time.Millisecond, zap.NewNop())

	require.True(t, q.Enqueue(&QueueJob{MessageID: "pending"}))
	q.Close()

	job, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pending", job.MessageID)

	_, err = q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestWorkQueueEnqueueAfterClose(t *testing.T) {
	q := NewWorkQueue(10, 3, time.Millisecond, zap.NewNop())
	q.Close()
	assert.False(t, q.Enqueue(&QueueJob{MessageID: "late"}))
}

func TestWorkQueueRetryRequeuesWithBackoff(t *testing.T) {
	q := NewWorkQueue(10, 3, time.Millisecond, zap.NewNop())
	defer q.Close()

	job := &QueueJob{MessageID: "retry-me"}
	require.True(t, q.Retry(job))
	assert.Equal(t, 1, job.Attempts)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	requeued, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "retry-me", requeued.MessageID)
}

func TestWorkQueueRetryExhaustsAttemptBudget(t *testing.T) {
	q := NewWorkQueue(10, 2, time.Millisecond, zap.NewNop())
	defer q.Close()

	job := &QueueJob{MessageID: "doomed"}
	assert.True(t, q.Retry(job))
	assert.False(t, q.Retry(job))
	assert.Equal(t, 2, job.Attempts)
}
