package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	category, err := ParseCategory("  Billing ")
	require.NoError(t, err)
	assert.Equal(t, CategoryBilling, category)

	_, err = ParseCategory("finance")
	assert.Error(t, err)

	_, err = ParseCategory("")
	assert.Error(t, err)
}

func TestParsePriority(t *testing.T) {
	priority, err := ParsePriority("HIGH")
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, priority)

	_, err = ParsePriority("urgent")
	assert.Error(t, err)
}

func TestParseSentiment(t *testing.T) {
	sentiment, err := ParseSentiment("negative")
	require.NoError(t, err)
	assert.Equal(t, SentimentNegative, sentiment)

	_, err = ParseSentiment("meh")
	assert.Error(t, err)
}

func TestSourceRankOrdering(t *testing.T) {
	assert.Greater(t, SourceRank(SourceManual), SourceRank(SourceLLM))
	assert.Greater(t, SourceRank(SourceLLM), SourceRank(SourceML))
	assert.Greater(t, SourceRank(SourceML), SourceRank(SourceRule))
	assert.Equal(t, 0, SourceRank(Source("unknown")))
}

func TestNewClassificationResultValidatesEnums(t *testing.T) {
	result, err := NewClassificationResult("msg-1", "work", "medium", "neutral",
		[]string{"projects", "deadlines"}, true, "status update")
	require.NoError(t, err)
	assert.Equal(t, CategoryWork, result.Category)
	assert.Equal(t, PriorityMedium, result.Priority)
	assert.Equal(t, SentimentNeutral, result.Sentiment)
	assert.True(t, result.ActionRequired)
	assert.False(t, result.ClassifiedAt.IsZero())

	_, err = NewClassificationResult("msg-1", "nonsense", "medium", "neutral", nil, false, "")
	assert.Error(t, err)
	_, err = NewClassificationResult("msg-1", "work", "sometime", "neutral", nil, false, "")
	assert.Error(t, err)
	_, err = NewClassificationResult("msg-1", "work", "medium", "angry", nil, false, "")
	assert.Error(t, err)
}

func TestNewClassificationResultTruncatesTopics(t *testing.T) {
	result, err := NewClassificationResult("msg-1", "work", "low", "neutral",
		[]string{"a", "b", "c", "d", "e"}, false, "")
	require.NoError(t, err)
	assert.Len(t, result.Topics, MaxTopics)
}
