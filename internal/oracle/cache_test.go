package oracle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-data/crossmatch/internal/model"
)

func TestRankingCacheSetGet(t *testing.T) {
	cache := newRankingCache(time.Minute)
	defer cache.Close()

	suggestions := model.Suggestions{
		{CandidateIndex: 3, Confidence: 0.8, Rationale: "close"},
	}
	cache.set("key-1", suggestions)

	got, found := cache.get("key-1")
	require.True(t, found)
	assert.Equal(t, suggestions, got)
	assert.Equal(t, 1, cache.size())
}

func TestRankingCacheMiss(t *testing.T) {
	cache := newRankingCache(time.Minute)
	defer cache.Close()

	_, found := cache.get("absent")
	assert.False(t, found)
}

func TestRankingCacheExpiry(t *testing.T) {
	cache := newRankingCache(10 * time.Millisecond)
	defer cache.Close()

	cache.set("key-1", model.Suggestions{{CandidateIndex: 0, Confidence: 0.5}})
	time.Sleep(20 * time.Millisecond)

	_, found := cache.get("key-1")
	assert.False(t, found, "entries expire after the TTL")
}

func TestRankingCacheOverwrite(t *testing.T) {
	cache := newRankingCache(time.Minute)
	defer cache.Close()

	cache.set("key-1", model.Suggestions{{CandidateIndex: 0, Confidence: 0.5}})
	cache.set("key-1", model.Suggestions{{CandidateIndex: 9, Confidence: 0.9}})

	got, found := cache.get("key-1")
	require.True(t, found)
	require.Len(t, got, 1)
	assert.Equal(t, 9, got[0].CandidateIndex)
	assert.Equal(t, 1, cache.size())
}
