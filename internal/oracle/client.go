// Package oracle talks to the external ranking assistant. It provides HTTP
// clients for the supported providers, a rate limiter, a suggestion cache,
// and the Ranker that ties them together with credential rotation.
package oracle

import (
	"context"
	"time"
)

// Client defines the interface for ranking providers.
type Client interface {
	Rank(ctx context.Context, prompt string) (RankResponse, error)
}

// RankResponse contains the oracle's ranked suggestions, best first.
type RankResponse struct {
	Items []RankedItem
}

// RankedItem is one entry of the oracle's ranking, referencing a candidate by
// the index it was presented under in the prompt.
type RankedItem struct {
	Rationale      string
	Confidence     float64
	CandidateIndex int
}

// Config holds configuration for the oracle ranker.
type Config struct {
	Provider    string
	APIKeys     []string
	Model       string
	MaxRetries  int
	RetryDelay  time.Duration
	CacheTTL    time.Duration
	RateLimit   int
	Temperature float64
	MaxTokens   int
	SampleSize  int
}
