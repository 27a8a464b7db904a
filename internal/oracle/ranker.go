package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/meridian-data/crossmatch/internal/common"
	"github.com/meridian-data/crossmatch/internal/match"
	"github.com/meridian-data/crossmatch/internal/model"
	"github.com/meridian-data/crossmatch/internal/service"
)

// Ranker asks the oracle to rank candidates for a query record. It rotates
// requests across the configured credentials, rate-limits and retries calls,
// and caches rankings per query record.
type Ranker struct {
	cache        *rankingCache
	limiter      *rateLimiter
	queryMap     model.FieldMapping
	candidateMap model.FieldMapping
	clients      []Client
	retryOpts    service.RetryOptions
	sampleSize   int
	counter      atomic.Uint64
}

// NewRanker creates a ranker with one client per configured API key.
func NewRanker(cfg Config, queryMap, candidateMap model.FieldMapping) (*Ranker, error) {
	if len(cfg.APIKeys) == 0 {
		return nil, fmt.Errorf("%w: at least one oracle API key is required", common.ErrMissingConfig)
	}

	clients := make([]Client, 0, len(cfg.APIKeys))
	for _, key := range cfg.APIKeys {
		var client Client
		var err error
		switch strings.ToLower(cfg.Provider) {
		case "openai":
			client, err = newOpenAIClient(cfg, key)
		case "anthropic", "":
			client, err = newAnthropicClient(cfg, key)
		default:
			return nil, fmt.Errorf("unsupported oracle provider: %s", cfg.Provider)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create oracle client: %w", err)
		}
		clients = append(clients, client)
	}

	retryOpts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}

	sampleSize := cfg.SampleSize
	if sampleSize <= 0 {
		sampleSize = 20
	}

	return &Ranker{
		clients:      clients,
		cache:        newRankingCache(cfg.CacheTTL),
		limiter:      newRateLimiter(cfg.RateLimit),
		retryOpts:    retryOpts,
		sampleSize:   sampleSize,
		queryMap:     queryMap,
		candidateMap: candidateMap,
	}, nil
}

// CredentialCount returns the number of configured credentials.
func (r *Ranker) CredentialCount() int {
	return len(r.clients)
}

// Close releases the ranker's background goroutines.
func (r *Ranker) Close() {
	r.cache.Close()
	r.limiter.Close()
}

// RankCandidates asks the oracle for the top n candidates for the query
// record. The candidate sample sent to the oracle is pre-ranked by field
// similarity and capped to keep the prompt bounded.
func (r *Ranker) RankCandidates(ctx context.Context, query model.Record, candidates []model.Record, n int) (model.Suggestions, error) {
	if len(candidates) == 0 {
		return nil, common.ErrNoCandidates
	}

	key := r.cacheKey(query, n)
	if cached, found := r.cache.get(key); found {
		slog.Debug("ranking cache hit", "query_index", query.Index)
		return cached, nil
	}

	sample := r.sampleCandidates(query, candidates)
	prompt := r.buildPrompt(query, sample, n)

	if err := r.limiter.wait(ctx); err != nil {
		return nil, err
	}

	// Rotate credentials with a simple modulo counter.
	client := r.clients[r.counter.Add(1)%uint64(len(r.clients))]

	var response RankResponse
	err := common.WithRetry(ctx, func() error {
		var rankErr error
		response, rankErr = client.Rank(ctx, prompt)
		return rankErr
	}, r.retryOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrOracleUnavailable, err)
	}

	suggestions := make(model.Suggestions, 0, len(response.Items))
	for _, item := range response.Items {
		if item.CandidateIndex >= len(sample) {
			continue
		}
		candidate := sample[item.CandidateIndex]
		suggestions = append(suggestions, model.Suggestion{
			CandidateIndex:  candidate.Index,
			CandidateFields: candidate.Fields,
			Confidence:      item.Confidence,
			Rationale:       item.Rationale,
		})
	}
	if len(suggestions) > n {
		suggestions = suggestions[:n]
	}

	r.cache.set(key, suggestions)
	return suggestions, nil
}

// sampleCandidates pre-ranks candidates by field similarity and keeps the top
// sampleSize, so the oracle sees the plausible ones without an unbounded
// prompt.
func (r *Ranker) sampleCandidates(query model.Record, candidates []model.Record) []model.Record {
	if len(candidates) <= r.sampleSize {
		return candidates
	}

	queryVendor := match.Normalize(query.Get(r.queryMap.Vendor()))
	queryProduct := match.Normalize(query.Get(r.queryMap.Product()))

	type scored struct {
		record model.Record
		score  int
	}
	all := make([]scored, len(candidates))
	for i, c := range candidates {
		vendorScore := match.Score(queryVendor, match.Normalize(c.Get(r.candidateMap.Vendor())))
		productScore := match.Score(queryProduct, match.Normalize(c.Get(r.candidateMap.Product())))
		all[i] = scored{record: c, score: vendorScore + productScore}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })

	sample := make([]model.Record, r.sampleSize)
	for i := range sample {
		sample[i] = all[i].record
	}
	return sample
}

// buildPrompt renders the query and the candidate sample. Candidates are
// numbered by their position in the sample; the oracle refers to them by that
// number.
func (r *Ranker) buildPrompt(query model.Record, sample []model.Record, n int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Query record:\n%s\n\nCandidate records:\n", r.describe(query, r.queryMap))
	for i, c := range sample {
		fmt.Fprintf(&b, "%d: %s\n", i, r.describe(c, r.candidateMap))
	}
	fmt.Fprintf(&b, "\nReturn the best %d candidates as a JSON array of {candidate_index, confidence, rationale}, best first.", n)

	return b.String()
}

func (r *Ranker) describe(record model.Record, mapping model.FieldMapping) string {
	parts := []string{
		"vendor=" + record.Get(mapping.Vendor()),
		"product=" + record.Get(mapping.Product()),
	}
	if sku := record.Get(mapping.SKU()); sku != "" {
		parts = append(parts, "sku="+sku)
	}
	if market := record.Get(mapping.Market()); market != "" {
		parts = append(parts, "market="+market)
	}
	if language := record.Get(mapping.Language()); language != "" {
		parts = append(parts, "language="+language)
	}
	return strings.Join(parts, " | ")
}

// cacheKey hashes the query's mapped fields and the requested count.
func (r *Ranker) cacheKey(query model.Record, n int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%d|%s|%s|%s|%s|%s",
		query.Index, n,
		query.Get(r.queryMap.Vendor()),
		query.Get(r.queryMap.Product()),
		query.Get(r.queryMap.SKU()),
		query.Get(r.queryMap.Market()),
		query.Get(r.queryMap.Language()))
	return hex.EncodeToString(h.Sum(nil))
}
