package match

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/meridian-data/crossmatch/internal/common"
	"github.com/meridian-data/crossmatch/internal/model"
	"github.com/meridian-data/crossmatch/internal/service"
)

// Searcher performs the all-pairs best-match scan for one run. It is
// single-threaded on purpose: the per-query candidate ordering carries the
// tie-break semantics, and results must be reproducible byte for byte.
type Searcher struct {
	queryMap     model.FieldMapping
	candidateMap model.FieldMapping
	thresholds   model.Thresholds
	// Progress, when set, is called once per completed query record.
	Progress func(done int)
}

// NewSearcher creates a searcher for the given mappings and thresholds.
func NewSearcher(queryMap, candidateMap model.FieldMapping, th model.Thresholds) *Searcher {
	return &Searcher{
		queryMap:     queryMap,
		candidateMap: candidateMap,
		thresholds:   th,
	}
}

// Run matches every query record against all candidates and returns one
// MatchResult per query record. Candidates are fully materialized and
// rescanned per query. Pairs that fail to evaluate are skipped and logged;
// empty datasets are a hard error.
func (s *Searcher) Run(ctx context.Context, runID string, queries, candidates []model.Record) ([]model.MatchResult, service.RunStats, error) {
	stats := service.RunStats{TotalQueries: len(queries)}

	if len(queries) == 0 {
		return nil, stats, common.ErrNoQueries
	}
	if len(candidates) == 0 {
		return nil, stats, common.ErrNoCandidates
	}

	start := time.Now()
	results := make([]model.MatchResult, 0, len(queries))
	order := make([]int, len(candidates))

	for qi, query := range queries {
		select {
		case <-ctx.Done():
			return nil, stats, ctx.Err()
		default:
		}

		s.sortCandidates(query, candidates, order)

		result := model.MatchResult{
			RunID:      runID,
			QueryIndex: query.Index,
			CreatedAt:  start,
		}

		bestScore := -1 << 31
		for _, ci := range order {
			outcome, err := Evaluate(query, candidates[ci], s.queryMap, s.candidateMap, s.thresholds)
			if err != nil {
				stats.SkippedPairs++
				slog.Warn("Skipping pair",
					"query_index", query.Index,
					"candidate_index", candidates[ci].Index,
					"error", err)
				continue
			}

			// Strictly greater: on ties the earliest candidate in the
			// per-query order wins, which favors market/language alignment.
			if outcome.Overall > bestScore {
				bestScore = outcome.Overall
				result.Outcome = outcome
				result.CandidateIndex = candidates[ci].Index
				result.HasCandidate = true
			}
		}

		if result.Outcome.Decision == model.DecisionPending {
			result.Escalation = model.EscalationQueued
		}

		switch result.Outcome.Decision {
		case model.DecisionAutoApproved:
			stats.AutoApproved++
		case model.DecisionAutoNotApproved:
			stats.AutoNotApproved++
		case model.DecisionNotApproved:
			stats.NotApproved++
		case model.DecisionPending:
			stats.Pending++
			stats.Escalated++
		}

		results = append(results, result)
		if s.Progress != nil {
			s.Progress(qi + 1)
		}
	}

	stats.Duration = time.Since(start)
	return results, stats, nil
}

// sortCandidates fills order with candidate positions sorted by the two-key
// tie-break: candidates sharing the query's market come first, then those
// sharing its language. The sort is stable, so original dataset order is
// preserved within each bucket.
func (s *Searcher) sortCandidates(query model.Record, candidates []model.Record, order []int) {
	queryMarket := query.Get(s.queryMap.Market())
	queryLanguage := query.Get(s.queryMap.Language())
	marketCol := s.candidateMap.Market()
	languageCol := s.candidateMap.Language()

	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := candidates[order[i]], candidates[order[j]]
		aMarket := !strings.EqualFold(a.Get(marketCol), queryMarket)
		bMarket := !strings.EqualFold(b.Get(marketCol), queryMarket)
		if aMarket != bMarket {
			return !aMarket
		}
		aLang := !strings.EqualFold(a.Get(languageCol), queryLanguage)
		bLang := !strings.EqualFold(b.Get(languageCol), queryLanguage)
		if aLang != bLang {
			return !aLang
		}
		return false
	})
}
