package escalate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/meridian-data/crossmatch/internal/match"
	"github.com/meridian-data/crossmatch/internal/model"
	"github.com/meridian-data/crossmatch/internal/service"
)

// Reducer applies oracle responses back onto queued match results. When the
// oracle fails, for any reason, it falls back to a local heuristic ranking so
// a match run always completes with suggestions for every escalated record.
type Reducer struct {
	store        ResultStore
	ranker       Ranker
	runID        string
	queryMap     model.FieldMapping
	candidateMap model.FieldMapping
	topN         int

	loadOnce   sync.Once
	loadErr    error
	queries    map[int]model.Record
	candidates []model.Record
}

// NewReducer creates a reducer for one run.
func NewReducer(store ResultStore, ranker Ranker, runID string, queryMap, candidateMap model.FieldMapping, topN int) *Reducer {
	if topN <= 0 {
		topN = 5
	}
	return &Reducer{
		store:        store,
		ranker:       ranker,
		runID:        runID,
		queryMap:     queryMap,
		candidateMap: candidateMap,
		topN:         topN,
	}
}

// CredentialCount exposes the ranker's configured credential count.
func (r *Reducer) CredentialCount() int {
	return r.ranker.CredentialCount()
}

// Process handles one escalation task: rank, persist, and auto-approve when
// the top suggestion carries maximum confidence. This is the only place a
// confidence value changes a decision without human action.
func (r *Reducer) Process(ctx context.Context, task model.EscalationTask) error {
	if err := r.load(ctx); err != nil {
		return err
	}

	query, ok := r.queries[task.QueryIndex]
	if !ok {
		return fmt.Errorf("query record %d not found in run %s", task.QueryIndex, r.runID)
	}

	suggestions, err := r.ranker.RankCandidates(ctx, query, r.candidates, r.topN)
	if err != nil || len(suggestions) == 0 {
		if err != nil {
			slog.Warn("Oracle unavailable, falling back to heuristic ranking",
				"run_id", r.runID,
				"query_index", task.QueryIndex,
				"error", err)
		}
		suggestions = r.heuristicRank(query)
	}

	suggestions.Sort()
	if err := r.store.SaveSuggestions(ctx, r.runID, task.QueryIndex, suggestions); err != nil {
		return fmt.Errorf("failed to persist suggestions: %w", err)
	}

	if top := suggestions.Top(); top != nil && top.Confidence >= 1.0 {
		slog.Info("Auto-approving via maximum-confidence suggestion",
			"run_id", r.runID,
			"query_index", task.QueryIndex,
			"candidate_index", top.CandidateIndex)
		if err := r.store.UpdateDecision(ctx, r.runID, task.QueryIndex, model.DecisionAIApproved, top.CandidateFields); err != nil {
			return fmt.Errorf("failed to auto-approve result: %w", err)
		}
	}

	return nil
}

// load materializes both datasets once per reducer lifetime.
func (r *Reducer) load(ctx context.Context) error {
	r.loadOnce.Do(func() {
		queries, err := r.store.GetDataset(ctx, r.runID, service.DatasetQuery)
		if err != nil {
			r.loadErr = fmt.Errorf("failed to load query dataset: %w", err)
			return
		}
		r.queries = make(map[int]model.Record, len(queries))
		for _, q := range queries {
			r.queries[q.Index] = q
		}

		r.candidates, err = r.store.GetDataset(ctx, r.runID, service.DatasetCandidate)
		if err != nil {
			r.loadErr = fmt.Errorf("failed to load candidate dataset: %w", err)
		}
	})
	return r.loadErr
}

// heuristicRank orders candidates by field-scorer similarity and assigns
// synthetic decreasing confidences. The top confidence stays below 1.0 so the
// heuristic can never trigger the auto-approval shortcut.
func (r *Reducer) heuristicRank(query model.Record) model.Suggestions {
	queryVendor := match.Normalize(query.Get(r.queryMap.Vendor()))
	queryProduct := match.Normalize(query.Get(r.queryMap.Product()))

	scored := make(model.Suggestions, 0, len(r.candidates))
	for _, c := range r.candidates {
		vendorScore := match.Score(queryVendor, match.Normalize(c.Get(r.candidateMap.Vendor())))
		productScore := match.Score(queryProduct, match.Normalize(c.Get(r.candidateMap.Product())))
		similarity := (vendorScore + productScore) / 2

		scored = append(scored, model.Suggestion{
			CandidateIndex:  c.Index,
			CandidateFields: c.Fields,
			Confidence:      float64(similarity) / 100.0,
			Rationale:       fmt.Sprintf("Heuristic fallback: field similarity %d", similarity),
			Heuristic:       true,
		})
	}

	top := scored.TopN(r.topN)
	for i := range top {
		confidence := 0.9 - 0.1*float64(i)
		if confidence < 0.05 {
			confidence = 0.05
		}
		top[i].Confidence = confidence
	}
	return top
}
