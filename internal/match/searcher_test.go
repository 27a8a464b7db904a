package match

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-data/crossmatch/internal/common"
	"github.com/meridian-data/crossmatch/internal/model"
)

func TestSearcherEmptyDatasets(t *testing.T) {
	s := NewSearcher(testMapping, testMapping, model.DefaultThresholds())
	record := testRecord(0, "Acme", "Widget", "", "", "")

	t.Run("no queries", func(t *testing.T) {
		_, _, err := s.Run(context.Background(), "run-1", nil, []model.Record{record})
		require.ErrorIs(t, err, common.ErrNoQueries)
	})

	t.Run("no candidates", func(t *testing.T) {
		_, _, err := s.Run(context.Background(), "run-1", []model.Record{record}, nil)
		require.ErrorIs(t, err, common.ErrNoCandidates)
	})
}

func TestSearcherPicksBestCandidate(t *testing.T) {
	s := NewSearcher(testMapping, testMapping, model.DefaultThresholds())

	queries := []model.Record{
		testRecord(0, "Acme Inc", "Widget 500", "", "US", "en"),
	}
	candidates := []model.Record{
		testRecord(0, "Unrelated Corp", "Gizmo 9", "", "US", "en"),
		testRecord(1, "Acme Inc", "Widget 500", "", "US", "en"),
		testRecord(2, "Acme Industries", "Widget 501", "", "US", "en"),
	}

	results, stats, err := s.Run(context.Background(), "run-1", queries, candidates)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.True(t, results[0].HasCandidate)
	assert.Equal(t, 1, results[0].CandidateIndex)
	assert.Equal(t, model.DecisionAutoApproved, results[0].Outcome.Decision)
	assert.Equal(t, 1, stats.AutoApproved)
	assert.Equal(t, 1, stats.TotalQueries)
}

func TestSearcherTieBreakPrefersMarketAndLanguage(t *testing.T) {
	s := NewSearcher(testMapping, testMapping, model.DefaultThresholds())

	queries := []model.Record{
		testRecord(0, "Acme Inc", "Widget 500", "", "US", "en"),
	}
	// Both candidates score identically; the blank-market one comes first in
	// dataset order, but the aligned one must win the tie.
	candidates := []model.Record{
		testRecord(0, "Acme Inc", "Widget 500", "", "", ""),
		testRecord(1, "Acme Inc", "Widget 500", "", "US", "en"),
	}

	results, _, err := s.Run(context.Background(), "run-1", queries, candidates)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, 1, results[0].CandidateIndex)
}

func TestSearcherTieBreakLanguageSecondary(t *testing.T) {
	s := NewSearcher(testMapping, testMapping, model.DefaultThresholds())

	queries := []model.Record{
		testRecord(0, "Acme Inc", "Widget 500", "", "", "en"),
	}
	// Markets are all blank so the first key ties; language decides.
	candidates := []model.Record{
		testRecord(0, "Acme Inc", "Widget 500", "", "", ""),
		testRecord(1, "Acme Inc", "Widget 500", "", "", "en"),
	}

	results, _, err := s.Run(context.Background(), "run-1", queries, candidates)
	require.NoError(t, err)
	require.Equal(t, 1, results[0].CandidateIndex)
}

func TestSearcherSkipsBrokenPairs(t *testing.T) {
	s := NewSearcher(testMapping, testMapping, model.DefaultThresholds())

	queries := []model.Record{
		testRecord(0, "Acme Inc", "Widget 500", "", "US", "en"),
	}
	broken := model.Record{
		Index:   0,
		Columns: []string{"vendor"},
		Fields:  map[string]string{"vendor": "Acme Inc"},
	}
	candidates := []model.Record{
		broken,
		testRecord(1, "Acme Inc", "Widget 500", "", "US", "en"),
	}

	results, stats, err := s.Run(context.Background(), "run-1", queries, candidates)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, 1, results[0].CandidateIndex)
	assert.Equal(t, 1, stats.SkippedPairs)
}

func TestSearcherAllPairsBroken(t *testing.T) {
	s := NewSearcher(testMapping, testMapping, model.DefaultThresholds())

	queries := []model.Record{
		testRecord(0, "Acme Inc", "Widget 500", "", "US", "en"),
	}
	candidates := []model.Record{
		{Index: 0, Columns: []string{"vendor"}, Fields: map[string]string{"vendor": "x"}},
	}

	results, stats, err := s.Run(context.Background(), "run-1", queries, candidates)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.False(t, results[0].HasCandidate)
	assert.Equal(t, 1, stats.SkippedPairs)
}

func TestSearcherQueuesPendingForEscalation(t *testing.T) {
	s := NewSearcher(testMapping, testMapping, model.DefaultThresholds())

	queries := []model.Record{
		testRecord(0, "FlowTech", "Pump 120", "", "US", "en"),
	}
	candidates := []model.Record{
		testRecord(0, "FlowTech", "Pump 240", "", "US", "en"),
	}

	results, stats, err := s.Run(context.Background(), "run-1", queries, candidates)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, model.DecisionPending, results[0].Outcome.Decision)
	assert.Equal(t, model.EscalationQueued, results[0].Escalation)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Escalated)
}

func TestSearcherStats(t *testing.T) {
	s := NewSearcher(testMapping, testMapping, model.DefaultThresholds())

	queries := []model.Record{
		testRecord(0, "Acme Inc", "Widget 500", "", "US", "en"),  // auto approved
		testRecord(1, "FlowTech", "Pump 120", "", "US", "en"),    // pending
		testRecord(2, "Q", "Z", "", "US", "en"),                  // auto not approved
		testRecord(3, "Acme Inc", "Widget 500", "", "DE", "en"),  // market veto
	}
	candidates := []model.Record{
		testRecord(0, "Acme Inc", "Widget 500", "", "US", "en"),
		testRecord(1, "FlowTech", "Pump 240", "", "US", "en"),
	}

	results, stats, err := s.Run(context.Background(), "run-1", queries, candidates)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, 4, stats.TotalQueries)
	assert.Equal(t, 1, stats.AutoApproved)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.AutoNotApproved)
	assert.Equal(t, 1, stats.NotApproved)
	assert.Positive(t, stats.Duration)
}

func TestSearcherProgressCallback(t *testing.T) {
	s := NewSearcher(testMapping, testMapping, model.DefaultThresholds())

	var calls []int
	s.Progress = func(done int) { calls = append(calls, done) }

	queries := []model.Record{
		testRecord(0, "Acme", "Widget", "", "", ""),
		testRecord(1, "Acme", "Widget", "", "", ""),
	}
	candidates := []model.Record{
		testRecord(0, "Acme", "Widget", "", "", ""),
	}

	_, _, err := s.Run(context.Background(), "run-1", queries, candidates)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, calls)
}

func TestSearcherContextCancellation(t *testing.T) {
	s := NewSearcher(testMapping, testMapping, model.DefaultThresholds())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	queries := []model.Record{testRecord(0, "Acme", "Widget", "", "", "")}
	candidates := []model.Record{testRecord(0, "Acme", "Widget", "", "", "")}

	_, _, err := s.Run(ctx, "run-1", queries, candidates)
	require.ErrorIs(t, err, context.Canceled)
}
