package escalate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-data/crossmatch/internal/model"
)

func reducerTask(queryIndex int) model.EscalationTask {
	return model.EscalationTask{
		ID:         int64(queryIndex + 1),
		RunID:      "run-1",
		QueryIndex: queryIndex,
		Status:     model.TaskProcessing,
	}
}

func TestReducerPersistsOracleSuggestions(t *testing.T) {
	results := newFakeResultStore(escalationRecords(1), escalationRecords(3))
	ranker := &fakeRanker{
		suggestions: model.Suggestions{
			{CandidateIndex: 2, Confidence: 0.6, Rationale: "decent"},
			{CandidateIndex: 1, Confidence: 0.8, Rationale: "strong"},
		},
	}
	reducer := NewReducer(results, ranker, "run-1", testFieldMapping(), testFieldMapping(), 5)

	require.NoError(t, reducer.Process(context.Background(), reducerTask(0)))

	saved := results.suggestions[0]
	require.Len(t, saved, 2)
	assert.Equal(t, 1, saved[0].CandidateIndex, "stored highest confidence first")
	assert.Equal(t, 0.8, saved[0].Confidence)
	assert.Empty(t, results.decisions, "sub-maximum confidence never changes a decision")
}

func TestReducerMaxConfidenceAutoApproves(t *testing.T) {
	results := newFakeResultStore(escalationRecords(1), escalationRecords(3))
	fields := map[string]string{"vendor": "Acme", "product": "Widget"}
	ranker := &fakeRanker{
		suggestions: model.Suggestions{
			{CandidateIndex: 1, Confidence: 1.0, Rationale: "certain", CandidateFields: fields},
			{CandidateIndex: 2, Confidence: 0.7},
		},
	}
	reducer := NewReducer(results, ranker, "run-1", testFieldMapping(), testFieldMapping(), 5)

	require.NoError(t, reducer.Process(context.Background(), reducerTask(0)))

	assert.Equal(t, model.DecisionAIApproved, results.decisions[0])
	assert.Equal(t, fields, results.fields[0])
}

func TestReducerBelowMaxConfidenceLeavesDecisionAlone(t *testing.T) {
	results := newFakeResultStore(escalationRecords(1), escalationRecords(3))
	ranker := &fakeRanker{
		suggestions: model.Suggestions{
			{CandidateIndex: 1, Confidence: 0.99},
		},
	}
	reducer := NewReducer(results, ranker, "run-1", testFieldMapping(), testFieldMapping(), 5)

	require.NoError(t, reducer.Process(context.Background(), reducerTask(0)))
	assert.Empty(t, results.decisions)
}

func TestReducerHeuristicFallback(t *testing.T) {
	query := model.NewRecord(0, []string{"vendor", "product"}, []string{"Acme Inc", "Widget 500"})
	candidates := []model.Record{
		model.NewRecord(0, []string{"vendor", "product"}, []string{"Qqq Zzz", "Xxx"}),
		model.NewRecord(1, []string{"vendor", "product"}, []string{"Acme Inc", "Widget 500"}),
		model.NewRecord(2, []string{"vendor", "product"}, []string{"Acme Inc", "Widget 900"}),
	}

	t.Run("on oracle error", func(t *testing.T) {
		results := newFakeResultStore([]model.Record{query}, candidates)
		ranker := &fakeRanker{err: errors.New("oracle down")}
		reducer := NewReducer(results, ranker, "run-1", testFieldMapping(), testFieldMapping(), 5)

		require.NoError(t, reducer.Process(context.Background(), reducerTask(0)))

		saved := results.suggestions[0]
		require.Len(t, saved, 3)
		assert.Equal(t, 1, saved[0].CandidateIndex, "best field similarity ranks first")
		assert.Equal(t, 0.9, saved[0].Confidence, "heuristic confidence starts at 0.9")
		for _, s := range saved {
			assert.True(t, s.Heuristic)
			assert.Less(t, s.Confidence, 1.0, "heuristic must never auto-approve")
		}
		assert.Empty(t, results.decisions)
	})

	t.Run("on empty oracle response", func(t *testing.T) {
		results := newFakeResultStore([]model.Record{query}, candidates)
		ranker := &fakeRanker{}
		reducer := NewReducer(results, ranker, "run-1", testFieldMapping(), testFieldMapping(), 5)

		require.NoError(t, reducer.Process(context.Background(), reducerTask(0)))
		require.Len(t, results.suggestions[0], 3)
		assert.True(t, results.suggestions[0][0].Heuristic)
	})

	t.Run("respects top-n and confidence floor", func(t *testing.T) {
		many := make([]model.Record, 12)
		for i := range many {
			many[i] = model.NewRecord(i, []string{"vendor", "product"}, []string{"Acme Inc", "Widget 500"})
		}
		results := newFakeResultStore([]model.Record{query}, many)
		ranker := &fakeRanker{err: errors.New("oracle down")}
		reducer := NewReducer(results, ranker, "run-1", testFieldMapping(), testFieldMapping(), 10)

		require.NoError(t, reducer.Process(context.Background(), reducerTask(0)))

		saved := results.suggestions[0]
		require.Len(t, saved, 10)
		assert.Equal(t, 0.05, saved[9].Confidence, "confidence floor holds at deep ranks")
	})
}

func TestReducerUnknownQueryIndex(t *testing.T) {
	results := newFakeResultStore(escalationRecords(1), escalationRecords(1))
	ranker := &fakeRanker{}
	reducer := NewReducer(results, ranker, "run-1", testFieldMapping(), testFieldMapping(), 5)

	err := reducer.Process(context.Background(), reducerTask(42))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query record 42 not found")
}

func TestReducerDatasetLoadErrorIsSticky(t *testing.T) {
	results := newFakeResultStore(escalationRecords(1), escalationRecords(1))
	results.datasetErr = errors.New("disk gone")
	ranker := &fakeRanker{}
	reducer := NewReducer(results, ranker, "run-1", testFieldMapping(), testFieldMapping(), 5)

	err := reducer.Process(context.Background(), reducerTask(0))
	require.Error(t, err)

	// The failed load is not retried; the same error comes back.
	again := reducer.Process(context.Background(), reducerTask(0))
	require.Error(t, again)
	assert.Equal(t, err.Error(), again.Error())
	assert.Zero(t, ranker.callCount(), "no oracle call without datasets")
}
