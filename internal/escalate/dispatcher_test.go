package escalate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-data/crossmatch/internal/model"
	"github.com/meridian-data/crossmatch/internal/service"
)

type fakeTaskStore struct {
	mu        sync.Mutex
	queued    []model.EscalationTask
	claims    int
	completed map[int64]model.TaskStatus
	reverted  []int64
}

func newFakeTaskStore(tasks []model.EscalationTask) *fakeTaskStore {
	return &fakeTaskStore{
		queued:    tasks,
		completed: make(map[int64]model.TaskStatus),
	}
}

func (s *fakeTaskStore) ClaimEscalationTasks(_ context.Context, _ string, limit int) ([]model.EscalationTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims++

	n := limit
	if n > len(s.queued) {
		n = len(s.queued)
	}
	batch := make([]model.EscalationTask, n)
	copy(batch, s.queued[:n])
	s.queued = s.queued[n:]
	return batch, nil
}

func (s *fakeTaskStore) CompleteEscalationTask(_ context.Context, taskID int64, status model.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed[taskID] = status
	return nil
}

func (s *fakeTaskStore) RevertEscalationTasks(_ context.Context, taskIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reverted = append(s.reverted, taskIDs...)
	for _, id := range taskIDs {
		s.queued = append(s.queued, model.EscalationTask{ID: id, QueryIndex: int(id - 1), Status: model.TaskQueued})
	}
	return nil
}

func (s *fakeTaskStore) claimCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claims
}

func (s *fakeTaskStore) completedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed)
}

func (s *fakeTaskStore) revertedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reverted)
}

type fakeResultStore struct {
	mu          sync.Mutex
	queries     []model.Record
	candidates  []model.Record
	suggestions map[int]model.Suggestions
	decisions   map[int]model.Decision
	fields      map[int]map[string]string
	datasetErr  error
}

func newFakeResultStore(queries, candidates []model.Record) *fakeResultStore {
	return &fakeResultStore{
		queries:     queries,
		candidates:  candidates,
		suggestions: make(map[int]model.Suggestions),
		decisions:   make(map[int]model.Decision),
		fields:      make(map[int]map[string]string),
	}
}

func (s *fakeResultStore) GetDataset(_ context.Context, _ string, kind service.DatasetKind) ([]model.Record, error) {
	if s.datasetErr != nil {
		return nil, s.datasetErr
	}
	if kind == service.DatasetQuery {
		return s.queries, nil
	}
	return s.candidates, nil
}

func (s *fakeResultStore) SaveSuggestions(_ context.Context, _ string, queryIndex int, suggestions model.Suggestions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suggestions[queryIndex] = suggestions
	return nil
}

func (s *fakeResultStore) UpdateDecision(_ context.Context, _ string, queryIndex int, decision model.Decision, candidateFields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions[queryIndex] = decision
	s.fields[queryIndex] = candidateFields
	return nil
}

type fakeRanker struct {
	mu          sync.Mutex
	calls       int
	credentials int
	suggestions model.Suggestions
	err         error
	delay       time.Duration
	onRank      func()
}

func (r *fakeRanker) RankCandidates(_ context.Context, _ model.Record, _ []model.Record, _ int) (model.Suggestions, error) {
	r.mu.Lock()
	r.calls++
	hook := r.onRank
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.err != nil {
		return nil, r.err
	}
	out := make(model.Suggestions, len(r.suggestions))
	copy(out, r.suggestions)
	return out, nil
}

func (r *fakeRanker) CredentialCount() int {
	if r.credentials <= 0 {
		return 1
	}
	return r.credentials
}

func (r *fakeRanker) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func escalationRecords(n int) []model.Record {
	records := make([]model.Record, n)
	for i := range records {
		records[i] = model.NewRecord(i,
			[]string{"vendor", "product"},
			[]string{"Acme", "Widget"})
	}
	return records
}

func escalationTasks(n int) []model.EscalationTask {
	tasks := make([]model.EscalationTask, n)
	for i := range tasks {
		tasks[i] = model.EscalationTask{
			ID:         int64(i + 1),
			RunID:      "run-1",
			QueryIndex: i,
			Status:     model.TaskQueued,
		}
	}
	return tasks
}

func testDispatcher(store *fakeTaskStore, results *fakeResultStore, ranker *fakeRanker, cfg DispatcherConfig) (*Dispatcher, *DispatcherState) {
	reducer := NewReducer(results, ranker, "run-1", testFieldMapping(), testFieldMapping(), 5)
	state := NewDispatcherState()
	state.pollInterval = 5 * time.Millisecond
	return NewDispatcher(store, reducer, state, "run-1", cfg), state
}

func testFieldMapping() model.FieldMapping {
	return model.FieldMapping{
		model.RoleVendor:  "vendor",
		model.RoleProduct: "product",
	}
}

func TestDispatcherDrainsQueue(t *testing.T) {
	store := newFakeTaskStore(escalationTasks(25))
	results := newFakeResultStore(escalationRecords(25), escalationRecords(3))
	ranker := &fakeRanker{
		credentials: 2,
		suggestions: model.Suggestions{
			{CandidateIndex: 0, Confidence: 0.5, Rationale: "close match"},
		},
	}

	cfg := DispatcherConfig{BatchSize: 10, WorkerCap: 8, InterBatchDelay: time.Millisecond}
	dispatcher, _ := testDispatcher(store, results, ranker, cfg)

	require.NoError(t, dispatcher.Run(context.Background()))

	assert.Equal(t, 25, store.completedCount())
	for id, status := range store.completed {
		assert.Equal(t, model.TaskCompleted, status, "task %d", id)
	}
	// Three full pulls plus the empty one that terminates the loop.
	assert.Equal(t, 4, store.claimCount())
	assert.Equal(t, 25, ranker.callCount())
}

func TestDispatcherPauseBlocksClaiming(t *testing.T) {
	store := newFakeTaskStore(escalationTasks(5))
	results := newFakeResultStore(escalationRecords(5), escalationRecords(2))
	ranker := &fakeRanker{suggestions: model.Suggestions{{CandidateIndex: 0, Confidence: 0.4}}}

	cfg := DispatcherConfig{BatchSize: 10, WorkerCap: 8, InterBatchDelay: time.Millisecond}
	dispatcher, state := testDispatcher(store, results, ranker, cfg)
	state.Pause()

	done := make(chan error, 1)
	go func() { done <- dispatcher.Run(context.Background()) }()

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, store.claimCount(), "no claims while paused")

	state.Resume()
	require.NoError(t, <-done)
	assert.Equal(t, 5, store.completedCount())
}

func TestDispatcherMidBatchPauseRevertsUnstartedTasks(t *testing.T) {
	store := newFakeTaskStore(escalationTasks(10))
	results := newFakeResultStore(escalationRecords(10), escalationRecords(2))

	ranker := &fakeRanker{
		credentials: 1, // two workers
		delay:       20 * time.Millisecond,
		suggestions: model.Suggestions{{CandidateIndex: 0, Confidence: 0.4}},
	}

	cfg := DispatcherConfig{BatchSize: 10, WorkerCap: 8, InterBatchDelay: time.Millisecond}
	dispatcher, state := testDispatcher(store, results, ranker, cfg)
	ranker.onRank = func() { state.Pause() }

	require.NoError(t, dispatcher.Run(context.Background()), "a mid-batch pause stops the loop cleanly")

	reverted := store.revertedCount()
	assert.Positive(t, reverted, "unstarted tasks return to the queue")
	assert.Equal(t, 10, store.completedCount()+reverted, "every claimed task is either finished or reverted")

	// After resuming, a fresh drive finishes the remainder.
	ranker.onRank = nil
	state.Resume()
	require.NoError(t, dispatcher.Run(context.Background()))
	assert.Equal(t, 10, store.completedCount())
}

func TestDispatcherContextCancellationWhilePaused(t *testing.T) {
	store := newFakeTaskStore(escalationTasks(3))
	results := newFakeResultStore(escalationRecords(3), escalationRecords(1))
	ranker := &fakeRanker{suggestions: model.Suggestions{{CandidateIndex: 0, Confidence: 0.4}}}

	cfg := DispatcherConfig{BatchSize: 10, WorkerCap: 8, InterBatchDelay: time.Millisecond}
	dispatcher, state := testDispatcher(store, results, ranker, cfg)
	state.Pause()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dispatcher.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)
	assert.Zero(t, store.claimCount())
}

func TestDispatcherRecordsTaskFailures(t *testing.T) {
	store := newFakeTaskStore(escalationTasks(2))
	results := newFakeResultStore(escalationRecords(2), escalationRecords(1))
	ranker := &fakeRanker{err: errors.New("oracle down")}
	// An oracle error falls back to the heuristic, so the task still
	// completes. A missing query record is a genuine task failure.
	store.queued[1].QueryIndex = 99

	cfg := DispatcherConfig{BatchSize: 10, WorkerCap: 8, InterBatchDelay: time.Millisecond}
	dispatcher, _ := testDispatcher(store, results, ranker, cfg)

	require.NoError(t, dispatcher.Run(context.Background()))

	assert.Equal(t, model.TaskCompleted, store.completed[1])
	assert.Equal(t, model.TaskFailed, store.completed[2])
}

func TestDispatcherWorkerCount(t *testing.T) {
	store := newFakeTaskStore(nil)
	results := newFakeResultStore(nil, nil)

	tests := []struct {
		name        string
		credentials int
		pending     int
		want        int
	}{
		{name: "limited by credentials", credentials: 2, pending: 10, want: 4},
		{name: "limited by hard cap", credentials: 10, pending: 20, want: 8},
		{name: "limited by pending", credentials: 4, pending: 1, want: 1},
		{name: "at least one worker", credentials: 1, pending: 0, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranker := &fakeRanker{credentials: tt.credentials}
			cfg := DispatcherConfig{BatchSize: 10, WorkerCap: 8, InterBatchDelay: time.Millisecond}
			dispatcher, _ := testDispatcher(store, results, ranker, cfg)
			assert.Equal(t, tt.want, dispatcher.workerCount(tt.pending))
		})
	}
}
