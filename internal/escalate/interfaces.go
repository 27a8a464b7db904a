package escalate

import (
	"context"

	"github.com/meridian-data/crossmatch/internal/model"
	"github.com/meridian-data/crossmatch/internal/service"
)

// TaskStore is the persistence surface the dispatcher drains. Claiming must
// be atomic: no two drivers may receive the same queued task.
type TaskStore interface {
	ClaimEscalationTasks(ctx context.Context, runID string, limit int) ([]model.EscalationTask, error)
	CompleteEscalationTask(ctx context.Context, taskID int64, status model.TaskStatus) error
	RevertEscalationTasks(ctx context.Context, taskIDs []int64) error
}

// ResultStore is what the reducer needs to read records and write decisions.
type ResultStore interface {
	GetDataset(ctx context.Context, runID string, kind service.DatasetKind) ([]model.Record, error)
	SaveSuggestions(ctx context.Context, runID string, queryIndex int, suggestions model.Suggestions) error
	UpdateDecision(ctx context.Context, runID string, queryIndex int, decision model.Decision, candidateFields map[string]string) error
}

// Ranker asks the oracle for ranked candidate suggestions. Implementations
// rotate credentials internally; CredentialCount exposes how many are
// configured so the dispatcher can size its worker pool.
type Ranker interface {
	RankCandidates(ctx context.Context, query model.Record, candidates []model.Record, n int) (model.Suggestions, error)
	CredentialCount() int
}
