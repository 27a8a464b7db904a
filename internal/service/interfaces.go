// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/meridian-data/crossmatch/internal/model"
)

// DatasetKind distinguishes the two datasets of a match run.
type DatasetKind string

// Dataset kinds.
const (
	DatasetQuery     DatasetKind = "query"
	DatasetCandidate DatasetKind = "candidate"
)

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Dataset operations
	SaveDataset(ctx context.Context, runID string, kind DatasetKind, records []model.Record) error
	GetDataset(ctx context.Context, runID string, kind DatasetKind) ([]model.Record, error)

	// Match run operations
	CreateRun(ctx context.Context, runID string, queryMapping, candidateMapping model.FieldMapping) error
	GetRunMappings(ctx context.Context, runID string) (model.FieldMapping, model.FieldMapping, error)
	SaveMatchResults(ctx context.Context, results []model.MatchResult) error
	GetMatchResults(ctx context.Context, runID string) ([]model.MatchResult, error)
	GetMatchResult(ctx context.Context, runID string, queryIndex int) (*model.MatchResult, error)
	UpdateDecision(ctx context.Context, runID string, queryIndex int, decision model.Decision, candidateFields map[string]string) error

	// Escalation task operations
	CreateEscalationTasks(ctx context.Context, runID string, queryIndexes []int) error
	ClaimEscalationTasks(ctx context.Context, runID string, limit int) ([]model.EscalationTask, error)
	CompleteEscalationTask(ctx context.Context, taskID int64, status model.TaskStatus) error
	RevertEscalationTasks(ctx context.Context, taskIDs []int64) error
	CountQueuedTasks(ctx context.Context, runID string) (int, error)

	// Suggestion operations
	SaveSuggestions(ctx context.Context, runID string, queryIndex int, suggestions model.Suggestions) error
	GetSuggestions(ctx context.Context, runID string, queryIndex int) (model.Suggestions, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for transient failures.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// RunStats summarizes a completed match run.
type RunStats struct {
	Duration        time.Duration
	TotalQueries    int
	AutoApproved    int
	AutoNotApproved int
	NotApproved     int
	Pending         int
	Escalated       int
	SkippedPairs    int
}
