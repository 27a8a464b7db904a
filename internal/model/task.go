package model

import "time"

// TaskStatus is the lifecycle state of an escalation task.
type TaskStatus string

// Task status constants. Legal transitions: queued -> processing ->
// {completed | failed}, plus processing -> queued when a pause rolls back
// claimed-but-unstarted work.
const (
	TaskQueued     TaskStatus = "queued"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// EscalationTask is one queued oracle review for a query record.
// Consumed and mutated only by the escalation dispatcher.
type EscalationTask struct {
	CreatedAt  time.Time
	RunID      string
	Status     TaskStatus
	ID         int64
	QueryIndex int
}
