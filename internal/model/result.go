package model

import "time"

// EscalationStatus tracks whether a match result has been handed to the
// escalation queue.
type EscalationStatus string

// Escalation status constants.
const (
	EscalationNone      EscalationStatus = ""
	EscalationQueued    EscalationStatus = "queued"
	EscalationCompleted EscalationStatus = "completed"
	EscalationFailed    EscalationStatus = "failed"
)

// MatchResult is the decision record produced for one query record.
// Created by a match run; afterwards mutated only by approval, rejection and
// escalation actions, never by the matching core itself.
type MatchResult struct {
	CreatedAt       time.Time
	RunID           string
	Escalation      EscalationStatus
	Outcome         PairOutcome
	QueryIndex      int
	CandidateIndex  int
	HasCandidate    bool
	CandidateFields map[string]string
}
