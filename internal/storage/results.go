package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/meridian-data/crossmatch/internal/common"
	"github.com/meridian-data/crossmatch/internal/model"
)

// SaveMatchResults persists the results of a match run in one transaction.
func (s *SQLiteStorage) SaveMatchResults(ctx context.Context, results []model.MatchResult) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("%w: results", ErrEmptySlice)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO match_results
		(run_id, query_index, candidate_index, vendor_score, product_score, overall, exact, decision, reason, escalation, candidate_fields)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range results {
		var candidateIndex any
		if r.HasCandidate {
			candidateIndex = r.CandidateIndex
		}
		var candidateFields any
		if len(r.CandidateFields) > 0 {
			encoded, encErr := json.Marshal(r.CandidateFields)
			if encErr != nil {
				return fmt.Errorf("failed to encode candidate fields: %w", encErr)
			}
			candidateFields = string(encoded)
		}

		if _, err := stmt.ExecContext(ctx,
			r.RunID, r.QueryIndex, candidateIndex,
			r.Outcome.VendorScore, r.Outcome.ProductScore, r.Outcome.Overall,
			r.Outcome.Exact, string(r.Outcome.Decision), r.Outcome.Reason,
			string(r.Escalation), candidateFields); err != nil {
			return fmt.Errorf("failed to insert result for query %d: %w", r.QueryIndex, err)
		}
	}

	return tx.Commit()
}

// GetMatchResults loads all results of a run in query-index order.
func (s *SQLiteStorage) GetMatchResults(ctx context.Context, runID string) ([]model.MatchResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, resultColumns+` WHERE run_id = ? ORDER BY query_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []model.MatchResult
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	return results, rows.Err()
}

// GetMatchResult loads one result by its run and query index.
func (s *SQLiteStorage) GetMatchResult(ctx context.Context, runID string, queryIndex int) (*model.MatchResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, resultColumns+` WHERE run_id = ? AND query_index = ?`, runID, queryIndex)
	result, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: result for run %s query %d", common.ErrNotFound, runID, queryIndex)
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateDecision mutates one result's decision, optionally attaching the
// approved candidate's fields. Used by approval, rejection and the reducer's
// auto-approval shortcut.
func (s *SQLiteStorage) UpdateDecision(ctx context.Context, runID string, queryIndex int, decision model.Decision, candidateFields map[string]string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var fields any
	if len(candidateFields) > 0 {
		encoded, err := json.Marshal(candidateFields)
		if err != nil {
			return fmt.Errorf("failed to encode candidate fields: %w", err)
		}
		fields = string(encoded)
	}

	// AI approval also closes out the escalation marker; other decision
	// changes leave it alone.
	query := `UPDATE match_results SET decision = ?, candidate_fields = COALESCE(?, candidate_fields) WHERE run_id = ? AND query_index = ?`
	if decision == model.DecisionAIApproved {
		query = `UPDATE match_results SET decision = ?, candidate_fields = COALESCE(?, candidate_fields), escalation = 'completed' WHERE run_id = ? AND query_index = ?`
	}

	res, err := s.db.ExecContext(ctx, query, string(decision), fields, runID, queryIndex)
	if err != nil {
		return fmt.Errorf("failed to update decision: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: result for run %s query %d", common.ErrNotFound, runID, queryIndex)
	}
	return nil
}

const resultColumns = `SELECT run_id, query_index, candidate_index, vendor_score, product_score, overall, exact, decision, reason, escalation, candidate_fields, created_at FROM match_results`

// scanner abstracts sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanResult(sc scanner) (model.MatchResult, error) {
	var result model.MatchResult
	var candidateIndex sql.NullInt64
	var reason, escalation sql.NullString
	var candidateFields sql.NullString
	var decision string

	err := sc.Scan(&result.RunID, &result.QueryIndex, &candidateIndex,
		&result.Outcome.VendorScore, &result.Outcome.ProductScore, &result.Outcome.Overall,
		&result.Outcome.Exact, &decision, &reason, &escalation, &candidateFields, &result.CreatedAt)
	if err != nil {
		return result, err
	}

	result.Outcome.Decision = model.Decision(decision)
	result.Outcome.Reason = reason.String
	result.Escalation = model.EscalationStatus(escalation.String)
	if candidateIndex.Valid {
		result.CandidateIndex = int(candidateIndex.Int64)
		result.HasCandidate = true
	}
	if candidateFields.Valid && candidateFields.String != "" {
		if err := json.Unmarshal([]byte(candidateFields.String), &result.CandidateFields); err != nil {
			return result, fmt.Errorf("failed to decode candidate fields: %w", err)
		}
	}

	return result, nil
}
