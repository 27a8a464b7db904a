package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/meridian-data/crossmatch/internal/model"
)

// SaveSuggestions replaces the stored suggestions for one query record.
func (s *SQLiteStorage) SaveSuggestions(ctx context.Context, runID string, queryIndex int, suggestions model.Suggestions) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := suggestions.Validate(); err != nil {
		return fmt.Errorf("refusing to persist invalid suggestions: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM suggestions WHERE run_id = ? AND query_index = ?`,
		runID, queryIndex); err != nil {
		return fmt.Errorf("failed to clear previous suggestions: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO suggestions
		(run_id, query_index, position, candidate_index, candidate_fields, confidence, rationale, heuristic)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, suggestion := range suggestions {
		fields, err := json.Marshal(suggestion.CandidateFields)
		if err != nil {
			return fmt.Errorf("failed to encode candidate fields: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, runID, queryIndex, i,
			suggestion.CandidateIndex, string(fields), suggestion.Confidence,
			suggestion.Rationale, suggestion.Heuristic); err != nil {
			return fmt.Errorf("failed to insert suggestion %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// GetSuggestions loads the stored suggestions for one query record, best
// first.
func (s *SQLiteStorage) GetSuggestions(ctx context.Context, runID string, queryIndex int) (model.Suggestions, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT candidate_index, candidate_fields, confidence, rationale, heuristic
		 FROM suggestions WHERE run_id = ? AND query_index = ? ORDER BY position`,
		runID, queryIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var suggestions model.Suggestions
	for rows.Next() {
		var suggestion model.Suggestion
		var fieldsJSON string
		if err := rows.Scan(&suggestion.CandidateIndex, &fieldsJSON,
			&suggestion.Confidence, &suggestion.Rationale, &suggestion.Heuristic); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		if err := json.Unmarshal([]byte(fieldsJSON), &suggestion.CandidateFields); err != nil {
			return nil, fmt.Errorf("failed to decode candidate fields: %w", err)
		}
		suggestions = append(suggestions, suggestion)
	}

	return suggestions, rows.Err()
}
