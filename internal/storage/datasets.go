package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/meridian-data/crossmatch/internal/common"
	"github.com/meridian-data/crossmatch/internal/model"
	"github.com/meridian-data/crossmatch/internal/service"
)

// CreateRun registers a new match run together with the field mappings
// resolved for its two datasets.
func (s *SQLiteStorage) CreateRun(ctx context.Context, runID string, queryMapping, candidateMapping model.FieldMapping) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(runID, "runID"); err != nil {
		return err
	}

	queryJSON, err := json.Marshal(queryMapping)
	if err != nil {
		return fmt.Errorf("failed to encode query mapping: %w", err)
	}
	candidateJSON, err := json.Marshal(candidateMapping)
	if err != nil {
		return fmt.Errorf("failed to encode candidate mapping: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, query_mapping, candidate_mapping) VALUES (?, ?, ?)`,
		runID, string(queryJSON), string(candidateJSON)); err != nil {
		return fmt.Errorf("failed to create run %s: %w", runID, err)
	}
	return nil
}

// GetRunMappings loads the field mappings stored with a run.
func (s *SQLiteStorage) GetRunMappings(ctx context.Context, runID string) (model.FieldMapping, model.FieldMapping, error) {
	if err := validateContext(ctx); err != nil {
		return nil, nil, err
	}

	var queryJSON, candidateJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT query_mapping, candidate_mapping FROM runs WHERE id = ?`, runID).
		Scan(&queryJSON, &candidateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: run %s", common.ErrNotFound, runID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	var queryMapping, candidateMapping model.FieldMapping
	if err := json.Unmarshal([]byte(queryJSON), &queryMapping); err != nil {
		return nil, nil, fmt.Errorf("failed to decode query mapping: %w", err)
	}
	if err := json.Unmarshal([]byte(candidateJSON), &candidateMapping); err != nil {
		return nil, nil, fmt.Errorf("failed to decode candidate mapping: %w", err)
	}
	return queryMapping, candidateMapping, nil
}

// SaveDataset stores a dataset's records for a run. Records keep their
// load-time row indices; column order is preserved.
func (s *SQLiteStorage) SaveDataset(ctx context.Context, runID string, kind service.DatasetKind, records []model.Record) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("%w: records", ErrEmptySlice)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO records (run_id, kind, row_index, columns, fields) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, record := range records {
		columns, err := json.Marshal(record.Columns)
		if err != nil {
			return fmt.Errorf("failed to encode columns for row %d: %w", record.Index, err)
		}
		fields, err := json.Marshal(record.Fields)
		if err != nil {
			return fmt.Errorf("failed to encode fields for row %d: %w", record.Index, err)
		}
		if _, err := stmt.ExecContext(ctx, runID, string(kind), record.Index, string(columns), string(fields)); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", record.Index, err)
		}
	}

	return tx.Commit()
}

// GetDataset loads a dataset's records in stable row-index order.
func (s *SQLiteStorage) GetDataset(ctx context.Context, runID string, kind service.DatasetKind) ([]model.Record, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT row_index, columns, fields FROM records WHERE run_id = ? AND kind = ? ORDER BY row_index`,
		runID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to query dataset: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.Record
	for rows.Next() {
		var record model.Record
		var columnsJSON, fieldsJSON string
		if err := rows.Scan(&record.Index, &columnsJSON, &fieldsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if err := json.Unmarshal([]byte(columnsJSON), &record.Columns); err != nil {
			return nil, fmt.Errorf("failed to decode columns for row %d: %w", record.Index, err)
		}
		if err := json.Unmarshal([]byte(fieldsJSON), &record.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode fields for row %d: %w", record.Index, err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}
