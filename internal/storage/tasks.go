package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/meridian-data/crossmatch/internal/model"
)

// CreateEscalationTasks enqueues one task per query index. Existing tasks for
// the same (run, query) pair are left untouched.
func (s *SQLiteStorage) CreateEscalationTasks(ctx context.Context, runID string, queryIndexes []int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(queryIndexes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO escalation_tasks (run_id, query_index, status) VALUES (?, ?, 'queued')`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, qi := range queryIndexes {
		if _, err := stmt.ExecContext(ctx, runID, qi); err != nil {
			return fmt.Errorf("failed to enqueue task for query %d: %w", qi, err)
		}
	}

	return tx.Commit()
}

// ClaimEscalationTasks atomically pulls up to limit queued tasks and flips
// them to processing. The select and update run in one transaction, so no two
// drivers can claim the same task.
func (s *SQLiteStorage) ClaimEscalationTasks(ctx context.Context, runID string, limit int) ([]model.EscalationTask, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, run_id, query_index, created_at FROM escalation_tasks
		 WHERE run_id = ? AND status = 'queued' ORDER BY id LIMIT ?`,
		runID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query queued tasks: %w", err)
	}

	var tasks []model.EscalationTask
	for rows.Next() {
		task := model.EscalationTask{Status: model.TaskProcessing}
		if err := rows.Scan(&task.ID, &task.RunID, &task.QueryIndex, &task.CreatedAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(tasks) == 0 {
		return nil, tx.Commit()
	}

	ids := make([]any, len(tasks))
	placeholders := make([]string, len(tasks))
	for i, task := range tasks {
		ids[i] = task.ID
		placeholders[i] = "?"
	}

	res, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE escalation_tasks SET status = 'processing' WHERE id IN (%s) AND status = 'queued'`,
			strings.Join(placeholders, ",")),
		ids...)
	if err != nil {
		return nil, fmt.Errorf("failed to claim tasks: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check claim: %w", err)
	}
	// A partial claim means another driver raced us inside our transaction,
	// which the single-writer model is supposed to prevent.
	if int(affected) != len(tasks) {
		return nil, fmt.Errorf("claimed %d of %d tasks: concurrent driver detected", affected, len(tasks))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	return tasks, nil
}

// CompleteEscalationTask marks a processing task completed or failed.
func (s *SQLiteStorage) CompleteEscalationTask(ctx context.Context, taskID int64, status model.TaskStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if status != model.TaskCompleted && status != model.TaskFailed {
		return fmt.Errorf("invalid terminal status %q", status)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE escalation_tasks SET status = ? WHERE id = ? AND status = 'processing'`,
		string(status), taskID); err != nil {
		return fmt.Errorf("failed to complete task %d: %w", taskID, err)
	}
	return nil
}

// RevertEscalationTasks rolls processing tasks back to queued. Used when a
// pause lands mid-batch on tasks that were claimed but never started.
func (s *SQLiteStorage) RevertEscalationTasks(ctx context.Context, taskIDs []int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(taskIDs) == 0 {
		return nil
	}

	ids := make([]any, len(taskIDs))
	placeholders := make([]string, len(taskIDs))
	for i, id := range taskIDs {
		ids[i] = id
		placeholders[i] = "?"
	}

	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE escalation_tasks SET status = 'queued' WHERE id IN (%s) AND status = 'processing'`,
			strings.Join(placeholders, ",")),
		ids...); err != nil {
		return fmt.Errorf("failed to revert tasks: %w", err)
	}
	return nil
}

// CountQueuedTasks returns the number of queued tasks for a run.
func (s *SQLiteStorage) CountQueuedTasks(ctx context.Context, runID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM escalation_tasks WHERE run_id = ? AND status = 'queued'`,
		runID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count queued tasks: %w", err)
	}
	return count, nil
}
