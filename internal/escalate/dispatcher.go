package escalate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/meridian-data/crossmatch/internal/model"
)

// Dispatcher is the single long-lived drain for one collection's escalation
// queue. It pulls queued tasks in fixed-size batches, fans them out over a
// bounded worker pool, and respects the pause flag between batches and
// between tasks within a batch.
type Dispatcher struct {
	store   TaskStore
	reducer *Reducer
	state   *DispatcherState
	runID   string
	cfg     DispatcherConfig
}

// DispatcherConfig bounds the dispatcher's batch and pool sizes.
type DispatcherConfig struct {
	BatchSize       int
	WorkerCap       int
	InterBatchDelay time.Duration
}

// DefaultDispatcherConfig returns the stock dispatcher limits.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		BatchSize:       10,
		WorkerCap:       8,
		InterBatchDelay: 500 * time.Millisecond,
	}
}

// NewDispatcher creates a dispatcher for one run's escalation queue.
func NewDispatcher(store TaskStore, reducer *Reducer, state *DispatcherState, runID string, cfg DispatcherConfig) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.WorkerCap <= 0 {
		cfg.WorkerCap = 8
	}
	if state == nil {
		state = NewDispatcherState()
	}
	return &Dispatcher{
		store:   store,
		reducer: reducer,
		state:   state,
		runID:   runID,
		cfg:     cfg,
	}
}

// State returns the dispatcher's pause state.
func (d *Dispatcher) State() *DispatcherState {
	return d.state
}

// Run drains the queue until a batch pull comes back empty, the pause flag
// stops a batch mid-flight, or the context is canceled. Tasks claimed but not
// yet started when a pause is observed are reverted to queued; in-flight
// oracle calls run to completion.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		if !d.state.WaitIfPaused(ctx) {
			return ctx.Err()
		}

		batch, err := d.store.ClaimEscalationTasks(ctx, d.runID, d.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to claim escalation batch: %w", err)
		}
		if len(batch) == 0 {
			slog.Info("Escalation queue drained", "run_id", d.runID)
			return nil
		}

		slog.Info("Processing escalation batch",
			"run_id", d.runID,
			"batch_size", len(batch))

		stopped := d.processBatch(ctx, batch)
		if stopped {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.cfg.InterBatchDelay):
		}
	}
}

// processBatch fans the batch out over the worker pool. Returns true when the
// whole drive loop should stop because a pause was observed mid-batch.
func (d *Dispatcher) processBatch(ctx context.Context, batch []model.EscalationTask) bool {
	workers := d.workerCount(len(batch))

	taskCh := make(chan model.EscalationTask)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskCh {
				d.processTask(ctx, task)
			}
		}()
	}

	stopped := false
	var reverted []int64
	for i, task := range batch {
		if d.state.Paused() || ctx.Err() != nil {
			for _, remaining := range batch[i:] {
				reverted = append(reverted, remaining.ID)
			}
			stopped = true
			break
		}
		taskCh <- task
	}
	close(taskCh)
	wg.Wait()

	if len(reverted) > 0 {
		slog.Info("Pause observed mid-batch, reverting unstarted tasks",
			"run_id", d.runID,
			"reverted", len(reverted))
		if err := d.store.RevertEscalationTasks(context.WithoutCancel(ctx), reverted); err != nil {
			slog.Error("Failed to revert tasks", "error", err)
		}
	}

	return stopped
}

// workerCount bounds the pool at min(2*credentials, pending, hard cap) to
// respect the oracle's rate limits.
func (d *Dispatcher) workerCount(pending int) int {
	workers := 2 * d.reducer.CredentialCount()
	if pending < workers {
		workers = pending
	}
	if workers > d.cfg.WorkerCap {
		workers = d.cfg.WorkerCap
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

func (d *Dispatcher) processTask(ctx context.Context, task model.EscalationTask) {
	status := model.TaskCompleted
	if err := d.reducer.Process(ctx, task); err != nil {
		slog.Error("Escalation task failed",
			"run_id", task.RunID,
			"query_index", task.QueryIndex,
			"error", err)
		status = model.TaskFailed
	}

	if err := d.store.CompleteEscalationTask(context.WithoutCancel(ctx), task.ID, status); err != nil {
		slog.Error("Failed to record task status",
			"task_id", task.ID,
			"status", status,
			"error", err)
	}
}
