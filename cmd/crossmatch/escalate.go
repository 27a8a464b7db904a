package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meridian-data/crossmatch/internal/escalate"
	"github.com/meridian-data/crossmatch/internal/oracle"
)

func escalateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "escalate",
		Short: "Drain a run's escalation queue against the ranking oracle",
		Long: `Process queued escalation tasks for a match run. Each task asks the
ranking oracle for its best candidates; a maximum-confidence top suggestion
auto-approves the match. If the oracle is unavailable a local heuristic
ranking is stored instead.

While running, SIGUSR1 pauses the dispatcher and SIGUSR2 resumes it.
In-flight oracle calls finish; unstarted tasks return to the queue.

Examples:
  crossmatch escalate --run 4f7c2a`,
		RunE: runEscalate,
	}

	cmd.Flags().StringP("run", "r", "", "match run ID to drain")
	cmd.Flags().Int("batch-size", 10, "tasks claimed per batch")
	cmd.Flags().IntP("top", "n", 5, "suggestions requested per record")
	_ = cmd.MarkFlagRequired("run")

	_ = viper.BindPFlag("escalation.batch_size", cmd.Flags().Lookup("batch-size"))
	_ = viper.BindPFlag("escalation.top_n", cmd.Flags().Lookup("top"))

	return cmd
}

func runEscalate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	runID, _ := cmd.Flags().GetString("run")

	db, err := openStorage()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	queryMapping, candidateMapping, err := db.GetRunMappings(ctx, runID)
	if err != nil {
		return err
	}

	pending, err := db.CountQueuedTasks(ctx, runID)
	if err != nil {
		return err
	}
	if pending == 0 {
		fmt.Println(subtleStyle.Render("Nothing queued for this run."))
		return nil
	}

	ranker, err := oracle.NewRanker(oracleConfigFromViper(), queryMapping, candidateMapping)
	if err != nil {
		return err
	}
	defer ranker.Close()

	topN := viper.GetInt("escalation.top_n")
	reducer := escalate.NewReducer(db, ranker, runID, queryMapping, candidateMapping, topN)

	cfg := escalate.DefaultDispatcherConfig()
	if batchSize := viper.GetInt("escalation.batch_size"); batchSize > 0 {
		cfg.BatchSize = batchSize
	}

	state := escalate.NewDispatcherState()
	dispatcher := escalate.NewDispatcher(db, reducer, state, runID, cfg)

	// SIGUSR1 pauses, SIGUSR2 resumes.
	pauseChan := make(chan os.Signal, 1)
	resumeChan := make(chan os.Signal, 1)
	signal.Notify(pauseChan, syscall.SIGUSR1)
	signal.Notify(resumeChan, syscall.SIGUSR2)
	defer signal.Stop(pauseChan)
	defer signal.Stop(resumeChan)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-pauseChan:
				slog.Info("Pausing dispatcher")
				state.Pause()
			case <-resumeChan:
				slog.Info("Resuming dispatcher")
				state.Resume()
			}
		}
	}()

	slog.Info("Draining escalation queue",
		"run_id", runID,
		"pending", pending,
		"credentials", ranker.CredentialCount())

	if err := dispatcher.Run(ctx); err != nil {
		return fmt.Errorf("dispatcher failed: %w", err)
	}

	fmt.Println(successStyle.Render("Escalation queue drained."))
	return nil
}
