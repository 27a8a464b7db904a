package main

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meridian-data/crossmatch/internal/config"
	"github.com/meridian-data/crossmatch/internal/ingest"
	"github.com/meridian-data/crossmatch/internal/match"
	"github.com/meridian-data/crossmatch/internal/model"
	"github.com/meridian-data/crossmatch/internal/service"
)

func matchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match a query dataset against a candidate dataset",
		Long: `Load both datasets, score every (query, candidate) pair, and store one
decision per query record. Records landing in the gray band are queued
for escalation; run "crossmatch escalate" afterwards to drain the queue.

Examples:
  crossmatch match --queries customers.csv --candidates reference.csv`,
		RunE: runMatch,
	}

	cmd.Flags().StringP("queries", "q", "", "path to the query (customer) dataset")
	cmd.Flags().StringP("candidates", "c", "", "path to the candidate (reference) dataset")
	cmd.Flags().Int("max-rows", 0, "per-dataset row cap (0 = use config)")
	_ = cmd.MarkFlagRequired("queries")
	_ = cmd.MarkFlagRequired("candidates")

	_ = viper.BindPFlag("datasets.max_rows", cmd.Flags().Lookup("max-rows"))

	return cmd
}

func runMatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	queriesPath, _ := cmd.Flags().GetString("queries")
	candidatesPath, _ := cmd.Flags().GetString("candidates")

	maxRows := viper.GetInt("datasets.max_rows")
	if maxRows <= 0 {
		maxRows = 10000
	}

	queries, err := ingest.LoadCSV(config.ExpandPath(queriesPath), mappingHints("query"), maxRows)
	if err != nil {
		return err
	}
	candidates, err := ingest.LoadCSV(config.ExpandPath(candidatesPath), mappingHints("candidate"), maxRows)
	if err != nil {
		return err
	}

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

	runID := uuid.NewString()
	if err := db.CreateRun(ctx, runID, queries.Mapping, candidates.Mapping); err != nil {
		return err
	}
	if err := db.SaveDataset(ctx, runID, service.DatasetQuery, queries.Records); err != nil {
		return err
	}
	if err := db.SaveDataset(ctx, runID, service.DatasetCandidate, candidates.Records); err != nil {
		return err
	}

	thresholds := thresholdsFromConfig()
	slog.Info("Starting match run",
		"run_id", runID,
		"queries", len(queries.Records),
		"candidates", len(candidates.Records))

	bar := progressbar.Default(int64(len(queries.Records)), "matching")
	searcher := match.NewSearcher(queries.Mapping, candidates.Mapping, thresholds)
	searcher.Progress = func(int) { _ = bar.Add(1) }

	results, stats, err := searcher.Run(ctx, runID, queries.Records, candidates.Records)
	if err != nil {
		return fmt.Errorf("match run failed: %w", err)
	}
	_ = bar.Finish()

	if err := db.SaveMatchResults(ctx, results); err != nil {
		return fmt.Errorf("failed to persist results: %w", err)
	}

	var escalated []int
	for _, r := range results {
		if r.Escalation == model.EscalationQueued {
			escalated = append(escalated, r.QueryIndex)
		}
	}
	if err := db.CreateEscalationTasks(ctx, runID, escalated); err != nil {
		return fmt.Errorf("failed to enqueue escalations: %w", err)
	}

	printRunSummary(runID, stats)
	return nil
}

func printRunSummary(runID string, stats service.RunStats) {
	fmt.Println(titleStyle.Render("Match run complete"))
	fmt.Printf("%s %s\n", subtleStyle.Render("run:"), runID)
	fmt.Printf("%s %d in %s\n", subtleStyle.Render("queries:"), stats.TotalQueries, formatDuration(stats.Duration))
	fmt.Printf("%s %s\n", subtleStyle.Render("auto approved:"), successStyle.Render(fmt.Sprintf("%d", stats.AutoApproved)))
	fmt.Printf("%s %d\n", subtleStyle.Render("auto rejected:"), stats.AutoNotApproved)
	fmt.Printf("%s %d\n", subtleStyle.Render("vetoed:"), stats.NotApproved)
	fmt.Printf("%s %s\n", subtleStyle.Render("escalated:"), warningStyle.Render(fmt.Sprintf("%d", stats.Escalated)))
	if stats.SkippedPairs > 0 {
		fmt.Printf("%s %s\n", subtleStyle.Render("skipped pairs:"), errorStyle.Render(fmt.Sprintf("%d", stats.SkippedPairs)))
	}
}
