package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/meridian-data/crossmatch/internal/model"
)

func resultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Show the decisions of a match run",
		RunE:  runResults,
	}

	cmd.Flags().StringP("run", "r", "", "match run ID")
	cmd.Flags().String("decision", "", "only show results with this decision")
	_ = cmd.MarkFlagRequired("run")

	return cmd
}

func runResults(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	runID, _ := cmd.Flags().GetString("run")
	decisionFilter, _ := cmd.Flags().GetString("decision")

	db, err := openStorage()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}()

	results, err := db.GetMatchResults(ctx, runID)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println(subtleStyle.Render("No results for this run."))
		return nil
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("Results for run %s", runID)))
	for _, r := range results {
		if decisionFilter != "" && string(r.Outcome.Decision) != decisionFilter {
			continue
		}

		candidate := "-"
		if r.HasCandidate {
			candidate = fmt.Sprintf("%d", r.CandidateIndex)
		}

		line := fmt.Sprintf("query %4d  candidate %4s  overall %4d  %-18s %s",
			r.QueryIndex, candidate, r.Outcome.Overall, r.Outcome.Decision, r.Outcome.Reason)

		switch r.Outcome.Decision {
		case model.DecisionAutoApproved, model.DecisionAIApproved:
			fmt.Println(successStyle.Render(line))
		case model.DecisionPending:
			fmt.Println(warningStyle.Render(line))
		case model.DecisionNotApproved, model.DecisionAutoNotApproved:
			fmt.Println(errorStyle.Render(line))
		default:
			fmt.Println(line)
		}
	}

	return nil
}
