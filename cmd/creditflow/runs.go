package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/creditflow-etl/internal/cli"
	"github.com/Veraticus/creditflow-etl/internal/model"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recent runs or show one run's stored summary",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRuns,
	}

	cmd.Flags().Int("limit", 10, "number of runs to list")

	return cmd
}

func runRuns(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	wh, err := openWarehouse(cmd, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = wh.Close() }()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		run, err := wh.GetRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, cli.RenderRuns([]model.ETLRun{*run}))
		if run.Summary != "" {
			fmt.Fprintln(out, run.Summary)
		}
		return nil
	}

	runs, err := wh.RecentRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, cli.RenderRuns(runs))
	return nil
}
