package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/creditflow-etl/internal/cli"
	"github.com/Veraticus/creditflow-etl/internal/quality"
)

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Run the data quality checks against the warehouse",
		Long: `Measure completeness, key uniqueness, referential integrity and
customer version consistency of the warehouse as it is now, without
loading anything.`,
		Args: cobra.NoArgs,
		RunE: runAudit,
	}

	cmd.Flags().Bool("json", false, "print the report as JSON")

	return cmd
}

func runAudit(cmd *cobra.Command, _ []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	wh, err := openWarehouse(cmd, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = wh.Close() }()

	auditor, err := quality.New(wh, quality.DefaultRules(), quality.Thresholds{
		Completeness: cfg.Quality.CompletenessThreshold,
		Referential:  cfg.Quality.ReferentialThreshold,
	})
	if err != nil {
		return err
	}
	report, err := auditor.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("quality audit failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
	} else {
		fmt.Fprintln(out, cli.RenderQuality(report))
	}

	if !report.Passed {
		return errFailedOutcome
	}
	return nil
}
