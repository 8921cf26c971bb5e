package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/creditflow-etl/internal/cli"
	"github.com/Veraticus/creditflow-etl/internal/metrics"
	"github.com/Veraticus/creditflow-etl/internal/model"
	"github.com/Veraticus/creditflow-etl/internal/pipeline"
	"github.com/Veraticus/creditflow-etl/internal/source"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load the CSV extracts into the warehouse",
		Long: `Run one end-to-end load: read the extracts from the input directory,
validate every row, load dimensions then facts in batches, audit the
warehouse and print the run summary.

The command exits non-zero when the run is graded failed.`,
		Args: cobra.NoArgs,
		RunE: runLoad,
	}

	cmd.Flags().String("input-dir", "", "directory holding the CSV extracts")
	cmd.Flags().String("processing-date", "", "business date of the load (YYYY-MM-DD, default today)")
	cmd.Flags().Int("batch-size", 0, "rows per committed batch")
	cmd.Flags().Int("workers", 0, "concurrent batch workers")
	cmd.Flags().String("metrics-file", "", "write Prometheus metrics to this textfile")
	cmd.Flags().String("summary-file", "", "write the run summary as JSON to this file")
	cmd.Flags().Bool("no-progress", false, "disable progress bars")

	_ = viper.BindPFlag("input.dir", cmd.Flags().Lookup("input-dir"))
	_ = viper.BindPFlag("etl.processing_date", cmd.Flags().Lookup("processing-date"))
	_ = viper.BindPFlag("etl.batch_size", cmd.Flags().Lookup("batch-size"))
	_ = viper.BindPFlag("etl.workers", cmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("metrics.file", cmd.Flags().Lookup("metrics-file"))

	return cmd
}

func runLoad(cmd *cobra.Command, _ []string) error {
	summaryFile, _ := cmd.Flags().GetString("summary-file")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx := handler.HandleInterrupts(cmd.Context())
	defer handler.Stop()
	cmd.SetContext(ctx)

	wh, err := openWarehouse(cmd, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := wh.Close(); closeErr != nil {
			slog.Warn("Failed to close warehouse", "error", closeErr)
		}
	}()

	opts := []pipeline.Option{pipeline.WithMetrics(metrics.New())}
	var progress *cli.Progress
	if !noProgress {
		progress = cli.NewProgress(cmd.ErrOrStderr())
		opts = append(opts, pipeline.WithProgress(progress.Update))
	}

	p, err := pipeline.New(wh, cfg, opts...)
	if err != nil {
		return err
	}

	slog.Info("Starting load", "input", cfg.Input.Dir, "driver", cfg.Database.Driver)
	summary, runErr := p.Run(ctx, source.NewCSVDir(cfg.Input.Dir))
	if progress != nil {
		progress.Finish()
	}
	if summary == nil {
		return runErr
	}

	if summaryFile != "" {
		if err := writeSummary(summaryFile, summary); err != nil {
			return err
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.RenderSummary(summary))

	if runErr != nil {
		if handler.WasInterrupted() {
			return errFailedOutcome
		}
		return runErr
	}
	if summary.Outcome == model.OutcomeFailed {
		return errFailedOutcome
	}
	return nil
}

func writeSummary(path string, s *model.RunSummary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write run summary: %w", err)
	}
	return nil
}
