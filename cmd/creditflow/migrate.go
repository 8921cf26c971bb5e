package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/creditflow-etl/internal/cli"
	"github.com/Veraticus/creditflow-etl/internal/config"
	"github.com/Veraticus/creditflow-etl/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the warehouse schema",
		Long: `Apply pending schema migrations to the SQLite warehouse.

MySQL schemas are managed outside this tool; for them the command only
verifies that every warehouse table exists.`,
		Args: cobra.NoArgs,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("status", false, "Show current migration status without applying changes")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	status, _ := cmd.Flags().GetBool("status")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	slog.Info("Starting database migration",
		"driver", cfg.Database.Driver,
		"database", cfg.Database.Path,
		"status_only", status)

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if cfg.Database.Driver == config.DriverMySQL {
		wh, err := storage.NewMySQLWarehouse(cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("failed to open warehouse: %w", err)
		}
		defer func() { _ = wh.Close() }()

		if err := wh.VerifySchema(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, cli.FormatSuccess("MySQL warehouse schema verified"))
		return nil
	}

	wh, err := storage.NewSQLiteWarehouse(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = wh.Close() }()

	if status {
		current, err := wh.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, cli.FormatTitle("Warehouse Migration Status"))
		fmt.Fprintf(out, "%s %s\n", cli.SubtleStyle.Render("Database:"), cfg.Database.Path)
		fmt.Fprintf(out, "%s %d\n", cli.SubtleStyle.Render("Current version:"), current)
		fmt.Fprintf(out, "%s %d\n", cli.SubtleStyle.Render("Latest version:"), storage.ExpectedSchemaVersion)
		if current < storage.ExpectedSchemaVersion {
			fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%d migrations pending", storage.ExpectedSchemaVersion-current)))
		}
		return nil
	}

	fmt.Fprintln(out, cli.FormatInfo(cli.FolderIcon+"  Running warehouse migrations..."))
	if err := wh.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Fprintln(out, cli.FormatSuccess("Warehouse migrations completed"))

	return nil
}
