package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/creditflow-etl/internal/cli"
	"github.com/Veraticus/creditflow-etl/internal/common"
	"github.com/Veraticus/creditflow-etl/internal/config"
	"github.com/Veraticus/creditflow-etl/internal/storage"
)

var (
	cfgFile string
	version = "dev"
)

// errFailedOutcome makes the process exit non-zero without printing twice.
var errFailedOutcome = errors.New("run outcome failed")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "creditflow",
		Short: "🏦 Lending data warehouse loader",
		Long: `creditflow loads daily lending extracts (customers, loans, transactions
and fraud alerts) into a star-schema warehouse, versions customer history,
derives delinquency and risk measures, and audits the result.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/creditflow/config.yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")
	flags.String("db-driver", config.DriverSQLite, "warehouse driver (sqlite, mysql)")
	flags.String("db-path", "", "SQLite warehouse file")
	flags.String("dsn", "", "MySQL data source name")

	_ = viper.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", flags.Lookup("log-format"))
	_ = viper.BindPFlag("database.driver", flags.Lookup("db-driver"))
	_ = viper.BindPFlag("database.path", flags.Lookup("db-path"))
	_ = viper.BindPFlag("database.dsn", flags.Lookup("dsn"))

	root.AddCommand(runCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(auditCmd())
	root.AddCommand(runsCmd())
	root.AddCommand(versionCmd())
	return root
}

func main() {
	err := newRootCmd().ExecuteContext(context.Background())
	if err != nil {
		var userErr *common.UserError
		switch {
		case errors.Is(err, errFailedOutcome):
		case errors.As(err, &userErr):
			fmt.Fprintln(os.Stderr, cli.FormatError(userErr.Error()))
		default:
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		viper.AddConfigPath(fmt.Sprintf("%s/.config/creditflow", home))
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// CREDITFLOW_ETL_BATCH_SIZE overrides etl.batch_size.
	viper.SetEnvPrefix("CREDITFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := setupLogging(); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	return nil
}

func setupLogging() error {
	level, err := common.ParseLevel(viper.GetString("logging.level"))
	if err != nil {
		return err
	}
	return common.SetupLogger(level, viper.GetString("logging.format"))
}

// loadConfig reads the merged flag, env and file configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, common.NewUserError("invalid configuration", err)
	}
	return cfg, nil
}

// openWarehouse opens the configured warehouse, migrating SQLite files.
func openWarehouse(cmd *cobra.Command, cfg *config.Config) (*storage.Warehouse, error) {
	wh, err := storage.Open(cmd.Context(), cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}
	slog.Debug("Opened warehouse", "driver", wh.Driver())
	return wh, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("creditflow %s\n", version)
		},
	}
}
