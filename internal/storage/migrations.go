package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Dates are stored as ISO-8601 TEXT so both drivers scan them identically.
var migrations = []Migration{
	{
		Version:     1,
		Description: "Dimension tables",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS dim_date (
					date_sk INTEGER PRIMARY KEY,
					full_date TEXT NOT NULL UNIQUE,
					day INTEGER NOT NULL,
					month INTEGER NOT NULL,
					month_name TEXT NOT NULL,
					quarter INTEGER NOT NULL,
					year INTEGER NOT NULL,
					week INTEGER NOT NULL,
					weekday TEXT NOT NULL,
					is_weekend INTEGER NOT NULL DEFAULT 0,
					is_holiday INTEGER NOT NULL DEFAULT 0,
					financial_year TEXT NOT NULL
				)`,

				`CREATE TABLE IF NOT EXISTS dim_branch (
					branch_sk INTEGER PRIMARY KEY AUTOINCREMENT,
					branch_id TEXT NOT NULL UNIQUE,
					branch_name TEXT NOT NULL,
					city TEXT,
					state TEXT,
					region TEXT,
					branch_type TEXT,
					is_active INTEGER NOT NULL DEFAULT 1,
					created_at TEXT NOT NULL
				)`,

				`CREATE TABLE IF NOT EXISTS dim_product (
					product_sk INTEGER PRIMARY KEY AUTOINCREMENT,
					product_id TEXT NOT NULL UNIQUE,
					product_name TEXT NOT NULL,
					product_type TEXT,
					min_amount REAL,
					max_amount REAL,
					min_rate REAL,
					max_rate REAL,
					min_tenure INTEGER,
					max_tenure INTEGER,
					collateral_required INTEGER NOT NULL DEFAULT 0,
					is_active INTEGER NOT NULL DEFAULT 1,
					created_at TEXT NOT NULL
				)`,

				`CREATE TABLE IF NOT EXISTS dim_customer (
					customer_sk INTEGER PRIMARY KEY AUTOINCREMENT,
					customer_id TEXT NOT NULL,
					first_name TEXT NOT NULL,
					last_name TEXT NOT NULL,
					date_of_birth TEXT,
					age INTEGER,
					gender TEXT,
					marital_status TEXT,
					education TEXT,
					employment_type TEXT,
					annual_income REAL,
					income_tier TEXT,
					credit_score INTEGER,
					credit_tier TEXT,
					city TEXT,
					state TEXT,
					pincode TEXT,
					address_line1 TEXT,
					address_line2 TEXT,
					phone TEXT,
					email TEXT,
					customer_segment TEXT,
					customer_value_tier TEXT,
					acquisition_date TEXT,
					acquisition_channel TEXT,
					effective_start_date TEXT NOT NULL,
					effective_end_date TEXT,
					is_current INTEGER NOT NULL DEFAULT 1,
					created_at TEXT NOT NULL,
					updated_at TEXT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_dim_customer_id ON dim_customer(customer_id, is_current)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Fact tables",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS fact_loan (
					loan_sk INTEGER PRIMARY KEY AUTOINCREMENT,
					loan_id TEXT NOT NULL UNIQUE,
					customer_sk INTEGER NOT NULL REFERENCES dim_customer(customer_sk),
					product_sk INTEGER NOT NULL REFERENCES dim_product(product_sk),
					branch_sk INTEGER NOT NULL REFERENCES dim_branch(branch_sk),
					application_date_sk INTEGER NOT NULL REFERENCES dim_date(date_sk),
					disbursement_date_sk INTEGER NOT NULL REFERENCES dim_date(date_sk),
					first_emi_date_sk INTEGER REFERENCES dim_date(date_sk),
					loan_amount REAL NOT NULL,
					sanctioned_amount REAL,
					interest_rate REAL NOT NULL,
					tenure_months INTEGER NOT NULL,
					emi_amount REAL,
					processing_fee REAL,
					loan_purpose TEXT,
					collateral_value REAL,
					probability_of_default REAL,
					loss_given_default REAL,
					exposure_at_default REAL,
					expected_loss REAL,
					current_balance REAL NOT NULL DEFAULT 0,
					overdue_amount REAL NOT NULL DEFAULT 0,
					days_past_due INTEGER NOT NULL DEFAULT 0,
					dpd_bucket TEXT NOT NULL DEFAULT '0',
					npa_flag INTEGER NOT NULL DEFAULT 0,
					written_off_flag INTEGER NOT NULL DEFAULT 0,
					written_off_amount REAL NOT NULL DEFAULT 0,
					written_off_date TEXT,
					foreclosure_date TEXT,
					loan_status TEXT NOT NULL,
					fraud_flag INTEGER NOT NULL DEFAULT 0,
					fraud_type TEXT,
					collection_tier INTEGER,
					created_at TEXT NOT NULL,
					updated_at TEXT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_fact_loan_customer ON fact_loan(customer_sk)`,

				`CREATE TABLE IF NOT EXISTS fact_transaction (
					transaction_sk INTEGER PRIMARY KEY AUTOINCREMENT,
					transaction_id TEXT NOT NULL UNIQUE,
					loan_sk INTEGER NOT NULL REFERENCES fact_loan(loan_sk),
					customer_sk INTEGER NOT NULL REFERENCES dim_customer(customer_sk),
					transaction_date_sk INTEGER NOT NULL REFERENCES dim_date(date_sk),
					transaction_type TEXT NOT NULL,
					transaction_mode TEXT,
					amount REAL NOT NULL,
					principal_component REAL,
					interest_component REAL,
					penalty_component REAL,
					gst_component REAL,
					payment_reference TEXT,
					bank_name TEXT,
					transaction_status TEXT NOT NULL,
					failure_reason TEXT,
					reconciliation_status TEXT,
					reconciled_date TEXT,
					created_at TEXT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_fact_transaction_loan ON fact_transaction(loan_sk)`,

				`CREATE TABLE IF NOT EXISTS fact_fraud_alert (
					alert_sk INTEGER PRIMARY KEY AUTOINCREMENT,
					alert_id TEXT NOT NULL UNIQUE,
					customer_sk INTEGER NOT NULL REFERENCES dim_customer(customer_sk),
					loan_sk INTEGER REFERENCES fact_loan(loan_sk),
					transaction_sk INTEGER REFERENCES fact_transaction(transaction_sk),
					detection_date_sk INTEGER NOT NULL REFERENCES dim_date(date_sk),
					alert_type TEXT,
					alert_category TEXT,
					risk_score INTEGER NOT NULL,
					risk_level TEXT NOT NULL,
					detection_method TEXT,
					rule_triggered TEXT,
					alert_description TEXT,
					assigned_to TEXT,
					investigation_status TEXT NOT NULL,
					resolution_date TEXT,
					financial_impact REAL NOT NULL DEFAULT 0,
					created_at TEXT NOT NULL,
					updated_at TEXT NOT NULL
				)`,

				`CREATE TABLE IF NOT EXISTS fact_loan_daily_snapshot (
					snapshot_sk INTEGER PRIMARY KEY AUTOINCREMENT,
					loan_sk INTEGER NOT NULL REFERENCES fact_loan(loan_sk),
					snapshot_date_sk INTEGER NOT NULL REFERENCES dim_date(date_sk),
					current_balance REAL NOT NULL,
					overdue_amount REAL NOT NULL,
					days_past_due INTEGER NOT NULL,
					dpd_bucket TEXT NOT NULL,
					npa_flag INTEGER NOT NULL,
					expected_loss REAL,
					loan_status TEXT NOT NULL,
					UNIQUE(loan_sk, snapshot_date_sk)
				)`,
			})
		},
	},
	{
		Version:     3,
		Description: "Run control tables",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS etl_run (
					run_id TEXT PRIMARY KEY,
					status TEXT NOT NULL,
					outcome TEXT,
					processing_date TEXT NOT NULL,
					started_at TEXT NOT NULL,
					finished_at TEXT,
					records_processed INTEGER NOT NULL DEFAULT 0,
					records_rejected INTEGER NOT NULL DEFAULT 0,
					failed_batches INTEGER NOT NULL DEFAULT 0,
					error_message TEXT,
					quality_report TEXT,
					summary TEXT
				)`,
				`CREATE INDEX IF NOT EXISTS idx_etl_run_started ON etl_run(started_at)`,

				`CREATE TABLE IF NOT EXISTS etl_control (
					control_id INTEGER PRIMARY KEY AUTOINCREMENT,
					run_id TEXT NOT NULL REFERENCES etl_run(run_id),
					etl_name TEXT NOT NULL,
					table_name TEXT NOT NULL,
					last_run TEXT NOT NULL,
					status TEXT NOT NULL,
					records_processed INTEGER NOT NULL DEFAULT 0,
					error_message TEXT
				)`,
			})
		},
	},
}

// Migrate applies all pending SQLite schema migrations.
func (w *Warehouse) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if w.dialect.name != sqliteDialect.name {
		return fmt.Errorf("%w: migrations only manage sqlite warehouses", ErrSchemaMismatch)
	}

	currentVersion, err := w.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := w.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := w.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("%w: expected %d, got %d", ErrSchemaMismatch, ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion reports the applied SQLite schema version.
func (w *Warehouse) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := w.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
