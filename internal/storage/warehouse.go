// Package storage implements the dimensional warehouse on SQLite and MySQL.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/creditflow-etl/internal/config"
	"github.com/Veraticus/creditflow-etl/internal/service"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05"
)

// dialect captures the SQL differences between the supported engines.
type dialect struct {
	name         string
	insertIgnore string
	// snapshotUpsert is appended to the snapshot INSERT.
	snapshotUpsert string
}

var (
	sqliteDialect = dialect{
		name:         config.DriverSQLite,
		insertIgnore: "INSERT OR IGNORE",
		snapshotUpsert: `ON CONFLICT(loan_sk, snapshot_date_sk) DO UPDATE SET
			current_balance = excluded.current_balance,
			overdue_amount = excluded.overdue_amount,
			days_past_due = excluded.days_past_due,
			dpd_bucket = excluded.dpd_bucket,
			npa_flag = excluded.npa_flag,
			expected_loss = excluded.expected_loss,
			loan_status = excluded.loan_status`,
	}
	mysqlDialect = dialect{
		name:         config.DriverMySQL,
		insertIgnore: "INSERT IGNORE",
		snapshotUpsert: `ON DUPLICATE KEY UPDATE
			current_balance = VALUES(current_balance),
			overdue_amount = VALUES(overdue_amount),
			days_past_due = VALUES(days_past_due),
			dpd_bucket = VALUES(dpd_bucket),
			npa_flag = VALUES(npa_flag),
			expected_loss = VALUES(expected_loss),
			loan_status = VALUES(loan_status)`,
	}
)

// Warehouse implements service.Warehouse over database/sql.
type Warehouse struct {
	db      *sql.DB
	now     func() time.Time
	dialect dialect
}

var _ service.Warehouse = (*Warehouse)(nil)

// Open connects to the warehouse selected by the configuration. SQLite
// databases are migrated; MySQL schemas are verified.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Warehouse, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		w, err := NewSQLiteWarehouse(cfg.Path)
		if err != nil {
			return nil, err
		}
		if err := w.Migrate(ctx); err != nil {
			_ = w.Close()
			return nil, err
		}
		return w, nil
	case config.DriverMySQL:
		w, err := NewMySQLWarehouse(cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := w.VerifySchema(ctx); err != nil {
			_ = w.Close()
			return nil, err
		}
		return w, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
}

// Driver returns the engine name.
func (w *Warehouse) Driver() string {
	return w.dialect.name
}

// Close closes the database connection.
func (w *Warehouse) Close() error {
	return w.db.Close()
}

// BeginTx starts a batch unit of work.
func (w *Warehouse) BeginTx(ctx context.Context) (service.WarehouseTx, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrap("begin transaction", err)
	}

	return &warehouseTx{tx: tx, w: w}, nil
}

// warehouseTx wraps sql.Tx to implement service.WarehouseTx. It never
// touches w.db: SQLite runs on a single connection held by the tx.
type warehouseTx struct {
	tx *sql.Tx
	w  *Warehouse
}

func (t *warehouseTx) Commit() error {
	return wrap("commit", t.tx.Commit())
}

func (t *warehouseTx) Rollback() error {
	return t.tx.Rollback()
}

func (w *Warehouse) timestamp() string {
	return w.now().UTC().Format(timestampLayout)
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func nullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// parseDate accepts both plain dates and the RFC3339 text some drivers
// produce for DATE columns.
func parseDate(s string) (time.Time, error) {
	if len(s) < len(dateLayout) {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return time.Parse(dateLayout, s[:len(dateLayout)])
}

func scanDate(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{timestampLayout, time.RFC3339Nano, dateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
