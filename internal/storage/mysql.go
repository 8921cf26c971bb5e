package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"
)

// requiredTables is the DDL contract a MySQL warehouse must satisfy.
var requiredTables = []string{
	"dim_date",
	"dim_branch",
	"dim_product",
	"dim_customer",
	"fact_loan",
	"fact_transaction",
	"fact_fraud_alert",
	"fact_loan_daily_snapshot",
	"etl_run",
	"etl_control",
}

// NewMySQLWarehouse connects to a MySQL warehouse. The schema is owned
// externally and is not created here.
func NewMySQLWarehouse(dsn string) (*Warehouse, error) {
	if err := validateString(dsn, "dsn"); err != nil {
		return nil, err
	}

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.ParseTime = false

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create mysql connector: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", Classify(err))
	}

	slog.Debug("Connected to MySQL warehouse", "addr", cfg.Addr, "database", cfg.DBName)

	return &Warehouse{
		db:      db,
		dialect: mysqlDialect,
		now:     time.Now,
	}, nil
}

// VerifySchema checks that every warehouse table exists in the connected database.
func (w *Warehouse) VerifySchema(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	rows, err := w.db.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE()`)
	if err != nil {
		return wrap("list tables", err)
	}
	defer func() { _ = rows.Close() }()

	present := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to scan table name: %w", err)
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return wrap("list tables", err)
	}

	var missing []string
	for _, table := range requiredTables {
		if !present[table] {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: warehouse schema missing tables %v", ErrSchemaMismatch, missing)
	}
	return nil
}
