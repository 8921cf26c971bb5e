// Package testutil provides test warehouses and fixture builders for the
// creditflow-etl packages.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/creditflow-etl/internal/model"
	"github.com/Veraticus/creditflow-etl/internal/service"
	"github.com/Veraticus/creditflow-etl/internal/storage"
)

// NewWarehouse creates a migrated in-memory SQLite warehouse that is closed
// when the test ends.
//
// Example:
//
//	wh := testutil.NewWarehouse(t)
//	testutil.SeedDates(t, wh)
func NewWarehouse(t *testing.T) *storage.Warehouse {
	t.Helper()

	wh, err := storage.NewSQLiteWarehouse(":memory:")
	if err != nil {
		t.Fatalf("failed to create test warehouse: %v", err)
	}
	if err := wh.Migrate(context.Background()); err != nil {
		_ = wh.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = wh.Close()
	})
	return wh
}

// DateRows returns the calendar used by the fixtures, covering every date
// they reference.
func DateRows() []model.DateDimensionRow {
	return model.DateRange(DateRangeStart, DateRangeEnd)
}

// SeedDates loads the fixture calendar into wh.
func SeedDates(t *testing.T, wh service.Warehouse) {
	t.Helper()
	WithTx(t, wh, func(tx service.WarehouseTx) error {
		_, err := tx.InsertDates(context.Background(), DateRows())
		return err
	})
}

// WithTx runs fn in a warehouse transaction and commits it, failing the
// test on any error.
func WithTx(t *testing.T, wh service.Warehouse, fn func(tx service.WarehouseTx) error) {
	t.Helper()

	tx, err := wh.BeginTx(context.Background())
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		t.Fatalf("transaction failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}
}
