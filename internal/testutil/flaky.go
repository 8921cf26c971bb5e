package testutil

import (
	"context"
	"sync"

	"github.com/Veraticus/creditflow-etl/internal/service"
)

// FlakyWarehouse wraps a warehouse and fails chosen commit attempts. A
// failed commit rolls the real transaction back first, so nothing from the
// attempt is persisted.
type FlakyWarehouse struct {
	service.Warehouse
	failures map[int]error
	commits  int
	mu       sync.Mutex
}

// NewFlakyWarehouse wraps wh.
func NewFlakyWarehouse(wh service.Warehouse) *FlakyWarehouse {
	return &FlakyWarehouse{Warehouse: wh, failures: make(map[int]error)}
}

// FailCommit makes the nth commit attempt (1-based, counted across all
// transactions) return err.
func (f *FlakyWarehouse) FailCommit(n int, err error) *FlakyWarehouse {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[n] = err
	return f
}

// Commits returns the number of commit attempts seen so far.
func (f *FlakyWarehouse) Commits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits
}

// BeginTx starts a transaction whose commit may be failed on purpose.
func (f *FlakyWarehouse) BeginTx(ctx context.Context) (service.WarehouseTx, error) {
	tx, err := f.Warehouse.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return &flakyTx{WarehouseTx: tx, parent: f}, nil
}

func (f *FlakyWarehouse) nextCommit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	return f.failures[f.commits]
}

type flakyTx struct {
	service.WarehouseTx
	parent *FlakyWarehouse
}

func (t *flakyTx) Commit() error {
	if err := t.parent.nextCommit(); err != nil {
		_ = t.WarehouseTx.Rollback()
		return err
	}
	return t.WarehouseTx.Commit()
}
