// Package service defines the interfaces between the load pipeline and the warehouse.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/creditflow-etl/internal/model"
)

// KeyReader loads existing natural-key to surrogate-key pairs.
type KeyReader interface {
	LoadKeys(ctx context.Context, dim model.Dimension) (map[string]int64, error)
}

// CustomerReader loads the open versions of the customer dimension.
type CustomerReader interface {
	CurrentCustomers(ctx context.Context) ([]model.CustomerDimensionRow, error)
}

// Auditor exposes the aggregate queries the data quality checks need.
// Table and column names must be validated by the caller.
type Auditor interface {
	CountRows(ctx context.Context, table, where string) (int64, error)
	CountNonNull(ctx context.Context, table string, columns []string) (int64, error)
	DuplicateCount(ctx context.Context, table, column, where string) (int64, error)
	OrphanCount(ctx context.Context, fk ForeignKey) (total, orphans int64, err error)
	CurrentVersionViolations(ctx context.Context) ([]string, error)
}

// ForeignKey describes one fact-to-dimension reference.
type ForeignKey struct {
	Table     string
	Column    string
	RefTable  string
	RefColumn string
	Nullable  bool
}

// RunStore persists ETL run records and per-stage control rows.
type RunStore interface {
	CreateRun(ctx context.Context, run *model.ETLRun) error
	FinishRun(ctx context.Context, run *model.ETLRun) error
	GetRun(ctx context.Context, runID string) (*model.ETLRun, error)
	RecentRuns(ctx context.Context, limit int) ([]model.ETLRun, error)
	SaveStageControls(ctx context.Context, rows []model.StageControl) error
}

// Warehouse defines the contract for the dimensional store.
type Warehouse interface {
	KeyReader
	CustomerReader
	Auditor
	RunStore

	BeginTx(ctx context.Context) (WarehouseTx, error)
	LoanPositions(ctx context.Context) ([]model.LoanPosition, error)
	AlertStates(ctx context.Context) (map[string]model.AlertState, error)
	Close() error
}

// WarehouseTx is one batch unit of work. Nothing it writes is visible to
// other readers until Commit succeeds.
type WarehouseTx interface {
	Commit() error
	Rollback() error

	InsertDates(ctx context.Context, rows []model.DateDimensionRow) (int, error)
	InsertBranch(ctx context.Context, row *model.Branch) (int64, error)
	InsertProduct(ctx context.Context, row *model.Product) (int64, error)

	InsertCustomerVersion(ctx context.Context, row *model.CustomerDimensionRow) (int64, error)
	CloseCustomerVersion(ctx context.Context, customerSK int64, end time.Time) error
	UpdateCustomerAttributes(ctx context.Context, row *model.CustomerDimensionRow) error

	InsertLoans(ctx context.Context, rows []model.LoanFactRow) (map[string]int64, error)
	InsertTransactions(ctx context.Context, rows []model.TransactionFactRow) (map[string]int64, error)
	ApplyBalanceMutations(ctx context.Context, mutations []model.BalanceMutation, asOf time.Time, currentBucket string) error
	InsertFraudAlerts(ctx context.Context, rows []model.FraudAlertFactRow) (map[string]int64, error)
	UpdateAlertStatus(ctx context.Context, alertSK int64, status model.InvestigationStatus, resolved *time.Time) error
	UpsertSnapshots(ctx context.Context, rows []model.LoanSnapshotRow) error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// WithDefaults fills unset fields with the standard backoff policy.
func (o RetryOptions) WithDefaults() RetryOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = 100 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.Multiplier <= 0 {
		o.Multiplier = 2.0
	}
	return o
}
