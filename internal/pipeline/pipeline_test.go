package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/creditflow-etl/internal/config"
	"github.com/Veraticus/creditflow-etl/internal/metrics"
	"github.com/Veraticus/creditflow-etl/internal/model"
	"github.com/Veraticus/creditflow-etl/internal/source"
	"github.com/Veraticus/creditflow-etl/internal/storage"
	"github.com/Veraticus/creditflow-etl/internal/testutil"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.ETL.ProcessingDate = testutil.ProcessingDate
	cfg.ETL.DateRangeStart = testutil.DateRangeStart
	cfg.ETL.DateRangeEnd = testutil.DateRangeEnd
	cfg.ETL.BatchSize = 100
	cfg.ETL.Workers = 2
	cfg.ETL.CommitTimeout = 5 * time.Second
	cfg.ETL.Retry.InitialDelay = time.Millisecond
	cfg.ETL.Retry.MaxDelay = 5 * time.Millisecond
	cfg.Quality.RejectionSampleSize = 3
	return &cfg
}

func newPipeline(t *testing.T, wh *storage.Warehouse, cfg *config.Config, opts ...Option) *Pipeline {
	t.Helper()
	p, err := New(wh, cfg, opts...)
	require.NoError(t, err)
	return p
}

func TestDecideOutcome(t *testing.T) {
	passed := &model.QualityReport{Passed: true}
	failed := &model.QualityReport{Passed: false, Failed: 1}

	tests := []struct {
		name    string
		err     error
		q       *model.QualityReport
		issues  int64
		rowsIn  int64
		outcome model.Outcome
	}{
		{"clean", nil, passed, 0, 100, model.OutcomeSuccessful},
		{"within tolerance", nil, passed, 5, 100, model.OutcomeDegraded},
		{"over tolerance", nil, passed, 6, 100, model.OutcomeFailed},
		{"audit failed", nil, failed, 0, 100, model.OutcomeFailed},
		{"no audit", nil, nil, 0, 100, model.OutcomeFailed},
		{"aborted", errors.New("boom"), passed, 0, 100, model.OutcomeFailed},
		{"empty input", nil, passed, 0, 0, model.OutcomeSuccessful},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.outcome, decideOutcome(tt.err, tt.q, tt.issues, tt.rowsIn, 0.05))
		})
	}
}

func TestDateRowsIncludeProcessingDate(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	assert.Len(t, dateRows(start, end, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)), 10)

	rows := dateRows(start, end, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	require.Len(t, rows, 15)
	assert.Equal(t, int64(20240115), rows[len(rows)-1].DateSK)
}

func TestRunSuccessful(t *testing.T) {
	wh := testutil.NewWarehouse(t)
	m := metrics.New()

	d := testutil.NewDataset().WithCustomers(10).WithLoans(30, 10)
	d.Add(model.EntityTransaction, testutil.TransactionRow("TX0001", "LN0001", "CUST0001"))
	d.Add(model.EntityFraudAlert, testutil.FraudAlertRow("FA0001", "CUST0002", "investigation_status", "Confirmed"))

	p := newPipeline(t, wh, testConfig(), WithMetrics(m), WithClock(func() time.Time {
		return time.Date(2024, 3, 15, 6, 0, 0, 0, time.UTC)
	}))
	summary, err := p.Run(context.Background(), d.Source())
	require.NoError(t, err)

	assert.Equal(t, model.RunCompleted, summary.Status)
	assert.Equal(t, model.OutcomeSuccessful, summary.Outcome)
	assert.Zero(t, summary.RowsRejected)
	assert.Zero(t, summary.FailedBatches)
	require.NotNil(t, summary.Quality)
	assert.True(t, summary.Quality.Passed)
	require.NotNil(t, summary.Portfolio)
	assert.Equal(t, 30, summary.Portfolio.LoanCount)
	assert.InDelta(t, 25000, summary.Portfolio.ConfirmedImpact, 0.001)
	assert.Len(t, summary.Stages, len(model.LoadOrder))

	run, err := wh.GetRun(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, run.Status)
	assert.Equal(t, model.OutcomeSuccessful, run.Outcome)
	assert.Equal(t, summary.RowsProcessed, run.RecordsProcessed)

	var stored model.RunSummary
	require.NoError(t, json.Unmarshal([]byte(run.Summary), &stored))
	assert.Equal(t, summary.RunID, stored.RunID)
	assert.NotEmpty(t, run.QualityReport)

	controls, err := wh.CountRows(context.Background(), "etl_control", "")
	require.NoError(t, err)
	assert.Equal(t, int64(len(model.LoadOrder)), controls)

	assert.InDelta(t, 30, promtest.ToFloat64(m.RowsLoaded.WithLabelValues("loan")), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(m.RunOutcome.WithLabelValues("successful")), 0)
}

func TestRunDegradedWithinTolerance(t *testing.T) {
	wh := testutil.NewWarehouse(t)

	d := testutil.NewDataset().WithCustomers(50).WithLoans(50, 50)
	d.Add(model.EntityCustomer, testutil.CustomerRow(""))

	summary, err := newPipeline(t, wh, testConfig()).Run(context.Background(), d.Source())
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeDegraded, summary.Outcome)
	assert.Equal(t, int64(1), summary.RowsRejected)
	assert.Equal(t, 1, summary.Rejections[model.EntityCustomer]["missing_natural_key"])
	require.Len(t, summary.Samples, 1)
	assert.NotNil(t, summary.Samples[0].Row)
}

func TestRunFailsOverTolerance(t *testing.T) {
	wh := testutil.NewWarehouse(t)

	d := testutil.NewDataset().WithCustomers(5).WithLoans(5, 5)
	for i := 1; i <= 3; i++ {
		d.Add(model.EntityLoan, testutil.LoanRow(testutil.ID("LNX", i), testutil.ID("GHOST", i)))
	}

	summary, err := newPipeline(t, wh, testConfig()).Run(context.Background(), d.Source())
	require.NoError(t, err)

	assert.Equal(t, model.RunCompleted, summary.Status)
	assert.Equal(t, model.OutcomeFailed, summary.Outcome)
	assert.Equal(t, 3, summary.Rejections[model.EntityLoan]["unknown_key"])
	assert.Len(t, summary.Samples, 3)
}

func TestRunFiltersNonDisbursedLoans(t *testing.T) {
	wh := testutil.NewWarehouse(t)

	d := testutil.NewDataset().WithCustomers(10).WithLoans(90, 10)
	for i := 1; i <= 10; i++ {
		status := "Rejected"
		if i%2 == 0 {
			status = "Pending"
		}
		d.Add(model.EntityLoan, testutil.LoanRow(testutil.ID("LNR", i), testutil.ID("CUST", i), "loan_status", status))
	}

	summary, err := newPipeline(t, wh, testConfig()).Run(context.Background(), d.Source())
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeSuccessful, summary.Outcome)
	assert.Zero(t, summary.RowsRejected)
	assert.Empty(t, summary.Rejections[model.EntityLoan])
	assert.Empty(t, summary.Samples)
	assert.Equal(t, int64(10), summary.RowsFiltered)
	assert.Equal(t, map[model.Entity]int{model.EntityLoan: 10}, summary.Filtered)

	loans, err := wh.CountRows(context.Background(), "fact_loan", "")
	require.NoError(t, err)
	assert.Equal(t, int64(90), loans)
}

func TestRunAbortsOnMissingInput(t *testing.T) {
	wh := testutil.NewWarehouse(t)

	summary, err := newPipeline(t, wh, testConfig()).Run(context.Background(), source.NewCSVDir(t.TempDir()))
	require.ErrorIs(t, err, source.ErrMissingInput)
	require.NotNil(t, summary)
	assert.Equal(t, model.RunFailed, summary.Status)
	assert.Equal(t, model.OutcomeFailed, summary.Outcome)

	run, err := wh.GetRun(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "customers.csv")
}

func TestRunFinalizesCancelledRun(t *testing.T) {
	wh := testutil.NewWarehouse(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig()
	cfg.ETL.BatchSize = 10
	cfg.ETL.Workers = 1

	p := newPipeline(t, wh, cfg, WithProgress(func(e model.Entity, done, _ int) {
		if e == model.EntityLoan && done >= 10 {
			cancel()
		}
	}))
	summary, err := p.Run(ctx, testutil.NewDataset().WithCustomers(10).WithLoans(50, 10).Source())
	require.ErrorIs(t, err, context.Canceled)

	run, err := wh.GetRun(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, run.Status)
	assert.Equal(t, summary.RowsProcessed, run.RecordsProcessed)

	loans, err := wh.CountRows(context.Background(), "fact_loan", "")
	require.NoError(t, err)
	assert.Equal(t, int64(10), loans)
}

func TestRunWritesMetricsFile(t *testing.T) {
	wh := testutil.NewWarehouse(t)
	cfg := testConfig()
	cfg.Metrics.File = filepath.Join(t.TempDir(), "creditflow.prom")

	_, err := newPipeline(t, wh, cfg, WithMetrics(metrics.New())).
		Run(context.Background(), testutil.NewDataset().WithCustomers(2).WithLoans(2, 2).Source())
	require.NoError(t, err)

	data, err := os.ReadFile(cfg.Metrics.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), `creditflow_run_outcome{outcome="successful"} 1`)
}

func TestNewValidatesConfig(t *testing.T) {
	wh := testutil.NewWarehouse(t)
	cfg := testConfig()
	cfg.ETL.BatchSize = 0

	_, err := New(wh, cfg)
	assert.Error(t, err)

	_, err = New(nil, testConfig())
	assert.Error(t, err)
}
