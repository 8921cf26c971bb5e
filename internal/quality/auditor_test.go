package quality

import (
	"context"
	"errors"
	"testing"

	"github.com/Veraticus/creditflow-etl/internal/common"
	"github.com/Veraticus/creditflow-etl/internal/model"
	"github.com/Veraticus/creditflow-etl/internal/service"
	"github.com/Veraticus/creditflow-etl/internal/testutil"
	"github.com/Veraticus/creditflow-etl/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	err        error
	rows       map[string]int64
	nonNull    map[string]int64
	dups       map[string]int64
	refs       map[string][2]int64
	violations []string
}

func (s *stubStore) CountRows(_ context.Context, table, _ string) (int64, error) {
	return s.rows[table], s.err
}

func (s *stubStore) CountNonNull(_ context.Context, table string, _ []string) (int64, error) {
	return s.nonNull[table], s.err
}

func (s *stubStore) DuplicateCount(_ context.Context, table, column, _ string) (int64, error) {
	return s.dups[table+"."+column], s.err
}

func (s *stubStore) OrphanCount(_ context.Context, fk service.ForeignKey) (int64, int64, error) {
	r := s.refs[fk.Table+"."+fk.Column]
	return r[0], r[1], s.err
}

func (s *stubStore) CurrentVersionViolations(context.Context) ([]string, error) {
	return s.violations, s.err
}

func find(t *testing.T, r *model.QualityReport, name string) model.CheckResult {
	t.Helper()
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no check named %s", name)
	return model.CheckResult{}
}

func TestNewRejectsUnsafeIdentifiers(t *testing.T) {
	tests := []struct {
		name  string
		rules Rules
	}{
		{"table", Rules{Completeness: []RequiredColumns{{Table: "fact_loan; DROP TABLE x", Columns: []string{"loan_id"}}}}},
		{"column", Rules{Unique: []UniqueKey{{Table: "fact_loan", Column: "Loan-ID"}}}},
		{"reference", Rules{References: []service.ForeignKey{
			{Table: "fact_loan", Column: "customer_sk", RefTable: "dim customer", RefColumn: "customer_sk"},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(&stubStore{}, tt.rules, DefaultThresholds())
			assert.ErrorIs(t, err, common.ErrInvalidConfig)
		})
	}

	_, err := New(&stubStore{}, DefaultRules(), DefaultThresholds())
	assert.NoError(t, err)
}

func TestCompletenessThreshold(t *testing.T) {
	rules := Rules{Completeness: []RequiredColumns{{Table: "fact_loan", Columns: []string{"a", "b", "c", "d"}}}}

	tests := []struct {
		name     string
		rows     int64
		nonNull  int64
		observed float64
		passed   bool
	}{
		{"all filled", 100, 400, 1, true},
		{"just above", 100, 381, 0.9525, true},
		{"exactly at threshold fails", 100, 380, 0.95, false},
		{"empty table", 0, 0, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &stubStore{
				rows:    map[string]int64{"fact_loan": tt.rows},
				nonNull: map[string]int64{"fact_loan": tt.nonNull},
			}
			a, err := New(store, rules, DefaultThresholds())
			require.NoError(t, err)

			report, err := a.Run(context.Background())
			require.NoError(t, err)

			c := find(t, report, "completeness:fact_loan")
			assert.InDelta(t, tt.observed, c.Observed, 1e-9)
			assert.Equal(t, tt.passed, c.Passed)
		})
	}
}

func TestReferentialIntegrity(t *testing.T) {
	fk := service.ForeignKey{Table: "fact_transaction", Column: "loan_sk", RefTable: "fact_loan", RefColumn: "loan_sk"}
	rules := Rules{References: []service.ForeignKey{fk}}

	tests := []struct {
		name     string
		refs     [2]int64
		observed float64
		passed   bool
	}{
		{"all resolve", [2]int64{100, 0}, 1, true},
		{"one orphan", [2]int64{100, 1}, 0.99, false},
		{"empty table", [2]int64{0, 0}, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &stubStore{refs: map[string][2]int64{"fact_transaction.loan_sk": tt.refs}}
			a, err := New(store, rules, DefaultThresholds())
			require.NoError(t, err)

			report, err := a.Run(context.Background())
			require.NoError(t, err)

			c := find(t, report, "referential_integrity:fact_transaction.loan_sk")
			assert.InDelta(t, tt.observed, c.Observed, 1e-9)
			assert.Equal(t, tt.passed, c.Passed)
			assert.Equal(t, tt.passed, report.Passed)
		})
	}
}

func TestUniquenessAndVersionsFail(t *testing.T) {
	store := &stubStore{
		dups:       map[string]int64{"fact_loan.loan_id": 2},
		violations: []string{"CUST0001"},
	}
	a, err := New(store, Rules{Unique: []UniqueKey{{Table: "fact_loan", Column: "loan_id"}}}, DefaultThresholds())
	require.NoError(t, err)

	report, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Passed)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 2, report.Failed)
	assert.InDelta(t, 2, find(t, report, "uniqueness:fact_loan.loan_id").Observed, 0)
	assert.InDelta(t, 1, find(t, report, "scd_current_version:dim_customer").Observed, 0)
}

func TestRunPropagatesQueryErrors(t *testing.T) {
	boom := errors.New("connection reset")
	a, err := New(&stubStore{err: boom}, DefaultRules(), DefaultThresholds())
	require.NoError(t, err)

	_, err = a.Run(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestEmptyWarehousePasses(t *testing.T) {
	wh := testutil.NewWarehouse(t)
	a, err := New(wh, DefaultRules(), DefaultThresholds())
	require.NoError(t, err)

	report, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Passed)
	assert.Zero(t, report.Failed)
	assert.Equal(t, len(report.Checks), report.Checked)
}

func TestDuplicateCurrentVersionsDetected(t *testing.T) {
	wh := testutil.NewWarehouse(t)
	c, rej := validate.New(validate.Options{ProcessingDate: testutil.ProcessingDate}).
		Customer(testutil.CustomerRow("CUST0001"))
	require.Nil(t, rej)

	testutil.WithTx(t, wh, func(tx service.WarehouseTx) error {
		for range 2 {
			row := &model.CustomerDimensionRow{Customer: *c, EffectiveStart: testutil.DateRangeStart, IsCurrent: true}
			if _, err := tx.InsertCustomerVersion(context.Background(), row); err != nil {
				return err
			}
		}
		return nil
	})

	a, err := New(wh, DefaultRules(), DefaultThresholds())
	require.NoError(t, err)
	report, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Passed)
	assert.False(t, find(t, report, "uniqueness:dim_customer.customer_id").Passed)
	assert.False(t, find(t, report, "scd_current_version:dim_customer").Passed)
	assert.True(t, find(t, report, "completeness:dim_customer").Passed)
}
