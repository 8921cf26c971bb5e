package scd

import (
	"context"
	"testing"

	"github.com/Veraticus/creditflow-etl/internal/common"
	"github.com/Veraticus/creditflow-etl/internal/model"
	"github.com/Veraticus/creditflow-etl/internal/service"
	"github.com/Veraticus/creditflow-etl/internal/testutil"
	"github.com/Veraticus/creditflow-etl/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultRules = Rules{
	TrackedFields:         []string{"city", "marital_status", "income", "credit_score"},
	IncomeChangeThreshold: 0.20,
}

func newProcessor(t *testing.T) *Processor {
	t.Helper()
	p, err := NewProcessor(defaultRules, testutil.ProcessingDate)
	require.NoError(t, err)
	return p
}

func customer(t *testing.T, id string, kv ...string) *model.Customer {
	t.Helper()
	c, rej := validate.New(validate.Options{ProcessingDate: testutil.ProcessingDate}).
		Customer(testutil.CustomerRow(id, kv...))
	require.Nil(t, rej)
	return c
}

func current(c *model.Customer, sk int64) *model.CustomerDimensionRow {
	return &model.CustomerDimensionRow{
		Customer:       *c,
		CustomerSK:     sk,
		EffectiveStart: testutil.DateRangeStart,
		IsCurrent:      true,
	}
}

func TestNewProcessorRejectsUnknownField(t *testing.T) {
	_, err := NewProcessor(Rules{TrackedFields: []string{"city", "favourite_colour"}}, testutil.ProcessingDate)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)

	_, err = NewProcessor(Rules{}, testutil.ProcessingDate)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)

	_, err = NewProcessor(Rules{TrackedFields: []string{"city"}, IncomeChangeThreshold: -0.1}, testutil.ProcessingDate)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)

	p, err := NewProcessor(Rules{TrackedFields: []string{"city", "city", "income"}}, testutil.ProcessingDate)
	require.NoError(t, err)
	assert.Equal(t, []string{"city", "income"}, p.TrackedFields())
}

func TestIncomeChanged(t *testing.T) {
	tests := []struct {
		name     string
		old, cur float64
		want     bool
	}{
		{"exactly twenty percent up", 500_000, 600_000, false},
		{"a hair over twenty percent", 500_000, 600_050, true},
		{"exactly twenty percent down", 500_000, 400_000, false},
		{"over twenty percent down", 500_000, 399_000, true},
		{"small raise", 600_000, 651_000, false},
		{"from zero", 0, 1, true},
		{"zero to zero", 0, 0, false},
		{"exactly twenty percent of a decimal income", 123_456, 148_147.2, false},
		{"exactly twenty percent with paise", 83_333.33, 99_999.996, false},
		{"one paisa over twenty percent", 123_456, 148_147.21, true},
		{"exactly twenty percent down with paise", 123_456, 98_764.8, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IncomeChanged(tt.old, tt.cur, 0.20))
		})
	}
}

func TestDecide(t *testing.T) {
	base := customer(t, "C1", "annual_income", "500000")

	tests := []struct {
		name    string
		in      *model.Customer
		action  Action
		changed []string
	}{
		{"identical row", customer(t, "C1", "annual_income", "500000"), ActionNoop, nil},
		{"income up exactly twenty percent", customer(t, "C1", "annual_income", "600000"), ActionNoop, nil},
		{"income up 20.01 percent", customer(t, "C1", "annual_income", "600050"), ActionNewVersion, []string{"income"}},
		{"city moved", customer(t, "C1", "annual_income", "500000", "city", "mumbai"), ActionNewVersion, []string{"city"}},
		{"married", customer(t, "C1", "annual_income", "500000", "marital_status", "married"), ActionNewVersion, []string{"marital_status"}},
		{"score and city", customer(t, "C1", "annual_income", "500000", "credit_score", "780", "city", "delhi"), ActionNewVersion, []string{"city", "credit_score"}},
		{"new email", customer(t, "C1", "annual_income", "500000", "email", "asha@new.example.com"), ActionUpdateInPlace, nil},
		{"new phone and small raise", customer(t, "C1", "annual_income", "510000", "phone", "9123456789"), ActionUpdateInPlace, nil},
	}

	p := newProcessor(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := p.decide(current(base, 1), tt.in)
			assert.Equal(t, tt.action, d.Action, d.Action.String())
			assert.Equal(t, tt.changed, d.Changed)
		})
	}
}

func TestDecideUpdateInPlaceKeepsTrackedValues(t *testing.T) {
	p := newProcessor(t)
	cur := current(customer(t, "C1", "annual_income", "500000"), 7)
	in := customer(t, "C1", "annual_income", "550000", "email", "asha@new.example.com")

	d := p.decide(cur, in)
	require.Equal(t, ActionUpdateInPlace, d.Action)
	assert.Equal(t, int64(7), d.Row.CustomerSK)
	assert.Equal(t, "asha@new.example.com", d.Row.Email)
	assert.InDelta(t, 500_000, d.Row.AnnualIncome, 0.001)
	assert.Equal(t, cur.IncomeTier, d.Row.IncomeTier)
	assert.Equal(t, cur.EffectiveStart, d.Row.EffectiveStart)
}

func TestDecideInsertAndNewVersionDates(t *testing.T) {
	p := newProcessor(t)

	d := p.decide(nil, customer(t, "C1"))
	assert.Equal(t, ActionInsert, d.Action)
	assert.True(t, d.Row.IsCurrent)
	assert.Equal(t, testutil.ProcessingDate, d.Row.EffectiveStart)
	assert.Nil(t, d.Row.EffectiveEnd)

	d = p.decide(current(customer(t, "C1"), 3), customer(t, "C1", "city", "chennai"))
	assert.Equal(t, ActionNewVersion, d.Action)
	assert.Equal(t, int64(0), d.Row.CustomerSK)
	assert.Equal(t, testutil.ProcessingDate, d.Row.EffectiveStart)
	require.NotNil(t, d.Current)
	assert.Equal(t, int64(3), d.Current.CustomerSK)
}

type stubCustomers []model.CustomerDimensionRow

func (s stubCustomers) CurrentCustomers(context.Context) ([]model.CustomerDimensionRow, error) {
	return s, nil
}

func TestLoadBlocksDuplicateCurrentVersions(t *testing.T) {
	p := newProcessor(t)
	c1 := customer(t, "C1")
	c2 := customer(t, "C2")

	blocked, err := p.Load(context.Background(), stubCustomers{
		*current(c1, 1), *current(c2, 2), *current(c2, 3),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"C2"}, blocked)
	assert.True(t, p.Blocked("C2"))
	assert.Equal(t, []string{"C2"}, p.BlockedIDs())

	_, ok := p.Current("C2")
	assert.False(t, ok)

	_, err = p.Decide(c2)
	assert.ErrorIs(t, err, common.ErrMultipleCurrentVersions)

	// The guard fires before any write reaches the transaction.
	_, err = p.Batch().Apply(context.Background(), nil, c2)
	assert.ErrorIs(t, err, common.ErrMultipleCurrentVersions)

	d, err := p.Decide(c1)
	require.NoError(t, err)
	assert.Equal(t, ActionNoop, d.Action)
}

// applyAll runs customers through one batch and commits it.
func applyAll(t *testing.T, wh service.Warehouse, p *Processor, customers ...*model.Customer) *Batch {
	t.Helper()
	b := p.Batch()
	testutil.WithTx(t, wh, func(tx service.WarehouseTx) error {
		for _, c := range customers {
			if _, err := b.Apply(context.Background(), tx, c); err != nil {
				return err
			}
		}
		return nil
	})
	b.Commit()
	return b
}

func TestRepeatWithSmallRaiseKeepsOneVersion(t *testing.T) {
	ctx := context.Background()
	wh := testutil.NewWarehouse(t)
	p := newProcessor(t)
	_, err := p.Load(ctx, wh)
	require.NoError(t, err)

	b := applyAll(t, wh, p,
		customer(t, "C1", "annual_income", "600000"),
		customer(t, "C1", "annual_income", "651000"),
		customer(t, "C2"),
	)
	assert.Equal(t, 2, b.Count(ActionInsert))
	assert.Equal(t, 1, b.Count(ActionNoop))
	assert.Equal(t, 0, b.Count(ActionNewVersion))

	total, err := wh.CountRows(ctx, "dim_customer", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	rows, err := wh.CurrentCustomers(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].IsCurrent)
	assert.InDelta(t, 600_000, rows[0].AnnualIncome, 0.001)

	violations, err := wh.CurrentVersionViolations(ctx)
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestNewVersionClosesCurrent(t *testing.T) {
	ctx := context.Background()
	wh := testutil.NewWarehouse(t)
	p := newProcessor(t)
	_, err := p.Load(ctx, wh)
	require.NoError(t, err)

	applyAll(t, wh, p, customer(t, "C1", "annual_income", "500000"))
	first, ok := p.Current("C1")
	require.True(t, ok)

	// A later run sees the committed version and versions the change.
	next, err := NewProcessor(defaultRules, testutil.ProcessingDate.AddDate(0, 0, 10))
	require.NoError(t, err)
	_, err = next.Load(ctx, wh)
	require.NoError(t, err)

	b := applyAll(t, wh, next, customer(t, "C1", "annual_income", "600050"))
	assert.Equal(t, 1, b.Count(ActionNewVersion))

	second, ok := next.Current("C1")
	require.True(t, ok)
	assert.NotEqual(t, first.CustomerSK, second.CustomerSK)
	assert.Equal(t, testutil.ProcessingDate.AddDate(0, 0, 10), second.EffectiveStart)

	total, err := wh.CountRows(ctx, "dim_customer", "customer_id = 'C1'")
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	open, err := wh.CountRows(ctx, "dim_customer", "customer_id = 'C1' AND is_current = 1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), open)
	closed, err := wh.CountRows(ctx, "dim_customer",
		"customer_id = 'C1' AND is_current = 0 AND effective_end_date = '2024-03-25'")
	require.NoError(t, err)
	assert.Equal(t, int64(1), closed)
}

func TestRerunOnUnchangedInputIsIdempotent(t *testing.T) {
	ctx := context.Background()
	wh := testutil.NewWarehouse(t)

	input := []*model.Customer{customer(t, "C1"), customer(t, "C2"), customer(t, "C3")}
	for run := range 2 {
		p := newProcessor(t)
		_, err := p.Load(ctx, wh)
		require.NoError(t, err)
		b := applyAll(t, wh, p, input...)
		if run == 0 {
			assert.Equal(t, 3, b.Count(ActionInsert))
		} else {
			assert.Equal(t, 3, b.Count(ActionNoop))
			assert.Empty(t, b.Keys())
		}
	}

	total, err := wh.CountRows(ctx, "dim_customer", "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestUncommittedBatchLeavesNoState(t *testing.T) {
	ctx := context.Background()
	wh := testutil.NewWarehouse(t)
	p := newProcessor(t)

	b := p.Batch()
	tx, err := wh.BeginTx(ctx)
	require.NoError(t, err)
	_, err = b.Apply(ctx, tx, customer(t, "C1"))
	require.NoError(t, err)
	assert.Contains(t, b.Keys(), "C1")
	require.NoError(t, tx.Rollback())

	_, ok := p.Current("C1")
	assert.False(t, ok)

	// A fresh batch inserts again rather than trusting the rolled-back key.
	applyAll(t, wh, p, customer(t, "C1"))
	_, ok = p.Current("C1")
	assert.True(t, ok)
	total, err := wh.CountRows(ctx, "dim_customer", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}
