package validate

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/Veraticus/creditflow-etl/internal/common"
	"github.com/Veraticus/creditflow-etl/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRejectionError(t *testing.T) {
	r := Reject(model.EntityLoan, ReasonOutOfRange, "LN1", "interest_rate", "31 outside [5, 30]")
	assert.EqualError(t, r, "loan LN1 rejected: out_of_range (interest_rate): 31 outside [5, 30]")
	assert.True(t, errors.Is(r, common.ErrValidationRejection))

	bare := Reject(model.EntityCustomer, ReasonUnknownKey, "C9", "", "")
	assert.EqualError(t, bare, "customer C9 rejected: unknown_key")
}

func TestTrackerCounts(t *testing.T) {
	tr := NewTracker(2)
	tr.Add(nil)
	tr.AddAll([]*Rejection{
		Reject(model.EntityLoan, ReasonUnknownKey, "LN1", "", ""),
		Reject(model.EntityLoan, ReasonUnknownKey, "LN2", "", ""),
		Reject(model.EntityLoan, ReasonOutOfRange, "LN3", "", ""),
		Reject(model.EntityCustomer, ReasonDuplicateKey, "C1", "", ""),
	})

	assert.Equal(t, 4, tr.Total())
	assert.Equal(t, 3, tr.EntityTotal(model.EntityLoan))
	assert.Equal(t, 2, tr.Count(model.EntityLoan, ReasonUnknownKey))
	assert.Equal(t, 0, tr.Count(model.EntityTransaction, ReasonUnknownKey))

	counts := tr.Counts()
	assert.Equal(t, map[model.Entity]map[string]int{
		model.EntityLoan:     {"unknown_key": 2, "out_of_range": 1},
		model.EntityCustomer: {"duplicate_key": 1},
	}, counts)

	// The copy is detached from the tracker.
	counts[model.EntityLoan]["unknown_key"] = 99
	assert.Equal(t, 2, tr.Count(model.EntityLoan, ReasonUnknownKey))
}

func TestTrackerKeepsFilteredRowsApart(t *testing.T) {
	tr := NewTracker(5)
	tr.AddAll([]*Rejection{
		Reject(model.EntityLoan, ReasonNotDisbursed, "LN1", "loan_status", "Rejected loans are not loaded"),
		Reject(model.EntityLoan, ReasonNotDisbursed, "LN2", "loan_status", "Pending loans are not loaded"),
		Reject(model.EntityLoan, ReasonUnknownKey, "LN3", "", ""),
	})

	assert.Equal(t, 1, tr.Total())
	assert.Equal(t, 0, tr.Count(model.EntityLoan, ReasonNotDisbursed))
	assert.Equal(t, map[model.Entity]int{model.EntityLoan: 2}, tr.Filtered())
	assert.Equal(t, 2, tr.FilteredTotal())
	require.Len(t, tr.Samples(), 1)
	assert.Equal(t, "LN3", tr.Samples()[0].Key)

	assert.True(t, ReasonNotDisbursed.Filtered())
	assert.False(t, ReasonMissingDisbursementDate.Filtered())
}

func TestTrackerSamplesAreBounded(t *testing.T) {
	tr := NewTracker(2)
	for i := range 5 {
		tr.Add(Reject(model.EntityLoan, ReasonOutOfRange, fmt.Sprintf("LN%d", i), "", "").
			WithRow(model.RawRow{"loan_id": fmt.Sprintf("LN%d", i)}))
	}
	tr.Add(Reject(model.EntityCustomer, ReasonInvalidFormat, "C1", "email", "bad"))

	samples := tr.Samples()
	require.Len(t, samples, 3)
	assert.Equal(t, model.EntityCustomer, samples[0].Entity)
	assert.Equal(t, "LN0", samples[1].Key)
	assert.Equal(t, "LN1", samples[2].Key)
	assert.Equal(t, "LN1", samples[2].Row["loan_id"])
	assert.Equal(t, 6, tr.Total())
}

func TestTrackerZeroSamples(t *testing.T) {
	tr := NewTracker(-1)
	tr.Add(Reject(model.EntityLoan, ReasonOutOfRange, "LN1", "", ""))
	assert.Empty(t, tr.Samples())
	assert.Equal(t, 1, tr.Total())
}

func TestTrackerConcurrentAdds(t *testing.T) {
	tr := NewTracker(20)
	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range 100 {
				tr.Add(Reject(model.EntityTransaction, ReasonUnknownKey, fmt.Sprintf("T%d-%d", w, i), "", ""))
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 800, tr.Total())
	assert.Equal(t, 800, tr.Count(model.EntityTransaction, ReasonUnknownKey))
	assert.Len(t, tr.Samples(), 20)
}

func TestDedupeLast(t *testing.T) {
	type row struct {
		id    string
		value int
	}
	rows := []row{{"A", 1}, {"B", 2}, {"A", 3}, {"C", 4}, {"A", 5}}

	kept, rejected := DedupeLast(model.EntityLoan, rows, func(r row) string { return r.id })

	assert.Equal(t, []row{{"B", 2}, {"C", 4}, {"A", 5}}, kept)
	require.Len(t, rejected, 2)
	for _, r := range rejected {
		assert.Equal(t, ReasonDuplicateKey, r.Reason)
		assert.Equal(t, "A", r.Key)
		assert.Equal(t, model.EntityLoan, r.Entity)
	}
}

func TestDedupeLastWithoutDuplicates(t *testing.T) {
	rows := []string{"A", "B", "C"}
	kept, rejected := DedupeLast(model.EntityCustomer, rows, func(s string) string { return s })
	assert.Equal(t, rows, kept)
	assert.Empty(t, rejected)
}

func TestFieldHelpers(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"self_employed", "Self Employed"},
		{"  SALARIED ", "Salaried"},
		{"business__owner", "Business Owner"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, titleCase(tt.in))
		})
	}

	phone, ok := normalizePhone("+91-98765-43210")
	assert.True(t, ok)
	assert.Equal(t, "9876543210", phone)

	_, ok = normalizePhone("12345")
	assert.False(t, ok)

	assert.Equal(t, "Married", capitalize("mARRIED"))
}

func TestCapitalizeMultibyte(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"éCOLE", "École"},
		{"über", "Über"},
		{"  success ", "Success"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := capitalize(tt.in)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}
