package scd

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/Veraticus/creditflow-etl/internal/common"
	"github.com/Veraticus/creditflow-etl/internal/model"
)

// trackedField compares one versioned attribute and copies it between
// versions. keep also copies values derived from the attribute so that an
// untracked change never drags a tracked value along.
type trackedField struct {
	changed func(old, cur *model.Customer, threshold float64) bool
	keep    func(dst, src *model.Customer)
}

var trackable = map[string]trackedField{
	"city": {
		changed: func(a, b *model.Customer, _ float64) bool { return a.City != b.City },
		keep:    func(dst, src *model.Customer) { dst.City = src.City },
	},
	"state": {
		changed: func(a, b *model.Customer, _ float64) bool { return a.State != b.State },
		keep:    func(dst, src *model.Customer) { dst.State = src.State },
	},
	"pincode": {
		changed: func(a, b *model.Customer, _ float64) bool { return a.Pincode != b.Pincode },
		keep:    func(dst, src *model.Customer) { dst.Pincode = src.Pincode },
	},
	"marital_status": {
		changed: func(a, b *model.Customer, _ float64) bool { return a.MaritalStatus != b.MaritalStatus },
		keep:    func(dst, src *model.Customer) { dst.MaritalStatus = src.MaritalStatus },
	},
	"employment_type": {
		changed: func(a, b *model.Customer, _ float64) bool { return a.EmploymentType != b.EmploymentType },
		keep:    func(dst, src *model.Customer) { dst.EmploymentType = src.EmploymentType },
	},
	"education": {
		changed: func(a, b *model.Customer, _ float64) bool { return a.Education != b.Education },
		keep:    func(dst, src *model.Customer) { dst.Education = src.Education },
	},
	"customer_segment": {
		changed: func(a, b *model.Customer, _ float64) bool { return a.Segment != b.Segment },
		keep:    func(dst, src *model.Customer) { dst.Segment = src.Segment },
	},
	"income": {
		changed: func(a, b *model.Customer, threshold float64) bool {
			return IncomeChanged(a.AnnualIncome, b.AnnualIncome, threshold)
		},
		keep: func(dst, src *model.Customer) {
			dst.AnnualIncome = src.AnnualIncome
			dst.IncomeTier = src.IncomeTier
			dst.ValueTier = src.ValueTier
		},
	},
	"credit_score": {
		changed: func(a, b *model.Customer, _ float64) bool { return a.CreditScore != b.CreditScore },
		keep: func(dst, src *model.Customer) {
			dst.CreditScore = src.CreditScore
			dst.CreditTier = src.CreditTier
			dst.ValueTier = src.ValueTier
		},
	},
}

// TrackableFields lists the attribute names accepted in scd.tracked_fields.
func TrackableFields() []string {
	names := make([]string, 0, len(trackable))
	for name := range trackable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupFields(names []string) ([]string, []trackedField, error) {
	if len(names) == 0 {
		return nil, nil, fmt.Errorf("%w: no tracked fields", common.ErrInvalidConfig)
	}
	var (
		kept   []string
		fields []trackedField
	)
	for _, name := range names {
		f, ok := trackable[name]
		if !ok {
			return nil, nil, fmt.Errorf("%w: cannot track customer field %q (known: %v)",
				common.ErrInvalidConfig, name, TrackableFields())
		}
		if slices.Contains(kept, name) {
			continue
		}
		kept = append(kept, name)
		fields = append(fields, f)
	}
	return kept, fields, nil
}

// IncomeChanged reports whether income moved by strictly more than
// threshold, as a fraction of the old income. Amounts are compared in whole
// paise so an exact threshold move never counts. Any move away from zero
// counts.
func IncomeChanged(old, cur, threshold float64) bool {
	oldPaise, curPaise := math.Round(old*100), math.Round(cur*100)
	if oldPaise == 0 {
		return curPaise != 0
	}
	limit := math.Round(math.Abs(oldPaise) * threshold)
	return math.Abs(curPaise-oldPaise) > limit
}

// sameAttributes compares every customer attribute.
func sameAttributes(a, b model.Customer) bool {
	if !model.SameDay(a.DateOfBirth, b.DateOfBirth) || !model.SameDay(a.AcquisitionDate, b.AcquisitionDate) {
		return false
	}
	a.DateOfBirth, b.DateOfBirth = nil, nil
	a.AcquisitionDate, b.AcquisitionDate = nil, nil
	return a == b
}
