package model

import (
	"fmt"
	"time"
)

// Product is a lending product from the reference catalogue.
type Product struct {
	ProductID          string
	ProductName        string
	ProductType        string
	MinAmount          float64
	MaxAmount          float64
	MinRate            float64
	MaxRate            float64
	MinTenure          int
	MaxTenure          int
	CollateralRequired bool
	IsActive           bool
}

// ProductDimensionRow is a persisted product.
type ProductDimensionRow struct {
	Product
	ProductSK int64
}

// Branch is a lending branch from the reference catalogue.
type Branch struct {
	BranchID   string
	BranchName string
	City       string
	State      string
	Region     string
	BranchType string
	IsActive   bool
}

// BranchDimensionRow is a persisted branch.
type BranchDimensionRow struct {
	Branch
	BranchSK int64
}

// DateDimensionRow is one calendar day in dim_date.
type DateDimensionRow struct {
	FullDate      time.Time
	MonthName     string
	Weekday       string
	FinancialYear string
	DateSK        int64
	Day           int
	Month         int
	Quarter       int
	Year          int
	Week          int
	IsWeekend     bool
	IsHoliday     bool
}

// NewDateRow builds the dimension row for a calendar day. The financial
// year starts in April.
func NewDateRow(t time.Time) DateDimensionRow {
	t = Day(t)
	year, month := t.Year(), int(t.Month())
	_, week := t.ISOWeek()

	fy := fmt.Sprintf("FY%d-%d", year-1, year)
	if month >= 4 {
		fy = fmt.Sprintf("FY%d-%d", year, year+1)
	}

	return DateDimensionRow{
		DateSK:        DateSK(t),
		FullDate:      t,
		Day:           t.Day(),
		Month:         month,
		MonthName:     t.Month().String(),
		Quarter:       (month-1)/3 + 1,
		Year:          year,
		Week:          week,
		Weekday:       t.Weekday().String(),
		IsWeekend:     t.Weekday() == time.Saturday || t.Weekday() == time.Sunday,
		FinancialYear: fy,
	}
}

// DateRange builds one row per day from start to end inclusive.
func DateRange(start, end time.Time) []DateDimensionRow {
	start, end = Day(start), Day(end)
	if end.Before(start) {
		return nil
	}
	rows := make([]DateDimensionRow, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		rows = append(rows, NewDateRow(d))
	}
	return rows
}
