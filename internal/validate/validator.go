// Package validate turns raw upstream rows into clean warehouse records or
// rejections. Validation never fails the run: every problem becomes a
// Rejection value.
package validate

import (
	"time"

	"github.com/Veraticus/creditflow-etl/internal/model"
	"github.com/Veraticus/creditflow-etl/internal/risk"
)

// Options configures a Validator.
type Options struct {
	ProcessingDate time.Time
	Bucketer       *risk.Bucketer
}

// Validator cleans and checks raw rows. It holds no mutable state and is
// safe for concurrent use.
type Validator struct {
	bucketer *risk.Bucketer
	today    time.Time
}

// New creates a validator that treats opts.ProcessingDate as today.
func New(opts Options) *Validator {
	today := opts.ProcessingDate
	if today.IsZero() {
		today = time.Now()
	}
	b := opts.Bucketer
	if b == nil {
		b = risk.DefaultBucketer()
	}
	return &Validator{bucketer: b, today: model.Day(today)}
}

// Validate dispatches a raw row to the validator for its entity. The
// returned value is a *model.Customer, *model.Loan, *model.Transaction,
// *model.FraudAlert, *model.Product or *model.Branch.
func (v *Validator) Validate(entity model.Entity, raw model.RawRow) (any, *Rejection) {
	var (
		out any
		rej *Rejection
	)
	switch entity {
	case model.EntityCustomer:
		out, rej = v.Customer(raw)
	case model.EntityLoan:
		out, rej = v.Loan(raw)
	case model.EntityTransaction:
		out, rej = v.Transaction(raw)
	case model.EntityFraudAlert:
		out, rej = v.FraudAlert(raw)
	case model.EntityProduct:
		out, rej = v.Product(raw)
	case model.EntityBranch:
		out, rej = v.Branch(raw)
	default:
		return nil, Reject(entity, ReasonInvalidFormat, "", "", "entity is not loaded from upstream rows").WithRow(raw)
	}
	if rej != nil {
		return nil, rej
	}
	return out, nil
}

// Customer validates one customer row.
func (v *Validator) Customer(raw model.RawRow) (*model.Customer, *Rejection) {
	f := newFields(model.EntityCustomer, raw, "customer_id")
	c := &model.Customer{
		CustomerID:         f.key,
		FirstName:          f.required("first_name"),
		LastName:           f.required("last_name"),
		DateOfBirth:        f.date("date_of_birth"),
		Age:                f.int("age", 0),
		Gender:             capitalize(f.str("gender")),
		MaritalStatus:      capitalize(f.str("marital_status")),
		Education:          f.str("education"),
		EmploymentType:     titleCase(f.str("employment_type")),
		AnnualIncome:       f.float("annual_income", 0),
		IncomeTier:         f.str("income_tier"),
		CreditScore:        f.int("credit_score", 0),
		CreditTier:         f.str("credit_tier"),
		City:               titleCase(f.str("city")),
		State:              titleCase(f.str("state")),
		Pincode:            f.str("pincode"),
		AddressLine1:       f.str("address_line1"),
		AddressLine2:       f.str("address_line2"),
		Segment:            f.str("customer_segment"),
		ValueTier:          f.str("customer_value_tier"),
		AcquisitionDate:    f.date("acquisition_date"),
		AcquisitionChannel: f.str("acquisition_channel"),
	}
	if !f.ok() {
		return nil, f.err
	}

	if c.Age == 0 && c.DateOfBirth != nil {
		c.Age = ageOn(*c.DateOfBirth, v.today)
	}
	if c.Age == 0 {
		f.fail(ReasonMissingRequiredField, "age", "neither age nor date_of_birth given")
	}
	f.between("age", float64(c.Age), 18, 100)

	if f.str("credit_score") == "" {
		f.fail(ReasonMissingRequiredField, "credit_score", "value is empty")
	}
	f.between("credit_score", float64(c.CreditScore), 300, 900)

	if c.AnnualIncome < 0 {
		f.fail(ReasonOutOfRange, "annual_income", "must not be negative")
	}
	c.AnnualIncome = min(c.AnnualIncome, maxAnnualIncome)

	if phone := f.str("phone"); phone != "" {
		normalized, valid := normalizePhone(phone)
		if !valid {
			f.fail(ReasonInvalidFormat, "phone", "fewer than 10 digits")
		}
		c.Phone = normalized
	}
	if email := f.str("email"); email != "" {
		normalized, valid := normalizeEmail(email)
		if !valid {
			f.fail(ReasonInvalidFormat, "email", "not an email address")
		}
		c.Email = normalized
	}
	if !f.ok() {
		return nil, f.err
	}

	if c.IncomeTier == "" {
		c.IncomeTier = IncomeTier(c.AnnualIncome)
	}
	if c.CreditTier == "" {
		c.CreditTier = CreditTier(c.CreditScore)
	}
	if c.ValueTier == "" {
		c.ValueTier = ValueTier(c.AnnualIncome, c.CreditScore)
	}
	return c, nil
}

// Product validates one product catalogue row.
func (v *Validator) Product(raw model.RawRow) (*model.Product, *Rejection) {
	f := newFields(model.EntityProduct, raw, "product_id")
	p := &model.Product{
		ProductID:   f.key,
		ProductName: f.required("product_name"),
		ProductType: f.str("product_type"),
		MinAmount:   f.float("min_amount", 0),
		MaxAmount:   f.float("max_amount", 0),
		MinRate:     f.float("min_rate", 0),
		MaxRate:     f.float("max_rate", 0),
		MinTenure:   f.int("min_tenure", 0),
		MaxTenure:   f.int("max_tenure", 0),
		IsActive:    f.boolDefault("is_active", true),
	}
	collateral := "collateral_required"
	if f.str(collateral) == "" {
		collateral = "collateral"
	}
	p.CollateralRequired = f.bool(collateral)

	if p.MaxAmount > 0 && p.MinAmount > p.MaxAmount {
		f.fail(ReasonOutOfRange, "min_amount", "exceeds max_amount")
	}
	if p.MaxRate > 0 && p.MinRate > p.MaxRate {
		f.fail(ReasonOutOfRange, "min_rate", "exceeds max_rate")
	}
	if p.MaxTenure > 0 && p.MinTenure > p.MaxTenure {
		f.fail(ReasonOutOfRange, "min_tenure", "exceeds max_tenure")
	}
	if !f.ok() {
		return nil, f.err
	}
	return p, nil
}

// Branch validates one branch catalogue row.
func (v *Validator) Branch(raw model.RawRow) (*model.Branch, *Rejection) {
	f := newFields(model.EntityBranch, raw, "branch_id")
	b := &model.Branch{
		BranchID:   f.key,
		BranchName: f.required("branch_name"),
		City:       titleCase(f.str("city")),
		State:      titleCase(f.str("state")),
		Region:     f.str("region"),
		BranchType: f.str("branch_type"),
		IsActive:   f.boolDefault("is_active", true),
	}
	if !f.ok() {
		return nil, f.err
	}
	return b, nil
}

const maxAnnualIncome = 100_000_000

func ageOn(dob, today time.Time) int {
	age := today.Year() - dob.Year()
	if today.Month() < dob.Month() || (today.Month() == dob.Month() && today.Day() < dob.Day()) {
		age--
	}
	return age
}
