package model

import "time"

// Customer is a cleaned customer record keyed by its natural key.
type Customer struct {
	DateOfBirth        *time.Time
	AcquisitionDate    *time.Time
	CustomerID         string
	FirstName          string
	LastName           string
	Gender             string
	MaritalStatus      string
	Education          string
	EmploymentType     string
	IncomeTier         string
	CreditTier         string
	City               string
	State              string
	Pincode            string
	AddressLine1       string
	AddressLine2       string
	Phone              string
	Email              string
	Segment            string
	ValueTier          string
	AcquisitionChannel string
	AnnualIncome       float64
	Age                int
	CreditScore        int
}

// CustomerDimensionRow is one version of a customer in dim_customer.
// EffectiveEnd is nil while the version is open.
type CustomerDimensionRow struct {
	EffectiveStart time.Time
	EffectiveEnd   *time.Time
	Customer
	CustomerSK int64
	IsCurrent  bool
}
