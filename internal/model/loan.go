package model

import "time"

// Loan statuses.
const (
	LoanActive       = "Active"
	LoanClosed       = "Closed"
	LoanForeclosed   = "Foreclosed"
	LoanNPA          = "NPA"
	LoanWrittenOff   = "Written Off"
	LoanRestructured = "Restructured"
	LoanRejected     = "Rejected"
	LoanPending      = "Pending"
)

// LoanStatuses lists every accepted loan status.
var LoanStatuses = []string{
	LoanActive, LoanClosed, LoanForeclosed, LoanNPA, LoanWrittenOff, LoanRestructured, LoanRejected, LoanPending,
}

// Loan is a cleaned loan record. References are natural keys.
type Loan struct {
	ApplicationDate  time.Time
	DisbursementDate *time.Time
	FirstEMIDate     *time.Time
	LoanID           string
	CustomerID       string
	ProductID        string
	BranchID         string
	LoanPurpose      string
	DPDBucket        string
	LoanStatus       string
	FraudType        string
	LoanAmount       float64
	SanctionedAmount float64
	InterestRate     float64
	EMIAmount        float64
	ProcessingFee    float64
	CollateralValue  float64
	PD               float64
	LGD              float64
	EAD              float64
	ExpectedLoss     float64
	CurrentBalance   float64
	OverdueAmount    float64
	WrittenOffAmount float64
	TenureMonths     int
	DaysPastDue      int
	CollectionTier   int
	NPAFlag          bool
	FraudFlag        bool
	WrittenOffFlag   bool
}

// LoanFactRow is a loan with every reference resolved to a surrogate key.
type LoanFactRow struct {
	FirstEMIDateSK *int64
	Loan
	LoanSK             int64
	CustomerSK         int64
	ProductSK          int64
	BranchSK           int64
	ApplicationDateSK  int64
	DisbursementDateSK int64
}

// LoanPosition is the mutable state of a persisted loan.
type LoanPosition struct {
	LoanID         string
	LoanStatus     string
	LoanSK         int64
	CurrentBalance float64
	OverdueAmount  float64
	PD             float64
	LGD            float64
	EAD            float64
	ExpectedLoss   float64
	DaysPastDue    int
	NPAFlag        bool
	WrittenOffFlag bool
}

// LoanSnapshotRow is one loan's position on one day.
type LoanSnapshotRow struct {
	DPDBucket      string
	LoanStatus     string
	LoanSK         int64
	SnapshotDateSK int64
	CurrentBalance float64
	OverdueAmount  float64
	ExpectedLoss   float64
	DaysPastDue    int
	NPAFlag        bool
}

// BalanceMutation is the net effect of a batch of transactions on one loan.
type BalanceMutation struct {
	LoanSK        int64
	PrincipalPaid float64
	Foreclose     bool
	WriteOff      bool
}
