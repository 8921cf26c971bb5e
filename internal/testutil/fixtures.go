package testutil

import (
	"fmt"
	"maps"
	"time"

	"github.com/Veraticus/creditflow-etl/internal/model"
	"github.com/Veraticus/creditflow-etl/internal/source"
)

// Fixture calendar. Every fixture date falls inside it.
var (
	ProcessingDate = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	DateRangeStart = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	DateRangeEnd   = time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
)

// Reference keys used by the default loan fixture.
const (
	BranchID  = "BR001"
	ProductID = "PRD001"
)

// With returns a copy of row with the given column/value pairs applied.
// An empty value clears the column.
func With(row model.RawRow, kv ...string) model.RawRow {
	if len(kv)%2 != 0 {
		panic("testutil.With needs column/value pairs")
	}
	out := maps.Clone(row)
	if out == nil {
		out = model.RawRow{}
	}
	for i := 0; i < len(kv); i += 2 {
		if kv[i+1] == "" {
			delete(out, kv[i])
			continue
		}
		out[kv[i]] = kv[i+1]
	}
	return out
}

// CustomerRow returns a valid customer row.
func CustomerRow(id string, kv ...string) model.RawRow {
	return With(model.RawRow{
		"customer_id":         id,
		"first_name":          "Asha",
		"last_name":           "Rao",
		"date_of_birth":       "1990-05-10",
		"gender":              "female",
		"marital_status":      "single",
		"education":           "Graduate",
		"employment_type":     "salaried",
		"annual_income":       "600000",
		"credit_score":        "720",
		"city":                "pune",
		"state":               "maharashtra",
		"pincode":             "411001",
		"address_line1":       "12 MG Road",
		"phone":               "+91 98765 43210",
		"email":               "Asha.Rao@Example.com",
		"customer_segment":    "Mass",
		"acquisition_date":    "2023-06-01",
		"acquisition_channel": "Branch",
	}, kv...)
}

// ProductRow returns a valid product row.
func ProductRow(id string, kv ...string) model.RawRow {
	return With(model.RawRow{
		"product_id":   id,
		"product_name": "Personal Loan",
		"product_type": "Unsecured",
		"min_amount":   "50000",
		"max_amount":   "1500000",
		"min_rate":     "11.0",
		"max_rate":     "16.0",
		"min_tenure":   "6",
		"max_tenure":   "60",
		"collateral":   "False",
	}, kv...)
}

// BranchRow returns a valid branch row.
func BranchRow(id string, kv ...string) model.RawRow {
	return With(model.RawRow{
		"branch_id":   id,
		"branch_name": "Pune Main",
		"city":        "Pune",
		"state":       "Maharashtra",
		"region":      "West",
		"branch_type": "Urban",
	}, kv...)
}

// LoanRow returns a valid active loan for customerID on the default product and branch.
func LoanRow(id, customerID string, kv ...string) model.RawRow {
	return With(model.RawRow{
		"loan_id":                id,
		"customer_id":            customerID,
		"product_id":             ProductID,
		"branch_id":              BranchID,
		"application_date":       "2024-01-05",
		"disbursement_date":      "2024-01-10",
		"first_emi_date":         "2024-02-10",
		"loan_amount":            "100000",
		"interest_rate":          "12.5",
		"tenure_months":          "24",
		"emi_amount":             "4730",
		"loan_purpose":           "Medical",
		"probability_of_default": "0.05",
		"loss_given_default":     "0.45",
		"current_balance":        "100000",
		"days_past_due":          "0",
		"loan_status":            "Active",
	}, kv...)
}

// TransactionRow returns a settled EMI payment.
func TransactionRow(id, loanID, customerID string, kv ...string) model.RawRow {
	return With(model.RawRow{
		"transaction_id":      id,
		"loan_id":             loanID,
		"customer_id":         customerID,
		"transaction_date":    "2024-02-10",
		"transaction_type":    "EMI",
		"transaction_mode":    "upi",
		"amount":              "4730",
		"principal_component": "3688",
		"interest_component":  "1042",
		"transaction_status":  "Success",
	}, kv...)
}

// FraudAlertRow returns a new critical alert against customerID.
func FraudAlertRow(id, customerID string, kv ...string) model.RawRow {
	return With(model.RawRow{
		"alert_id":             id,
		"customer_id":          customerID,
		"detection_date":       "2024-02-12",
		"alert_type":           "Identity Theft",
		"risk_score":           "85",
		"investigation_status": "New",
		"financial_impact":     "25000",
	}, kv...)
}

// ID formats a fixture key such as CUST0007.
func ID(prefix string, n int) string {
	return fmt.Sprintf("%s%04d", prefix, n)
}

// Dataset collects raw rows per entity for a pipeline or loader test.
type Dataset struct {
	rows map[model.Entity][]model.RawRow
}

// NewDataset returns a dataset holding the default branch and product.
func NewDataset() *Dataset {
	return &Dataset{rows: map[model.Entity][]model.RawRow{
		model.EntityBranch:  {BranchRow(BranchID)},
		model.EntityProduct: {ProductRow(ProductID)},
	}}
}

// Add appends rows for an entity.
func (d *Dataset) Add(entity model.Entity, rows ...model.RawRow) *Dataset {
	d.rows[entity] = append(d.rows[entity], rows...)
	return d
}

// WithCustomers adds n customers CUST0001..CUSTnnnn.
func (d *Dataset) WithCustomers(n int) *Dataset {
	for i := 1; i <= n; i++ {
		d.Add(model.EntityCustomer, CustomerRow(ID("CUST", i)))
	}
	return d
}

// WithLoans adds n loans LN0001..LNnnnn spread round-robin over the first
// customers CUST0001..CUSTcccc.
func (d *Dataset) WithLoans(n, customers int) *Dataset {
	for i := 1; i <= n; i++ {
		d.Add(model.EntityLoan, LoanRow(ID("LN", i), ID("CUST", (i-1)%customers+1)))
	}
	return d
}

// Rows returns the rows collected for an entity.
func (d *Dataset) Rows(entity model.Entity) []model.RawRow {
	return d.rows[entity]
}

// Source exposes the dataset as an in-memory row source.
func (d *Dataset) Source() *source.Memory {
	return source.NewMemory(d.rows)
}
