package quality

import "github.com/Veraticus/creditflow-etl/internal/service"

// Check kinds.
const (
	KindCompleteness   = "completeness"
	KindUniqueness     = "uniqueness"
	KindReferential    = "referential_integrity"
	KindCurrentVersion = "scd_current_version"
)

// RequiredColumns lists the columns whose completeness is measured per table.
type RequiredColumns struct {
	Table   string
	Columns []string
}

// UniqueKey is a column that must hold no duplicates among rows matching Where.
type UniqueKey struct {
	Table  string
	Column string
	Where  string
}

// Rules is the set of checks an Auditor runs.
type Rules struct {
	Completeness []RequiredColumns
	Unique       []UniqueKey
	References   []service.ForeignKey
}

// DefaultRules covers the warehouse schema.
func DefaultRules() Rules {
	return Rules{
		Completeness: []RequiredColumns{
			{Table: "dim_customer", Columns: []string{
				"customer_id", "first_name", "last_name", "date_of_birth", "phone", "email", "city", "state",
			}},
			{Table: "fact_loan", Columns: []string{
				"loan_id", "customer_sk", "product_sk", "branch_sk", "disbursement_date_sk",
				"loan_amount", "interest_rate", "tenure_months", "loan_status",
			}},
			{Table: "fact_transaction", Columns: []string{
				"transaction_id", "loan_sk", "customer_sk", "transaction_date_sk",
				"transaction_type", "amount", "transaction_status",
			}},
			{Table: "fact_fraud_alert", Columns: []string{
				"alert_id", "customer_sk", "detection_date_sk", "risk_score", "risk_level", "investigation_status",
			}},
		},
		Unique: []UniqueKey{
			{Table: "fact_loan", Column: "loan_id"},
			{Table: "fact_transaction", Column: "transaction_id"},
			{Table: "fact_fraud_alert", Column: "alert_id"},
			{Table: "dim_customer", Column: "customer_id", Where: "is_current = 1"},
		},
		References: []service.ForeignKey{
			{Table: "fact_loan", Column: "customer_sk", RefTable: "dim_customer", RefColumn: "customer_sk"},
			{Table: "fact_loan", Column: "product_sk", RefTable: "dim_product", RefColumn: "product_sk"},
			{Table: "fact_loan", Column: "branch_sk", RefTable: "dim_branch", RefColumn: "branch_sk"},
			{Table: "fact_loan", Column: "application_date_sk", RefTable: "dim_date", RefColumn: "date_sk"},
			{Table: "fact_loan", Column: "disbursement_date_sk", RefTable: "dim_date", RefColumn: "date_sk"},
			{Table: "fact_loan", Column: "first_emi_date_sk", RefTable: "dim_date", RefColumn: "date_sk", Nullable: true},
			{Table: "fact_transaction", Column: "loan_sk", RefTable: "fact_loan", RefColumn: "loan_sk"},
			{Table: "fact_transaction", Column: "customer_sk", RefTable: "dim_customer", RefColumn: "customer_sk"},
			{Table: "fact_transaction", Column: "transaction_date_sk", RefTable: "dim_date", RefColumn: "date_sk"},
			{Table: "fact_fraud_alert", Column: "customer_sk", RefTable: "dim_customer", RefColumn: "customer_sk"},
			{Table: "fact_fraud_alert", Column: "loan_sk", RefTable: "fact_loan", RefColumn: "loan_sk", Nullable: true},
			{Table: "fact_fraud_alert", Column: "transaction_sk", RefTable: "fact_transaction", RefColumn: "transaction_sk", Nullable: true},
			{Table: "fact_fraud_alert", Column: "detection_date_sk", RefTable: "dim_date", RefColumn: "date_sk"},
			{Table: "fact_loan_daily_snapshot", Column: "loan_sk", RefTable: "fact_loan", RefColumn: "loan_sk"},
			{Table: "fact_loan_daily_snapshot", Column: "snapshot_date_sk", RefTable: "dim_date", RefColumn: "date_sk"},
		},
	}
}
