// Package model defines the warehouse-facing types shared by every stage of the load.
package model

import "time"

// Entity identifies one kind of upstream row or warehouse table.
type Entity string

// Entities in load dependency order.
const (
	EntityDate        Entity = "date"
	EntityBranch      Entity = "branch"
	EntityProduct     Entity = "product"
	EntityCustomer    Entity = "customer"
	EntityLoan        Entity = "loan"
	EntityTransaction Entity = "transaction"
	EntityFraudAlert  Entity = "fraud_alert"
	EntitySnapshot    Entity = "loan_snapshot"
)

// LoadOrder lists entities in the order the loader persists them.
var LoadOrder = []Entity{
	EntityDate,
	EntityBranch,
	EntityProduct,
	EntityCustomer,
	EntityLoan,
	EntityTransaction,
	EntityFraudAlert,
	EntitySnapshot,
}

// SourceEntities are the entities delivered by the upstream producer.
var SourceEntities = []Entity{
	EntityBranch,
	EntityProduct,
	EntityCustomer,
	EntityLoan,
	EntityTransaction,
	EntityFraudAlert,
}

// Table returns the warehouse table an entity is loaded into.
func (e Entity) Table() string {
	switch e {
	case EntityDate:
		return "dim_date"
	case EntityBranch:
		return "dim_branch"
	case EntityProduct:
		return "dim_product"
	case EntityCustomer:
		return "dim_customer"
	case EntityLoan:
		return "fact_loan"
	case EntityTransaction:
		return "fact_transaction"
	case EntityFraudAlert:
		return "fact_fraud_alert"
	case EntitySnapshot:
		return "fact_loan_daily_snapshot"
	default:
		return ""
	}
}

// Dimension names a natural-key to surrogate-key mapping held by the key resolver.
type Dimension string

// Dimensions with surrogate keys. Loan, transaction and fraud alert facts are
// keyed too so that later stages and reruns can resolve them.
const (
	DimDate        Dimension = "date"
	DimBranch      Dimension = "branch"
	DimProduct     Dimension = "product"
	DimCustomer    Dimension = "customer"
	DimLoan        Dimension = "loan"
	DimTransaction Dimension = "transaction"
	DimFraudAlert  Dimension = "fraud_alert"
)

// AllDimensions lists every resolvable dimension.
var AllDimensions = []Dimension{
	DimDate, DimBranch, DimProduct, DimCustomer, DimLoan, DimTransaction, DimFraudAlert,
}

// RawRow is one upstream record keyed by column name. Values are uncoerced text.
type RawRow map[string]string

// Get returns the value for a column, or the empty string.
func (r RawRow) Get(column string) string {
	if r == nil {
		return ""
	}
	return r[column]
}

// DateSK derives the deterministic YYYYMMDD surrogate key for a calendar date.
func DateSK(t time.Time) int64 {
	y, m, d := t.Date()
	return int64(y*10000 + int(m)*100 + d)
}

// Day truncates a timestamp to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether two optional dates denote the same calendar day.
func SameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return DateSK(*a) == DateSK(*b)
}
