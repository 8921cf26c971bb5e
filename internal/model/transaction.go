package model

import "time"

// Transaction types.
const (
	TxnEMI          = "EMI"
	TxnPrepayment   = "PREPAYMENT"
	TxnForeclosure  = "FORECLOSURE"
	TxnDisbursement = "DISBURSEMENT"
	TxnPenalty      = "PENALTY"
	TxnFee          = "FEE"
	TxnWriteOff     = "WRITEOFF"
)

// TransactionTypes lists every accepted transaction type.
var TransactionTypes = []string{
	TxnEMI, TxnPrepayment, TxnForeclosure, TxnDisbursement, TxnPenalty, TxnFee, TxnWriteOff,
}

// TxnStatusSuccess marks a settled transaction. Only settled transactions move balances.
const TxnStatusSuccess = "Success"

// Transaction is a cleaned ledger entry. References are natural keys.
type Transaction struct {
	TransactionDate      time.Time
	ReconciledDate       *time.Time
	TransactionID        string
	LoanID               string
	CustomerID           string
	TransactionType      string
	TransactionMode      string
	PaymentReference     string
	BankName             string
	TransactionStatus    string
	FailureReason        string
	ReconciliationStatus string
	Amount               float64
	PrincipalComponent   float64
	InterestComponent    float64
	PenaltyComponent     float64
	GSTComponent         float64
}

// TransactionFactRow is a transaction with every reference resolved.
type TransactionFactRow struct {
	Transaction
	TransactionSK     int64
	LoanSK            int64
	CustomerSK        int64
	TransactionDateSK int64
}

// Mutation returns the balance effect of this transaction on its loan, if any.
func (t *TransactionFactRow) Mutation() (BalanceMutation, bool) {
	if t.TransactionStatus != TxnStatusSuccess {
		return BalanceMutation{}, false
	}

	m := BalanceMutation{LoanSK: t.LoanSK}
	switch t.TransactionType {
	case TxnEMI, TxnPrepayment:
		m.PrincipalPaid = t.PrincipalComponent
		if m.PrincipalPaid <= 0 {
			m.PrincipalPaid = t.Amount
		}
	case TxnForeclosure:
		m.Foreclose = true
	case TxnWriteOff:
		m.WriteOff = true
	default:
		return BalanceMutation{}, false
	}
	return m, true
}

// MergeMutations folds per-transaction effects into one mutation per loan,
// preserving first-seen loan order.
func MergeMutations(rows []TransactionFactRow) []BalanceMutation {
	index := make(map[int64]int)
	var merged []BalanceMutation
	for i := range rows {
		m, ok := rows[i].Mutation()
		if !ok {
			continue
		}
		pos, seen := index[m.LoanSK]
		if !seen {
			index[m.LoanSK] = len(merged)
			merged = append(merged, m)
			continue
		}
		merged[pos].PrincipalPaid += m.PrincipalPaid
		merged[pos].Foreclose = merged[pos].Foreclose || m.Foreclose
		merged[pos].WriteOff = merged[pos].WriteOff || m.WriteOff
	}
	return merged
}
