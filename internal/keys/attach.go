package keys

import (
	"errors"
	"time"

	"github.com/Veraticus/creditflow-etl/internal/common"
	"github.com/Veraticus/creditflow-etl/internal/model"
	"github.com/Veraticus/creditflow-etl/internal/validate"
)

// ref is one reference of a fact row to resolve.
type ref struct {
	dim    model.Dimension
	column string
	key    string
	date   *time.Time
	dst    *int64
}

// resolveRefs fills every dst or reports the first reference that does not
// resolve.
func resolveRefs(l Lookup, entity model.Entity, factKey string, refs []ref) *validate.Rejection {
	for _, r := range refs {
		var (
			sk  int64
			err error
		)
		if r.date != nil {
			sk, err = l.ResolveDate(*r.date)
		} else {
			sk, err = l.Resolve(r.dim, r.key)
		}
		if err != nil {
			reason := validate.ReasonUnknownKey
			if errors.Is(err, common.ErrMultipleCurrentVersions) {
				reason = validate.ReasonMultipleCurrentVersions
			}
			return validate.Reject(entity, reason, factKey, r.column, err.Error())
		}
		*r.dst = sk
	}
	return nil
}

// AttachLoan resolves a loan's customer, product, branch and date references.
func AttachLoan(l Lookup, loan *model.Loan) (model.LoanFactRow, *validate.Rejection) {
	row := model.LoanFactRow{Loan: *loan}
	refs := []ref{
		{dim: model.DimCustomer, column: "customer_id", key: loan.CustomerID, dst: &row.CustomerSK},
		{dim: model.DimProduct, column: "product_id", key: loan.ProductID, dst: &row.ProductSK},
		{dim: model.DimBranch, column: "branch_id", key: loan.BranchID, dst: &row.BranchSK},
		{column: "application_date", date: &loan.ApplicationDate, dst: &row.ApplicationDateSK},
	}
	if loan.DisbursementDate != nil {
		refs = append(refs, ref{column: "disbursement_date", date: loan.DisbursementDate, dst: &row.DisbursementDateSK})
	}
	var firstEMI int64
	if loan.FirstEMIDate != nil {
		refs = append(refs, ref{column: "first_emi_date", date: loan.FirstEMIDate, dst: &firstEMI})
	}

	if rej := resolveRefs(l, model.EntityLoan, loan.LoanID, refs); rej != nil {
		return model.LoanFactRow{}, rej
	}
	if loan.FirstEMIDate != nil {
		row.FirstEMIDateSK = &firstEMI
	}
	return row, nil
}

// AttachTransaction resolves a transaction's loan, customer and date.
func AttachTransaction(l Lookup, txn *model.Transaction) (model.TransactionFactRow, *validate.Rejection) {
	row := model.TransactionFactRow{Transaction: *txn}
	rej := resolveRefs(l, model.EntityTransaction, txn.TransactionID, []ref{
		{dim: model.DimLoan, column: "loan_id", key: txn.LoanID, dst: &row.LoanSK},
		{dim: model.DimCustomer, column: "customer_id", key: txn.CustomerID, dst: &row.CustomerSK},
		{column: "transaction_date", date: &txn.TransactionDate, dst: &row.TransactionDateSK},
	})
	if rej != nil {
		return model.TransactionFactRow{}, rej
	}
	return row, nil
}

// AttachFraudAlert resolves an alert's references. Loan and transaction are
// optional, but must resolve when given.
func AttachFraudAlert(l Lookup, alert *model.FraudAlert) (model.FraudAlertFactRow, *validate.Rejection) {
	row := model.FraudAlertFactRow{FraudAlert: *alert}
	var loanSK, txnSK int64
	refs := []ref{
		{dim: model.DimCustomer, column: "customer_id", key: alert.CustomerID, dst: &row.CustomerSK},
		{column: "detection_date", date: &alert.DetectionDate, dst: &row.DetectionDateSK},
	}
	if alert.LoanID != "" {
		refs = append(refs, ref{dim: model.DimLoan, column: "loan_id", key: alert.LoanID, dst: &loanSK})
	}
	if alert.TransactionID != "" {
		refs = append(refs, ref{dim: model.DimTransaction, column: "transaction_id", key: alert.TransactionID, dst: &txnSK})
	}

	if rej := resolveRefs(l, model.EntityFraudAlert, alert.AlertID, refs); rej != nil {
		return model.FraudAlertFactRow{}, rej
	}
	if alert.LoanID != "" {
		row.LoanSK = &loanSK
	}
	if alert.TransactionID != "" {
		row.TransactionSK = &txnSK
	}
	return row, nil
}
