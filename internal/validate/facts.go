package validate

import (
	"strings"

	"github.com/Veraticus/creditflow-etl/internal/model"
	"github.com/Veraticus/creditflow-etl/internal/risk"
)

// Loan validates one loan row and derives its delinquency attributes.
func (v *Validator) Loan(raw model.RawRow) (*model.Loan, *Rejection) {
	f := newFields(model.EntityLoan, raw, "loan_id")
	l := &model.Loan{
		LoanID:           f.key,
		CustomerID:       f.required("customer_id"),
		ProductID:        f.required("product_id"),
		BranchID:         f.required("branch_id"),
		ApplicationDate:  f.requiredDate("application_date"),
		DisbursementDate: f.date("disbursement_date"),
		FirstEMIDate:     f.date("first_emi_date"),
		LoanAmount:       f.requiredFloat("loan_amount"),
		InterestRate:     f.requiredFloat("interest_rate"),
		TenureMonths:     f.int("tenure_months", 0),
		EMIAmount:        f.float("emi_amount", 0),
		ProcessingFee:    f.float("processing_fee", 0),
		LoanPurpose:      f.str("loan_purpose"),
		CollateralValue:  f.float("collateral_value", 0),
		PD:               f.float("probability_of_default", 0),
		LGD:              f.float("loss_given_default", 0),
		OverdueAmount:    f.float("overdue_amount", 0),
		DaysPastDue:      f.int("days_past_due", 0),
		WrittenOffFlag:   f.bool("written_off_flag"),
		WrittenOffAmount: f.float("written_off_amount", 0),
		FraudFlag:        f.bool("fraud_flag"),
		FraudType:        f.str("fraud_type"),
		CollectionTier:   f.int("collection_tier", 1),
	}
	l.SanctionedAmount = f.float("sanctioned_amount", l.LoanAmount)
	l.CurrentBalance = f.float("current_balance", l.LoanAmount)
	l.EAD = f.float("exposure_at_default", l.CurrentBalance)
	l.ExpectedLoss = f.float("expected_loss", -1)
	if f.str("tenure_months") == "" {
		f.fail(ReasonMissingRequiredField, "tenure_months", "value is empty")
	}

	status, known := matchStatus(f.str("loan_status"))
	if !known {
		f.fail(ReasonInvalidFormat, "loan_status", "unknown loan status "+f.str("loan_status"))
	}
	l.LoanStatus = status
	if !f.ok() {
		return nil, f.err
	}

	switch {
	case l.LoanStatus == model.LoanRejected || l.LoanStatus == model.LoanPending:
		f.fail(ReasonNotDisbursed, "loan_status", l.LoanStatus+" loans are not loaded")
	case l.DisbursementDate == nil:
		f.fail(ReasonMissingDisbursementDate, "disbursement_date", l.LoanStatus+" loan has no disbursement date")
	case l.DisbursementDate.Before(l.ApplicationDate):
		f.fail(ReasonOutOfRange, "disbursement_date", "before application_date")
	}
	if l.ApplicationDate.After(v.today) {
		f.fail(ReasonFutureDate, "application_date", "after processing date")
	}

	f.positive("loan_amount", l.LoanAmount)
	f.between("interest_rate", l.InterestRate, 5, 30)
	f.between("tenure_months", float64(l.TenureMonths), 1, 360)
	f.between("probability_of_default", l.PD, 0, 1)
	f.between("loss_given_default", l.LGD, 0, 1)
	for _, c := range []struct {
		name   string
		amount float64
	}{
		{"current_balance", l.CurrentBalance},
		{"overdue_amount", l.OverdueAmount},
		{"emi_amount", l.EMIAmount},
	} {
		if c.amount < 0 {
			f.fail(ReasonOutOfRange, c.name, "must not be negative")
		}
	}
	if !f.ok() {
		return nil, f.err
	}

	if l.DaysPastDue < 0 || l.LoanStatus == model.LoanActive {
		l.DaysPastDue = 0
	}
	l.DPDBucket = v.bucketer.Bucket(l.DaysPastDue)
	l.NPAFlag = v.bucketer.IsNPA(l.DaysPastDue)
	if l.LoanStatus == model.LoanWrittenOff {
		l.WrittenOffFlag = true
	}
	if l.ExpectedLoss < 0 {
		l.ExpectedLoss = risk.ExpectedLoss(l.PD, l.LGD, l.EAD)
	}
	return l, nil
}

// Transaction validates one ledger entry.
func (v *Validator) Transaction(raw model.RawRow) (*model.Transaction, *Rejection) {
	f := newFields(model.EntityTransaction, raw, "transaction_id")
	t := &model.Transaction{
		TransactionID:        f.key,
		LoanID:               f.required("loan_id"),
		CustomerID:           f.required("customer_id"),
		TransactionDate:      f.requiredDate("transaction_date"),
		TransactionType:      transactionType(f.str("transaction_type")),
		TransactionMode:      strings.ToUpper(f.str("transaction_mode")),
		Amount:               f.requiredFloat("amount"),
		PrincipalComponent:   f.float("principal_component", 0),
		InterestComponent:    f.float("interest_component", 0),
		PenaltyComponent:     f.float("penalty_component", 0),
		GSTComponent:         f.float("gst_component", 0),
		PaymentReference:     f.str("payment_reference"),
		BankName:             f.str("bank_name"),
		TransactionStatus:    capitalize(f.str("transaction_status")),
		FailureReason:        f.str("failure_reason"),
		ReconciliationStatus: capitalize(f.str("reconciliation_status")),
		ReconciledDate:       f.date("reconciled_date"),
	}
	if !f.ok() {
		return nil, f.err
	}

	f.positive("amount", t.Amount)
	if t.PrincipalComponent < 0 {
		f.fail(ReasonOutOfRange, "principal_component", "must not be negative")
	}
	if t.TransactionDate.After(v.today) {
		f.fail(ReasonFutureDate, "transaction_date", "after processing date")
	}
	if !f.ok() {
		return nil, f.err
	}

	if t.TransactionMode == "" {
		t.TransactionMode = "NEFT"
	}
	if t.TransactionStatus == "" {
		t.TransactionStatus = model.TxnStatusSuccess
	}
	if t.ReconciliationStatus == "" {
		t.ReconciliationStatus = "Pending"
	}
	if t.TransactionStatus == "Failed" {
		t.ReconciliationStatus = "Unmatched"
	}
	return t, nil
}

// FraudAlert validates one fraud alert. The risk level is always derived
// from the score.
func (v *Validator) FraudAlert(raw model.RawRow) (*model.FraudAlert, *Rejection) {
	f := newFields(model.EntityFraudAlert, raw, "alert_id")
	a := &model.FraudAlert{
		AlertID:         f.key,
		CustomerID:      f.required("customer_id"),
		LoanID:          f.str("loan_id"),
		TransactionID:   f.str("transaction_id"),
		DetectionDate:   f.requiredDate("detection_date"),
		ResolutionDate:  f.date("resolution_date"),
		AlertType:       f.str("alert_type"),
		AlertCategory:   f.str("alert_category"),
		DetectionMethod: f.str("detection_method"),
		RuleTriggered:   f.str("rule_triggered"),
		Description:     f.str("alert_description"),
		AssignedTo:      f.str("assigned_to"),
		FinancialImpact: f.float("financial_impact", 0),
	}
	if f.str("risk_score") == "" {
		f.fail(ReasonMissingRequiredField, "risk_score", "value is empty")
	}
	a.RiskScore = f.int("risk_score", 0)

	status := model.StatusNew
	if s := f.str("investigation_status"); s != "" {
		parsed, err := model.ParseInvestigationStatus(titleCase(s))
		if err != nil {
			f.fail(ReasonInvalidFormat, "investigation_status", err.Error())
		}
		status = parsed
	}
	a.InvestigationStatus = status
	if !f.ok() {
		return nil, f.err
	}

	f.between("risk_score", float64(a.RiskScore), 1, 100)
	if a.FinancialImpact < 0 {
		f.fail(ReasonOutOfRange, "financial_impact", "must not be negative")
	}
	if a.DetectionDate.After(v.today) {
		f.fail(ReasonFutureDate, "detection_date", "after processing date")
	}
	if !f.ok() {
		return nil, f.err
	}

	a.RiskLevel = risk.LevelForScore(a.RiskScore)
	if a.AlertCategory == "" {
		a.AlertCategory = "Application Fraud"
	}
	return a, nil
}

func matchStatus(s string) (string, bool) {
	if s == "" {
		return model.LoanActive, true
	}
	for _, status := range model.LoanStatuses {
		if strings.EqualFold(status, s) || strings.EqualFold(strings.ReplaceAll(status, " ", "_"), s) {
			return status, true
		}
	}
	return s, false
}

// transactionType upper-cases the type. Unknown types are recorded as EMI.
func transactionType(s string) string {
	t := strings.ToUpper(strings.TrimSpace(s))
	for _, known := range model.TransactionTypes {
		if t == known {
			return t
		}
	}
	return model.TxnEMI
}
