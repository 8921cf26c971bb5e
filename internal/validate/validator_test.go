package validate_test

import (
	"errors"
	"testing"

	"github.com/Veraticus/creditflow-etl/internal/common"
	"github.com/Veraticus/creditflow-etl/internal/model"
	"github.com/Veraticus/creditflow-etl/internal/testutil"
	"github.com/Veraticus/creditflow-etl/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator() *validate.Validator {
	return validate.New(validate.Options{ProcessingDate: testutil.ProcessingDate})
}

func TestCustomerNormalization(t *testing.T) {
	c, rej := newValidator().Customer(testutil.CustomerRow("CUST0001",
		"employment_type", "self_employed",
		"marital_status", "MARRIED",
	))
	require.Nil(t, rej)

	assert.Equal(t, "CUST0001", c.CustomerID)
	assert.Equal(t, 33, c.Age)
	assert.Equal(t, "Female", c.Gender)
	assert.Equal(t, "Married", c.MaritalStatus)
	assert.Equal(t, "Self Employed", c.EmploymentType)
	assert.Equal(t, "Pune", c.City)
	assert.Equal(t, "Maharashtra", c.State)
	assert.Equal(t, "9876543210", c.Phone)
	assert.Equal(t, "asha.rao@example.com", c.Email)
	assert.Equal(t, "Middle", c.IncomeTier)
	assert.Equal(t, "Good", c.CreditTier)
	assert.Equal(t, "Bronze", c.ValueTier)
	require.NotNil(t, c.DateOfBirth)
	assert.Equal(t, "1990-05-10", c.DateOfBirth.Format("2006-01-02"))
}

func TestCustomerAgeFromBirthday(t *testing.T) {
	v := newValidator()

	// Birthday falls on the processing date.
	c, rej := v.Customer(testutil.CustomerRow("C1", "date_of_birth", "2000-03-15"))
	require.Nil(t, rej)
	assert.Equal(t, 24, c.Age)

	// Birthday is tomorrow.
	c, rej = v.Customer(testutil.CustomerRow("C2", "date_of_birth", "2000-03-16"))
	require.Nil(t, rej)
	assert.Equal(t, 23, c.Age)

	// An explicit age wins over the birth date.
	c, rej = v.Customer(testutil.CustomerRow("C3", "age", "45"))
	require.Nil(t, rej)
	assert.Equal(t, 45, c.Age)
}

func TestCustomerRejections(t *testing.T) {
	tests := []struct {
		name   string
		row    model.RawRow
		reason validate.Reason
		field  string
	}{
		{
			name:   "missing natural key",
			row:    testutil.CustomerRow(""),
			reason: validate.ReasonMissingNaturalKey,
			field:  "customer_id",
		},
		{
			name:   "null marker as key",
			row:    testutil.CustomerRow("NaN"),
			reason: validate.ReasonMissingNaturalKey,
			field:  "customer_id",
		},
		{
			name:   "missing last name",
			row:    testutil.CustomerRow("C1", "last_name", ""),
			reason: validate.ReasonMissingRequiredField,
			field:  "last_name",
		},
		{
			name:   "no age and no birth date",
			row:    testutil.CustomerRow("C1", "date_of_birth", ""),
			reason: validate.ReasonMissingRequiredField,
			field:  "age",
		},
		{
			name:   "too young",
			row:    testutil.CustomerRow("C1", "date_of_birth", "2010-01-01"),
			reason: validate.ReasonOutOfRange,
			field:  "age",
		},
		{
			name:   "explicit age too old",
			row:    testutil.CustomerRow("C1", "age", "101"),
			reason: validate.ReasonOutOfRange,
			field:  "age",
		},
		{
			name:   "missing credit score",
			row:    testutil.CustomerRow("C1", "credit_score", ""),
			reason: validate.ReasonMissingRequiredField,
			field:  "credit_score",
		},
		{
			name:   "credit score below range",
			row:    testutil.CustomerRow("C1", "credit_score", "299"),
			reason: validate.ReasonOutOfRange,
			field:  "credit_score",
		},
		{
			name:   "credit score above range",
			row:    testutil.CustomerRow("C1", "credit_score", "901"),
			reason: validate.ReasonOutOfRange,
			field:  "credit_score",
		},
		{
			name:   "non-numeric income",
			row:    testutil.CustomerRow("C1", "annual_income", "lots"),
			reason: validate.ReasonInvalidFormat,
			field:  "annual_income",
		},
		{
			name:   "negative income",
			row:    testutil.CustomerRow("C1", "annual_income", "-1"),
			reason: validate.ReasonOutOfRange,
			field:  "annual_income",
		},
		{
			name:   "bad birth date",
			row:    testutil.CustomerRow("C1", "date_of_birth", "10/05/1990"),
			reason: validate.ReasonInvalidFormat,
			field:  "date_of_birth",
		},
		{
			name:   "short phone",
			row:    testutil.CustomerRow("C1", "phone", "98765"),
			reason: validate.ReasonInvalidFormat,
			field:  "phone",
		},
		{
			name:   "bad email",
			row:    testutil.CustomerRow("C1", "email", "asha.example.com"),
			reason: validate.ReasonInvalidFormat,
			field:  "email",
		},
	}

	v := newValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rej := v.Customer(tt.row)
			assert.Nil(t, c)
			require.NotNil(t, rej)
			assert.Equal(t, tt.reason, rej.Reason)
			assert.Equal(t, tt.field, rej.Field)
			assert.Equal(t, model.EntityCustomer, rej.Entity)
			assert.Equal(t, tt.row, rej.Row)
			assert.ErrorIs(t, rej, common.ErrValidationRejection)
		})
	}
}

func TestCustomerIncomeClipped(t *testing.T) {
	c, rej := newValidator().Customer(testutil.CustomerRow("C1", "annual_income", "250000000"))
	require.Nil(t, rej)
	assert.InDelta(t, 100_000_000, c.AnnualIncome, 0.001)
	assert.Equal(t, "Affluent", c.IncomeTier)
	assert.Equal(t, "Platinum", c.ValueTier)
}

func TestLoanDerivedFields(t *testing.T) {
	v := newValidator()

	t.Run("active loan", func(t *testing.T) {
		l, rej := v.Loan(testutil.LoanRow("LN1", "C1", "days_past_due", "45"))
		require.Nil(t, rej)
		assert.Equal(t, model.LoanActive, l.LoanStatus)
		assert.Equal(t, 0, l.DaysPastDue)
		assert.Equal(t, "0", l.DPDBucket)
		assert.False(t, l.NPAFlag)
		assert.InDelta(t, 100000, l.SanctionedAmount, 0.001)
		assert.InDelta(t, 100000, l.EAD, 0.001)
		assert.InDelta(t, 0.05*0.45*100000, l.ExpectedLoss, 0.001)
		assert.Equal(t, 1, l.CollectionTier)
	})

	t.Run("npa loan", func(t *testing.T) {
		l, rej := v.Loan(testutil.LoanRow("LN2", "C1",
			"loan_status", "npa",
			"days_past_due", "120",
			"current_balance", "80000",
		))
		require.Nil(t, rej)
		assert.Equal(t, model.LoanNPA, l.LoanStatus)
		assert.Equal(t, 120, l.DaysPastDue)
		assert.Equal(t, "90+", l.DPDBucket)
		assert.True(t, l.NPAFlag)
		assert.InDelta(t, 80000, l.EAD, 0.001)
	})

	t.Run("written off loan", func(t *testing.T) {
		l, rej := v.Loan(testutil.LoanRow("LN3", "C1", "loan_status", "written_off", "days_past_due", "200"))
		require.Nil(t, rej)
		assert.Equal(t, model.LoanWrittenOff, l.LoanStatus)
		assert.True(t, l.WrittenOffFlag)
	})

	t.Run("expected loss kept when given", func(t *testing.T) {
		l, rej := v.Loan(testutil.LoanRow("LN4", "C1", "expected_loss", "1234.5"))
		require.Nil(t, rej)
		assert.InDelta(t, 1234.5, l.ExpectedLoss, 0.001)
	})

	t.Run("ninety days is not npa", func(t *testing.T) {
		l, rej := v.Loan(testutil.LoanRow("LN5", "C1", "loan_status", "Restructured", "days_past_due", "90"))
		require.Nil(t, rej)
		assert.Equal(t, "61-90", l.DPDBucket)
		assert.False(t, l.NPAFlag)
	})
}

func TestLoanRejections(t *testing.T) {
	tests := []struct {
		name   string
		row    model.RawRow
		reason validate.Reason
		field  string
	}{
		{"missing key", testutil.LoanRow("", "C1"), validate.ReasonMissingNaturalKey, "loan_id"},
		{"missing customer", testutil.LoanRow("LN1", ""), validate.ReasonMissingRequiredField, "customer_id"},
		{"missing amount", testutil.LoanRow("LN1", "C1", "loan_amount", ""), validate.ReasonMissingRequiredField, "loan_amount"},
		{"missing tenure", testutil.LoanRow("LN1", "C1", "tenure_months", ""), validate.ReasonMissingRequiredField, "tenure_months"},
		{"unknown status", testutil.LoanRow("LN1", "C1", "loan_status", "Paused"), validate.ReasonInvalidFormat, "loan_status"},
		{"rejected loan", testutil.LoanRow("LN1", "C1", "loan_status", "Rejected"), validate.ReasonNotDisbursed, "loan_status"},
		{"pending loan", testutil.LoanRow("LN1", "C1", "loan_status", "pending"), validate.ReasonNotDisbursed, "loan_status"},
		{"no disbursement", testutil.LoanRow("LN1", "C1", "disbursement_date", ""), validate.ReasonMissingDisbursementDate, "disbursement_date"},
		{"disbursed before application", testutil.LoanRow("LN1", "C1", "disbursement_date", "2024-01-01"), validate.ReasonOutOfRange, "disbursement_date"},
		{"future application", testutil.LoanRow("LN1", "C1", "application_date", "2024-04-01", "disbursement_date", "2024-04-02"), validate.ReasonFutureDate, "application_date"},
		{"zero amount", testutil.LoanRow("LN1", "C1", "loan_amount", "0"), validate.ReasonOutOfRange, "loan_amount"},
		{"rate too low", testutil.LoanRow("LN1", "C1", "interest_rate", "4.99"), validate.ReasonOutOfRange, "interest_rate"},
		{"rate too high", testutil.LoanRow("LN1", "C1", "interest_rate", "30.5"), validate.ReasonOutOfRange, "interest_rate"},
		{"tenure too long", testutil.LoanRow("LN1", "C1", "tenure_months", "361"), validate.ReasonOutOfRange, "tenure_months"},
		{"fractional tenure", testutil.LoanRow("LN1", "C1", "tenure_months", "12.5"), validate.ReasonInvalidFormat, "tenure_months"},
		{"pd above one", testutil.LoanRow("LN1", "C1", "probability_of_default", "1.2"), validate.ReasonOutOfRange, "probability_of_default"},
		{"negative lgd", testutil.LoanRow("LN1", "C1", "loss_given_default", "-0.1"), validate.ReasonOutOfRange, "loss_given_default"},
		{"negative balance", testutil.LoanRow("LN1", "C1", "current_balance", "-5"), validate.ReasonOutOfRange, "current_balance"},
		{"negative emi", testutil.LoanRow("LN1", "C1", "emi_amount", "-5"), validate.ReasonOutOfRange, "emi_amount"},
		{"bad fraud flag", testutil.LoanRow("LN1", "C1", "fraud_flag", "maybe"), validate.ReasonInvalidFormat, "fraud_flag"},
	}

	v := newValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, rej := v.Loan(tt.row)
			assert.Nil(t, l)
			require.NotNil(t, rej)
			assert.Equal(t, tt.reason, rej.Reason)
			assert.Equal(t, tt.field, rej.Field)
		})
	}
}

func TestLoanAcceptsFloatIntegers(t *testing.T) {
	l, rej := newValidator().Loan(testutil.LoanRow("LN1", "C1", "tenure_months", "36.0", "fraud_flag", "1.0"))
	require.Nil(t, rej)
	assert.Equal(t, 36, l.TenureMonths)
	assert.True(t, l.FraudFlag)
}

func TestTransactionDefaults(t *testing.T) {
	v := newValidator()

	tx, rej := v.Transaction(testutil.TransactionRow("TXN1", "LN1", "C1",
		"transaction_type", "bonus",
		"transaction_mode", "",
		"transaction_status", "",
	))
	require.Nil(t, rej)
	assert.Equal(t, model.TxnEMI, tx.TransactionType)
	assert.Equal(t, "NEFT", tx.TransactionMode)
	assert.Equal(t, model.TxnStatusSuccess, tx.TransactionStatus)
	assert.Equal(t, "Pending", tx.ReconciliationStatus)

	tx, rej = v.Transaction(testutil.TransactionRow("TXN2", "LN1", "C1",
		"transaction_type", "prepayment",
		"transaction_status", "failed",
	))
	require.Nil(t, rej)
	assert.Equal(t, model.TxnPrepayment, tx.TransactionType)
	assert.Equal(t, "UPI", tx.TransactionMode)
	assert.Equal(t, "Failed", tx.TransactionStatus)
	assert.Equal(t, "Unmatched", tx.ReconciliationStatus)
}

func TestTransactionRejections(t *testing.T) {
	tests := []struct {
		name   string
		row    model.RawRow
		reason validate.Reason
		field  string
	}{
		{"missing key", testutil.TransactionRow("", "LN1", "C1"), validate.ReasonMissingNaturalKey, "transaction_id"},
		{"missing loan", testutil.TransactionRow("T1", "", "C1"), validate.ReasonMissingRequiredField, "loan_id"},
		{"missing date", testutil.TransactionRow("T1", "LN1", "C1", "transaction_date", ""), validate.ReasonMissingRequiredField, "transaction_date"},
		{"zero amount", testutil.TransactionRow("T1", "LN1", "C1", "amount", "0"), validate.ReasonOutOfRange, "amount"},
		{"negative principal", testutil.TransactionRow("T1", "LN1", "C1", "principal_component", "-1"), validate.ReasonOutOfRange, "principal_component"},
		{"future date", testutil.TransactionRow("T1", "LN1", "C1", "transaction_date", "2024-03-16"), validate.ReasonFutureDate, "transaction_date"},
		{"bad amount", testutil.TransactionRow("T1", "LN1", "C1", "amount", "abc"), validate.ReasonInvalidFormat, "amount"},
	}

	v := newValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, rej := v.Transaction(tt.row)
			assert.Nil(t, tx)
			require.NotNil(t, rej)
			assert.Equal(t, tt.reason, rej.Reason)
			assert.Equal(t, tt.field, rej.Field)
		})
	}
}

func TestTransactionOnProcessingDate(t *testing.T) {
	tx, rej := newValidator().Transaction(testutil.TransactionRow("T1", "LN1", "C1", "transaction_date", "2024-03-15 18:45:00"))
	require.Nil(t, rej)
	assert.Equal(t, testutil.ProcessingDate, tx.TransactionDate)
}

func TestFraudAlertRiskLevel(t *testing.T) {
	tests := []struct {
		score string
		level string
	}{
		{"100", model.RiskCritical},
		{"80", model.RiskCritical},
		{"79", model.RiskHigh},
		{"60", model.RiskHigh},
		{"59", model.RiskMedium},
		{"40", model.RiskMedium},
		{"39", model.RiskLow},
		{"1", model.RiskLow},
	}

	v := newValidator()
	for _, tt := range tests {
		t.Run(tt.score, func(t *testing.T) {
			a, rej := v.FraudAlert(testutil.FraudAlertRow("FA1", "C1", "risk_score", tt.score, "risk_level", "Low"))
			require.Nil(t, rej)
			assert.Equal(t, tt.level, a.RiskLevel)
		})
	}
}

func TestFraudAlertDefaultsAndStatus(t *testing.T) {
	v := newValidator()

	a, rej := v.FraudAlert(testutil.FraudAlertRow("FA1", "C1", "investigation_status", ""))
	require.Nil(t, rej)
	assert.Equal(t, model.StatusNew, a.InvestigationStatus)
	assert.Equal(t, "Application Fraud", a.AlertCategory)
	assert.Empty(t, a.LoanID)

	a, rej = v.FraudAlert(testutil.FraudAlertRow("FA2", "C1", "investigation_status", "under_investigation"))
	require.Nil(t, rej)
	assert.Equal(t, model.StatusUnderInvestigation, a.InvestigationStatus)

	a, rej = v.FraudAlert(testutil.FraudAlertRow("FA3", "C1", "investigation_status", "false positive"))
	require.Nil(t, rej)
	assert.Equal(t, model.StatusFalsePositive, a.InvestigationStatus)
}

func TestFraudAlertRejections(t *testing.T) {
	tests := []struct {
		name   string
		row    model.RawRow
		reason validate.Reason
		field  string
	}{
		{"missing key", testutil.FraudAlertRow("", "C1"), validate.ReasonMissingNaturalKey, "alert_id"},
		{"missing customer", testutil.FraudAlertRow("FA1", ""), validate.ReasonMissingRequiredField, "customer_id"},
		{"missing score", testutil.FraudAlertRow("FA1", "C1", "risk_score", ""), validate.ReasonMissingRequiredField, "risk_score"},
		{"score zero", testutil.FraudAlertRow("FA1", "C1", "risk_score", "0"), validate.ReasonOutOfRange, "risk_score"},
		{"score above 100", testutil.FraudAlertRow("FA1", "C1", "risk_score", "101"), validate.ReasonOutOfRange, "risk_score"},
		{"unknown status", testutil.FraudAlertRow("FA1", "C1", "investigation_status", "Escalated"), validate.ReasonInvalidFormat, "investigation_status"},
		{"negative impact", testutil.FraudAlertRow("FA1", "C1", "financial_impact", "-1"), validate.ReasonOutOfRange, "financial_impact"},
		{"future detection", testutil.FraudAlertRow("FA1", "C1", "detection_date", "2024-05-01"), validate.ReasonFutureDate, "detection_date"},
	}

	v := newValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, rej := v.FraudAlert(tt.row)
			assert.Nil(t, a)
			require.NotNil(t, rej)
			assert.Equal(t, tt.reason, rej.Reason)
			assert.Equal(t, tt.field, rej.Field)
		})
	}
}

func TestReferenceRows(t *testing.T) {
	v := newValidator()

	p, rej := v.Product(testutil.ProductRow("PRD001"))
	require.Nil(t, rej)
	assert.Equal(t, "Personal Loan", p.ProductName)
	assert.False(t, p.CollateralRequired)
	assert.True(t, p.IsActive)
	assert.Equal(t, 60, p.MaxTenure)

	p, rej = v.Product(testutil.ProductRow("PRD002", "collateral_required", "True", "is_active", "0"))
	require.Nil(t, rej)
	assert.True(t, p.CollateralRequired)
	assert.False(t, p.IsActive)

	_, rej = v.Product(testutil.ProductRow("PRD003", "min_rate", "20"))
	require.NotNil(t, rej)
	assert.Equal(t, validate.ReasonOutOfRange, rej.Reason)
	assert.Equal(t, "min_rate", rej.Field)

	b, rej := v.Branch(testutil.BranchRow("BR001", "city", "new_delhi"))
	require.Nil(t, rej)
	assert.Equal(t, "New Delhi", b.City)
	assert.True(t, b.IsActive)

	_, rej = v.Branch(testutil.BranchRow("BR002", "branch_name", ""))
	require.NotNil(t, rej)
	assert.Equal(t, validate.ReasonMissingRequiredField, rej.Reason)
}

func TestValidateDispatch(t *testing.T) {
	v := newValidator()

	tests := []struct {
		entity model.Entity
		row    model.RawRow
		check  func(t *testing.T, out any)
	}{
		{model.EntityCustomer, testutil.CustomerRow("C1"), func(t *testing.T, out any) {
			assert.IsType(t, &model.Customer{}, out)
		}},
		{model.EntityLoan, testutil.LoanRow("LN1", "C1"), func(t *testing.T, out any) {
			assert.IsType(t, &model.Loan{}, out)
		}},
		{model.EntityTransaction, testutil.TransactionRow("T1", "LN1", "C1"), func(t *testing.T, out any) {
			assert.IsType(t, &model.Transaction{}, out)
		}},
		{model.EntityFraudAlert, testutil.FraudAlertRow("FA1", "C1"), func(t *testing.T, out any) {
			assert.IsType(t, &model.FraudAlert{}, out)
		}},
		{model.EntityProduct, testutil.ProductRow("P1"), func(t *testing.T, out any) {
			assert.IsType(t, &model.Product{}, out)
		}},
		{model.EntityBranch, testutil.BranchRow("B1"), func(t *testing.T, out any) {
			assert.IsType(t, &model.Branch{}, out)
		}},
	}

	for _, tt := range tests {
		t.Run(string(tt.entity), func(t *testing.T) {
			out, rej := v.Validate(tt.entity, tt.row)
			require.Nil(t, rej)
			tt.check(t, out)
		})
	}

	t.Run("unsupported entity", func(t *testing.T) {
		out, rej := v.Validate(model.EntitySnapshot, model.RawRow{"loan_id": "LN1"})
		assert.Nil(t, out)
		require.NotNil(t, rej)
		assert.Equal(t, validate.ReasonInvalidFormat, rej.Reason)
	})

	t.Run("rejection is an error", func(t *testing.T) {
		_, rej := v.Validate(model.EntityCustomer, testutil.CustomerRow(""))
		var err error = rej
		require.Error(t, err)
		var target *validate.Rejection
		assert.True(t, errors.As(err, &target))
	})
}

func TestTiers(t *testing.T) {
	assert.Equal(t, "Low", validate.IncomeTier(299_999))
	assert.Equal(t, "Lower-Middle", validate.IncomeTier(300_000))
	assert.Equal(t, "Upper-Middle", validate.IncomeTier(1_200_000))
	assert.Equal(t, "High", validate.IncomeTier(4_999_999))

	assert.Equal(t, "Poor", validate.CreditTier(549))
	assert.Equal(t, "Fair", validate.CreditTier(550))
	assert.Equal(t, "Good", validate.CreditTier(650))
	assert.Equal(t, "Excellent", validate.CreditTier(750))

	assert.Equal(t, "Silver", validate.ValueTier(3_000_000, 800))
	assert.Equal(t, "Gold", validate.ValueTier(8_000_000, 800))
	assert.Equal(t, "Bronze", validate.ValueTier(2_000_000, 800))
}
