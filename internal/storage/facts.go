package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Veraticus/creditflow-etl/internal/model"
)

// InsertLoans adds loan facts and returns their surrogate keys by loan_id.
func (t *warehouseTx) InsertLoans(ctx context.Context, rows []model.LoanFactRow) (map[string]int64, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	keys := make(map[string]int64, len(rows))
	if len(rows) == 0 {
		return keys, nil
	}

	stmt, err := t.tx.PrepareContext(ctx, `INSERT INTO fact_loan (
		loan_id, customer_sk, product_sk, branch_sk, application_date_sk,
		disbursement_date_sk, first_emi_date_sk, loan_amount, sanctioned_amount,
		interest_rate, tenure_months, emi_amount, processing_fee, loan_purpose,
		collateral_value, probability_of_default, loss_given_default, exposure_at_default,
		expected_loss, current_balance, overdue_amount, days_past_due, dpd_bucket,
		npa_flag, written_off_flag, written_off_amount, loan_status, fraud_flag,
		fraud_type, collection_tier, created_at, updated_at
	) VALUES (`+placeholders(32)+`)`)
	if err != nil {
		return nil, wrap("prepare loan insert", err)
	}
	defer func() { _ = stmt.Close() }()

	now := t.w.timestamp()
	for i := range rows {
		l := &rows[i]
		if err := validateLoanRow(l); err != nil {
			return nil, err
		}
		res, err := stmt.ExecContext(ctx,
			l.LoanID, l.CustomerSK, l.ProductSK, l.BranchSK, l.ApplicationDateSK,
			l.DisbursementDateSK, nullInt(l.FirstEMIDateSK), l.LoanAmount, l.SanctionedAmount,
			l.InterestRate, l.TenureMonths, l.EMIAmount, l.ProcessingFee, nullString(l.LoanPurpose),
			l.CollateralValue, l.PD, l.LGD, l.EAD,
			l.ExpectedLoss, l.CurrentBalance, l.OverdueAmount, l.DaysPastDue, l.DPDBucket,
			l.NPAFlag, l.WrittenOffFlag, l.WrittenOffAmount, l.LoanStatus, l.FraudFlag,
			nullString(l.FraudType), l.CollectionTier, now, now)
		if err != nil {
			return nil, wrap("insert loan "+l.LoanID, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, wrap("loan id", err)
		}
		keys[l.LoanID] = id
	}
	return keys, nil
}

// InsertTransactions appends ledger entries and returns their surrogate keys.
func (t *warehouseTx) InsertTransactions(ctx context.Context, rows []model.TransactionFactRow) (map[string]int64, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	keys := make(map[string]int64, len(rows))
	if len(rows) == 0 {
		return keys, nil
	}

	stmt, err := t.tx.PrepareContext(ctx, `INSERT INTO fact_transaction (
		transaction_id, loan_sk, customer_sk, transaction_date_sk,
		transaction_type, transaction_mode, amount, principal_component,
		interest_component, penalty_component, gst_component,
		payment_reference, bank_name, transaction_status, failure_reason,
		reconciliation_status, reconciled_date, created_at
	) VALUES (`+placeholders(18)+`)`)
	if err != nil {
		return nil, wrap("prepare transaction insert", err)
	}
	defer func() { _ = stmt.Close() }()

	now := t.w.timestamp()
	for i := range rows {
		r := &rows[i]
		if err := validateTransactionRow(r); err != nil {
			return nil, err
		}
		res, err := stmt.ExecContext(ctx,
			r.TransactionID, r.LoanSK, r.CustomerSK, r.TransactionDateSK,
			r.TransactionType, nullString(r.TransactionMode), r.Amount, r.PrincipalComponent,
			r.InterestComponent, r.PenaltyComponent, r.GSTComponent,
			nullString(r.PaymentReference), nullString(r.BankName), r.TransactionStatus, nullString(r.FailureReason),
			nullString(r.ReconciliationStatus), nullDate(r.ReconciledDate), now)
		if err != nil {
			return nil, wrap("insert transaction "+r.TransactionID, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, wrap("transaction id", err)
		}
		keys[r.TransactionID] = id
	}
	return keys, nil
}

// ApplyBalanceMutations moves loan balances for settled transactions. Repayments
// reduce the balance, never below zero; foreclosure closes the loan and moves
// it to currentBucket, and a write-off moves the remaining balance to the
// written-off amount.
func (t *warehouseTx) ApplyBalanceMutations(ctx context.Context, mutations []model.BalanceMutation, asOf time.Time, currentBucket string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(mutations) == 0 {
		return nil
	}
	if currentBucket == "" {
		return fmt.Errorf("%w: empty current dpd bucket", ErrInvalidRow)
	}

	now := t.w.timestamp()
	day := formatDate(asOf)

	for _, m := range mutations {
		if m.PrincipalPaid > 0 {
			if _, err := t.tx.ExecContext(ctx, `UPDATE fact_loan SET
				current_balance = CASE WHEN current_balance - ? < 0 THEN 0 ELSE current_balance - ? END,
				updated_at = ?
				WHERE loan_sk = ?`,
				m.PrincipalPaid, m.PrincipalPaid, now, m.LoanSK); err != nil {
				return wrap(fmt.Sprintf("reduce balance of loan %d", m.LoanSK), err)
			}
		}
		if m.Foreclose {
			if _, err := t.tx.ExecContext(ctx, `UPDATE fact_loan SET
				current_balance = 0, overdue_amount = 0, days_past_due = 0, dpd_bucket = ?,
				loan_status = ?, foreclosure_date = ?, updated_at = ?
				WHERE loan_sk = ? AND written_off_flag = 0`,
				currentBucket, model.LoanForeclosed, day, now, m.LoanSK); err != nil {
				return wrap(fmt.Sprintf("foreclose loan %d", m.LoanSK), err)
			}
		}
		if m.WriteOff {
			if _, err := t.tx.ExecContext(ctx, `UPDATE fact_loan SET
				written_off_amount = written_off_amount + current_balance, current_balance = 0,
				written_off_flag = 1, written_off_date = ?, loan_status = ?, updated_at = ?
				WHERE loan_sk = ? AND written_off_flag = 0`,
				day, model.LoanWrittenOff, now, m.LoanSK); err != nil {
				return wrap(fmt.Sprintf("write off loan %d", m.LoanSK), err)
			}
		}
	}
	return nil
}

// InsertFraudAlerts adds fraud alerts and returns their surrogate keys by alert_id.
func (t *warehouseTx) InsertFraudAlerts(ctx context.Context, rows []model.FraudAlertFactRow) (map[string]int64, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	keys := make(map[string]int64, len(rows))
	if len(rows) == 0 {
		return keys, nil
	}

	stmt, err := t.tx.PrepareContext(ctx, `INSERT INTO fact_fraud_alert (
		alert_id, customer_sk, loan_sk, transaction_sk, detection_date_sk,
		alert_type, alert_category, risk_score, risk_level, detection_method,
		rule_triggered, alert_description, assigned_to, investigation_status,
		resolution_date, financial_impact, created_at, updated_at
	) VALUES (`+placeholders(18)+`)`)
	if err != nil {
		return nil, wrap("prepare fraud alert insert", err)
	}
	defer func() { _ = stmt.Close() }()

	now := t.w.timestamp()
	for i := range rows {
		a := &rows[i]
		if err := validateAlertRow(a); err != nil {
			return nil, err
		}
		res, err := stmt.ExecContext(ctx,
			a.AlertID, a.CustomerSK, nullInt(a.LoanSK), nullInt(a.TransactionSK), a.DetectionDateSK,
			nullString(a.AlertType), nullString(a.AlertCategory), a.RiskScore, a.RiskLevel, nullString(a.DetectionMethod),
			nullString(a.RuleTriggered), nullString(a.Description), nullString(a.AssignedTo), string(a.InvestigationStatus),
			nullDate(a.ResolutionDate), a.FinancialImpact, now, now)
		if err != nil {
			return nil, wrap("insert fraud alert "+a.AlertID, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, wrap("fraud alert id", err)
		}
		keys[a.AlertID] = id
	}
	return keys, nil
}

// UpdateAlertStatus moves an existing alert to a new investigation status.
func (t *warehouseTx) UpdateAlertStatus(ctx context.Context, alertSK int64, status model.InvestigationStatus, resolved *time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	_, err := t.tx.ExecContext(ctx, `UPDATE fact_fraud_alert SET
		investigation_status = ?, resolution_date = COALESCE(?, resolution_date), updated_at = ?
		WHERE alert_sk = ?`,
		string(status), nullDate(resolved), t.w.timestamp(), alertSK)
	return wrap(fmt.Sprintf("update fraud alert %d", alertSK), err)
}

// UpsertSnapshots writes one row per loan per day, replacing an earlier
// snapshot for the same day.
func (t *warehouseTx) UpsertSnapshots(ctx context.Context, rows []model.LoanSnapshotRow) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	stmt, err := t.tx.PrepareContext(ctx, `INSERT INTO fact_loan_daily_snapshot (
		loan_sk, snapshot_date_sk, current_balance, overdue_amount, days_past_due,
		dpd_bucket, npa_flag, expected_loss, loan_status
	) VALUES (`+placeholders(9)+`) `+t.w.dialect.snapshotUpsert)
	if err != nil {
		return wrap("prepare snapshot upsert", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, s := range rows {
		if _, err := stmt.ExecContext(ctx,
			s.LoanSK, s.SnapshotDateSK, s.CurrentBalance, s.OverdueAmount, s.DaysPastDue,
			s.DPDBucket, s.NPAFlag, s.ExpectedLoss, s.LoanStatus); err != nil {
			return wrap(fmt.Sprintf("upsert snapshot for loan %d", s.LoanSK), err)
		}
	}
	return nil
}

// LoanPositions returns the current mutable state of every loan.
func (w *Warehouse) LoanPositions(ctx context.Context) ([]model.LoanPosition, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := w.db.QueryContext(ctx, `SELECT loan_sk, loan_id, loan_status, current_balance,
		overdue_amount, probability_of_default, loss_given_default, exposure_at_default,
		expected_loss, days_past_due, npa_flag, written_off_flag
		FROM fact_loan ORDER BY loan_sk`)
	if err != nil {
		return nil, wrap("load loan positions", err)
	}
	defer func() { _ = rows.Close() }()

	var positions []model.LoanPosition
	for rows.Next() {
		var (
			p            model.LoanPosition
			pd, lgd, ead sql.NullFloat64
			expectedLoss sql.NullFloat64
		)
		if err := rows.Scan(&p.LoanSK, &p.LoanID, &p.LoanStatus, &p.CurrentBalance,
			&p.OverdueAmount, &pd, &lgd, &ead,
			&expectedLoss, &p.DaysPastDue, &p.NPAFlag, &p.WrittenOffFlag); err != nil {
			return nil, fmt.Errorf("failed to scan loan position: %w", err)
		}
		p.PD, p.LGD, p.EAD, p.ExpectedLoss = pd.Float64, lgd.Float64, ead.Float64, expectedLoss.Float64
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("load loan positions", err)
	}
	return positions, nil
}

// AlertStates returns the workflow state of every fraud alert by alert_id.
func (w *Warehouse) AlertStates(ctx context.Context) (map[string]model.AlertState, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := w.db.QueryContext(ctx, `SELECT alert_id, alert_sk, risk_level, investigation_status,
		financial_impact FROM fact_fraud_alert`)
	if err != nil {
		return nil, wrap("load fraud alert states", err)
	}
	defer func() { _ = rows.Close() }()

	states := make(map[string]model.AlertState)
	for rows.Next() {
		var (
			id     string
			status string
			s      model.AlertState
		)
		if err := rows.Scan(&id, &s.AlertSK, &s.RiskLevel, &status, &s.FinancialImpact); err != nil {
			return nil, fmt.Errorf("failed to scan fraud alert state: %w", err)
		}
		s.Status = model.InvestigationStatus(status)
		states[id] = s
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("load fraud alert states", err)
	}
	return states, nil
}
