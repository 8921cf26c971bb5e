package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/creditflow-etl/internal/common"
	"github.com/Veraticus/creditflow-etl/internal/model"
)

// Validation errors.
var (
	ErrNilContext     = errors.New("context cannot be nil")
	ErrEmptyString    = errors.New("string parameter cannot be empty")
	ErrNilParameter   = errors.New("parameter cannot be nil")
	ErrInvalidRow     = fmt.Errorf("invalid row: %w", common.ErrConstraintViolation)
	ErrSchemaMismatch = errors.New("database schema mismatch")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateIdentifiers guards names that are formatted into audit SQL.
func validateIdentifiers(names ...string) error {
	for _, name := range names {
		if err := common.ValidateIdentifier(name); err != nil {
			return err
		}
	}
	return nil
}

func validateCustomerRow(row *model.CustomerDimensionRow) error {
	if row == nil {
		return fmt.Errorf("%w: nil customer", ErrInvalidRow)
	}
	if row.CustomerID == "" {
		return fmt.Errorf("%w: customer missing customer_id", ErrInvalidRow)
	}
	if row.EffectiveStart.IsZero() {
		return fmt.Errorf("%w: customer %s missing effective start", ErrInvalidRow, row.CustomerID)
	}
	return nil
}

func validateLoanRow(row *model.LoanFactRow) error {
	if row.LoanID == "" {
		return fmt.Errorf("%w: loan missing loan_id", ErrInvalidRow)
	}
	if row.CustomerSK == 0 || row.ProductSK == 0 || row.BranchSK == 0 || row.ApplicationDateSK == 0 ||
		row.DisbursementDateSK == 0 {
		return fmt.Errorf("%w: loan %s has unresolved keys", ErrInvalidRow, row.LoanID)
	}
	return nil
}

func validateTransactionRow(row *model.TransactionFactRow) error {
	if row.TransactionID == "" {
		return fmt.Errorf("%w: transaction missing transaction_id", ErrInvalidRow)
	}
	if row.LoanSK == 0 || row.CustomerSK == 0 || row.TransactionDateSK == 0 {
		return fmt.Errorf("%w: transaction %s has unresolved keys", ErrInvalidRow, row.TransactionID)
	}
	return nil
}

func validateAlertRow(row *model.FraudAlertFactRow) error {
	if row.AlertID == "" {
		return fmt.Errorf("%w: fraud alert missing alert_id", ErrInvalidRow)
	}
	if row.CustomerSK == 0 || row.DetectionDateSK == 0 {
		return fmt.Errorf("%w: fraud alert %s has unresolved keys", ErrInvalidRow, row.AlertID)
	}
	return nil
}
