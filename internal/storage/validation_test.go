package storage

import (
	"context"
	"testing"

	"github.com/Veraticus/creditflow-etl/internal/common"
	"github.com/Veraticus/creditflow-etl/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestValidateContext(t *testing.T) {
	tests := []struct {
		ctx     context.Context
		name    string
		wantErr bool
	}{
		{
			name:    "valid context",
			ctx:     context.Background(),
			wantErr: false,
		},
		{
			name:    "nil context",
			ctx:     nil,
			wantErr: true,
		},
		{
			name: "canceled context still valid",
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			}(),
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateContext(tt.ctx)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateContext() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateString(t *testing.T) {
	tests := []struct {
		name    string
		str     string
		wantErr bool
	}{
		{name: "valid string", str: "run-1", wantErr: false},
		{name: "empty string", str: "", wantErr: true},
		{name: "whitespace only", str: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateString(tt.str, "param")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrEmptyString)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateIdentifiers(t *testing.T) {
	assert.NoError(t, validateIdentifiers("fact_loan", "customer_sk"))
	assert.ErrorIs(t, validateIdentifiers("fact_loan", "customer_sk; DROP TABLE x"), common.ErrInvalidConfig)
	assert.Error(t, validateIdentifiers("Dim_Customer"))
}

func TestValidateRows(t *testing.T) {
	tests := []struct {
		name    string
		check   func() error
		wantErr bool
	}{
		{
			name:    "nil customer",
			check:   func() error { return validateCustomerRow(nil) },
			wantErr: true,
		},
		{
			name: "customer without effective start",
			check: func() error {
				return validateCustomerRow(&model.CustomerDimensionRow{Customer: model.Customer{CustomerID: "C1"}})
			},
			wantErr: true,
		},
		{
			name: "loan with unresolved date",
			check: func() error {
				return validateLoanRow(&model.LoanFactRow{Loan: model.Loan{LoanID: "L1"}, CustomerSK: 1, ProductSK: 1, BranchSK: 1, ApplicationDateSK: 20240101})
			},
			wantErr: true,
		},
		{
			name: "complete loan",
			check: func() error {
				return validateLoanRow(&model.LoanFactRow{
					Loan: model.Loan{LoanID: "L1"}, CustomerSK: 1, ProductSK: 1, BranchSK: 1,
					ApplicationDateSK: 20240101, DisbursementDateSK: 20240102,
				})
			},
			wantErr: false,
		},
		{
			name: "transaction without loan",
			check: func() error {
				return validateTransactionRow(&model.TransactionFactRow{Transaction: model.Transaction{TransactionID: "T1"}, CustomerSK: 1, TransactionDateSK: 20240101})
			},
			wantErr: true,
		},
		{
			name: "alert without optional references",
			check: func() error {
				return validateAlertRow(&model.FraudAlertFactRow{FraudAlert: model.FraudAlert{AlertID: "A1"}, CustomerSK: 1, DetectionDateSK: 20240101})
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.check()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.ErrorIs(t, err, common.ErrConstraintViolation)
		})
	}
}
