package model

import (
	"fmt"
	"slices"
	"time"
)

// InvestigationStatus is the workflow state of a fraud alert.
type InvestigationStatus string

// Investigation statuses.
const (
	StatusNew                InvestigationStatus = "New"
	StatusUnderInvestigation InvestigationStatus = "Under Investigation"
	StatusConfirmed          InvestigationStatus = "Confirmed"
	StatusFalsePositive      InvestigationStatus = "False Positive"
)

var transitions = map[InvestigationStatus][]InvestigationStatus{
	StatusNew:                {StatusConfirmed, StatusFalsePositive, StatusUnderInvestigation},
	StatusUnderInvestigation: {StatusConfirmed, StatusFalsePositive},
}

// ParseInvestigationStatus accepts any known status.
func ParseInvestigationStatus(s string) (InvestigationStatus, error) {
	switch st := InvestigationStatus(s); st {
	case StatusNew, StatusUnderInvestigation, StatusConfirmed, StatusFalsePositive:
		return st, nil
	default:
		return "", fmt.Errorf("unknown investigation status %q", s)
	}
}

// Terminal reports whether no further transition is possible.
func (s InvestigationStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether an alert may move from s to next.
func (s InvestigationStatus) CanTransition(next InvestigationStatus) bool {
	return slices.Contains(transitions[s], next)
}

// Risk levels derived from the 1-100 alert risk score.
const (
	RiskCritical = "Critical"
	RiskHigh     = "High"
	RiskMedium   = "Medium"
	RiskLow      = "Low"
)

// FraudAlert is a cleaned fraud alert. Loan and transaction references are optional.
type FraudAlert struct {
	DetectionDate       time.Time
	ResolutionDate      *time.Time
	AlertID             string
	CustomerID          string
	LoanID              string
	TransactionID       string
	AlertType           string
	AlertCategory       string
	RiskLevel           string
	DetectionMethod     string
	RuleTriggered       string
	Description         string
	AssignedTo          string
	InvestigationStatus InvestigationStatus
	FinancialImpact     float64
	RiskScore           int
}

// FraudAlertFactRow is a fraud alert with every reference resolved.
type FraudAlertFactRow struct {
	LoanSK        *int64
	TransactionSK *int64
	FraudAlert
	AlertSK         int64
	CustomerSK      int64
	DetectionDateSK int64
}

// AlertState is the persisted workflow state of an alert.
type AlertState struct {
	RiskLevel       string
	Status          InvestigationStatus
	AlertSK         int64
	FinancialImpact float64
}
