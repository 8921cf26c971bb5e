// Package quality audits the warehouse after a load. It measures and
// reports; it never repairs.
package quality

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/creditflow-etl/internal/common"
	"github.com/Veraticus/creditflow-etl/internal/model"
	"github.com/Veraticus/creditflow-etl/internal/service"
)

// Thresholds are the pass marks of the ratio checks. Completeness must be
// strictly above its threshold; referential integrity must reach its own.
type Thresholds struct {
	Completeness float64
	Referential  float64
}

// DefaultThresholds returns a 0.95 completeness mark and full referential integrity.
func DefaultThresholds() Thresholds {
	return Thresholds{Completeness: 0.95, Referential: 1.0}
}

// Auditor runs the data quality checks against a warehouse.
type Auditor struct {
	store      service.Auditor
	rules      Rules
	thresholds Thresholds
}

// New creates an auditor over store. Every table and column the rules name
// is checked against the identifier pattern.
func New(store service.Auditor, rules Rules, thresholds Thresholds) (*Auditor, error) {
	for _, rc := range rules.Completeness {
		if err := validateIdentifiers(append([]string{rc.Table}, rc.Columns...)...); err != nil {
			return nil, err
		}
	}
	for _, u := range rules.Unique {
		if err := validateIdentifiers(u.Table, u.Column); err != nil {
			return nil, err
		}
	}
	for _, fk := range rules.References {
		if err := validateIdentifiers(fk.Table, fk.Column, fk.RefTable, fk.RefColumn); err != nil {
			return nil, err
		}
	}
	return &Auditor{store: store, rules: rules, thresholds: thresholds}, nil
}

func validateIdentifiers(names ...string) error {
	for _, n := range names {
		if err := common.ValidateIdentifier(n); err != nil {
			return err
		}
	}
	return nil
}

// Run executes every check. A query failure aborts the audit.
func (a *Auditor) Run(ctx context.Context) (*model.QualityReport, error) {
	var checks []model.CheckResult

	for _, rc := range a.rules.Completeness {
		c, err := a.completeness(ctx, rc)
		if err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	for _, u := range a.rules.Unique {
		c, err := a.uniqueness(ctx, u)
		if err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	for _, fk := range a.rules.References {
		c, err := a.referential(ctx, fk)
		if err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	c, err := a.currentVersions(ctx)
	if err != nil {
		return nil, err
	}
	checks = append(checks, c)

	report := &model.QualityReport{Checks: checks, Checked: len(checks)}
	for _, c := range checks {
		if !c.Passed {
			report.Failed++
			slog.Warn("Quality check failed",
				"check", c.Name,
				"observed", c.Observed,
				"threshold", c.Threshold)
		}
	}
	report.Passed = report.Failed == 0
	return report, nil
}

func (a *Auditor) completeness(ctx context.Context, rc RequiredColumns) (model.CheckResult, error) {
	res := model.CheckResult{
		Name:      KindCompleteness + ":" + rc.Table,
		Kind:      KindCompleteness,
		Table:     rc.Table,
		Threshold: a.thresholds.Completeness,
		Observed:  1,
	}

	rows, err := a.store.CountRows(ctx, rc.Table, "")
	if err != nil {
		return res, fmt.Errorf("completeness of %s: %w", rc.Table, err)
	}
	if rows > 0 {
		filled, err := a.store.CountNonNull(ctx, rc.Table, rc.Columns)
		if err != nil {
			return res, fmt.Errorf("completeness of %s: %w", rc.Table, err)
		}
		res.Observed = float64(filled) / float64(rows*int64(len(rc.Columns)))
	}
	res.Passed = res.Observed > res.Threshold
	return res, nil
}

func (a *Auditor) uniqueness(ctx context.Context, u UniqueKey) (model.CheckResult, error) {
	dups, err := a.store.DuplicateCount(ctx, u.Table, u.Column, u.Where)
	if err != nil {
		return model.CheckResult{}, fmt.Errorf("uniqueness of %s.%s: %w", u.Table, u.Column, err)
	}
	return model.CheckResult{
		Name:     KindUniqueness + ":" + u.Table + "." + u.Column,
		Kind:     KindUniqueness,
		Table:    u.Table,
		Column:   u.Column,
		Observed: float64(dups),
		Passed:   dups == 0,
	}, nil
}

func (a *Auditor) referential(ctx context.Context, fk service.ForeignKey) (model.CheckResult, error) {
	res := model.CheckResult{
		Name:      KindReferential + ":" + fk.Table + "." + fk.Column,
		Kind:      KindReferential,
		Table:     fk.Table,
		Column:    fk.Column,
		Threshold: a.thresholds.Referential,
		Observed:  1,
	}

	total, orphans, err := a.store.OrphanCount(ctx, fk)
	if err != nil {
		return res, fmt.Errorf("references of %s.%s: %w", fk.Table, fk.Column, err)
	}
	if total > 0 {
		res.Observed = float64(total-orphans) / float64(total)
	}
	res.Passed = res.Observed >= res.Threshold
	return res, nil
}

func (a *Auditor) currentVersions(ctx context.Context) (model.CheckResult, error) {
	ids, err := a.store.CurrentVersionViolations(ctx)
	if err != nil {
		return model.CheckResult{}, fmt.Errorf("customer versions: %w", err)
	}
	if len(ids) > 0 {
		slog.Error("Customers without exactly one current version", "count", len(ids), "customer_ids", ids)
	}
	return model.CheckResult{
		Name:     KindCurrentVersion + ":dim_customer",
		Kind:     KindCurrentVersion,
		Table:    "dim_customer",
		Column:   "customer_id",
		Observed: float64(len(ids)),
		Passed:   len(ids) == 0,
	}, nil
}
