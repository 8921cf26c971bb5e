package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/creditflow-etl/internal/common"
	"github.com/Veraticus/creditflow-etl/internal/keys"
	"github.com/Veraticus/creditflow-etl/internal/model"
	"github.com/Veraticus/creditflow-etl/internal/scd"
	"github.com/Veraticus/creditflow-etl/internal/service"
	"github.com/Veraticus/creditflow-etl/internal/validate"
)

func (l *Loader) loadDates(ctx context.Context, rows []model.DateDimensionRow) model.StageResult {
	s := l.newStage(model.EntityDate, len(rows))

	pending := make([]model.DateDimensionRow, 0, len(rows))
	for _, r := range rows {
		if l.resolver.Has(model.DimDate, r.FullDate.Format(time.DateOnly)) {
			s.skip(1)
			continue
		}
		pending = append(pending, r)
	}

	chunks := chunk(pending, l.opts.BatchSize)
	s.runAll(ctx, 1, sizes(chunks), func(i int) batchFunc {
		c := chunks[i]
		return func(ctx context.Context, tx service.WarehouseTx) (outcome, error) {
			n, err := tx.InsertDates(ctx, c)
			if err != nil {
				return outcome{}, err
			}
			return outcome{
				loaded:   n,
				skipped:  len(c) - n,
				onCommit: func() { l.resolver.StoreDates(c) },
			}, nil
		}
	})
	return s.result()
}

// loadReference loads a small keyed dimension whose rows are never
// versioned. Keys already present are left untouched.
func loadReference[T any](ctx context.Context, l *Loader, entity model.Entity, dim model.Dimension,
	rows []T, key func(T) string, insert func(context.Context, service.WarehouseTx, T) (int64, error)) model.StageResult {
	s := l.newStage(entity, len(rows))

	kept, dups := validate.DedupeLast(entity, rows, key)
	s.reject(dups...)

	pending := make([]T, 0, len(kept))
	for _, r := range kept {
		if l.resolver.Has(dim, key(r)) {
			s.skip(1)
			continue
		}
		pending = append(pending, r)
	}

	chunks := chunk(pending, l.opts.BatchSize)
	s.runAll(ctx, 1, sizes(chunks), func(i int) batchFunc {
		c := chunks[i]
		return func(ctx context.Context, tx service.WarehouseTx) (outcome, error) {
			stage := l.resolver.Stage()
			loaded := 0
			for _, r := range c {
				_, created, err := stage.Ensure(ctx, dim, key(r), func(ctx context.Context) (int64, error) {
					return insert(ctx, tx, r)
				})
				if err != nil {
					return outcome{}, err
				}
				if created {
					loaded++
				}
			}
			return outcome{
				loaded:   loaded,
				skipped:  len(c) - loaded,
				onCommit: stage.Commit,
			}, nil
		}
	})
	return s.result()
}

func (l *Loader) loadBranches(ctx context.Context, rows []*model.Branch) model.StageResult {
	return loadReference(ctx, l, model.EntityBranch, model.DimBranch, rows,
		func(b *model.Branch) string { return b.BranchID },
		func(ctx context.Context, tx service.WarehouseTx, b *model.Branch) (int64, error) {
			return tx.InsertBranch(ctx, b)
		})
}

func (l *Loader) loadProducts(ctx context.Context, rows []*model.Product) model.StageResult {
	return loadReference(ctx, l, model.EntityProduct, model.DimProduct, rows,
		func(p *model.Product) string { return p.ProductID },
		func(ctx context.Context, tx service.WarehouseTx, p *model.Product) (int64, error) {
			return tx.InsertProduct(ctx, p)
		})
}

// loadCustomers applies the slowly changing dimension rules. Batches run
// one at a time so a customer repeated across batches sees the version
// written by the earlier batch.
func (l *Loader) loadCustomers(ctx context.Context, rows []*model.Customer) model.StageResult {
	s := l.newStage(model.EntityCustomer, len(rows))

	chunks := chunk(rows, l.opts.BatchSize)
	s.runAll(ctx, 1, sizes(chunks), func(i int) batchFunc {
		c := chunks[i]
		return func(ctx context.Context, tx service.WarehouseTx) (outcome, error) {
			b := l.processor.Batch()
			var rejected []*validate.Rejection
			for _, cust := range c {
				_, err := b.Apply(ctx, tx, cust)
				if errors.Is(err, common.ErrMultipleCurrentVersions) {
					rejected = append(rejected, validate.Reject(model.EntityCustomer,
						validate.ReasonMultipleCurrentVersions, cust.CustomerID, "customer_id", err.Error()))
					continue
				}
				if err != nil {
					return outcome{}, err
				}
			}
			return outcome{
				loaded:   b.Count(scd.ActionInsert) + b.Count(scd.ActionNewVersion),
				updated:  b.Count(scd.ActionUpdateInPlace),
				skipped:  b.Count(scd.ActionNoop),
				rejected: rejected,
				onCommit: func() {
					l.resolver.StoreAll(model.DimCustomer, b.Keys())
					b.Commit()
				},
			}, nil
		}
	})
	return s.result()
}

// prepareFacts dedupes facts, drops the ones already loaded and resolves
// the references of the rest.
func prepareFacts[T any, R any](l *Loader, s *stageRun, dim model.Dimension, rows []T,
	key func(T) string, attach func(keys.Lookup, T) (R, *validate.Rejection)) []R {
	kept, dups := validate.DedupeLast(s.res.Entity, rows, key)
	s.reject(dups...)

	out := make([]R, 0, len(kept))
	for _, r := range kept {
		if l.resolver.Has(dim, key(r)) {
			s.skip(1)
			continue
		}
		row, rej := attach(l.resolver, r)
		if rej != nil {
			s.reject(rej)
			continue
		}
		out = append(out, row)
	}
	return out
}

func (l *Loader) loadLoans(ctx context.Context, rows []*model.Loan) model.StageResult {
	s := l.newStage(model.EntityLoan, len(rows))

	facts := prepareFacts(l, s, model.DimLoan, rows,
		func(r *model.Loan) string { return r.LoanID }, keys.AttachLoan)

	chunks := chunk(facts, l.opts.BatchSize)
	s.runAll(ctx, l.opts.Workers, sizes(chunks), func(i int) batchFunc {
		c := chunks[i]
		return func(ctx context.Context, tx service.WarehouseTx) (outcome, error) {
			ids, err := tx.InsertLoans(ctx, c)
			if err != nil {
				return outcome{}, err
			}
			return outcome{
				loaded:   len(ids),
				onCommit: func() { l.resolver.StoreAll(model.DimLoan, ids) },
			}, nil
		}
	})
	return s.result()
}

// loadTransactions appends ledger entries and applies their balance effect
// to the owning loans in the same transaction.
func (l *Loader) loadTransactions(ctx context.Context, rows []*model.Transaction) model.StageResult {
	s := l.newStage(model.EntityTransaction, len(rows))

	facts := prepareFacts(l, s, model.DimTransaction, rows,
		func(r *model.Transaction) string { return r.TransactionID }, keys.AttachTransaction)

	chunks := chunk(facts, l.opts.BatchSize)
	s.runAll(ctx, l.opts.Workers, sizes(chunks), func(i int) batchFunc {
		c := chunks[i]
		return func(ctx context.Context, tx service.WarehouseTx) (outcome, error) {
			ids, err := tx.InsertTransactions(ctx, c)
			if err != nil {
				return outcome{}, err
			}
			if err := tx.ApplyBalanceMutations(ctx, model.MergeMutations(c), l.opts.ProcessingDate, l.bucketer.Bucket(0)); err != nil {
				return outcome{}, err
			}
			return outcome{
				loaded:   len(ids),
				onCommit: func() { l.resolver.StoreAll(model.DimTransaction, ids) },
			}, nil
		}
	})
	return s.result()
}

type alertUpdate struct {
	resolved *time.Time
	status   model.InvestigationStatus
	sk       int64
}

// loadFraudAlerts inserts new alerts and moves known alerts along the
// investigation workflow. Backwards or sideways moves are rejected.
func (l *Loader) loadFraudAlerts(ctx context.Context, rows []*model.FraudAlert) model.StageResult {
	s := l.newStage(model.EntityFraudAlert, len(rows))

	kept, dups := validate.DedupeLast(model.EntityFraudAlert, rows,
		func(a *model.FraudAlert) string { return a.AlertID })
	s.reject(dups...)

	var states map[string]model.AlertState
	if len(kept) > 0 {
		var err error
		states, err = l.wh.AlertStates(ctx)
		if err != nil {
			slog.Error("Failed to read fraud alert states", "error", err)
			s.record(model.BatchResult{Rows: len(kept), Failed: true, Error: err.Error()}, outcome{}, 0)
			return s.result()
		}
	}

	var (
		updates []alertUpdate
		inserts []model.FraudAlertFactRow
	)
	for _, a := range kept {
		state, known := states[a.AlertID]
		if !known {
			row, rej := keys.AttachFraudAlert(l.resolver, a)
			if rej != nil {
				s.reject(rej)
				continue
			}
			inserts = append(inserts, row)
			continue
		}

		switch {
		case state.Status == a.InvestigationStatus:
			s.skip(1)
		case state.Status.CanTransition(a.InvestigationStatus):
			resolved := a.ResolutionDate
			if resolved == nil && a.InvestigationStatus.Terminal() {
				day := l.opts.ProcessingDate
				resolved = &day
			}
			updates = append(updates, alertUpdate{sk: state.AlertSK, status: a.InvestigationStatus, resolved: resolved})
		default:
			s.reject(validate.Reject(model.EntityFraudAlert, validate.ReasonInvalidTransition, a.AlertID,
				"investigation_status", fmt.Sprintf("%s to %s", state.Status, a.InvestigationStatus)))
		}
	}

	updateChunks := chunk(updates, l.opts.BatchSize)
	insertChunks := chunk(inserts, l.opts.BatchSize)
	all := append(sizes(updateChunks), sizes(insertChunks)...)

	s.runAll(ctx, 1, all, func(i int) batchFunc {
		if i < len(updateChunks) {
			c := updateChunks[i]
			return func(ctx context.Context, tx service.WarehouseTx) (outcome, error) {
				for _, u := range c {
					if err := tx.UpdateAlertStatus(ctx, u.sk, u.status, u.resolved); err != nil {
						return outcome{}, err
					}
				}
				return outcome{updated: len(c)}, nil
			}
		}
		c := insertChunks[i-len(updateChunks)]
		return func(ctx context.Context, tx service.WarehouseTx) (outcome, error) {
			ids, err := tx.InsertFraudAlerts(ctx, c)
			if err != nil {
				return outcome{}, err
			}
			return outcome{
				loaded:   len(ids),
				onCommit: func() { l.resolver.StoreAll(model.DimFraudAlert, ids) },
			}, nil
		}
	})
	return s.result()
}

// loadSnapshots records every loan's position on the processing date.
// A rerun on the same date overwrites the earlier snapshot.
func (l *Loader) loadSnapshots(ctx context.Context) model.StageResult {
	s := l.newStage(model.EntitySnapshot, 0)

	if _, err := l.resolver.ResolveDate(l.opts.ProcessingDate); err != nil {
		err = fmt.Errorf("processing date %s is outside the date dimension: %w",
			l.opts.ProcessingDate.Format(time.DateOnly), err)
		slog.Error("Skipping loan snapshots", "error", err)
		s.record(model.BatchResult{Failed: true, Error: err.Error()}, outcome{}, 0)
		return s.result()
	}

	positions, err := l.wh.LoanPositions(ctx)
	if err != nil {
		slog.Error("Failed to read loan positions", "error", err)
		s.record(model.BatchResult{Failed: true, Error: err.Error()}, outcome{}, 0)
		return s.result()
	}

	snaps := l.bucketer.Snapshots(positions, l.opts.ProcessingDate)
	s.res.RowsIn = len(snaps)

	chunks := chunk(snaps, l.opts.BatchSize)
	s.runAll(ctx, 1, sizes(chunks), func(i int) batchFunc {
		c := chunks[i]
		return func(ctx context.Context, tx service.WarehouseTx) (outcome, error) {
			if err := tx.UpsertSnapshots(ctx, c); err != nil {
				return outcome{}, err
			}
			return outcome{loaded: len(c)}, nil
		}
	})
	return s.result()
}
