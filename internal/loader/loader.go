// Package loader persists cleaned rows into the warehouse in dependency
// order, one transaction per batch.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/creditflow-etl/internal/keys"
	"github.com/Veraticus/creditflow-etl/internal/model"
	"github.com/Veraticus/creditflow-etl/internal/risk"
	"github.com/Veraticus/creditflow-etl/internal/scd"
	"github.com/Veraticus/creditflow-etl/internal/service"
	"github.com/Veraticus/creditflow-etl/internal/validate"
)

// ErrDateDimensionUnavailable aborts a run whose date dimension could not be
// loaded. Every fact depends on it.
var ErrDateDimensionUnavailable = errors.New("date dimension unavailable")

// Options tunes batching, concurrency and retry.
type Options struct {
	ProcessingDate time.Time
	Retry          service.RetryOptions
	BatchSize      int
	Workers        int
	CommitTimeout  time.Duration
}

// DefaultOptions returns the standard load settings.
func DefaultOptions() Options {
	return Options{
		ProcessingDate: time.Now().UTC(),
		BatchSize:      5000,
		Workers:        4,
		CommitTimeout:  30 * time.Second,
		Retry: service.RetryOptions{
			MaxAttempts:  4,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2,
		},
	}
}

// BatchObserver is told about every finished batch.
type BatchObserver interface {
	ObserveBatch(entity model.Entity, res model.BatchResult, elapsed time.Duration)
}

// ProgressFunc reports rows finished out of rows queued for an entity.
type ProgressFunc func(entity model.Entity, done, total int)

// EntityBatches holds the cleaned rows of one run grouped by entity.
type EntityBatches struct {
	Dates        []model.DateDimensionRow
	Branches     []*model.Branch
	Products     []*model.Product
	Customers    []*model.Customer
	Loans        []*model.Loan
	Transactions []*model.Transaction
	FraudAlerts  []*model.FraudAlert
}

// Loader runs the load stages of one run.
type Loader struct {
	wh        service.Warehouse
	resolver  *keys.Resolver
	processor *scd.Processor
	bucketer  *risk.Bucketer
	tracker   *validate.Tracker
	progress  ProgressFunc
	observers []BatchObserver
	opts      Options
}

// Option customizes a Loader.
type Option func(*Loader)

// WithObserver adds a batch observer.
func WithObserver(o BatchObserver) Option {
	return func(l *Loader) { l.observers = append(l.observers, o) }
}

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(l *Loader) { l.progress = fn }
}

// WithBucketer overrides the delinquency buckets used for snapshots.
func WithBucketer(b *risk.Bucketer) Option {
	return func(l *Loader) { l.bucketer = b }
}

// New creates a loader. Rejections found while resolving keys are added to
// tracker.
func New(wh service.Warehouse, resolver *keys.Resolver, processor *scd.Processor,
	tracker *validate.Tracker, opts Options, options ...Option) *Loader {
	def := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.CommitTimeout <= 0 {
		opts.CommitTimeout = def.CommitTimeout
	}
	if opts.ProcessingDate.IsZero() {
		opts.ProcessingDate = def.ProcessingDate
	}
	opts.ProcessingDate = model.Day(opts.ProcessingDate)

	l := &Loader{
		wh:        wh,
		resolver:  resolver,
		processor: processor,
		tracker:   tracker,
		bucketer:  risk.DefaultBucketer(),
		opts:      opts,
	}
	for _, o := range options {
		o(l)
	}
	return l
}

// Load persists every entity in dependency order. Failed batches are
// recorded and loading continues; the returned error is non-nil only when
// the run must abort, in which case the report covers the stages finished.
func (l *Loader) Load(ctx context.Context, b *EntityBatches) (*LoadReport, error) {
	report := &LoadReport{}

	if err := l.resolver.Load(ctx, l.wh); err != nil {
		return report, fmt.Errorf("failed to load warehouse keys: %w", err)
	}
	blocked, err := l.processor.Load(ctx, l.wh)
	if err != nil {
		return report, err
	}
	for _, id := range blocked {
		l.resolver.Block(model.DimCustomer, id)
	}
	report.BlockedCustomers = blocked

	stages := []struct {
		entity model.Entity
		run    func(context.Context) model.StageResult
	}{
		{model.EntityDate, func(ctx context.Context) model.StageResult { return l.loadDates(ctx, b.Dates) }},
		{model.EntityBranch, func(ctx context.Context) model.StageResult { return l.loadBranches(ctx, b.Branches) }},
		{model.EntityProduct, func(ctx context.Context) model.StageResult { return l.loadProducts(ctx, b.Products) }},
		{model.EntityCustomer, func(ctx context.Context) model.StageResult { return l.loadCustomers(ctx, b.Customers) }},
		{model.EntityLoan, func(ctx context.Context) model.StageResult { return l.loadLoans(ctx, b.Loans) }},
		{model.EntityTransaction, func(ctx context.Context) model.StageResult {
			return l.loadTransactions(ctx, b.Transactions)
		}},
		{model.EntityFraudAlert, func(ctx context.Context) model.StageResult { return l.loadFraudAlerts(ctx, b.FraudAlerts) }},
		{model.EntitySnapshot, l.loadSnapshots},
	}

	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("load aborted before %s: %w", stage.entity, err)
		}

		started := time.Now()
		res := stage.run(ctx)
		report.Stages = append(report.Stages, res)

		slog.Info("Stage loaded",
			"entity", res.Entity,
			"rows_in", res.RowsIn,
			"loaded", res.Loaded,
			"updated", res.Updated,
			"skipped_existing", res.SkippedExisting,
			"rejected", res.Rejected,
			"failed_batches", res.FailedBatches,
			"retries", res.Retries,
			"duration", time.Since(started))

		if stage.entity == model.EntityDate {
			if res.FailedBatches > 0 || l.resolver.Count(model.DimDate) == 0 {
				return report, fmt.Errorf("%w: %d failed batches, %d keys",
					ErrDateDimensionUnavailable, res.FailedBatches, l.resolver.Count(model.DimDate))
			}
		}
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("load aborted during %s: %w", stage.entity, err)
		}
	}
	return report, nil
}

func (l *Loader) reject(res *model.StageResult, rs ...*validate.Rejection) {
	for _, r := range rs {
		if r == nil {
			continue
		}
		res.Rejected++
		l.tracker.Add(r)
	}
}
