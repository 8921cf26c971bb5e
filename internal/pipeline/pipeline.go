// Package pipeline runs one end-to-end load: extract, validate, load, audit
// and report.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/creditflow-etl/internal/common"
	"github.com/Veraticus/creditflow-etl/internal/config"
	"github.com/Veraticus/creditflow-etl/internal/keys"
	"github.com/Veraticus/creditflow-etl/internal/loader"
	"github.com/Veraticus/creditflow-etl/internal/metrics"
	"github.com/Veraticus/creditflow-etl/internal/model"
	"github.com/Veraticus/creditflow-etl/internal/quality"
	"github.com/Veraticus/creditflow-etl/internal/risk"
	"github.com/Veraticus/creditflow-etl/internal/scd"
	"github.com/Veraticus/creditflow-etl/internal/service"
	"github.com/Veraticus/creditflow-etl/internal/source"
	"github.com/Veraticus/creditflow-etl/internal/validate"
)

// Pipeline wires the load stages to one warehouse.
type Pipeline struct {
	wh       service.Warehouse
	cfg      *config.Config
	bucketer *risk.Bucketer
	metrics  *metrics.Metrics
	progress loader.ProgressFunc
	now      func() time.Time
	newID    func() string
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithMetrics records batch and run metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithProgress reports batch progress to fn.
func WithProgress(fn loader.ProgressFunc) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// WithClock replaces the wall clock used for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline. The configuration is validated up front.
func New(wh service.Warehouse, cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if wh == nil {
		return nil, errors.New("pipeline needs a warehouse")
	}
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bucketer, err := risk.NewBucketer(cfg.Risk.DPDBucketBounds, cfg.Risk.NPAThresholdDays)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		wh:       wh,
		cfg:      cfg,
		bucketer: bucketer,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Run executes one load of src. The returned summary is non-nil whenever a
// run record was created, including failed runs; the error is non-nil when
// the run aborted.
func (p *Pipeline) Run(ctx context.Context, src source.Source) (*model.RunSummary, error) {
	today := model.Day(p.cfg.ETL.ProcessingDate)
	run := &model.ETLRun{
		RunID:          p.newID(),
		Status:         model.RunRunning,
		StartedAt:      p.now(),
		ProcessingDate: today,
	}
	log := slog.With("run_id", run.RunID)

	if err := p.wh.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run record: %w", err)
	}
	log.Info("Starting run", "processing_date", today.Format(time.DateOnly))

	summary := &model.RunSummary{
		RunID:          run.RunID,
		StartedAt:      run.StartedAt,
		ProcessingDate: today,
	}

	tracker := validate.NewTracker(p.cfg.Quality.RejectionSampleSize)
	report, rowsIn, runErr := p.execute(ctx, src, today, tracker, summary, log)

	summary.Rejections = tracker.Counts()
	summary.Samples = tracker.Samples()
	summary.RowsRejected = int64(tracker.Total())
	summary.Filtered = tracker.Filtered()
	summary.RowsFiltered = int64(tracker.FilteredTotal())
	if report != nil {
		summary.Stages = report.Stages
		summary.BlockedKeys = report.BlockedCustomers
		summary.RowsProcessed = report.Committed()
		summary.FailedBatches = report.FailedBatches()
	}

	var failedRows int64
	if report != nil {
		failedRows = report.FailedRows()
	}
	// Filtered rows are intentional drops and do not count as input.
	summary.Outcome = decideOutcome(runErr, summary.Quality, summary.RowsRejected+failedRows,
		int64(rowsIn)-summary.RowsFiltered, p.cfg.Quality.DegradedTolerance)
	summary.Status = model.RunCompleted
	if runErr != nil {
		summary.Status = model.RunFailed
		summary.Error = runErr.Error()
	}
	summary.FinishedAt = p.now()

	// The run record is finalized even when ctx was cancelled.
	if err := p.finish(context.WithoutCancel(ctx), run, summary); err != nil {
		log.Error("Failed to finalize run record", "error", err)
		if runErr == nil {
			runErr = err
		}
	}

	if p.metrics != nil {
		p.metrics.ObserveRun(summary)
		if p.cfg.Metrics.File != "" {
			if err := p.metrics.WriteTextfile(p.cfg.Metrics.File); err != nil {
				log.Warn("Failed to write metrics", "error", err)
			}
		}
	}

	log.Info("Run finished",
		"status", summary.Status,
		"outcome", summary.Outcome,
		"rows_processed", summary.RowsProcessed,
		"rows_rejected", summary.RowsRejected,
		"rows_filtered", summary.RowsFiltered,
		"failed_batches", summary.FailedBatches,
		"duration", summary.FinishedAt.Sub(summary.StartedAt))

	return summary, runErr
}

// execute runs extract, load, audit and portfolio. It fills summary.Quality
// and summary.Portfolio as they become available.
func (p *Pipeline) execute(ctx context.Context, src source.Source, today time.Time, tracker *validate.Tracker,
	summary *model.RunSummary, log *slog.Logger) (*loader.LoadReport, int, error) {
	v := validate.New(validate.Options{ProcessingDate: today, Bucketer: p.bucketer})

	batches, rowsIn, err := extract(ctx, src, v, tracker)
	if err != nil {
		return nil, rowsIn, err
	}
	batches.Dates = dateRows(p.cfg.ETL.DateRangeStart, p.cfg.ETL.DateRangeEnd, today)
	log.Info("Validated input",
		"rows_in", rowsIn,
		"rejected", tracker.Total(),
		"filtered", tracker.FilteredTotal(),
		"customers", len(batches.Customers),
		"loans", len(batches.Loans),
		"transactions", len(batches.Transactions),
		"fraud_alerts", len(batches.FraudAlerts))

	processor, err := scd.NewProcessor(scd.Rules{
		TrackedFields:         p.cfg.SCD.TrackedFields,
		IncomeChangeThreshold: p.cfg.SCD.IncomeChangeThreshold,
	}, today)
	if err != nil {
		return nil, rowsIn, err
	}

	loaderOpts := []loader.Option{loader.WithBucketer(p.bucketer)}
	if p.metrics != nil {
		loaderOpts = append(loaderOpts, loader.WithObserver(p.metrics))
	}
	if p.progress != nil {
		loaderOpts = append(loaderOpts, loader.WithProgress(p.progress))
	}
	l := loader.New(p.wh, keys.NewResolver(), processor, tracker, loader.Options{
		ProcessingDate: today,
		BatchSize:      p.cfg.ETL.BatchSize,
		Workers:        p.cfg.ETL.Workers,
		CommitTimeout:  p.cfg.ETL.CommitTimeout,
		Retry:          p.cfg.ETL.Retry.Options(),
	}, loaderOpts...)

	report, err := l.Load(ctx, batches)
	if err != nil {
		return report, rowsIn, err
	}

	auditor, err := quality.New(p.wh, quality.DefaultRules(), quality.Thresholds{
		Completeness: p.cfg.Quality.CompletenessThreshold,
		Referential:  p.cfg.Quality.ReferentialThreshold,
	})
	if err != nil {
		return report, rowsIn, err
	}
	qr, err := auditor.Run(ctx)
	if err != nil {
		return report, rowsIn, fmt.Errorf("quality audit failed: %w", err)
	}
	summary.Quality = qr
	log.Info("Quality audit finished", "checks", qr.Checked, "failed", qr.Failed, "passed", qr.Passed)

	portfolio, err := p.portfolio(ctx)
	if err != nil {
		log.Warn("Failed to compute portfolio metrics", "error", err)
	} else {
		summary.Portfolio = portfolio
	}
	return report, rowsIn, nil
}

func (p *Pipeline) portfolio(ctx context.Context) (*model.Portfolio, error) {
	positions, err := p.wh.LoanPositions(ctx)
	if err != nil {
		return nil, err
	}
	states, err := p.wh.AlertStates(ctx)
	if err != nil {
		return nil, err
	}
	alerts := make([]model.AlertState, 0, len(states))
	for _, s := range states {
		alerts = append(alerts, s)
	}
	return p.bucketer.Summarize(positions, alerts), nil
}

// finish writes the terminal run record and the per-stage control rows.
func (p *Pipeline) finish(ctx context.Context, run *model.ETLRun, s *model.RunSummary) error {
	finished := s.FinishedAt
	run.Status = s.Status
	run.Outcome = s.Outcome
	run.FinishedAt = &finished
	run.ErrorMessage = s.Error
	run.RecordsProcessed = s.RowsProcessed
	run.RecordsRejected = s.RowsRejected
	run.FailedBatches = s.FailedBatches

	if s.Quality != nil {
		data, err := json.Marshal(s.Quality)
		if err != nil {
			return fmt.Errorf("failed to encode quality report: %w", err)
		}
		run.QualityReport = string(data)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}
	run.Summary = string(data)

	retry := p.cfg.ETL.Retry.Options()
	if err := common.WithRetry(ctx, func() error { return p.wh.FinishRun(ctx, run) }, retry); err != nil {
		return err
	}
	controls := stageControls(run.RunID, finished, s.Stages)
	return common.WithRetry(ctx, func() error { return p.wh.SaveStageControls(ctx, controls) }, retry)
}
