package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Veraticus/creditflow-etl/internal/common"
	"github.com/Veraticus/creditflow-etl/internal/model"
)

const runColumns = `run_id, status, outcome, processing_date, started_at, finished_at,
	records_processed, records_rejected, failed_batches, error_message, quality_report, summary`

// CreateRun records the start of a pipeline run.
func (w *Warehouse) CreateRun(ctx context.Context, run *model.ETLRun) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("%w: run", ErrNilParameter)
	}
	if err := validateString(run.RunID, "run_id"); err != nil {
		return err
	}

	_, err := w.db.ExecContext(ctx, `INSERT INTO etl_run (`+runColumns+`) VALUES (`+placeholders(12)+`)`,
		run.RunID, string(run.Status), nullString(string(run.Outcome)), formatDate(run.ProcessingDate),
		run.StartedAt.UTC().Format(timestampLayout), nil,
		run.RecordsProcessed, run.RecordsRejected, run.FailedBatches,
		nullString(run.ErrorMessage), nullString(run.QualityReport), nullString(run.Summary))
	return wrap("create run "+run.RunID, err)
}

// FinishRun stores the terminal state of a run. A run that is already
// terminal is left untouched.
func (w *Warehouse) FinishRun(ctx context.Context, run *model.ETLRun) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("%w: run", ErrNilParameter)
	}

	var finished any
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC().Format(timestampLayout)
	}

	res, err := w.db.ExecContext(ctx, `UPDATE etl_run SET
		status = ?, outcome = ?, finished_at = ?, records_processed = ?, records_rejected = ?,
		failed_batches = ?, error_message = ?, quality_report = ?, summary = ?
		WHERE run_id = ? AND status = ?`,
		string(run.Status), nullString(string(run.Outcome)), finished, run.RecordsProcessed, run.RecordsRejected,
		run.FailedBatches, nullString(run.ErrorMessage), nullString(run.QualityReport), nullString(run.Summary),
		run.RunID, string(model.RunRunning))
	if err != nil {
		return wrap("finish run "+run.RunID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("finish run "+run.RunID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: no running run %s", common.ErrNotFound, run.RunID)
	}
	return nil
}

// GetRun loads one run record.
func (w *Warehouse) GetRun(ctx context.Context, runID string) (*model.ETLRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(runID, "run_id"); err != nil {
		return nil, err
	}

	row := w.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM etl_run WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", common.ErrNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// RecentRuns lists the newest runs first.
func (w *Warehouse) RecentRuns(ctx context.Context, limit int) ([]model.ETLRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := w.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM etl_run ORDER BY started_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, wrap("list runs", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []model.ETLRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list runs", err)
	}
	return runs, nil
}

// SaveStageControls writes the per-stage audit rows of a run.
func (w *Warehouse) SaveStageControls(ctx context.Context, rows []model.StageControl) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO etl_control (
		run_id, etl_name, table_name, last_run, status, records_processed, error_message
	) VALUES (`+placeholders(7)+`)`)
	if err != nil {
		return wrap("prepare control insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range rows {
		if _, err = stmt.ExecContext(ctx, c.RunID, c.ETLName, c.TableName,
			c.RunAt.UTC().Format(timestampLayout), c.Status, c.RecordsProcessed,
			nullString(c.ErrorMessage)); err != nil {
			return wrap("insert control row for "+c.TableName, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return wrap("commit control rows", err)
	}
	return nil
}

func scanRun(s rowScanner) (*model.ETLRun, error) {
	var (
		run                         model.ETLRun
		status, processing, started string
		outcome, finished, errMsg   sql.NullString
		quality, summary            sql.NullString
	)
	if err := s.Scan(&run.RunID, &status, &outcome, &processing, &started, &finished,
		&run.RecordsProcessed, &run.RecordsRejected, &run.FailedBatches, &errMsg, &quality, &summary); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Status = model.RunStatus(status)
	run.Outcome = model.Outcome(outcome.String)
	run.ErrorMessage = errMsg.String
	run.QualityReport = quality.String
	run.Summary = summary.String

	var err error
	if run.ProcessingDate, err = parseDate(processing); err != nil {
		return nil, err
	}
	if run.StartedAt, err = parseTimestamp(started); err != nil {
		return nil, err
	}
	if finished.Valid && finished.String != "" {
		t, err := parseTimestamp(finished.String)
		if err != nil {
			return nil, err
		}
		run.FinishedAt = &t
	}
	return &run, nil
}
