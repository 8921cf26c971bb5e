package loader

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/creditflow-etl/internal/common"
	"github.com/Veraticus/creditflow-etl/internal/model"
	"github.com/Veraticus/creditflow-etl/internal/service"
	"github.com/Veraticus/creditflow-etl/internal/validate"
)

// outcome is what one successful batch attempt produced. onCommit runs once
// the transaction has committed.
type outcome struct {
	onCommit func()
	rejected []*validate.Rejection
	loaded   int
	updated  int
	skipped  int
}

// batchFunc writes one batch through tx. It must not touch shared state,
// since a failed attempt is rolled back and tried again.
type batchFunc func(ctx context.Context, tx service.WarehouseTx) (outcome, error)

// chunk splits rows into consecutive slices of at most size rows.
func chunk[T any](rows []T, size int) [][]T {
	if len(rows) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(rows)
	}
	out := make([][]T, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		out = append(out, rows[start:end])
	}
	return out
}

// stageRun collects the batch results of one stage. Safe for concurrent use.
type stageRun struct {
	l     *Loader
	res   model.StageResult
	total int
	done  int
	mu    sync.Mutex
}

func (l *Loader) newStage(entity model.Entity, rowsIn int) *stageRun {
	return &stageRun{l: l, res: model.StageResult{Entity: entity, RowsIn: rowsIn}}
}

// expect adds rows that will be submitted as batches, for progress reporting.
func (s *stageRun) expect(n int) {
	s.mu.Lock()
	s.total += n
	s.mu.Unlock()
}

// skip counts rows found already loaded before any batch ran.
func (s *stageRun) skip(n int) {
	s.mu.Lock()
	s.res.SkippedExisting += n
	s.mu.Unlock()
}

func (s *stageRun) reject(rs ...*validate.Rejection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.l.reject(&s.res, rs...)
}

func (s *stageRun) record(br model.BatchResult, out outcome, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.res.Batches = append(s.res.Batches, br)
	s.res.Retries += br.Retries
	if br.Failed {
		s.res.FailedBatches++
		s.res.FailedRows += br.Rows
	} else {
		s.res.Loaded += out.loaded
		s.res.Updated += out.updated
		s.res.SkippedExisting += out.skipped
		s.l.reject(&s.res, out.rejected...)
	}
	s.done += br.Rows

	for _, o := range s.l.observers {
		o.ObserveBatch(s.res.Entity, br, elapsed)
	}
	if s.l.progress != nil {
		s.l.progress(s.res.Entity, s.done, s.total)
	}
}

// result returns the stage result with batches in submission order.
func (s *stageRun) result() model.StageResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	sort.Slice(s.res.Batches, func(i, j int) bool { return s.res.Batches[i].Index < s.res.Batches[j].Index })
	return s.res
}

// run executes one batch with retry and records its result.
func (s *stageRun) run(ctx context.Context, index, rows int, fn batchFunc) {
	started := time.Now()
	br := model.BatchResult{Index: index, Rows: rows}

	var out outcome
	retries, err := common.WithRetryCount(ctx, func() error {
		o, err := s.l.attempt(ctx, fn)
		if err != nil {
			return err
		}
		out = o
		return nil
	}, s.l.opts.Retry)
	br.Retries = retries

	if err != nil {
		br.Failed = true
		br.Error = err.Error()
		slog.Warn("Batch failed",
			"entity", s.res.Entity,
			"batch", index,
			"rows", rows,
			"retries", retries,
			"error", err)
	} else {
		if out.onCommit != nil {
			out.onCommit()
		}
		br.Loaded = out.loaded
		slog.Debug("Batch committed",
			"entity", s.res.Entity,
			"batch", index,
			"rows", rows,
			"loaded", out.loaded,
			"retries", retries)
	}
	s.record(br, out, time.Since(started))
}

// runAll submits batches to at most workers goroutines. Batches not yet
// started when ctx is cancelled are skipped; running ones finish.
func (s *stageRun) runAll(ctx context.Context, workers int, sizes []int, build func(i int) batchFunc) {
	for _, n := range sizes {
		s.expect(n)
	}

	g := new(errgroup.Group)
	g.SetLimit(max(workers, 1))
	for i, n := range sizes {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			s.run(ctx, i, n, build(i))
			return nil
		})
	}
	_ = g.Wait()
}

// attempt runs fn in a fresh transaction. The transaction gets its own
// deadline and ignores cancellation of ctx, so a batch in flight either
// commits or rolls back as a whole.
func (l *Loader) attempt(ctx context.Context, fn batchFunc) (outcome, error) {
	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.opts.CommitTimeout)
	defer cancel()

	tx, err := l.wh.BeginTx(txCtx)
	if err != nil {
		return outcome{}, err
	}
	out, err := fn(txCtx, tx)
	if err != nil {
		_ = tx.Rollback()
		return outcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return outcome{}, err
	}
	return out, nil
}

func sizes[T any](chunks [][]T) []int {
	out := make([]int, len(chunks))
	for i, c := range chunks {
		out[i] = len(c)
	}
	return out
}
