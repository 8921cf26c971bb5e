// Package source delivers upstream raw rows to the pipeline.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"

	"github.com/Veraticus/creditflow-etl/internal/model"
)

// ErrMissingInput indicates a required upstream extract is absent.
var ErrMissingInput = errors.New("missing upstream input")

// Reader yields raw rows of one entity in batches.
type Reader interface {
	// NextBatch returns up to n rows. It returns io.EOF, with no rows, once
	// the input is exhausted.
	NextBatch(ctx context.Context, n int) ([]model.RawRow, error)
	Close() error
}

// Source opens a reader per entity.
type Source interface {
	Open(ctx context.Context, entity model.Entity) (Reader, error)
}

// ReadAll drains a reader in batches of n rows.
func ReadAll(ctx context.Context, r Reader, n int) ([]model.RawRow, error) {
	var rows []model.RawRow
	for {
		batch, err := r.NextBatch(ctx, n)
		rows = append(rows, batch...)
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
	}
}

// ReadEntity opens, drains and closes the reader of one entity.
func ReadEntity(ctx context.Context, src Source, entity model.Entity, n int) ([]model.RawRow, error) {
	r, err := src.Open(ctx, entity)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	rows, err := ReadAll(ctx, r, n)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s rows: %w", entity, err)
	}
	return rows, nil
}

// Memory is an in-memory source.
type Memory struct {
	rows map[model.Entity][]model.RawRow
}

// NewMemory returns a source over the given rows. Entities without rows
// read as empty.
func NewMemory(rows map[model.Entity][]model.RawRow) *Memory {
	return &Memory{rows: maps.Clone(rows)}
}

// Open returns a reader over a snapshot of the entity's rows.
func (m *Memory) Open(_ context.Context, entity model.Entity) (Reader, error) {
	return &sliceReader{rows: m.rows[entity]}, nil
}

type sliceReader struct {
	rows []model.RawRow
	pos  int
}

func (r *sliceReader) NextBatch(ctx context.Context, n int) ([]model.RawRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.pos >= len(r.rows) {
		return nil, io.EOF
	}
	if n <= 0 {
		n = len(r.rows)
	}
	end := min(r.pos+n, len(r.rows))
	batch := r.rows[r.pos:end]
	r.pos = end
	return batch, nil
}

func (r *sliceReader) Close() error {
	return nil
}
