package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Veraticus/creditflow-etl/internal/model"
)

// Files maps entities to the extract names written by the generator.
var Files = map[model.Entity]string{
	model.EntityCustomer:    "customers.csv",
	model.EntityProduct:     "products.csv",
	model.EntityBranch:      "branches.csv",
	model.EntityLoan:        "loans.csv",
	model.EntityTransaction: "transactions.csv",
	model.EntityFraudAlert:  "fraud_alerts.csv",
}

var required = map[model.Entity]bool{
	model.EntityCustomer: true,
	model.EntityLoan:     true,
}

// CSVDir reads one header-first CSV extract per entity from a directory.
type CSVDir struct {
	Dir string
}

// NewCSVDir returns a source over dir.
func NewCSVDir(dir string) *CSVDir {
	return &CSVDir{Dir: dir}
}

// Open opens the entity's extract. A missing optional extract reads as
// empty; a missing customers or loans extract wraps ErrMissingInput.
func (c *CSVDir) Open(_ context.Context, entity model.Entity) (Reader, error) {
	name, ok := Files[entity]
	if !ok {
		return nil, fmt.Errorf("no upstream extract for entity %s", entity)
	}
	path := filepath.Join(c.Dir, name)

	f, err := os.Open(path) //nolint:gosec // path is built from the configured input dir
	if errors.Is(err, os.ErrNotExist) {
		if required[entity] {
			return nil, fmt.Errorf("%w: %s", ErrMissingInput, path)
		}
		slog.Warn("Optional extract not found, treating as empty", "entity", entity, "path", path)
		return &sliceReader{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		_ = f.Close()
		return &sliceReader{}, nil
	}
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	return &csvReader{file: f, reader: r, header: header, path: path}, nil
}

type csvReader struct {
	file   *os.File
	reader *csv.Reader
	path   string
	header []string
}

func (r *csvReader) NextBatch(ctx context.Context, n int) ([]model.RawRow, error) {
	if n <= 0 {
		n = 1000
	}
	rows := make([]model.RawRow, 0, n)
	for len(rows) < n {
		if err := ctx.Err(); err != nil {
			return rows, err
		}
		record, err := r.reader.Read()
		if errors.Is(err, io.EOF) {
			if len(rows) == 0 {
				return nil, io.EOF
			}
			return rows, nil
		}
		if err != nil {
			return rows, fmt.Errorf("failed to read %s: %w", r.path, err)
		}

		row := make(model.RawRow, len(r.header))
		for i, col := range r.header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (r *csvReader) Close() error {
	return r.file.Close()
}
