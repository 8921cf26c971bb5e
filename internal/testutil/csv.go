package testutil

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Veraticus/creditflow-etl/internal/source"
)

// WriteCSV writes every entity of the dataset as a header-first extract
// under dir, using the file names the CSV source expects.
func (d *Dataset) WriteCSV(t *testing.T, dir string) {
	t.Helper()

	for entity, rows := range d.rows {
		name, ok := source.Files[entity]
		if !ok || len(rows) == 0 {
			continue
		}

		var header []string
		for _, r := range rows {
			for col := range r {
				if !slices.Contains(header, col) {
					header = append(header, col)
				}
			}
		}
		slices.Sort(header)

		f, err := os.Create(filepath.Join(dir, name))
		require.NoError(t, err)

		w := csv.NewWriter(f)
		require.NoError(t, w.Write(header))
		for _, r := range rows {
			record := make([]string, len(header))
			for i, col := range header {
				record[i] = r[col]
			}
			require.NoError(t, w.Write(record))
		}
		w.Flush()
		require.NoError(t, w.Error())
		require.NoError(t, f.Close())
	}
}
