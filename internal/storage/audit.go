package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Veraticus/creditflow-etl/internal/service"
)

// Audit queries format table and column names into SQL, so every name is
// checked against the identifier pattern first. The where fragments come
// from the quality check catalog, never from input data.

func whereClause(where string) string {
	if strings.TrimSpace(where) == "" {
		return ""
	}
	return " WHERE " + where
}

// CountRows counts the rows of table matching where.
func (w *Warehouse) CountRows(ctx context.Context, table, where string) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateIdentifiers(table); err != nil {
		return 0, err
	}

	var n int64
	err := w.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+whereClause(where)).Scan(&n)
	if err != nil {
		return 0, wrap("count "+table, err)
	}
	return n, nil
}

// CountNonNull sums the non-null cells of columns across table.
func (w *Warehouse) CountNonNull(ctx context.Context, table string, columns []string) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("%w: columns", ErrNilParameter)
	}
	if err := validateIdentifiers(append([]string{table}, columns...)...); err != nil {
		return 0, err
	}

	counts := make([]string, len(columns))
	for i, col := range columns {
		counts[i] = "COUNT(" + col + ")"
	}

	var n sql.NullInt64
	query := `SELECT ` + strings.Join(counts, " + ") + ` FROM ` + table
	if err := w.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, wrap("count non-null "+table, err)
	}
	return n.Int64, nil
}

// DuplicateCount returns how many values of column occur more than once.
func (w *Warehouse) DuplicateCount(ctx context.Context, table, column, where string) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateIdentifiers(table, column); err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`SELECT COUNT(*) FROM (
		SELECT %[2]s FROM %[1]s%[3]s GROUP BY %[2]s HAVING COUNT(*) > 1
	) dup`, table, column, whereClause(where))

	var n int64
	if err := w.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, wrap("count duplicates in "+table, err)
	}
	return n, nil
}

// OrphanCount reports how many non-null references fk holds and how many
// of them point at no row.
func (w *Warehouse) OrphanCount(ctx context.Context, fk service.ForeignKey) (total, orphans int64, err error) {
	if err := validateContext(ctx); err != nil {
		return 0, 0, err
	}
	if err := validateIdentifiers(fk.Table, fk.Column, fk.RefTable, fk.RefColumn); err != nil {
		return 0, 0, err
	}

	query := fmt.Sprintf(`SELECT
		COUNT(f.%[2]s),
		COALESCE(SUM(CASE WHEN f.%[2]s IS NOT NULL AND r.%[4]s IS NULL THEN 1 ELSE 0 END), 0)
		FROM %[1]s f LEFT JOIN %[3]s r ON f.%[2]s = r.%[4]s`,
		fk.Table, fk.Column, fk.RefTable, fk.RefColumn)

	if err := w.db.QueryRowContext(ctx, query).Scan(&total, &orphans); err != nil {
		return 0, 0, wrap(fmt.Sprintf("check %s.%s references", fk.Table, fk.Column), err)
	}
	return total, orphans, nil
}

// CurrentVersionViolations lists customer_ids without exactly one open version.
func (w *Warehouse) CurrentVersionViolations(ctx context.Context) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := w.db.QueryContext(ctx, `SELECT customer_id FROM dim_customer
		GROUP BY customer_id
		HAVING SUM(CASE WHEN is_current = 1 THEN 1 ELSE 0 END) <> 1
		ORDER BY customer_id`)
	if err != nil {
		return nil, wrap("check customer versions", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan customer id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("check customer versions", err)
	}
	return ids, nil
}
