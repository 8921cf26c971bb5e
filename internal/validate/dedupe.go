package validate

import "github.com/Veraticus/creditflow-etl/internal/model"

// DedupeLast keeps the last row of every natural key, preserving the order
// of the kept rows. Earlier repeats are rejected as duplicate_key.
func DedupeLast[T any](entity model.Entity, rows []T, key func(T) string) ([]T, []*Rejection) {
	last := make(map[string]int, len(rows))
	for i, r := range rows {
		last[key(r)] = i
	}
	if len(last) == len(rows) {
		return rows, nil
	}

	kept := make([]T, 0, len(last))
	var rejected []*Rejection
	for i, r := range rows {
		k := key(r)
		if last[k] != i {
			rejected = append(rejected, Reject(entity, ReasonDuplicateKey, k, "", "superseded by a later row with the same key"))
			continue
		}
		kept = append(kept, r)
	}
	return kept, rejected
}
