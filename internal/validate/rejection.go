package validate

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Veraticus/creditflow-etl/internal/common"
	"github.com/Veraticus/creditflow-etl/internal/model"
)

// Reason classifies why a row was rejected.
type Reason string

// Rejection reasons.
const (
	ReasonMissingNaturalKey       Reason = "missing_natural_key"
	ReasonMissingRequiredField    Reason = "missing_required_field"
	ReasonInvalidFormat           Reason = "invalid_format"
	ReasonOutOfRange              Reason = "out_of_range"
	ReasonMissingDisbursementDate Reason = "missing_disbursement_date"
	ReasonNotDisbursed            Reason = "not_disbursed"
	ReasonFutureDate              Reason = "future_date"
	ReasonDuplicateKey            Reason = "duplicate_key"
	ReasonUnknownKey              Reason = "unknown_key"
	ReasonMultipleCurrentVersions Reason = "multiple_current_versions"
	ReasonInvalidTransition       Reason = "invalid_transition"
)

// Filtered reports whether rows with this reason are dropped by business
// rule rather than for bad data. Filtered rows are counted apart from
// rejections and do not count against the run.
func (r Reason) Filtered() bool {
	return r == ReasonNotDisbursed
}

// Rejection describes one row that will not be loaded.
type Rejection struct {
	Row    model.RawRow
	Entity model.Entity
	Reason Reason
	Key    string
	Field  string
	Detail string
}

// Reject builds a rejection for the row identified by key.
func Reject(entity model.Entity, reason Reason, key, field, detail string) *Rejection {
	return &Rejection{Entity: entity, Reason: reason, Key: key, Field: field, Detail: detail}
}

func (r *Rejection) Error() string {
	msg := fmt.Sprintf("%s %s rejected: %s", r.Entity, r.Key, r.Reason)
	if r.Field != "" {
		msg += " (" + r.Field + ")"
	}
	if r.Detail != "" {
		msg += ": " + r.Detail
	}
	return msg
}

// Unwrap lets callers match any rejection with errors.Is.
func (r *Rejection) Unwrap() error {
	return common.ErrValidationRejection
}

// WithRow attaches the offending raw row for sampling.
func (r *Rejection) WithRow(row model.RawRow) *Rejection {
	r.Row = row
	return r
}

// Tracker accumulates rejections for a run. It keeps counts by entity and
// reason plus the first few rejected rows of each entity. Filtered rows are
// counted per entity only.
type Tracker struct {
	counts     map[model.Entity]map[string]int
	filtered   map[model.Entity]int
	samples    map[model.Entity][]model.RejectedRow
	sampleSize int
	total      int
	mu         sync.Mutex
}

// NewTracker creates a tracker that samples at most sampleSize rows per entity.
func NewTracker(sampleSize int) *Tracker {
	if sampleSize < 0 {
		sampleSize = 0
	}
	return &Tracker{
		counts:     make(map[model.Entity]map[string]int),
		filtered:   make(map[model.Entity]int),
		samples:    make(map[model.Entity][]model.RejectedRow),
		sampleSize: sampleSize,
	}
}

// Add records a rejection. Nil rejections are ignored.
func (t *Tracker) Add(r *Rejection) {
	if r == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if r.Reason.Filtered() {
		t.filtered[r.Entity]++
		return
	}

	byReason, ok := t.counts[r.Entity]
	if !ok {
		byReason = make(map[string]int)
		t.counts[r.Entity] = byReason
	}
	byReason[string(r.Reason)]++
	t.total++

	if len(t.samples[r.Entity]) < t.sampleSize {
		t.samples[r.Entity] = append(t.samples[r.Entity], model.RejectedRow{
			Entity: r.Entity,
			Reason: string(r.Reason),
			Key:    r.Key,
			Detail: r.Detail,
			Row:    r.Row,
		})
	}
}

// AddAll records every rejection in rs.
func (t *Tracker) AddAll(rs []*Rejection) {
	for _, r := range rs {
		t.Add(r)
	}
}

// Filtered returns a copy of the per-entity filtered row counts.
func (t *Tracker) Filtered() map[model.Entity]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[model.Entity]int, len(t.filtered))
	for e, n := range t.filtered {
		out[e] = n
	}
	return out
}

// FilteredTotal returns the number of filtered rows across entities.
func (t *Tracker) FilteredTotal() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, c := range t.filtered {
		n += c
	}
	return n
}

// Total returns the number of rejections recorded.
func (t *Tracker) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// EntityTotal returns the number of rejections recorded for one entity.
func (t *Tracker) EntityTotal(e model.Entity) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, c := range t.counts[e] {
		n += c
	}
	return n
}

// Count returns the rejections of one entity for one reason.
func (t *Tracker) Count(e model.Entity, reason Reason) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[e][string(reason)]
}

// Counts returns a copy of the per-entity, per-reason counts.
func (t *Tracker) Counts() map[model.Entity]map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[model.Entity]map[string]int, len(t.counts))
	for e, byReason := range t.counts {
		cp := make(map[string]int, len(byReason))
		for reason, n := range byReason {
			cp[reason] = n
		}
		out[e] = cp
	}
	return out
}

// Samples returns the sampled rows ordered by entity.
func (t *Tracker) Samples() []model.RejectedRow {
	t.mu.Lock()
	defer t.mu.Unlock()

	entities := make([]string, 0, len(t.samples))
	for e := range t.samples {
		entities = append(entities, string(e))
	}
	sort.Strings(entities)

	var out []model.RejectedRow
	for _, e := range entities {
		out = append(out, t.samples[model.Entity(e)]...)
	}
	return out
}
