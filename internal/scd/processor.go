// Package scd maintains SCD Type 2 history for the customer dimension.
package scd

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Veraticus/creditflow-etl/internal/common"
	"github.com/Veraticus/creditflow-etl/internal/model"
	"github.com/Veraticus/creditflow-etl/internal/service"
)

// Action is the change a customer row causes in the dimension.
type Action int

// Actions.
const (
	ActionNoop Action = iota
	ActionInsert
	ActionNewVersion
	ActionUpdateInPlace
)

func (a Action) String() string {
	switch a {
	case ActionInsert:
		return "insert"
	case ActionNewVersion:
		return "new_version"
	case ActionUpdateInPlace:
		return "update_in_place"
	default:
		return "noop"
	}
}

// Rules are the versioning business rules.
type Rules struct {
	TrackedFields         []string
	IncomeChangeThreshold float64
}

// Decision is the outcome of comparing an incoming customer with its
// current version. Row is the version that will be current afterwards;
// its CustomerSK is zero until the decision is applied, except for in-place
// updates, which keep the current key.
type Decision struct {
	Current *model.CustomerDimensionRow
	Row     model.CustomerDimensionRow
	Changed []string
	Action  Action
}

// Processor holds the open version of every customer for one run. It is
// safe for concurrent use, but all writes for one customer must go through
// a single Batch at a time.
type Processor struct {
	current   map[string]model.CustomerDimensionRow
	blocked   map[string]int
	names     []string
	fields    []trackedField
	threshold float64
	today     time.Time
	mu        sync.RWMutex
}

// NewProcessor validates the rules and returns an empty processor that
// versions changes on processingDate.
func NewProcessor(rules Rules, processingDate time.Time) (*Processor, error) {
	names, fields, err := lookupFields(rules.TrackedFields)
	if err != nil {
		return nil, err
	}
	if rules.IncomeChangeThreshold < 0 {
		return nil, fmt.Errorf("%w: negative income change threshold", common.ErrInvalidConfig)
	}
	return &Processor{
		current:   make(map[string]model.CustomerDimensionRow),
		blocked:   make(map[string]int),
		names:     names,
		fields:    fields,
		threshold: rules.IncomeChangeThreshold,
		today:     model.Day(processingDate),
	}, nil
}

// Load reads every open customer version. Customers with more than one open
// version are blocked and returned.
func (p *Processor) Load(ctx context.Context, reader service.CustomerReader) ([]string, error) {
	rows, err := reader.CurrentCustomers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load current customers: %w", err)
	}

	counts := make(map[string]int, len(rows))
	current := make(map[string]model.CustomerDimensionRow, len(rows))
	for _, row := range rows {
		counts[row.CustomerID]++
		current[row.CustomerID] = row
	}

	blocked := make(map[string]int)
	var ids []string
	for id, n := range counts {
		if n > 1 {
			blocked[id] = n
			delete(current, id)
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	p.mu.Lock()
	p.current = current
	p.blocked = blocked
	p.mu.Unlock()

	for _, id := range ids {
		slog.Error("Customer has more than one current version, blocking it for this run",
			"customer_id", id, "versions", blocked[id])
	}
	slog.Debug("Loaded current customer versions", "count", len(current), "blocked", len(ids))
	return ids, nil
}

// Current returns the open version of a customer.
func (p *Processor) Current(customerID string) (model.CustomerDimensionRow, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	row, ok := p.current[customerID]
	return row, ok
}

// Blocked reports whether a customer was blocked at load.
func (p *Processor) Blocked(customerID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.blocked[customerID]
	return ok
}

// BlockedIDs lists blocked customers in order.
func (p *Processor) BlockedIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.blocked))
	for id := range p.blocked {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TrackedFields returns the tracked attribute names.
func (p *Processor) TrackedFields() []string {
	return append([]string(nil), p.names...)
}

// Decide compares incoming against the processor's open version. Blocked
// customers return common.ErrMultipleCurrentVersions before anything else
// is looked at.
func (p *Processor) Decide(incoming *model.Customer) (Decision, error) {
	if p.Blocked(incoming.CustomerID) {
		return Decision{}, fmt.Errorf("%w: customer %s", common.ErrMultipleCurrentVersions, incoming.CustomerID)
	}
	cur, ok := p.Current(incoming.CustomerID)
	if !ok {
		return p.decide(nil, incoming), nil
	}
	return p.decide(&cur, incoming), nil
}

// decide is the versioning rule. It touches no state.
func (p *Processor) decide(cur *model.CustomerDimensionRow, incoming *model.Customer) Decision {
	today := p.today
	if cur == nil {
		return Decision{
			Action: ActionInsert,
			Row:    model.CustomerDimensionRow{Customer: *incoming, EffectiveStart: today, IsCurrent: true},
		}
	}

	var changed []string
	for i, f := range p.fields {
		if f.changed(&cur.Customer, incoming, p.threshold) {
			changed = append(changed, p.names[i])
		}
	}
	if len(changed) > 0 {
		return Decision{
			Action:  ActionNewVersion,
			Current: cur,
			Changed: changed,
			Row:     model.CustomerDimensionRow{Customer: *incoming, EffectiveStart: today, IsCurrent: true},
		}
	}

	projected := *incoming
	for _, f := range p.fields {
		f.keep(&projected, &cur.Customer)
	}
	if sameAttributes(projected, cur.Customer) {
		return Decision{Action: ActionNoop, Current: cur, Row: *cur}
	}

	row := *cur
	row.Customer = projected
	return Decision{Action: ActionUpdateInPlace, Current: cur, Row: row}
}

// Batch stages the decisions of one warehouse transaction. Its changes
// reach the processor only through Commit.
type Batch struct {
	p      *Processor
	staged map[string]model.CustomerDimensionRow
	counts map[Action]int
}

// Batch starts a new staging area.
func (p *Processor) Batch() *Batch {
	return &Batch{
		p:      p,
		staged: make(map[string]model.CustomerDimensionRow),
		counts: make(map[Action]int),
	}
}

// Decide compares incoming against the version staged in this batch, or the
// processor's open version.
func (b *Batch) Decide(incoming *model.Customer) (Decision, error) {
	if b.p.Blocked(incoming.CustomerID) {
		return Decision{}, fmt.Errorf("%w: customer %s", common.ErrMultipleCurrentVersions, incoming.CustomerID)
	}
	if cur, ok := b.staged[incoming.CustomerID]; ok {
		return b.p.decide(&cur, incoming), nil
	}
	return b.p.Decide(incoming)
}

// Apply decides and writes one customer through tx.
func (b *Batch) Apply(ctx context.Context, tx service.WarehouseTx, incoming *model.Customer) (Decision, error) {
	d, err := b.Decide(incoming)
	if err != nil {
		return d, err
	}

	switch d.Action {
	case ActionInsert:
		sk, err := tx.InsertCustomerVersion(ctx, &d.Row)
		if err != nil {
			return d, err
		}
		d.Row.CustomerSK = sk
	case ActionNewVersion:
		if err := tx.CloseCustomerVersion(ctx, d.Current.CustomerSK, b.p.today); err != nil {
			return d, err
		}
		sk, err := tx.InsertCustomerVersion(ctx, &d.Row)
		if err != nil {
			return d, err
		}
		d.Row.CustomerSK = sk
	case ActionUpdateInPlace:
		if err := tx.UpdateCustomerAttributes(ctx, &d.Row); err != nil {
			return d, err
		}
	case ActionNoop:
		b.counts[d.Action]++
		return d, nil
	}

	b.staged[incoming.CustomerID] = d.Row
	b.counts[d.Action]++
	return d, nil
}

// Keys returns the customer keys staged so far.
func (b *Batch) Keys() map[string]int64 {
	out := make(map[string]int64, len(b.staged))
	for id, row := range b.staged {
		out[id] = row.CustomerSK
	}
	return out
}

// Count returns how many applied decisions had the action.
func (b *Batch) Count(a Action) int {
	return b.counts[a]
}

// Commit merges the staged versions into the processor. Call it only after
// the batch transaction has committed.
func (b *Batch) Commit() {
	b.p.mu.Lock()
	defer b.p.mu.Unlock()
	for id, row := range b.staged {
		b.p.current[id] = row
	}
	b.staged = make(map[string]model.CustomerDimensionRow)
}
