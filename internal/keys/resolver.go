// Package keys maps natural keys to warehouse surrogate keys for one run.
//
// A Resolver is loaded from the warehouse when a run starts and is written
// through as batches commit. It is discarded with the run.
package keys

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/creditflow-etl/internal/common"
	"github.com/Veraticus/creditflow-etl/internal/model"
	"github.com/Veraticus/creditflow-etl/internal/service"
	"golang.org/x/sync/singleflight"
)

const dateLayout = "2006-01-02"

// Lookup resolves natural keys. Both Resolver and Stage implement it.
type Lookup interface {
	Resolve(dim model.Dimension, naturalKey string) (int64, error)
	ResolveDate(t time.Time) (int64, error)
}

// Resolver is the run-scoped natural key cache. It is safe for concurrent use.
type Resolver struct {
	keys    map[model.Dimension]map[string]int64
	blocked map[model.Dimension]map[string]struct{}
	group   singleflight.Group
	mu      sync.RWMutex
}

// NewResolver returns an empty resolver.
func NewResolver() *Resolver {
	r := &Resolver{
		keys:    make(map[model.Dimension]map[string]int64, len(model.AllDimensions)),
		blocked: make(map[model.Dimension]map[string]struct{}),
	}
	for _, dim := range model.AllDimensions {
		r.keys[dim] = make(map[string]int64)
	}
	return r
}

// Load replaces the cache with every dimension's keys from the warehouse,
// one query per dimension.
func (r *Resolver) Load(ctx context.Context, reader service.KeyReader) error {
	loaded := make(map[model.Dimension]map[string]int64, len(model.AllDimensions))
	for _, dim := range model.AllDimensions {
		keys, err := reader.LoadKeys(ctx, dim)
		if err != nil {
			return fmt.Errorf("failed to load %s keys: %w", dim, err)
		}
		loaded[dim] = keys
		slog.Debug("Loaded dimension keys", "dimension", dim, "count", len(keys))
	}

	r.mu.Lock()
	r.keys = loaded
	r.mu.Unlock()
	return nil
}

// Resolve returns the surrogate key of a natural key. A miss wraps
// common.ErrUnknownKey; a blocked key wraps common.ErrMultipleCurrentVersions.
func (r *Resolver) Resolve(dim model.Dimension, naturalKey string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveLocked(dim, naturalKey)
}

func (r *Resolver) resolveLocked(dim model.Dimension, naturalKey string) (int64, error) {
	if _, ok := r.blocked[dim][naturalKey]; ok {
		return 0, fmt.Errorf("%w: %s %s", common.ErrMultipleCurrentVersions, dim, naturalKey)
	}
	if sk, ok := r.keys[dim][naturalKey]; ok {
		return sk, nil
	}
	return 0, fmt.Errorf("%w: %s %s", common.ErrUnknownKey, dim, naturalKey)
}

// ResolveDate returns the YYYYMMDD key of a calendar date that is present in
// the date dimension.
func (r *Resolver) ResolveDate(t time.Time) (int64, error) {
	return r.Resolve(model.DimDate, t.Format(dateLayout))
}

// Has reports whether a natural key is cached.
func (r *Resolver) Has(dim model.Dimension, naturalKey string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.keys[dim][naturalKey]
	return ok
}

// Count returns the number of cached keys of a dimension.
func (r *Resolver) Count(dim model.Dimension) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys[dim])
}

// Store records a committed natural key to surrogate key pair.
func (r *Resolver) Store(dim model.Dimension, naturalKey string, sk int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storeLocked(dim, naturalKey, sk)
}

// StoreAll records several committed pairs of one dimension.
func (r *Resolver) StoreAll(dim model.Dimension, pairs map[string]int64) {
	if len(pairs) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, sk := range pairs {
		r.storeLocked(dim, k, sk)
	}
}

func (r *Resolver) storeLocked(dim model.Dimension, naturalKey string, sk int64) {
	m, ok := r.keys[dim]
	if !ok {
		m = make(map[string]int64)
		r.keys[dim] = m
	}
	m[naturalKey] = sk
}

// StoreDates records the keys of committed date rows.
func (r *Resolver) StoreDates(rows []model.DateDimensionRow) {
	pairs := make(map[string]int64, len(rows))
	for _, d := range rows {
		pairs[d.FullDate.Format(dateLayout)] = d.DateSK
	}
	r.StoreAll(model.DimDate, pairs)
}

// Block makes a natural key unresolvable for the rest of the run.
func (r *Resolver) Block(dim model.Dimension, naturalKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.blocked[dim]
	if !ok {
		m = make(map[string]struct{})
		r.blocked[dim] = m
	}
	m[naturalKey] = struct{}{}
}

// Blocked reports whether a natural key was blocked.
func (r *Resolver) Blocked(dim model.Dimension, naturalKey string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.blocked[dim][naturalKey]
	return ok
}

// Ensure returns the surrogate key of naturalKey, calling insert to create
// it on a miss. Concurrent callers for the same key share one insert call.
// The new key is written through to the cache.
func (r *Resolver) Ensure(ctx context.Context, dim model.Dimension, naturalKey string,
	insert func(ctx context.Context) (int64, error)) (int64, error) {
	sk, _, err := r.ensure(ctx, dim, naturalKey, insert, r.Store)
	return sk, err
}

// ensure runs the compare-and-insert and hands a newly inserted key to save.
// created is true only for the caller whose insert ran.
func (r *Resolver) ensure(ctx context.Context, dim model.Dimension, naturalKey string,
	insert func(ctx context.Context) (int64, error), save func(model.Dimension, string, int64)) (int64, bool, error) {
	if sk, err := r.Resolve(dim, naturalKey); err == nil {
		return sk, false, nil
	}
	if r.Blocked(dim, naturalKey) {
		return 0, false, fmt.Errorf("%w: %s %s", common.ErrMultipleCurrentVersions, dim, naturalKey)
	}

	ran := false
	v, err, _ := r.group.Do(string(dim)+"\x00"+naturalKey, func() (any, error) {
		if sk, err := r.Resolve(dim, naturalKey); err == nil {
			return sk, nil
		}
		ran = true
		sk, err := insert(ctx)
		if err != nil {
			return int64(0), err
		}
		save(dim, naturalKey, sk)
		return sk, nil
	})
	if err != nil {
		return 0, false, err
	}
	return v.(int64), ran, nil
}

// Stage is a batch-scoped overlay on a Resolver. Keys created through it
// stay private to the batch until Commit, so a rolled-back batch leaves no
// trace in the cache.
type Stage struct {
	parent  *Resolver
	pending map[model.Dimension]map[string]int64
	mu      sync.Mutex
}

// Stage starts a new overlay.
func (r *Resolver) Stage() *Stage {
	return &Stage{parent: r, pending: make(map[model.Dimension]map[string]int64)}
}

// Resolve looks in the overlay first, then in the resolver.
func (s *Stage) Resolve(dim model.Dimension, naturalKey string) (int64, error) {
	s.mu.Lock()
	sk, ok := s.pending[dim][naturalKey]
	s.mu.Unlock()
	if ok {
		return sk, nil
	}
	return s.parent.Resolve(dim, naturalKey)
}

// ResolveDate resolves a date through the overlay.
func (s *Stage) ResolveDate(t time.Time) (int64, error) {
	return s.Resolve(model.DimDate, t.Format(dateLayout))
}

// Put records a key created inside the batch.
func (s *Stage) Put(dim model.Dimension, naturalKey string, sk int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.pending[dim]
	if !ok {
		m = make(map[string]int64)
		s.pending[dim] = m
	}
	m[naturalKey] = sk
}

// PutAll records several keys created inside the batch.
func (s *Stage) PutAll(dim model.Dimension, pairs map[string]int64) {
	for k, sk := range pairs {
		s.Put(dim, k, sk)
	}
}

// Ensure is Resolver.Ensure with the new key held in the overlay. created
// reports whether insert ran for this call.
func (s *Stage) Ensure(ctx context.Context, dim model.Dimension, naturalKey string,
	insert func(ctx context.Context) (int64, error)) (sk int64, created bool, err error) {
	if sk, err := s.Resolve(dim, naturalKey); err == nil {
		return sk, false, nil
	}
	return s.parent.ensure(ctx, dim, naturalKey, insert, s.Put)
}

// Len returns the number of pending keys.
func (s *Stage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.pending {
		n += len(m)
	}
	return n
}

// Commit merges the overlay into the resolver. Call it only after the
// batch transaction has committed.
func (s *Stage) Commit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for dim, pairs := range s.pending {
		s.parent.StoreAll(dim, pairs)
	}
	s.pending = make(map[model.Dimension]map[string]int64)
}

// Discard drops the overlay.
func (s *Stage) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = make(map[model.Dimension]map[string]int64)
}
