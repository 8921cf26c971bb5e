package loader

import "github.com/Veraticus/creditflow-etl/internal/model"

// LoadReport is the outcome of a load, stage by stage.
type LoadReport struct {
	Stages           []model.StageResult
	BlockedCustomers []string
}

// Stage returns the result of one entity's stage.
func (r *LoadReport) Stage(e model.Entity) (model.StageResult, bool) {
	for _, s := range r.Stages {
		if s.Entity == e {
			return s, true
		}
	}
	return model.StageResult{}, false
}

// Committed returns the rows written, inserted or updated, across stages.
func (r *LoadReport) Committed() int64 {
	var n int64
	for _, s := range r.Stages {
		n += int64(s.Loaded + s.Updated)
	}
	return n
}

// Rejected returns the rows rejected while loading.
func (r *LoadReport) Rejected() int64 {
	var n int64
	for _, s := range r.Stages {
		n += int64(s.Rejected)
	}
	return n
}

// FailedBatches returns the batches that exhausted their retries.
func (r *LoadReport) FailedBatches() int64 {
	var n int64
	for _, s := range r.Stages {
		n += int64(s.FailedBatches)
	}
	return n
}

// FailedRows returns the rows lost to failed batches.
func (r *LoadReport) FailedRows() int64 {
	var n int64
	for _, s := range r.Stages {
		n += int64(s.FailedRows)
	}
	return n
}
