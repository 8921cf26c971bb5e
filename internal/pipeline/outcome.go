package pipeline

import (
	"time"

	"github.com/Veraticus/creditflow-etl/internal/model"
)

// Stage control statuses.
const (
	stageSuccess = "Success"
	stagePartial = "Partial"
	stageFailed  = "Failed"
)

// decideOutcome grades a run. issues counts rejected rows plus rows lost
// to failed batches; rowsIn counts raw rows read.
func decideOutcome(runErr error, q *model.QualityReport, issues, rowsIn int64, tolerance float64) model.Outcome {
	if runErr != nil || q == nil || !q.Passed {
		return model.OutcomeFailed
	}
	if issues == 0 {
		return model.OutcomeSuccessful
	}
	if rowsIn > 0 && float64(issues)/float64(rowsIn) > tolerance {
		return model.OutcomeFailed
	}
	return model.OutcomeDegraded
}

func stageControls(runID string, at time.Time, stages []model.StageResult) []model.StageControl {
	rows := make([]model.StageControl, 0, len(stages))
	for _, s := range stages {
		status := stageSuccess
		var msg string
		switch {
		case s.FailedBatches > 0 && s.FailedBatches == len(s.Batches):
			status = stageFailed
		case s.FailedBatches > 0:
			status = stagePartial
		}
		for _, b := range s.Batches {
			if b.Failed {
				msg = b.Error
				break
			}
		}
		rows = append(rows, model.StageControl{
			RunID:            runID,
			RunAt:            at,
			ETLName:          "load_" + string(s.Entity),
			TableName:        s.Entity.Table(),
			Status:           status,
			ErrorMessage:     msg,
			RecordsProcessed: int64(s.Loaded + s.Updated),
		})
	}
	return rows
}
