package model

import "time"

// RunStatus is the lifecycle state of an ETL run record.
type RunStatus string

// Run statuses. Completed and Failed are terminal.
const (
	RunRunning   RunStatus = "Running"
	RunCompleted RunStatus = "Completed"
	RunFailed    RunStatus = "Failed"
)

// Outcome grades a finished run.
type Outcome string

// Run outcomes.
const (
	OutcomeSuccessful Outcome = "successful"
	OutcomeDegraded   Outcome = "degraded"
	OutcomeFailed     Outcome = "failed"
)

// ETLRun is the durable record of one pipeline invocation.
type ETLRun struct {
	StartedAt        time.Time
	FinishedAt       *time.Time
	ProcessingDate   time.Time
	RunID            string
	Status           RunStatus
	Outcome          Outcome
	ErrorMessage     string
	QualityReport    string
	Summary          string
	RecordsProcessed int64
	RecordsRejected  int64
	FailedBatches    int64
}

// StageControl is the per-stage audit row written to etl_control.
type StageControl struct {
	RunAt            time.Time
	RunID            string
	ETLName          string
	TableName        string
	Status           string
	ErrorMessage     string
	RecordsProcessed int64
}

// BatchResult records the outcome of one committed or failed batch.
type BatchResult struct {
	Error   string `json:"error,omitempty"`
	Index   int    `json:"index"`
	Rows    int    `json:"rows"`
	Loaded  int    `json:"loaded"`
	Retries int    `json:"retries"`
	Failed  bool   `json:"failed"`
}

// StageResult summarizes one entity's load.
type StageResult struct {
	Entity          Entity        `json:"entity"`
	Batches         []BatchResult `json:"batches,omitempty"`
	RowsIn          int           `json:"rows_in"`
	Loaded          int           `json:"loaded"`
	Updated         int           `json:"updated"`
	SkippedExisting int           `json:"skipped_existing"`
	Rejected        int           `json:"rejected"`
	FailedBatches   int           `json:"failed_batches"`
	FailedRows      int           `json:"failed_rows"`
	Retries         int           `json:"retries"`
}

// RejectedRow is a sample of a rejected input row kept for the quality report.
type RejectedRow struct {
	Row    RawRow `json:"row,omitempty"`
	Entity Entity `json:"entity"`
	Reason string `json:"reason"`
	Key    string `json:"key,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// CheckResult is one data quality measurement against its threshold.
type CheckResult struct {
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	Table     string  `json:"table"`
	Column    string  `json:"column,omitempty"`
	Observed  float64 `json:"observed"`
	Threshold float64 `json:"threshold"`
	Passed    bool    `json:"passed"`
}

// QualityReport is the post-load audit result persisted on the run record.
type QualityReport struct {
	Checks  []CheckResult `json:"checks"`
	Failed  int           `json:"failed"`
	Passed  bool          `json:"passed"`
	Checked int           `json:"checked"`
}

// Portfolio holds the derived credit risk and fraud aggregates of a run.
type Portfolio struct {
	BucketDistribution map[string]int     `json:"bucket_distribution"`
	AlertsByLevel      map[string]int     `json:"alerts_by_level"`
	AlertsByStatus     map[string]int     `json:"alerts_by_status"`
	ExposureByBucket   map[string]float64 `json:"exposure_by_bucket"`
	LoanCount          int                `json:"loan_count"`
	NPACount           int                `json:"npa_count"`
	AlertCount         int                `json:"alert_count"`
	TotalExposure      float64            `json:"total_exposure"`
	ExpectedLoss       float64            `json:"expected_loss"`
	AveragePD          float64            `json:"average_pd"`
	NPARatio           float64            `json:"npa_ratio"`
	ConfirmedImpact    float64            `json:"confirmed_fraud_impact"`
}

// RunSummary is the per-run report handed to downstream consumers.
type RunSummary struct {
	StartedAt      time.Time                 `json:"started_at"`
	FinishedAt     time.Time                 `json:"finished_at"`
	ProcessingDate time.Time                 `json:"processing_date"`
	Rejections     map[Entity]map[string]int `json:"rejections"`
	Filtered       map[Entity]int            `json:"filtered,omitempty"`
	Quality        *QualityReport            `json:"quality,omitempty"`
	Portfolio      *Portfolio                `json:"portfolio,omitempty"`
	RunID          string                    `json:"run_id"`
	Status         RunStatus                 `json:"status"`
	Outcome        Outcome                   `json:"outcome"`
	Error          string                    `json:"error,omitempty"`
	Stages         []StageResult             `json:"stages"`
	Samples        []RejectedRow             `json:"rejection_samples,omitempty"`
	BlockedKeys    []string                  `json:"blocked_customer_ids,omitempty"`
	RowsProcessed  int64                     `json:"rows_processed"`
	RowsRejected   int64                     `json:"rows_rejected"`
	RowsFiltered   int64                     `json:"rows_filtered"`
	FailedBatches  int64                     `json:"failed_batches"`
}
