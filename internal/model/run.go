package model

import "time"

// IngestStatus is the lifecycle state of an IngestRun.
type IngestStatus string

const (
	IngestStatusStarted IngestStatus = "started"
	IngestStatusSuccess IngestStatus = "success"
	IngestStatusFailed  IngestStatus = "failed"
)

// IngestRun records one invocation of the ingestion pipeline. It is created
// with status "started" and always finalized, even when ingestion fails.
type IngestRun struct {
	ID        string       `json:"id"`
	Source    string       `json:"source"`
	Files     string       `json:"files"` // newline-joined input filenames
	Status    IngestStatus `json:"status"`
	Error     *string      `json:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// RunStatus is the lifecycle state of a tracked PipelineRun.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// StepStatus is the outcome of a single tracked step.
type StepStatus string

const (
	StepStatusOK     StepStatus = "ok"
	StepStatusFailed StepStatus = "failed"
)

// StepInfo is one completed step within a PipelineRun.
type StepInfo struct {
	Step       string         `json:"step"`
	Status     StepStatus     `json:"status"`
	DurationMS int64          `json:"duration_ms"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// PipelineRun is one tracked execution of a named pipeline stage
// (ingest, clean, flags, metrics, demo). It is created at stage start,
// mutated at step boundaries, and finalized exactly once.
type PipelineRun struct {
	ID       string    `json:"id"`
	Pipeline string    `json:"pipeline"`
	Status   RunStatus `json:"status"`

	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	DurationMS *int64     `json:"duration_ms,omitempty"`

	InputRef *string        `json:"input_ref,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
	Steps    []StepInfo     `json:"steps"`

	RecordsIn  *int64 `json:"records_in,omitempty"`
	RecordsOut *int64 `json:"records_out,omitempty"`

	ErrorKind    *string `json:"error_kind,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
	ErrorSummary *string `json:"error_summary,omitempty"`
}

// DailyMetric is one row of the summary.daily_metrics rollup.
type DailyMetric struct {
	Day                time.Time `json:"day"`
	TotalRecords       int64     `json:"total_records"`
	DistinctRecords    int64     `json:"distinct_records"`
	DistinctSourceIDs  int64     `json:"distinct_source_ids"`
	DistinctSources    int64     `json:"distinct_sources"`
	DistinctCategories int64     `json:"distinct_categories"`
}

// MonthlyMetric is one row of the summary.monthly_metrics rollup.
type MonthlyMetric struct {
	MonthStart         time.Time `json:"month_start"`
	TotalRecords       int64     `json:"total_records"`
	DistinctRecords    int64     `json:"distinct_records"`
	DistinctSourceIDs  int64     `json:"distinct_source_ids"`
	DistinctSources    int64     `json:"distinct_sources"`
	DistinctCategories int64     `json:"distinct_categories"`
}
