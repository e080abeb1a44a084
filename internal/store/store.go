// Package store persists ingest runs, raw and clean records, pipeline runs,
// and the summary rollups, behind a backend-agnostic interface.
package store

import (
	"context"

	"github.com/sells-group/datapipe-cli/internal/model"
)

// RunFilter specifies criteria for listing pipeline runs.
type RunFilter struct {
	Pipeline string          `json:"pipeline,omitempty"`
	Status   model.RunStatus `json:"status,omitempty"`
	Limit    int             `json:"limit,omitempty"`
}

// Store defines the persistence interface for the data pipeline.
//
// InsertRawRecords must be a single atomic conditional insert keyed on the
// (source, record_hash) unique constraint, never an existence check followed
// by a write, so overlapping files stay correct under concurrent ingestion. UpsertCleanRecords overwrites non-key columns on the same kind
// of constraint (last-write-wins).
type Store interface {
	// Ingest runs
	CreateIngestRun(ctx context.Context, source, files string) (*model.IngestRun, error)
	FinishIngestRun(ctx context.Context, runID string, status model.IngestStatus, errText string) error

	// Raw records (append-only audit trail)
	InsertRawRecords(ctx context.Context, recs []model.RawRecord) (inserted int64, err error)
	ListRawRecords(ctx context.Context, limit int) ([]model.RawRecord, error)
	CountRawRecords(ctx context.Context) (int64, error)

	// Clean records
	UpsertCleanRecords(ctx context.Context, recs []model.CleanRecord) error
	CountCleanRecords(ctx context.Context) (int64, error)

	// Pipeline runs
	CreatePipelineRun(ctx context.Context, run *model.PipelineRun) error
	UpdatePipelineRun(ctx context.Context, run *model.PipelineRun) error
	GetPipelineRun(ctx context.Context, runID string) (*model.PipelineRun, error)
	ListPipelineRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error)

	// Summary rollups
	ApplyMetricsViews(ctx context.Context) error
	DailyMetrics(ctx context.Context, days int) ([]model.DailyMetric, error)
	MonthlyMetrics(ctx context.Context) ([]model.MonthlyMetric, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
