//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/datapipe-cli/internal/model"
)

func int64Ptr(v int64) *int64 { return &v }

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.PipelineRun{
		{
			ID:         "abc12345-6789-0000-0000-000000000000",
			Pipeline:   "ingest",
			Status:     model.RunStatusSucceeded,
			StartedAt:  now,
			DurationMS: int64Ptr(1500),
			RecordsIn:  int64Ptr(100),
			RecordsOut: int64Ptr(95),
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Pipeline:  "clean",
			Status:    model.RunStatusRunning,
			StartedAt: now.Add(-1 * time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "PIPELINE")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "ingest")
	assert.Contains(t, output, "succeeded")
	assert.Contains(t, output, "clean")
	assert.Contains(t, output, "running")
	assert.Contains(t, output, "2026-08-15 10:30")
	assert.Contains(t, output, "abc12345")
	assert.Contains(t, output, "1.5s")
	assert.Contains(t, output, "100")
	assert.Contains(t, output, "95")
}

func TestFormatRunsList_FailedRun(t *testing.T) {
	kind := "ValidationError"
	runs := []model.PipelineRun{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Pipeline:  "ingest",
			Status:    model.RunStatusFailed,
			StartedAt: time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC),
			ErrorKind: &kind,
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "ValidationError")
}

func TestRunsStats(t *testing.T) {
	kind := "errTimeout"
	runs := []model.PipelineRun{
		{
			ID:         "1",
			Pipeline:   "ingest",
			Status:     model.RunStatusSucceeded,
			DurationMS: int64Ptr(2000),
			RecordsIn:  int64Ptr(100),
			RecordsOut: int64Ptr(90),
		},
		{
			ID:         "2",
			Pipeline:   "clean",
			Status:     model.RunStatusSucceeded,
			DurationMS: int64Ptr(4000),
			RecordsIn:  int64Ptr(90),
			RecordsOut: int64Ptr(90),
		},
		{
			ID:         "3",
			Pipeline:   "flags",
			Status:     model.RunStatusFailed,
			DurationMS: int64Ptr(300),
			ErrorKind:  &kind,
		},
		{
			ID:       "4",
			Pipeline: "metrics",
			Status:   model.RunStatusRunning,
		},
	}

	stats := computeRunStats(runs)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Running)
	assert.Equal(t, int64(190), stats.InTotal)
	assert.Equal(t, int64(180), stats.OutTotal)
	// Average of 2000ms, 4000ms, 300ms over 3 timed runs.
	assert.InDelta(t, 2.1, stats.AvgDurSecs, 0.01)

	var buf bytes.Buffer
	formatRunStats(&buf, stats)

	output := buf.String()
	assert.Contains(t, output, "Total runs:")
	assert.Contains(t, output, "Succeeded:")
	assert.Contains(t, output, "Failed:")
	assert.Contains(t, output, "Records in:")
	assert.Contains(t, output, "2.1s")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000-0000-000000000000"))
	assert.Equal(t, "short", truncateID("short"))
}
