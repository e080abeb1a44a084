package flags

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/datapipe-cli/internal/model"
	"github.com/sells-group/datapipe-cli/internal/track"
)

// FlagStore is the persistence surface the report needs. The full
// store.Store satisfies it.
type FlagStore interface {
	track.RunStore
	ListRawRecords(ctx context.Context, limit int) ([]model.RawRecord, error)
}

// ReportResult summarizes one flags run.
type ReportResult struct {
	TotalRecords   int    `json:"total_records"`
	FlaggedRecords int    `json:"flagged_records"`
	ReportPath     string `json:"report_path"`
}

// Report fetches the newest raw records up to limit, flags them, and writes
// the CSV report to outPath. Tracked as pipeline "flags".
func Report(ctx context.Context, st FlagStore, limit int, outPath string) (*ReportResult, error) {
	tr, err := track.Start(ctx, st, "flags", fmt.Sprintf("limit=%d", limit))
	if err != nil {
		return nil, err
	}

	var raws []model.RawRecord
	err = tr.Step("fetch_raw_records", map[string]any{"limit": limit}, func() error {
		var stepErr error
		raws, stepErr = st.ListRawRecords(ctx, limit)
		return stepErr
	})
	if err != nil {
		tr.Fail(ctx, err)
		return nil, err
	}

	records := toRecords(raws)

	var flagged []FlaggedRecord
	err = tr.Step("flag_records", map[string]any{"record_count": len(records)}, func() error {
		flagged = FlagRecords(records, time.Now().UTC())
		return nil
	})
	if err != nil {
		tr.Fail(ctx, err)
		return nil, err
	}

	err = tr.Step("write_flag_report_csv", map[string]any{
		"flagged_count": len(flagged),
		"output_path":   outPath,
	}, func() error {
		return WriteReportCSV(flagged, outPath)
	})
	if err != nil {
		tr.Fail(ctx, err)
		return nil, err
	}

	tr.SetCounts(int64(len(records)), int64(len(flagged)))
	if err := tr.Succeed(ctx); err != nil {
		return nil, err
	}

	zap.L().Info("flags_report_complete",
		zap.Int("records", len(records)),
		zap.Int("flagged", len(flagged)),
		zap.String("report_path", outPath),
	)
	return &ReportResult{
		TotalRecords:   len(records),
		FlaggedRecords: len(flagged),
		ReportPath:     outPath,
	}, nil
}

// toRecords flattens stored raw records into the rule-facing view. Times are
// rendered in the canonical stored spelling.
func toRecords(raws []model.RawRecord) []Record {
	out := make([]Record, len(raws))
	for i, r := range raws {
		out[i] = Record{
			ID:         r.ID,
			RunID:      r.RunID,
			RowNum:     r.RowNum,
			Source:     r.Source,
			SourceID:   r.SourceID,
			Category:   r.Category,
			EventTime:  r.EventTime.UTC().Format("2006-01-02T15:04:05-07:00"),
			Value:      r.Value,
			RecordHash: r.RecordHash,
			IngestedAt: r.IngestedAt.UTC().Format("2006-01-02T15:04:05-07:00"),
		}
	}
	return out
}
