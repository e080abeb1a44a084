package clean

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/datapipe-cli/internal/model"
	"github.com/sells-group/datapipe-cli/internal/normalize"
	"github.com/sells-group/datapipe-cli/internal/track"
)

// CleanStore is the persistence surface the refresh needs. The full
// store.Store satisfies it.
type CleanStore interface {
	track.RunStore
	ListRawRecords(ctx context.Context, limit int) ([]model.RawRecord, error)
	UpsertCleanRecords(ctx context.Context, recs []model.CleanRecord) error
	CountCleanRecords(ctx context.Context) (int64, error)
}

// Refresh rebuilds the clean projection from the newest raw records, up to
// limit. Re-cleaning the same raw content overwrites non-key columns on the
// (source, record_hash) constraint, so repeated refreshes converge instead of
// duplicating. Returns the total clean-record count after the refresh.
func Refresh(ctx context.Context, st CleanStore, limit int, cfg Config) (int64, error) {
	tr, err := track.Start(ctx, st, "clean", fmt.Sprintf("limit=%d", limit))
	if err != nil {
		return 0, err
	}

	var raws []model.RawRecord
	err = tr.Step("fetch_raw_records", map[string]any{"limit": limit}, func() error {
		var stepErr error
		raws, stepErr = st.ListRawRecords(ctx, limit)
		return stepErr
	})
	if err != nil {
		tr.Fail(ctx, err)
		return 0, err
	}

	recs := buildCleanRecords(raws, cfg)

	var total int64
	err = tr.Step("upsert_clean_records", map[string]any{"records": len(recs)}, func() error {
		if stepErr := st.UpsertCleanRecords(ctx, recs); stepErr != nil {
			return stepErr
		}
		var stepErr error
		total, stepErr = st.CountCleanRecords(ctx)
		return stepErr
	})
	if err != nil {
		tr.Fail(ctx, err)
		return 0, err
	}

	tr.SetCounts(int64(len(raws)), total)
	if err := tr.Succeed(ctx); err != nil {
		return 0, err
	}

	zap.L().Info("clean_refresh_complete",
		zap.Int("raw_records", len(raws)),
		zap.Int64("clean_total", total),
	)
	return total, nil
}

// buildCleanRecords projects raw records into their cleaned form.
func buildCleanRecords(raws []model.RawRecord, cfg Config) []model.CleanRecord {
	now := time.Now().UTC()
	recs := make([]model.CleanRecord, 0, len(raws))
	for _, raw := range raws {
		payload := CleanRow(raw.Payload, cfg)

		rec := model.CleanRecord{
			ID:           uuid.New().String(),
			RawID:        raw.ID,
			RunID:        raw.RunID,
			Source:       raw.Source,
			RecordHash:   raw.RecordHash,
			SourceID:     raw.SourceID,
			EventTime:    raw.EventTime,
			PayloadClean: payload,
			CleanedAt:    now,
		}

		if c, ok := payload["category"].(string); ok && c != "" {
			rec.Category = &c
		} else if raw.Category != "" {
			category := raw.Category
			rec.Category = &category
		}

		if text, ok := normalize.Text(payload["value"]); ok {
			rec.ValueText = &text
		}
		if dec, ok := normalize.Currency(payload["value"]); ok {
			rec.ValueDecimal = &dec
		}

		recs = append(recs, rec)
	}
	return recs
}
