package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/datapipe-cli/internal/model"
	"github.com/sells-group/datapipe-cli/internal/track"
)

// RecordStore is the persistence surface ingestion needs. The full
// store.Store satisfies it.
type RecordStore interface {
	track.RunStore
	CreateIngestRun(ctx context.Context, source, files string) (*model.IngestRun, error)
	FinishIngestRun(ctx context.Context, runID string, status model.IngestStatus, errText string) error
	InsertRawRecords(ctx context.Context, recs []model.RawRecord) (int64, error)
}

// FileResult reports how many rows one input file contributed.
type FileResult struct {
	Name string `json:"name"`
	Rows int    `json:"rows"`
}

// Result summarizes one ingestion: dedupe is never an error, so the deduped
// count is simply parsed minus inserted.
type Result struct {
	RunID           string       `json:"run_id"`
	TotalRecords    int64        `json:"total_records"`
	InsertedRecords int64        `json:"inserted_records"`
	DedupedRecords  int64        `json:"deduped_records"`
	PerFile         []FileResult `json:"per_file"`
}

// Service runs the ingestion pipeline.
type Service struct {
	store RecordStore
}

func NewService(st RecordStore) *Service {
	return &Service{store: st}
}

// IngestFiles parses the given files, computes content hashes, and writes all
// candidates in one conditional bulk insert. Re-ingesting the same files is
// idempotent: every row dedupes against the (source, record_hash) constraint
// and the second run reports inserted=0.
//
// Files are parsed concurrently; candidate order (file order, then row order)
// is preserved for the single upsert batch.
func (s *Service) IngestFiles(ctx context.Context, source string, files []NamedFile) (*Result, error) {
	if source == "" {
		return nil, validationf("source is required")
	}
	if len(files) == 0 {
		return nil, validationf("at least one file is required")
	}

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}

	tr, err := track.Start(ctx, s.store, "ingest", strings.Join(names, ","))
	if err != nil {
		return nil, err
	}

	run, err := s.store.CreateIngestRun(ctx, source, strings.Join(names, "\n"))
	if err != nil {
		err = eris.Wrap(err, "ingest: create ingest run")
		tr.Fail(ctx, err)
		return nil, err
	}

	perFile := make([][]model.RawRecord, len(files))

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			return tr.Step("parse", map[string]any{"file": f.Name}, func() error {
				recs, err := s.parseOne(gctx, run, source, f)
				if err != nil {
					return err
				}
				perFile[i] = recs
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, s.fail(ctx, tr, run.ID, err)
	}

	var candidates []model.RawRecord
	results := make([]FileResult, len(files))
	for i, recs := range perFile {
		candidates = append(candidates, recs...)
		results[i] = FileResult{Name: files[i].Name, Rows: len(recs)}
	}
	total := int64(len(candidates))

	var inserted int64
	err = tr.Step("upsert", map[string]any{"candidates": total}, func() error {
		var stepErr error
		inserted, stepErr = s.store.InsertRawRecords(ctx, candidates)
		return stepErr
	})
	if err != nil {
		return nil, s.fail(ctx, tr, run.ID, err)
	}

	if err := s.store.FinishIngestRun(ctx, run.ID, model.IngestStatusSuccess, ""); err != nil {
		return nil, s.fail(ctx, tr, run.ID, eris.Wrap(err, "ingest: finish ingest run"))
	}

	tr.SetCounts(total, inserted)
	if err := tr.Succeed(ctx); err != nil {
		return nil, err
	}

	res := &Result{
		RunID:           run.ID,
		TotalRecords:    total,
		InsertedRecords: inserted,
		DedupedRecords:  total - inserted,
		PerFile:         results,
	}
	zap.L().Info("ingest_complete",
		zap.String("run_id", run.ID),
		zap.String("source", source),
		zap.Int64("total", res.TotalRecords),
		zap.Int64("inserted", res.InsertedRecords),
		zap.Int64("deduped", res.DedupedRecords),
	)
	return res, nil
}

// parseOne turns one file into raw-record candidates with 1-based row numbers.
func (s *Service) parseOne(ctx context.Context, run *model.IngestRun, source string, f NamedFile) ([]model.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := ParseFile(f.Name, f.Data)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	recs := make([]model.RawRecord, 0, len(rows))
	for i, row := range rows {
		keys, err := ExtractKeys(row)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: %s row %d", f.Name, i+1)
		}
		recs = append(recs, model.RawRecord{
			ID:         uuid.New().String(),
			RunID:      run.ID,
			Source:     source,
			RecordHash: keys.Hash,
			SourceID:   keys.SourceID,
			EventTime:  keys.EventTime,
			Category:   keys.Category,
			Value:      keys.Value,
			RowNum:     i + 1,
			Payload:    row,
			IngestedAt: now,
		})
	}
	return recs, nil
}

// fail finalizes both the ingest run row and the tracker, then returns the
// triggering error for the caller to surface.
func (s *Service) fail(ctx context.Context, tr *track.Tracker, runID string, failure error) error {
	if err := s.store.FinishIngestRun(ctx, runID, model.IngestStatusFailed, failure.Error()); err != nil {
		zap.L().Error("ingest: finish failed run", zap.String("run_id", runID), zap.Error(err))
	}
	tr.Fail(ctx, failure)
	return failure
}
