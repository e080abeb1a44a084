package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/datapipe-cli/internal/model"
)

// fakeStore records writes in memory and dedupes on (source, record_hash),
// matching the database constraint semantics.
type fakeStore struct {
	mu sync.Mutex

	seen        map[string]bool
	raw         []model.RawRecord
	ingestRuns  map[string]*model.IngestRun
	pipelineRun *model.PipelineRun

	insertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		seen:       map[string]bool{},
		ingestRuns: map[string]*model.IngestRun{},
	}
}

func (f *fakeStore) CreatePipelineRun(_ context.Context, run *model.PipelineRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *run
	f.pipelineRun = &cp
	return nil
}

func (f *fakeStore) UpdatePipelineRun(_ context.Context, run *model.PipelineRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *run
	f.pipelineRun = &cp
	return nil
}

func (f *fakeStore) CreateIngestRun(_ context.Context, source, files string) (*model.IngestRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run := &model.IngestRun{
		ID:     "ingest-run-" + source,
		Source: source,
		Files:  files,
		Status: model.IngestStatusStarted,
	}
	f.ingestRuns[run.ID] = run
	return run, nil
}

func (f *fakeStore) FinishIngestRun(_ context.Context, runID string, status model.IngestStatus, errText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.ingestRuns[runID]
	if !ok {
		return errors.New("unknown run")
	}
	run.Status = status
	if errText != "" {
		run.Error = &errText
	}
	return nil
}

func (f *fakeStore) InsertRawRecords(_ context.Context, recs []model.RawRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	var inserted int64
	for _, r := range recs {
		key := r.Source + "|" + r.RecordHash
		if f.seen[key] {
			continue
		}
		f.seen[key] = true
		f.raw = append(f.raw, r)
		inserted++
	}
	return inserted, nil
}

func TestIngestFiles_HappyPath(t *testing.T) {
	st := newFakeStore()
	svc := NewService(st)

	res, err := svc.IngestFiles(context.Background(), "feed-a", []NamedFile{
		{Name: "data.csv", Data: []byte(sampleCSV)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.TotalRecords)
	assert.Equal(t, int64(2), res.InsertedRecords)
	assert.Equal(t, int64(0), res.DedupedRecords)
	require.Len(t, res.PerFile, 1)
	assert.Equal(t, 2, res.PerFile[0].Rows)

	run := st.ingestRuns[res.RunID]
	require.NotNil(t, run)
	assert.Equal(t, model.IngestStatusSuccess, run.Status)
	assert.Equal(t, "data.csv", run.Files)

	require.NotNil(t, st.pipelineRun)
	assert.Equal(t, "ingest", st.pipelineRun.Pipeline)
	assert.Equal(t, model.RunStatusSucceeded, st.pipelineRun.Status)
}

func TestIngestFiles_ReingestIsIdempotent(t *testing.T) {
	st := newFakeStore()
	svc := NewService(st)
	files := []NamedFile{{Name: "data.csv", Data: []byte(sampleCSV)}}

	first, err := svc.IngestFiles(context.Background(), "feed-a", files)
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.InsertedRecords)

	second, err := svc.IngestFiles(context.Background(), "feed-a", files)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.TotalRecords)
	assert.Equal(t, int64(0), second.InsertedRecords)
	assert.Equal(t, int64(2), second.DedupedRecords)
}

func TestIngestFiles_DuplicatesWithinOneBatch(t *testing.T) {
	st := newFakeStore()
	svc := NewService(st)

	// Same content twice in one file plus once more in a second file.
	dup := "source_id,event_time,value,category\ns1,2024-03-05T10:30:00Z,100,sales\ns1,2024-03-05T10:30:00+00:00,100,sales\n"
	res, err := svc.IngestFiles(context.Background(), "feed-a", []NamedFile{
		{Name: "one.csv", Data: []byte(dup)},
		{Name: "two.csv", Data: []byte("source_id,event_time,value,category\ns1,2024-03-05T10:30:00,100,sales\n")},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.TotalRecords)
	assert.Equal(t, int64(1), res.InsertedRecords)
	assert.Equal(t, int64(2), res.DedupedRecords)
}

func TestIngestFiles_RowNumbersPerFile(t *testing.T) {
	st := newFakeStore()
	svc := NewService(st)

	_, err := svc.IngestFiles(context.Background(), "feed-a", []NamedFile{
		{Name: "data.csv", Data: []byte(sampleCSV)},
	})
	require.NoError(t, err)
	require.Len(t, st.raw, 2)
	assert.Equal(t, 1, st.raw[0].RowNum)
	assert.Equal(t, 2, st.raw[1].RowNum)
	for _, r := range st.raw {
		assert.Equal(t, "feed-a", r.Source)
		assert.NotEmpty(t, r.ID)
		assert.NotEmpty(t, r.RecordHash)
	}
}

func TestIngestFiles_ValidationFailureFailsWholeRun(t *testing.T) {
	st := newFakeStore()
	svc := NewService(st)

	_, err := svc.IngestFiles(context.Background(), "feed-a", []NamedFile{
		{Name: "good.csv", Data: []byte(sampleCSV)},
		{Name: "bad.csv", Data: []byte("source_id,value\ns1,1\n")},
	})
	require.Error(t, err)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	// Nothing written, both run rows finalized as failed.
	assert.Empty(t, st.raw)
	require.Len(t, st.ingestRuns, 1)
	for _, run := range st.ingestRuns {
		assert.Equal(t, model.IngestStatusFailed, run.Status)
		require.NotNil(t, run.Error)
	}
	require.NotNil(t, st.pipelineRun)
	assert.Equal(t, model.RunStatusFailed, st.pipelineRun.Status)
	require.NotNil(t, st.pipelineRun.ErrorKind)
	assert.Equal(t, "ValidationError", *st.pipelineRun.ErrorKind)
}

func TestIngestFiles_BadEventTimeNamesFileAndRow(t *testing.T) {
	st := newFakeStore()
	svc := NewService(st)

	data := "source_id,event_time,value,category\ns1,2024-03-05,1,sales\ns2,garbage,2,sales\n"
	_, err := svc.IngestFiles(context.Background(), "feed-a", []NamedFile{
		{Name: "data.csv", Data: []byte(data)},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data.csv row 2")
}

func TestIngestFiles_StoreFailureRecorded(t *testing.T) {
	st := newFakeStore()
	st.insertErr = errors.New("connection refused")
	svc := NewService(st)

	_, err := svc.IngestFiles(context.Background(), "feed-a", []NamedFile{
		{Name: "data.csv", Data: []byte(sampleCSV)},
	})
	require.Error(t, err)

	require.NotNil(t, st.pipelineRun)
	assert.Equal(t, model.RunStatusFailed, st.pipelineRun.Status)
	for _, run := range st.ingestRuns {
		assert.Equal(t, model.IngestStatusFailed, run.Status)
	}
}

func TestIngestFiles_InputValidation(t *testing.T) {
	svc := NewService(newFakeStore())

	_, err := svc.IngestFiles(context.Background(), "", []NamedFile{{Name: "a.csv"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source is required")

	_, err = svc.IngestFiles(context.Background(), "feed-a", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one file")
}
