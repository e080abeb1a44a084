package track

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/datapipe-cli/internal/model"
)

type fakeRunStore struct {
	mu      sync.Mutex
	created *model.PipelineRun
	updated *model.PipelineRun

	createErr error
	updateErr error
}

func (f *fakeRunStore) CreatePipelineRun(_ context.Context, run *model.PipelineRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	cp := *run
	f.created = &cp
	return nil
}

func (f *fakeRunStore) UpdatePipelineRun(_ context.Context, run *model.PipelineRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	cp := *run
	f.updated = &cp
	return nil
}

func TestStart_PersistsRunningRun(t *testing.T) {
	st := &fakeRunStore{}

	tr, err := Start(context.Background(), st, "ingest", "one.csv")
	require.NoError(t, err)
	assert.NotEmpty(t, tr.RunID())

	require.NotNil(t, st.created)
	assert.Equal(t, "ingest", st.created.Pipeline)
	assert.Equal(t, model.RunStatusRunning, st.created.Status)
	require.NotNil(t, st.created.InputRef)
	assert.Equal(t, "one.csv", *st.created.InputRef)
}

func TestStart_EmptyInputRefOmitted(t *testing.T) {
	st := &fakeRunStore{}

	_, err := Start(context.Background(), st, "clean", "")
	require.NoError(t, err)
	assert.Nil(t, st.created.InputRef)
}

func TestStart_CreateFailure(t *testing.T) {
	st := &fakeRunStore{createErr: errors.New("db down")}

	_, err := Start(context.Background(), st, "ingest", "")
	require.Error(t, err)
}

func TestStep_RecordsOutcomeAndReturnsError(t *testing.T) {
	st := &fakeRunStore{}
	tr, err := Start(context.Background(), st, "ingest", "")
	require.NoError(t, err)

	require.NoError(t, tr.Step("parse", map[string]any{"file": "a.csv"}, func() error {
		return nil
	}))

	boom := errors.New("boom")
	got := tr.Step("upsert", nil, func() error { return boom })
	assert.Same(t, boom, got, "step errors pass through unmodified")

	require.NoError(t, tr.Succeed(context.Background()))
	require.NotNil(t, st.updated)
	require.Len(t, st.updated.Steps, 2)
	assert.Equal(t, "parse", st.updated.Steps[0].Step)
	assert.Equal(t, model.StepStatusOK, st.updated.Steps[0].Status)
	assert.Equal(t, "upsert", st.updated.Steps[1].Step)
	assert.Equal(t, model.StepStatusFailed, st.updated.Steps[1].Status)
	assert.Equal(t, "boom", st.updated.Steps[1].Meta["error"])
}

func TestSucceed_FinalizesOnce(t *testing.T) {
	st := &fakeRunStore{}
	tr, err := Start(context.Background(), st, "clean", "")
	require.NoError(t, err)

	tr.SetCounts(10, 9)
	require.NoError(t, tr.Succeed(context.Background()))

	first := st.updated
	require.NotNil(t, first)
	assert.Equal(t, model.RunStatusSucceeded, first.Status)
	require.NotNil(t, first.EndedAt)
	require.NotNil(t, first.DurationMS)
	require.NotNil(t, first.RecordsIn)
	assert.Equal(t, int64(10), *first.RecordsIn)
	assert.Equal(t, int64(9), *first.RecordsOut)

	// Second finalize is a no-op.
	st.updated = nil
	require.NoError(t, tr.Succeed(context.Background()))
	assert.Nil(t, st.updated)
}

func TestFail_RecordsErrorKind(t *testing.T) {
	st := &fakeRunStore{}
	tr, err := Start(context.Background(), st, "flags", "")
	require.NoError(t, err)

	tr.Fail(context.Background(), eris.Wrap(errTyped{}, "flags: fetch"))

	require.NotNil(t, st.updated)
	assert.Equal(t, model.RunStatusFailed, st.updated.Status)
	require.NotNil(t, st.updated.ErrorKind)
	assert.Equal(t, "errTyped", *st.updated.ErrorKind)
	require.NotNil(t, st.updated.ErrorMessage)
	assert.Contains(t, *st.updated.ErrorMessage, "flags: fetch")
}

func TestFail_ThenSucceedIsNoOp(t *testing.T) {
	st := &fakeRunStore{}
	tr, err := Start(context.Background(), st, "ingest", "")
	require.NoError(t, err)

	tr.Fail(context.Background(), errors.New("boom"))
	failed := st.updated
	require.NotNil(t, failed)
	assert.Equal(t, model.RunStatusFailed, failed.Status)

	st.updated = nil
	require.NoError(t, tr.Succeed(context.Background()))
	assert.Nil(t, st.updated, "terminal status is written exactly once")
}

func TestStep_ConcurrentSteps(t *testing.T) {
	st := &fakeRunStore{}
	tr, err := Start(context.Background(), st, "ingest", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tr.Step("parse", nil, func() error { return nil })
		}()
	}
	wg.Wait()

	require.NoError(t, tr.Succeed(context.Background()))
	assert.Len(t, st.updated.Steps, 8)
}

type errTyped struct{}

func (errTyped) Error() string { return "typed failure" }
