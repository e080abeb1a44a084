// Package track wraps a unit of pipeline work with a persisted
// start/step/succeed/fail lifecycle and structured logging.
package track

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/datapipe-cli/internal/model"
)

// RunStore is the narrow persistence surface the tracker needs. The full
// store.Store satisfies it.
type RunStore interface {
	CreatePipelineRun(ctx context.Context, run *model.PipelineRun) error
	UpdatePipelineRun(ctx context.Context, run *model.PipelineRun) error
}

// Tracker records one execution of a named pipeline stage. It is created by
// Start (which persists a "running" row), mutated by Step and SetCounts, and
// finalized exactly once by Succeed or Fail.
type Tracker struct {
	store RunStore
	log   *zap.Logger

	mu       sync.Mutex
	run      model.PipelineRun
	steps    []model.StepInfo
	finished bool
}

// Start begins tracking a pipeline run and persists it with status running.
func Start(ctx context.Context, st RunStore, pipeline, inputRef string) (*Tracker, error) {
	run := model.PipelineRun{
		ID:        uuid.New().String(),
		Pipeline:  pipeline,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
		Steps:     []model.StepInfo{},
	}
	if inputRef != "" {
		run.InputRef = &inputRef
	}

	if err := st.CreatePipelineRun(ctx, &run); err != nil {
		return nil, eris.Wrapf(err, "track: create %s run", pipeline)
	}

	t := &Tracker{
		store: st,
		log: zap.L().With(
			zap.String("run_id", run.ID),
			zap.String("pipeline", pipeline),
		),
		run: run,
	}
	t.log.Info("run_started", zap.String("status", string(model.RunStatusRunning)))
	return t, nil
}

// RunID returns the identifier of the tracked run.
func (t *Tracker) RunID() string { return t.run.ID }

// Step executes fn as a named, timed step. The step outcome (status,
// duration, meta, error) is appended to the run's step list and logged; fn's
// error is returned unmodified, the tracker never absorbs it. Steps may run
// concurrently.
func (t *Tracker) Step(name string, meta map[string]any, fn func() error) error {
	t.log.Info("step_started", zap.String("step", name))
	start := time.Now()

	err := fn()
	durationMS := time.Since(start).Milliseconds()

	info := model.StepInfo{Step: name, DurationMS: durationMS, Meta: meta}
	if err != nil {
		info.Status = model.StepStatusFailed
		if info.Meta == nil {
			info.Meta = map[string]any{}
		}
		info.Meta["error"] = err.Error()
		t.log.Error("step_failed",
			zap.String("step", name),
			zap.Int64("duration_ms", durationMS),
			zap.String("error_kind", errorKind(err)),
			zap.Error(err),
		)
	} else {
		info.Status = model.StepStatusOK
		t.log.Info("step_succeeded",
			zap.String("step", name),
			zap.Int64("duration_ms", durationMS),
		)
	}

	t.mu.Lock()
	t.steps = append(t.steps, info)
	t.mu.Unlock()

	return err
}

// SetCounts records optional records-in/records-out counts. They are
// persisted with the terminal status.
func (t *Tracker) SetCounts(recordsIn, recordsOut int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.run.RecordsIn = &recordsIn
	t.run.RecordsOut = &recordsOut
}

// Succeed finalizes the run as succeeded.
func (t *Tracker) Succeed(ctx context.Context) error {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return nil
	}
	t.finished = true
	t.finalizeLocked(model.RunStatusSucceeded)
	run := t.run
	t.mu.Unlock()

	if err := t.store.UpdatePipelineRun(ctx, &run); err != nil {
		return eris.Wrap(err, "track: persist succeeded run")
	}
	t.log.Info("run_succeeded",
		zap.String("status", string(model.RunStatusSucceeded)),
		zap.Int64("duration_ms", *run.DurationMS),
	)
	return nil
}

// Fail finalizes the run as failed, capturing the error's kind, message and
// summary. The caller is expected to re-surface err; Fail only guarantees
// the failure is durably recorded first.
func (t *Tracker) Fail(ctx context.Context, failure error) {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return
	}
	t.finished = true
	t.finalizeLocked(model.RunStatusFailed)
	kind := errorKind(failure)
	msg := failure.Error()
	t.run.ErrorKind = &kind
	t.run.ErrorMessage = &msg
	t.run.ErrorSummary = &msg
	run := t.run
	t.mu.Unlock()

	if err := t.store.UpdatePipelineRun(ctx, &run); err != nil {
		t.log.Error("track: persist failed run", zap.Error(err))
	}
	t.log.Error("run_failed",
		zap.String("status", string(model.RunStatusFailed)),
		zap.Int64("duration_ms", *run.DurationMS),
		zap.String("error_kind", kind),
		zap.String("error_message", msg),
	)
}

func (t *Tracker) finalizeLocked(status model.RunStatus) {
	now := time.Now().UTC()
	duration := now.Sub(t.run.StartedAt).Milliseconds()
	t.run.Status = status
	t.run.EndedAt = &now
	t.run.DurationMS = &duration
	t.run.Steps = append([]model.StepInfo(nil), t.steps...)
}

// errorKind names an error by its root cause type, e.g. "ValidationError".
func errorKind(err error) string {
	cause := eris.Cause(err)
	if cause == nil {
		cause = err
	}
	kind := fmt.Sprintf("%T", cause)
	if i := strings.LastIndex(kind, "."); i >= 0 {
		kind = kind[i+1:]
	}
	return strings.TrimPrefix(kind, "*")
}
