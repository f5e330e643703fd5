package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aseekbot/pipeline/internal/models"
)

// Stage names a step of the document pipeline. In production the managed
// workflow drives these transitions; the runner below mirrors them exactly
// for local execution and tests.
type Stage string

const (
	StageInit     Stage = "INIT"
	StageValidate Stage = "VALIDATE"
	StageExtract  Stage = "EXTRACT"
	StageAnalyze  Stage = "ANALYZE"
	StageCompare  Stage = "COMPARE"
	StageStore    Stage = "STORE"
	StageError    Stage = "ERROR"
	StageDone     Stage = "DONE"
)

// successOrder is the happy path. Any stage error diverts to StageError,
// which itself terminates in StageDone.
var successOrder = []Stage{StageValidate, StageExtract, StageAnalyze, StageCompare, StageStore}

// Next returns the stage that follows s on the happy path.
func Next(s Stage) Stage {
	switch s {
	case StageInit:
		return StageValidate
	case StageValidate:
		return StageExtract
	case StageExtract:
		return StageAnalyze
	case StageAnalyze:
		return StageCompare
	case StageCompare:
		return StageStore
	case StageStore, StageError:
		return StageDone
	}
	return StageDone
}

// StageFunc is the shape every stage shares: it enriches the job payload and
// passes it on.
type StageFunc func(ctx context.Context, job *models.JobPayload) (*models.JobPayload, error)

// Runner executes the full pipeline in-process. Each stage receives the
// previous stage's output; the payload only ever accumulates fields.
type Runner struct {
	stages  map[Stage]StageFunc
	onError StageFunc
}

// NewRunner wires the five pipeline stages plus the error branch.
func NewRunner(validate, extract, analyze, compare, store, onError StageFunc) *Runner {
	return &Runner{
		stages: map[Stage]StageFunc{
			StageValidate: validate,
			StageExtract:  extract,
			StageAnalyze:  analyze,
			StageCompare:  compare,
			StageStore:    store,
		},
		onError: onError,
	}
}

// Run drives the job through every stage. The returned error is the stage
// error that diverted the pipeline, after the error branch has recorded it;
// a nil error means the job reached StageDone through the store stage.
func (r *Runner) Run(ctx context.Context, job *models.JobPayload) (*models.JobPayload, error) {
	current := job
	for _, stage := range successOrder {
		fn, ok := r.stages[stage]
		if !ok {
			return nil, fmt.Errorf("pipeline stage %s is not wired", stage)
		}
		next, err := fn(ctx, current)
		if err != nil {
			return r.fail(ctx, current, stage, err)
		}
		if next != nil {
			current = next
		}
		slog.Debug("Stage completed.", "stage", string(stage), "documentId", current.DocumentID)
	}
	return current, nil
}

// fail routes the job through the error branch, preserving the original
// stage error as the pipeline's outcome.
func (r *Runner) fail(ctx context.Context, job *models.JobPayload, stage Stage, cause error) (*models.JobPayload, error) {
	slog.Error("Stage failed, entering error branch.", "stage", string(stage), "documentId", job.DocumentID, "error", cause)
	if job.Error == nil {
		job.Error = &models.ErrorDetail{
			Message: cause.Error(),
			Kind:    string(stage),
		}
	}
	if r.onError != nil {
		if handled, err := r.onError(ctx, job); err != nil {
			slog.Error("Error branch itself failed.", "documentId", job.DocumentID, "error", err)
		} else if handled != nil {
			job = handled
		}
	}
	return job, fmt.Errorf("stage %s: %w", stage, cause)
}

// RunnerDispatcher satisfies the dispatcher contract by running the whole
// pipeline synchronously. It backs the local server, where there is no
// managed workflow to hand the job to.
type RunnerDispatcher struct {
	runner *Runner
}

func NewRunnerDispatcher(runner *Runner) *RunnerDispatcher {
	return &RunnerDispatcher{runner: runner}
}

func (d *RunnerDispatcher) Dispatch(ctx context.Context, msg *models.QueueMessage) error {
	job := msg.Job
	if _, err := d.runner.Run(ctx, &job); err != nil {
		return err
	}
	return nil
}
