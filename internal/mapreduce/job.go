package mapreduce

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/logger"
)

// StageStatus is the final state of one stage in a job.
type StageStatus string

const (
	StatusSucceeded StageStatus = "succeeded"
	StatusFailed    StageStatus = "failed"
	StatusSkipped   StageStatus = "skipped"
)

type jobStage struct {
	stage     Stage
	dependsOn []string
}

// Job is an ordered set of stages with declared dependencies. A stage only
// starts once every stage it depends on has committed its output.
type Job struct {
	engine *Engine
	stages []jobStage
	names  map[string]bool
}

// JobResult reports the outcome of every stage that was declared.
type JobResult struct {
	Stages   []StageResult
	Statuses map[string]StageStatus
	Duration time.Duration
}

// NewJob creates an empty job executed by engine.
func NewJob(engine *Engine) *Job {
	return &Job{engine: engine, names: make(map[string]bool)}
}

// AddStage appends stage, which must not start before the named stages
// have succeeded. Dependencies must already have been added, so stages
// always run in declaration order.
func (j *Job) AddStage(stage Stage, dependsOn ...string) error {
	if j.names[stage.Name] {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "duplicate stage %q", stage.Name)
	}
	for _, dep := range dependsOn {
		if !j.names[dep] {
			return apperrors.Newf(apperrors.ErrInvalidConfig, "stage %q depends on unknown stage %q", stage.Name, dep)
		}
	}
	j.names[stage.Name] = true
	j.stages = append(j.stages, jobStage{stage: stage, dependsOn: dependsOn})
	return nil
}

// Run executes the stages in order. Stages whose dependencies failed are
// skipped with ErrStageDependency; independent stages still run. The
// returned error aggregates every stage failure.
func (j *Job) Run(ctx context.Context) (JobResult, error) {
	start := time.Now()
	log := logger.FromContext(ctx).With("component", "job")
	result := JobResult{Statuses: make(map[string]StageStatus, len(j.stages))}
	var errs *multierror.Error

	for _, js := range j.stages {
		name := js.stage.Name
		if blocked := j.blockedBy(js, result.Statuses); blocked != "" {
			result.Statuses[name] = StatusSkipped
			j.engine.metrics.StageOutcomes.WithLabelValues(name, string(StatusSkipped)).Inc()
			err := &apperrors.PipelineError{
				Err:     apperrors.ErrStageDependency,
				Stage:   name,
				Message: fmt.Sprintf("upstream stage %s did not succeed", blocked),
			}
			log.Warn("stage skipped", "stage", name, "blocked_by", blocked)
			errs = multierror.Append(errs, err)
			continue
		}
		if err := ctx.Err(); err != nil {
			result.Statuses[name] = StatusSkipped
			errs = multierror.Append(errs, fmt.Errorf("stage %s not started: %w", name, err))
			continue
		}

		sr, err := j.engine.RunStage(ctx, js.stage)
		result.Stages = append(result.Stages, sr)
		if err != nil {
			result.Statuses[name] = StatusFailed
			j.engine.metrics.StageOutcomes.WithLabelValues(name, string(StatusFailed)).Inc()
			log.Error("stage failed", "stage", name, "error", err)
			errs = multierror.Append(errs, err)
			continue
		}
		result.Statuses[name] = StatusSucceeded
		j.engine.metrics.StageOutcomes.WithLabelValues(name, string(StatusSucceeded)).Inc()
	}
	result.Duration = time.Since(start)
	return result, errs.ErrorOrNil()
}

func (j *Job) blockedBy(js jobStage, statuses map[string]StageStatus) string {
	for _, dep := range js.dependsOn {
		if statuses[dep] != StatusSucceeded {
			return dep
		}
	}
	return ""
}
