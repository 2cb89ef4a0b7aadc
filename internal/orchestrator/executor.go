package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Idosegev23/ldrsagent/internal/graph"
	"github.com/Idosegev23/ldrsagent/pkg/models"
)

// StepRunner executes a single plan step. The orchestrator provides an
// implementation that resolves the step's capability from the registry.
type StepRunner interface {
	RunStep(ctx context.Context, job *models.Job, step *models.ExecutionStep) (*models.Result, error)
}

// Executor runs execution plans batch by batch.
// Batches run strictly in sequence; steps within one batch run concurrently,
// each on its own goroutine. A failing step never aborts its batch peers:
// the error is captured on the step and the batch drains normally.
type Executor struct {
	runner      StepRunner
	stepTimeout time.Duration
	emitter     *EventEmitter
}

// NewExecutor creates an executor dispatching steps to the given runner.
// stepTimeout bounds each step's capability call; zero means no timeout.
func NewExecutor(runner StepRunner, stepTimeout time.Duration, emitter *EventEmitter) *Executor {
	return &Executor{
		runner:      runner,
		stepTimeout: stepTimeout,
		emitter:     emitter,
	}
}

// Execute runs the plan to completion and returns the aggregated result.
// A cycle or dangling dependency in the plan is returned as an error before
// any step runs. A critical step failure stops the run after its batch;
// never-attempted steps are marked skipped and do not appear in the outcomes.
func (e *Executor) Execute(ctx context.Context, job *models.Job, plan *models.ExecutionPlan) (*models.PlanResult, error) {
	g := graph.New()
	if err := g.Build(plan.Steps); err != nil {
		return nil, fmt.Errorf("build execution graph: %w", err)
	}

	batches, err := g.Batches()
	if err != nil {
		return nil, fmt.Errorf("form batches: %w", err)
	}

	start := time.Now()
	result := &models.PlanResult{
		Success:  true,
		Outcomes: make(map[int]models.StepOutcome, len(plan.Steps)),
	}

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			e.skipFrom(batches, i)
			return nil, fmt.Errorf("plan cancelled before batch %d: %w", batch.Index, err)
		}

		debugLog("job %s: dispatching batch %d (%d steps)", job.ID, batch.Index, len(batch.Steps))
		e.runBatch(ctx, job, batch, result)
		result.BatchesRun++

		if halted := e.criticalFailure(batch); halted != nil {
			debugLog("job %s: critical step %s failed, halting after batch %d",
				job.ID, halted.ID, batch.Index)
			result.Halted = true
			result.Success = false
			e.skipFrom(batches, i+1)
			break
		}
	}

	for _, outcome := range result.Outcomes {
		if !outcome.Success {
			result.Success = false
		}
		result.TotalTokens += outcome.TokensUsed
	}
	result.Duration = time.Since(start)
	return result, nil
}

// runBatch executes one batch's steps concurrently and records their outcomes.
func (e *Executor) runBatch(ctx context.Context, job *models.Job, batch models.ExecutionBatch, result *models.PlanResult) {
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, step := range batch.Steps {
		wg.Add(1)
		go func(step *models.ExecutionStep) {
			defer wg.Done()
			outcome := e.runStep(ctx, job, step)
			mu.Lock()
			result.Outcomes[step.Ordinal] = outcome
			mu.Unlock()
		}(step)
	}
	wg.Wait()
}

// runStep executes a single step, capturing the error on the step itself.
func (e *Executor) runStep(ctx context.Context, job *models.Job, step *models.ExecutionStep) models.StepOutcome {
	now := time.Now()
	step.Status = models.StepStatusRunning
	step.StartedAt = &now

	if e.emitter != nil {
		e.emitter.Emit(Event{
			Type:         EventStepStarted,
			JobID:        job.ID,
			StepID:       step.ID,
			CapabilityID: step.CapabilityID,
		})
	}

	stepCtx := ctx
	if e.stepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, e.stepTimeout)
		defer cancel()
	}

	res, err := e.runner.RunStep(stepCtx, job, step)
	ended := time.Now()
	step.EndedAt = &ended

	outcome := models.StepOutcome{
		StepID:   step.ID,
		Ordinal:  step.Ordinal,
		Duration: ended.Sub(now),
	}

	switch {
	case err != nil:
		step.Status = models.StepStatusFailed
		step.Error = err.Error()
		outcome.Error = err.Error()
	case res == nil:
		step.Status = models.StepStatusFailed
		step.Error = "capability returned no result"
		outcome.Error = step.Error
	case !res.Success:
		step.Status = models.StepStatusFailed
		step.Error = firstNonEmpty(res.Output, "capability reported failure")
		step.TokensUsed = res.TokensUsed
		outcome.Error = step.Error
		outcome.Output = res.Output
		outcome.TokensUsed = res.TokensUsed
	default:
		step.Status = models.StepStatusDone
		step.TokensUsed = res.TokensUsed
		outcome.Success = true
		outcome.Output = res.Output
		outcome.TokensUsed = res.TokensUsed
	}

	if e.emitter != nil {
		eventType := EventStepCompleted
		var eventErr error
		if !outcome.Success {
			eventType = EventStepFailed
			eventErr = fmt.Errorf("%s", outcome.Error)
		}
		e.emitter.Emit(Event{
			Type:         eventType,
			JobID:        job.ID,
			StepID:       step.ID,
			CapabilityID: step.CapabilityID,
			Error:        eventErr,
			TokensUsed:   outcome.TokensUsed,
		})
	}
	return outcome
}

// criticalFailure returns the first failed critical step in the batch, if any.
func (e *Executor) criticalFailure(batch models.ExecutionBatch) *models.ExecutionStep {
	for _, step := range batch.Steps {
		if step.Critical && step.Status == models.StepStatusFailed {
			return step
		}
	}
	return nil
}

// skipFrom marks every step in batches[from:] as skipped.
func (e *Executor) skipFrom(batches []models.ExecutionBatch, from int) {
	for _, batch := range batches[from:] {
		for _, step := range batch.Steps {
			if step.Status == models.StepStatusPending {
				step.Status = models.StepStatusSkipped
			}
		}
	}
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
