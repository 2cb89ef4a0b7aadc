package models

import "time"

// StepStatus represents the execution state of a plan step.
type StepStatus string

const (
	// StepStatusPending indicates the step has not been dispatched.
	StepStatusPending StepStatus = "pending"
	// StepStatusRunning indicates the step is executing.
	StepStatusRunning StepStatus = "running"
	// StepStatusDone indicates the step completed successfully.
	StepStatusDone StepStatus = "done"
	// StepStatusFailed indicates the step's capability returned an error.
	StepStatusFailed StepStatus = "failed"
	// StepStatusSkipped indicates the step was never attempted because a
	// critical step failed in an earlier batch.
	StepStatusSkipped StepStatus = "skipped"
)

// ExecutionStep is one unit of a multi-capability plan.
type ExecutionStep struct {
	// ID is the unique identifier for this step.
	ID string `json:"id"`
	// Ordinal is the step's position in the authored plan, used to key results.
	Ordinal int `json:"ordinal"`
	// CapabilityID is the capability this step dispatches to.
	CapabilityID string `json:"capability_id"`
	// Input is the step's input payload.
	Input string `json:"input"`
	// DependsOn lists IDs of steps in the same plan that must finish first.
	DependsOn []string `json:"depends_on,omitempty"`
	// Critical stops the run after the current batch if this step fails.
	Critical bool `json:"critical,omitempty"`
	// Status is the current execution state.
	Status StepStatus `json:"status"`
	// StartedAt is when the step was dispatched.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// EndedAt is when the step finished.
	EndedAt *time.Time `json:"ended_at,omitempty"`
	// TokensUsed is the generation token count the step consumed.
	TokensUsed int64 `json:"tokens_used,omitempty"`
	// Error holds the captured error message if the step failed.
	Error string `json:"error,omitempty"`
}

// ExecutionBatch is an ordered group of steps whose dependencies were all
// satisfied at formation time. Batches run strictly in sequence; steps
// within one batch run concurrently.
type ExecutionBatch struct {
	// Index is the batch's position in the run.
	Index int `json:"index"`
	// Steps are the members of the batch.
	Steps []*ExecutionStep `json:"steps"`
}

// ExecutionPlan is the immutable step collection for one orchestration run.
// A plan is created fresh per run and never reused across jobs.
type ExecutionPlan struct {
	// ID is the unique identifier for this plan.
	ID string `json:"id"`
	// JobID is the job this plan was created for.
	JobID string `json:"job_id"`
	// Steps is the ordered step collection.
	Steps []*ExecutionStep `json:"steps"`
	// CreatedAt is when the plan was formed.
	CreatedAt time.Time `json:"created_at"`
}

// StepOutcome summarizes one step's execution for result composition.
type StepOutcome struct {
	// StepID is the ID of the executed step.
	StepID string `json:"step_id"`
	// Ordinal is the step's authored position.
	Ordinal int `json:"ordinal"`
	// Success indicates the step completed without error.
	Success bool `json:"success"`
	// Output is the step's primary output text.
	Output string `json:"output,omitempty"`
	// Error holds the captured error message if the step failed.
	Error string `json:"error,omitempty"`
	// Duration is how long the step ran.
	Duration time.Duration `json:"duration"`
	// TokensUsed is the generation token count the step consumed.
	TokensUsed int64 `json:"tokens_used,omitempty"`
}

// PlanResult aggregates a full plan run.
type PlanResult struct {
	// Success is the logical AND over all attempted steps.
	Success bool `json:"success"`
	// Outcomes maps authored step ordinal to the step's outcome.
	// Skipped steps do not appear.
	Outcomes map[int]StepOutcome `json:"outcomes"`
	// Halted indicates a critical step failure stopped later batches.
	Halted bool `json:"halted,omitempty"`
	// BatchesRun is the number of batches that were dispatched.
	BatchesRun int `json:"batches_run"`
	// TotalTokens is the token count summed over all attempted steps.
	TotalTokens int64 `json:"total_tokens"`
	// Duration is the wall time of the whole run.
	Duration time.Duration `json:"duration"`
}
