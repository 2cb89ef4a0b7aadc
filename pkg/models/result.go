package models

import "time"

// NextAction is the marker a capability returns to steer the orchestrator.
type NextAction string

const (
	// NextActionComplete indicates the capability finished its work.
	NextActionComplete NextAction = "complete"
	// NextActionNeedsSubTask indicates the capability lacks information and
	// wants the orchestrator to spawn a blocking sub-job.
	NextActionNeedsSubTask NextAction = "needs_subtask"
	// NextActionClarify indicates the user must be asked a clarifying question.
	NextActionClarify NextAction = "clarify"
)

// SubTaskRequest describes the sub-job a capability asked the orchestrator to spawn.
type SubTaskRequest struct {
	// CapabilityID is the capability the sub-job should be routed to, if known.
	CapabilityID string `json:"capability_id,omitempty"`
	// Description is the natural-language task for the sub-job.
	Description string `json:"description"`
	// Context carries key/value hints from the parent capability.
	Context map[string]string `json:"context,omitempty"`
}

// Result is the structured output of one capability execution.
type Result struct {
	// Success indicates the capability considers its own output usable.
	Success bool `json:"success"`
	// Output is the primary text output.
	Output string `json:"output"`
	// Structured holds machine-readable output, if the capability produced any.
	Structured map[string]any `json:"structured,omitempty"`
	// Citations lists knowledge document IDs the output is grounded on.
	Citations []string `json:"citations,omitempty"`
	// Confidence is the capability's self-reported confidence in [0,1].
	Confidence float64 `json:"confidence"`
	// NextAction steers the orchestrator after execution.
	NextAction NextAction `json:"next_action"`
	// SubTaskRequest is set when NextAction is NextActionNeedsSubTask.
	SubTaskRequest *SubTaskRequest `json:"sub_task_request,omitempty"`
	// TokensUsed is the generation token count consumed producing the result.
	TokensUsed int64 `json:"tokens_used,omitempty"`
}

// ActionStatus represents the approval state of a pending action.
type ActionStatus string

const (
	// ActionPending indicates the action awaits a human decision.
	ActionPending ActionStatus = "pending"
	// ActionApproved indicates a human approved the action.
	ActionApproved ActionStatus = "approved"
	// ActionExecuted indicates the approved action was carried out.
	ActionExecuted ActionStatus = "executed"
	// ActionRejected indicates a human rejected the action.
	ActionRejected ActionStatus = "rejected"
)

// Valid returns true if the status is a known value.
func (s ActionStatus) Valid() bool {
	switch s {
	case ActionPending, ActionApproved, ActionExecuted, ActionRejected:
		return true
	default:
		return false
	}
}

// PendingAction is a side-effecting operation derived from a job result,
// held until a human approves it. Approval is idempotent: approving again
// after execution is a no-op.
type PendingAction struct {
	// ID is the unique identifier for this action.
	ID string `json:"id"`
	// JobID is the job whose result produced the action.
	JobID string `json:"job_id"`
	// Kind names the integration operation (e.g., "send_email", "create_event").
	Kind string `json:"kind"`
	// Payload is the JSON-encoded operation payload.
	Payload string `json:"payload"`
	// Status is the current approval state.
	Status ActionStatus `json:"status"`
	// CreatedAt is when the action was derived.
	CreatedAt time.Time `json:"created_at"`
	// DecidedAt is when a human approved or rejected the action.
	DecidedAt *time.Time `json:"decided_at,omitempty"`
	// ExecutedAt is when the approved action ran.
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
}
