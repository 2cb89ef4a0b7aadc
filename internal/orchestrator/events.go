package orchestrator

import (
	"time"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventJobClaimed indicates a worker claimed a queued job.
	EventJobClaimed EventType = "job_claimed"
	// EventJobClassified indicates intent classification finished.
	EventJobClassified EventType = "job_classified"
	// EventKnowledgeRetrieved indicates a knowledge pack was persisted.
	EventKnowledgeRetrieved EventType = "knowledge_retrieved"
	// EventStepStarted indicates a plan step began executing.
	EventStepStarted EventType = "step_started"
	// EventStepCompleted indicates a plan step finished successfully.
	EventStepCompleted EventType = "step_completed"
	// EventStepFailed indicates a plan step failed.
	EventStepFailed EventType = "step_failed"
	// EventJobBlocked indicates the job spawned a sub-job and is waiting on it.
	EventJobBlocked EventType = "job_blocked"
	// EventJobResumed indicates a blocked job went back to running.
	EventJobResumed EventType = "job_resumed"
	// EventQualityPassed indicates the quality gate accepted the result.
	EventQualityPassed EventType = "quality_passed"
	// EventQualityFailed indicates the quality gate rejected the result.
	EventQualityFailed EventType = "quality_failed"
	// EventActionCreated indicates a pending action was derived from a result.
	EventActionCreated EventType = "action_created"
	// EventJobDone indicates the job reached done.
	EventJobDone EventType = "job_done"
	// EventJobFailed indicates the job reached failed.
	EventJobFailed EventType = "job_failed"
	// EventJobNeedsReview indicates the job was escalated to a human.
	EventJobNeedsReview EventType = "job_needs_review"
)

// Event represents an event emitted by the orchestrator.
// Subscribers (CLI status streaming, tests) receive these over a channel.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// JobID is the ID of the related job.
	JobID string
	// StepID is the ID of the related plan step, if applicable.
	StepID string
	// CapabilityID is the capability involved, if applicable.
	CapabilityID string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// TokensUsed is the token count attached to progress events.
	TokensUsed int64
	// Score is the quality gate score for gate events.
	Score float64
}
