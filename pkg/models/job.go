package models

import "time"

// JobStatus represents the current state of a job in its lifecycle.
type JobStatus string

const (
	// JobStatusQueued indicates the job is waiting to be claimed by a worker.
	JobStatusQueued JobStatus = "queued"
	// JobStatusRunning indicates a worker has claimed the job and is processing it.
	JobStatusRunning JobStatus = "running"
	// JobStatusBlocked indicates the job is waiting on a spawned sub-job.
	JobStatusBlocked JobStatus = "blocked"
	// JobStatusNeedsHumanReview indicates the job exhausted its retries or
	// could not be classified and requires a human decision.
	JobStatusNeedsHumanReview JobStatus = "needs_human_review"
	// JobStatusDone indicates the job completed and passed the quality gate.
	JobStatusDone JobStatus = "done"
	// JobStatusFailed indicates the job hit an unrecoverable error.
	JobStatusFailed JobStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusBlocked,
		JobStatusNeedsHumanReview, JobStatusDone, JobStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transitions are allowed from this status.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusDone, JobStatusFailed, JobStatusNeedsHumanReview:
		return true
	default:
		return false
	}
}

// jobTransitions is the fixed forward-only transition graph.
// A job's status may only ever move along these edges.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:  {JobStatusRunning},
	JobStatusRunning: {JobStatusBlocked, JobStatusNeedsHumanReview, JobStatusDone, JobStatusFailed},
	JobStatusBlocked: {JobStatusRunning},
}

// CanTransition reports whether moving from s to next is a legal transition.
// Terminal states have no outgoing edges.
func (s JobStatus) CanTransition(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Intent is the classified intent of a raw work request.
type Intent struct {
	// Name is the intent identifier (e.g., "draft_email", "summarize_meeting").
	Name string `json:"name"`
	// Confidence is the classifier's confidence in [0,1].
	Confidence float64 `json:"confidence"`
}

// Document is a single retrieved knowledge document.
type Document struct {
	// ID is the document identifier in the knowledge source.
	ID string `json:"id"`
	// Title is the human-readable document title.
	Title string `json:"title,omitempty"`
	// Source names the system the document came from.
	Source string `json:"source,omitempty"`
	// Content is the document body.
	Content string `json:"content"`
}

// Chunk is a scored fragment of a document returned by retrieval.
type Chunk struct {
	// DocumentID is the ID of the document this chunk belongs to.
	DocumentID string `json:"document_id"`
	// Content is the chunk text.
	Content string `json:"content"`
	// Score is the retrieval relevance score.
	Score float64 `json:"score,omitempty"`
}

// KnowledgePack is the retrieval bundle a capability reads from.
// A capability may never run while Ready is false.
type KnowledgePack struct {
	// Ready indicates the pack is complete enough to act on.
	// An empty pack with Ready=true is a valid no-results state.
	Ready bool `json:"ready"`
	// Query is the resolved query the pack was retrieved with.
	Query string `json:"query,omitempty"`
	// Documents are the retrieved documents.
	Documents []Document `json:"documents,omitempty"`
	// Chunks are the scored fragments backing the documents.
	Chunks []Chunk `json:"chunks,omitempty"`
	// Missing lists the knowledge gaps the retriever could not fill.
	Missing []string `json:"missing,omitempty"`
	// RetrievedAt is when the pack was fetched.
	RetrievedAt time.Time `json:"retrieved_at,omitempty"`
}

// ValidationResult is the quality gate's verdict on a capability result.
type ValidationResult struct {
	// Score is the computed quality score in [0,1].
	Score float64 `json:"score"`
	// Passed indicates the score cleared the acceptance threshold.
	Passed bool `json:"passed"`
	// Reasons lists the checks that contributed to the verdict.
	Reasons []string `json:"reasons,omitempty"`
	// CheckedAt is when the gate ran.
	CheckedAt time.Time `json:"checked_at"`
}

// MemoryEntry is one line of a job's stage audit trail.
type MemoryEntry struct {
	// Stage names the processing stage that wrote the entry.
	Stage string `json:"stage"`
	// Message is the free-form audit text.
	Message string `json:"message"`
	// At is when the entry was recorded.
	At time.Time `json:"at"`
}

// Job is the durable record of one work request moving through the system.
type Job struct {
	// ID is the unique identifier for this job.
	ID string `json:"id"`
	// RawInput is the original natural-language request text.
	RawInput string `json:"raw_input"`
	// ClientID identifies the tenant the request belongs to.
	ClientID string `json:"client_id,omitempty"`
	// UserID identifies the requesting user.
	UserID string `json:"user_id,omitempty"`
	// Intent is the classified intent, nil until classification runs.
	Intent *Intent `json:"intent,omitempty"`
	// AssignedCapability is the ID of the capability routed to this job.
	AssignedCapability string `json:"assigned_capability,omitempty"`
	// KnowledgePack is the persisted retrieval bundle, nil until retrieval runs.
	KnowledgePack *KnowledgePack `json:"knowledge_pack,omitempty"`
	// Status is the current lifecycle state.
	Status JobStatus `json:"status"`
	// ParentJobID is set when this job was spawned as a sub-task.
	ParentJobID string `json:"parent_job_id,omitempty"`
	// RetryCount is the number of failed attempts so far.
	RetryCount int `json:"retry_count"`
	// Result is the capability result, nil until execution produced one.
	Result *Result `json:"result,omitempty"`
	// ValidationResult is the quality gate verdict, nil until the gate ran.
	ValidationResult *ValidationResult `json:"validation_result,omitempty"`
	// Memory is the ordered stage audit trail.
	Memory []MemoryEntry `json:"memory,omitempty"`
	// CreatedAt is when the job was accepted.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the job record last changed.
	UpdatedAt time.Time `json:"updated_at"`
	// CompletedAt is when the job reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
