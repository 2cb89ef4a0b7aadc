package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Idosegev23/ldrsagent/internal/graph"
	"github.com/Idosegev23/ldrsagent/internal/knowledge"
	"github.com/Idosegev23/ldrsagent/internal/quality"
	"github.com/Idosegev23/ldrsagent/internal/routing"
	"github.com/Idosegev23/ldrsagent/internal/state"
	"github.com/Idosegev23/ldrsagent/pkg/models"
)

// Config holds orchestrator behavior settings.
type Config struct {
	// MaxRetries is the retry ceiling: the job escalates to human review
	// as soon as its failed-attempt count reaches this value.
	MaxRetries int
	// MinConfidence is the classification confidence below which the job
	// completes with a clarification request instead of executing.
	MinConfidence float64
	// ClassifyTimeout bounds the intent classification call. Zero means none.
	ClassifyTimeout time.Duration
	// RetrieveTimeout bounds the knowledge retrieval call. Zero means none.
	RetrieveTimeout time.Duration
	// ExecuteTimeout bounds each capability call. Zero means none.
	ExecuteTimeout time.Duration
}

// Orchestrator processes claimed jobs through the full stage pipeline:
// classify, route, retrieve, execute, gate, settle. It owns every status
// transition after the claim and persists each stage's output on the job
// before moving to the next.
type Orchestrator struct {
	db         *state.DB
	classifier routing.Classifier
	planner    *routing.Planner
	retriever  knowledge.Retriever
	registry   *CapabilityRegistry
	gate       *quality.Gate
	emitter    *EventEmitter
	logger     *DebugLogger
	config     Config
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEmitter attaches an event emitter for subscribers.
func WithEmitter(emitter *EventEmitter) Option {
	return func(o *Orchestrator) {
		o.emitter = emitter
	}
}

// WithLogger attaches a debug logger.
func WithLogger(logger *DebugLogger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// New creates an orchestrator over the given collaborators.
func New(db *state.DB, classifier routing.Classifier, planner *routing.Planner,
	retriever knowledge.Retriever, registry *CapabilityRegistry,
	gate *quality.Gate, config Config, opts ...Option) *Orchestrator {

	o := &Orchestrator{
		db:         db,
		classifier: classifier,
		planner:    planner,
		retriever:  retriever,
		registry:   registry,
		gate:       gate,
		logger:     NopLogger(),
		config:     config,
	}
	for _, opt := range opts {
		opt(o)
	}
	setPackageLogger(o.logger)
	return o
}

// SubmitJob accepts a raw work request and enqueues it.
func (o *Orchestrator) SubmitJob(rawInput, clientID, userID string) (*models.Job, error) {
	if strings.TrimSpace(rawInput) == "" {
		return nil, fmt.Errorf("empty work request")
	}

	job := &models.Job{
		ID:       uuid.NewString(),
		RawInput: rawInput,
		ClientID: clientID,
		UserID:   userID,
		Status:   models.JobStatusQueued,
	}
	if err := o.db.CreateJob(job); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	o.remember(job, "accept", "request accepted")
	return job, nil
}

// Process drives one claimed job until it settles: done, failed, blocked on a
// sub-job, or escalated to human review. The job must be in running status.
//
// Domain failures settle the job's status and return nil; a non-nil error
// means the store itself failed and the worker should back off.
func (o *Orchestrator) Process(ctx context.Context, job *models.Job) error {
	if job.Status != models.JobStatusRunning {
		return fmt.Errorf("job %s is %s, expected running", job.ID, job.Status)
	}
	o.logger.Log("job %s: processing %q", job.ID, truncate(job.RawInput, 120))

	route, settled, err := o.resolveRoute(ctx, job)
	if err != nil || settled {
		return err
	}

	for {
		settled, reason, err := o.attempt(ctx, job, route)
		if err != nil {
			return err
		}
		if settled {
			return nil
		}

		job.RetryCount++
		o.remember(job, "retry", fmt.Sprintf("attempt %d failed: %s", job.RetryCount, reason))
		o.logger.Log("job %s: attempt %d failed: %s", job.ID, job.RetryCount, reason)
		if job.RetryCount >= o.config.MaxRetries {
			return o.escalate(ctx, job, fmt.Sprintf("retry limit reached after %d attempts: %s", job.RetryCount, reason))
		}
		if err := o.db.UpdateJob(job); err != nil {
			return fmt.Errorf("persist retry count: %w", err)
		}
	}
}

// ResumeJob moves a blocked job back to running and reprocesses it.
// This is the explicit trigger fired when one of the job's sub-jobs settles;
// blocked jobs are never picked up by the claim loop.
func (o *Orchestrator) ResumeJob(ctx context.Context, jobID string) error {
	job, err := o.db.GetJob(jobID)
	if err != nil {
		return fmt.Errorf("load job for resume: %w", err)
	}
	if job.Status != models.JobStatusBlocked {
		return fmt.Errorf("job %s is %s, not blocked", job.ID, job.Status)
	}

	if err := o.db.Transition(job.ID, models.JobStatusBlocked, models.JobStatusRunning); err != nil {
		return fmt.Errorf("resume job: %w", err)
	}
	job.Status = models.JobStatusRunning
	o.remember(job, "resume", "sub-task settled, resuming")
	o.emit(Event{Type: EventJobResumed, JobID: job.ID})
	o.logger.Log("job %s: resumed after sub-task", job.ID)

	return o.Process(ctx, job)
}

// resolveRoute classifies the request and resolves its route.
// The returned bool reports whether the job was settled here (unclassifiable
// escalation, low-confidence clarification, or no route).
func (o *Orchestrator) resolveRoute(ctx context.Context, job *models.Job) (routing.Route, bool, error) {
	// Sub-jobs spawned with an explicit capability skip classification.
	if job.AssignedCapability != "" && job.Intent == nil {
		return routing.Route{CapabilityID: job.AssignedCapability}, false, nil
	}

	if job.Intent == nil {
		cctx, cancel := withTimeout(ctx, o.config.ClassifyTimeout)
		intent, err := o.classifier.Classify(cctx, job.RawInput)
		cancel()
		if err != nil {
			o.remember(job, "classify", "classification failed: "+err.Error())
			return routing.Route{}, true, o.escalate(ctx, job, "could not classify request: "+err.Error())
		}
		job.Intent = &intent
		o.remember(job, "classify", fmt.Sprintf("intent %q, confidence %.2f", intent.Name, intent.Confidence))
		o.emit(Event{Type: EventJobClassified, JobID: job.ID, Message: intent.Name})

		if intent.Confidence < o.config.MinConfidence {
			job.Result = &models.Result{
				Success:    true,
				Output:     clarificationPrompt(job.RawInput),
				Confidence: intent.Confidence,
				NextAction: models.NextActionClarify,
			}
			o.remember(job, "classify", fmt.Sprintf("confidence %.2f under floor %.2f, asking for clarification", intent.Confidence, o.config.MinConfidence))
			return routing.Route{}, true, o.complete(ctx, job, nil)
		}
	}

	route, err := o.planner.Resolve(job.Intent.Name)
	if err != nil {
		o.remember(job, "route", err.Error())
		return routing.Route{}, true, o.fail(ctx, job, err)
	}
	job.AssignedCapability = route.CapabilityID
	o.remember(job, "route", "assigned capability "+route.CapabilityID)
	if err := o.db.UpdateJob(job); err != nil {
		return routing.Route{}, true, fmt.Errorf("persist routing: %w", err)
	}
	return route, false, nil
}

// attempt runs one full retrieval-execution-gate pass.
// settled=true means the job reached a final disposition for this Process
// call (terminal status or blocked). A non-empty reason marks a retryable
// attempt failure. err is reserved for store failures.
func (o *Orchestrator) attempt(ctx context.Context, job *models.Job, route routing.Route) (settled bool, reason string, err error) {
	pack, rerr := o.retrieve(ctx, job, route)
	if rerr != nil {
		return false, "knowledge retrieval failed: " + rerr.Error(), nil
	}
	if !pack.Ready {
		return false, "knowledge pack not ready, missing: " + strings.Join(pack.Missing, ", "), nil
	}
	job.KnowledgePack = pack
	if err := o.db.UpdateJob(job); err != nil {
		return false, "", fmt.Errorf("persist knowledge pack: %w", err)
	}
	o.remember(job, "retrieve", fmt.Sprintf("%d documents for query %q", len(pack.Documents), pack.Query))
	o.emit(Event{Type: EventKnowledgeRetrieved, JobID: job.ID, Message: pack.Query})

	// Every capability the route names must exist and accept the intent
	// before anything runs.
	if err := o.checkCapabilities(job, route); err != nil {
		o.remember(job, "dispatch", err.Error())
		return true, "", o.fail(ctx, job, err)
	}

	result, execErr := o.execute(ctx, job, route)
	if execErr != nil {
		if errors.Is(execErr, graph.ErrCycleDetected) || errors.Is(execErr, graph.ErrDanglingDependency) {
			// Malformed plans are configuration defects, not transient faults.
			o.remember(job, "dispatch", execErr.Error())
			return true, "", o.fail(ctx, job, execErr)
		}
		return false, "execution failed: " + execErr.Error(), nil
	}
	if result == nil {
		return false, "capability returned no result", nil
	}
	job.Result = result
	o.remember(job, "execute", fmt.Sprintf("capability finished, success=%t, tokens=%d", result.Success, result.TokensUsed))

	if result.NextAction == models.NextActionNeedsSubTask && result.SubTaskRequest != nil {
		return true, "", o.block(ctx, job, result.SubTaskRequest)
	}
	if result.NextAction == models.NextActionClarify {
		// Clarifying questions go straight back to the user; there is no
		// output to gate.
		return true, "", o.complete(ctx, job, nil)
	}

	verdict := o.gate.Validate(job, result)
	job.ValidationResult = verdict
	if !verdict.Passed {
		o.emit(Event{Type: EventQualityFailed, JobID: job.ID, Score: verdict.Score})
		return false, fmt.Sprintf("quality gate rejected result, score %.2f: %s", verdict.Score, strings.Join(verdict.Reasons, "; ")), nil
	}
	o.emit(Event{Type: EventQualityPassed, JobID: job.ID, Score: verdict.Score})
	o.remember(job, "gate", fmt.Sprintf("passed with score %.2f", verdict.Score))

	return true, "", o.complete(ctx, job, &route)
}

// retrieve fetches the knowledge pack for the attempt.
// Capabilities never call the retriever; this runs exactly once per attempt
// and the pack is persisted on the job before execution.
func (o *Orchestrator) retrieve(ctx context.Context, job *models.Job, route routing.Route) (*models.KnowledgePack, error) {
	query := routing.BuildQuery(route, job.RawInput)
	rctx, cancel := withTimeout(ctx, o.config.RetrieveTimeout)
	defer cancel()

	pack, err := o.retriever.Retrieve(rctx, query, job.ID, knowledge.Context{
		ClientID: job.ClientID,
		UserID:   job.UserID,
	})
	if err != nil {
		return nil, err
	}
	if pack == nil {
		return nil, fmt.Errorf("retriever returned no pack")
	}
	return pack, nil
}

// checkCapabilities verifies every capability the route names is registered
// and willing to handle the job's classified intent. Either miss is a
// configuration defect, reported with the registered IDs for diagnosis.
func (o *Orchestrator) checkCapabilities(job *models.Job, route routing.Route) error {
	intent := ""
	if job.Intent != nil {
		intent = job.Intent.Name
	}

	check := func(id string) error {
		capability, err := o.registry.Get(id)
		if err != nil {
			return fmt.Errorf("%w (registered: %s)", err, strings.Join(o.registry.IDs(), ", "))
		}
		if intent != "" && !capability.CanHandle(intent) {
			return fmt.Errorf("capability %q rejects intent %q", id, intent)
		}
		return nil
	}

	if len(route.Steps) == 0 {
		return check(route.CapabilityID)
	}
	for _, step := range route.Steps {
		if err := check(step.CapabilityID); err != nil {
			return err
		}
	}
	return nil
}

// execute dispatches the route: a single capability call, or a full
// dependency-ordered plan for composite routes.
func (o *Orchestrator) execute(ctx context.Context, job *models.Job, route routing.Route) (*models.Result, error) {
	if len(route.Steps) == 0 {
		capability, err := o.registry.Get(route.CapabilityID)
		if err != nil {
			return nil, err
		}
		ectx, cancel := withTimeout(ctx, o.config.ExecuteTimeout)
		defer cancel()
		return capability.Execute(ectx, job, job.RawInput)
	}

	plan := o.buildPlan(job, route)
	executor := NewExecutor(&registryRunner{registry: o.registry}, o.config.ExecuteTimeout, o.emitter)
	planResult, err := executor.Execute(ctx, job, plan)
	if err != nil {
		return nil, err
	}
	return composeResult(plan, planResult), nil
}

// buildPlan materializes a composite route's steps into a fresh execution
// plan. Plans are created per run and never reused across jobs.
func (o *Orchestrator) buildPlan(job *models.Job, route routing.Route) *models.ExecutionPlan {
	idByOrdinal := make(map[int]string, len(route.Steps))
	steps := make([]*models.ExecutionStep, 0, len(route.Steps))

	for _, spec := range route.Steps {
		step := &models.ExecutionStep{
			ID:           uuid.NewString(),
			Ordinal:      spec.Ordinal,
			CapabilityID: spec.CapabilityID,
			Input:        strings.ReplaceAll(spec.Input, "{input}", job.RawInput),
			Critical:     spec.Critical,
			Status:       models.StepStatusPending,
		}
		idByOrdinal[spec.Ordinal] = step.ID
		steps = append(steps, step)
	}

	for i, spec := range route.Steps {
		for _, dep := range spec.DependsOn {
			id, ok := idByOrdinal[dep]
			if !ok {
				// Leave a marker the graph will reject as dangling.
				id = fmt.Sprintf("unknown-ordinal-%d", dep)
			}
			steps[i].DependsOn = append(steps[i].DependsOn, id)
		}
	}

	return &models.ExecutionPlan{
		ID:        uuid.NewString(),
		JobID:     job.ID,
		Steps:     steps,
		CreatedAt: time.Now(),
	}
}

// registryRunner dispatches plan steps to registered capabilities.
type registryRunner struct {
	registry *CapabilityRegistry
}

// RunStep implements StepRunner.
func (r *registryRunner) RunStep(ctx context.Context, job *models.Job, step *models.ExecutionStep) (*models.Result, error) {
	capability, err := r.registry.Get(step.CapabilityID)
	if err != nil {
		return nil, err
	}
	return capability.Execute(ctx, job, step.Input)
}

// composeResult folds a plan run into a single capability-shaped result so
// the quality gate and response path treat composite routes uniformly.
func composeResult(plan *models.ExecutionPlan, pr *models.PlanResult) *models.Result {
	ordinals := make([]int, 0, len(pr.Outcomes))
	for ord := range pr.Outcomes {
		ordinals = append(ordinals, ord)
	}
	sort.Ints(ordinals)

	var parts []string
	attempted := 0
	succeeded := 0
	structured := make(map[string]any, len(pr.Outcomes))
	for _, ord := range ordinals {
		outcome := pr.Outcomes[ord]
		attempted++
		if outcome.Success {
			succeeded++
			if outcome.Output != "" {
				parts = append(parts, outcome.Output)
			}
		} else {
			parts = append(parts, fmt.Sprintf("[step %d failed: %s]", ord, outcome.Error))
		}
		structured[fmt.Sprintf("step_%d", ord)] = map[string]any{
			"success":  outcome.Success,
			"output":   outcome.Output,
			"error":    outcome.Error,
			"duration": outcome.Duration.String(),
		}
	}

	confidence := 0.0
	if attempted > 0 {
		confidence = float64(succeeded) / float64(attempted)
	}

	return &models.Result{
		Success:    pr.Success,
		Output:     strings.Join(parts, "\n\n"),
		Structured: structured,
		Confidence: confidence,
		NextAction: models.NextActionComplete,
		TokensUsed: pr.TotalTokens,
	}
}

// block spawns the requested sub-job and parks the parent.
// The parent moves to blocked before the child becomes claimable, so a fast
// child can never try to resume a still-running parent.
func (o *Orchestrator) block(ctx context.Context, job *models.Job, req *models.SubTaskRequest) error {
	if err := o.db.UpdateJob(job); err != nil {
		return fmt.Errorf("persist before block: %w", err)
	}
	if err := o.db.Transition(job.ID, models.JobStatusRunning, models.JobStatusBlocked); err != nil {
		return fmt.Errorf("block job: %w", err)
	}
	job.Status = models.JobStatusBlocked

	child := &models.Job{
		ID:          uuid.NewString(),
		RawInput:    subTaskInput(req),
		ClientID:    job.ClientID,
		UserID:      job.UserID,
		ParentJobID: job.ID,
		Status:      models.JobStatusQueued,
	}
	if req.CapabilityID != "" {
		child.AssignedCapability = req.CapabilityID
	}
	if err := o.db.CreateJob(child); err != nil {
		// Without a child the parent would block forever; put it back.
		if terr := o.db.Transition(job.ID, models.JobStatusBlocked, models.JobStatusRunning); terr == nil {
			job.Status = models.JobStatusRunning
		}
		return fmt.Errorf("spawn sub-job: %w", err)
	}

	o.remember(job, "subtask", fmt.Sprintf("spawned sub-job %s: %s", child.ID, truncate(req.Description, 120)))
	o.emit(Event{Type: EventJobBlocked, JobID: job.ID, Message: child.ID})
	o.logger.Log("job %s: blocked on sub-job %s", job.ID, child.ID)
	return nil
}

// subTaskInput renders the sub-task request as the child job's raw input.
func subTaskInput(req *models.SubTaskRequest) string {
	if len(req.Context) == 0 {
		return req.Description
	}
	keys := make([]string, 0, len(req.Context))
	for k := range req.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(req.Description)
	b.WriteString("\n\nContext:")
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s: %s", k, req.Context[k])
	}
	return b.String()
}

// complete settles the job as done, deriving pending actions when the route
// touches external integrations.
func (o *Orchestrator) complete(ctx context.Context, job *models.Job, route *routing.Route) error {
	if route != nil && job.Result != nil && job.Result.Success {
		o.deriveActions(job, *route)
	}
	if err := o.db.UpdateJob(job); err != nil {
		return fmt.Errorf("persist result: %w", err)
	}
	if err := o.db.Transition(job.ID, models.JobStatusRunning, models.JobStatusDone); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	job.Status = models.JobStatusDone
	o.emit(Event{Type: EventJobDone, JobID: job.ID})
	o.logger.Log("job %s: done", job.ID)
	o.resumeParent(ctx, job)
	return nil
}

// fail settles the job as failed on an unrecoverable error.
func (o *Orchestrator) fail(ctx context.Context, job *models.Job, cause error) error {
	o.remember(job, "fail", cause.Error())
	if err := o.db.UpdateJob(job); err != nil {
		return fmt.Errorf("persist failure: %w", err)
	}
	if err := o.db.Transition(job.ID, models.JobStatusRunning, models.JobStatusFailed); err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	job.Status = models.JobStatusFailed
	o.emit(Event{Type: EventJobFailed, JobID: job.ID, Error: cause})
	o.logger.Log("job %s: failed: %v", job.ID, cause)
	o.resumeParent(ctx, job)
	return nil
}

// escalate settles the job as needing human review.
func (o *Orchestrator) escalate(ctx context.Context, job *models.Job, reason string) error {
	o.remember(job, "escalate", reason)
	if err := o.db.UpdateJob(job); err != nil {
		return fmt.Errorf("persist escalation: %w", err)
	}
	if err := o.db.Transition(job.ID, models.JobStatusRunning, models.JobStatusNeedsHumanReview); err != nil {
		return fmt.Errorf("escalate job: %w", err)
	}
	job.Status = models.JobStatusNeedsHumanReview
	o.emit(Event{Type: EventJobNeedsReview, JobID: job.ID, Message: reason})
	o.logger.Log("job %s: needs human review: %s", job.ID, reason)
	o.resumeParent(ctx, job)
	return nil
}

// resumeParent fires the resume trigger on the parent of a settled sub-job.
// The parent re-runs its attempt with the sub-job's outcome in its memory.
func (o *Orchestrator) resumeParent(ctx context.Context, child *models.Job) {
	if child.ParentJobID == "" {
		return
	}

	parent, err := o.db.GetJob(child.ParentJobID)
	if err != nil {
		o.logger.Log("job %s: load parent %s: %v", child.ID, child.ParentJobID, err)
		return
	}
	if parent.Status != models.JobStatusBlocked {
		return
	}

	output := ""
	if child.Result != nil {
		output = child.Result.Output
	}
	o.remember(parent, "subtask", fmt.Sprintf("sub-job %s settled as %s: %s",
		child.ID, child.Status, truncate(output, 500)))

	if err := o.ResumeJob(ctx, parent.ID); err != nil {
		o.logger.Log("job %s: resume parent %s: %v", child.ID, parent.ID, err)
	}
}

// deriveActions turns a passed result into pending actions, one per
// integration the route names. Actions wait for explicit human approval;
// nothing outward-facing runs from here.
func (o *Orchestrator) deriveActions(job *models.Job, route routing.Route) {
	for _, integration := range route.Integrations {
		action := &models.PendingAction{
			ID:      uuid.NewString(),
			JobID:   job.ID,
			Kind:    integration,
			Payload: actionPayload(job.Result),
			Status:  models.ActionPending,
		}
		if err := o.db.CreatePendingAction(action); err != nil {
			o.logger.Log("job %s: create pending action %s: %v", job.ID, integration, err)
			continue
		}
		o.remember(job, "action", fmt.Sprintf("pending %s action %s awaits approval", integration, action.ID))
		o.emit(Event{Type: EventActionCreated, JobID: job.ID, Message: integration})
	}
}

// actionPayload renders the result as the action's JSON payload.
func actionPayload(result *models.Result) string {
	if result == nil {
		return "{}"
	}
	payload := map[string]any{"output": result.Output}
	if len(result.Structured) > 0 {
		payload["structured"] = result.Structured
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// remember appends a stage audit entry to the job's memory.
// Memory is best-effort; a failed write is logged, never fatal.
func (o *Orchestrator) remember(job *models.Job, stage, message string) {
	entry := models.MemoryEntry{Stage: stage, Message: message, At: time.Now()}
	job.Memory = append(job.Memory, entry)
	if err := o.db.AppendMemory(job.ID, entry); err != nil {
		o.logger.Log("job %s: append memory: %v", job.ID, err)
	}
}

// emit sends an event if an emitter is attached.
func (o *Orchestrator) emit(event Event) {
	if o.emitter != nil {
		o.emitter.Emit(event)
	}
}

// clarificationPrompt is the response for requests the classifier could not
// pin down confidently.
func clarificationPrompt(rawInput string) string {
	return fmt.Sprintf("I couldn't confidently determine what you need from %q. Could you rephrase the request with more detail about the outcome you want?", truncate(rawInput, 200))
}

// withTimeout wraps ctx with a timeout when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// truncate shortens s to at most n runes for log and memory lines.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
