// Package capability provides the built-in capabilities the orchestrator
// dispatches to. External deployments register their own implementations;
// these cover the generic respond-with-knowledge path and offline testing.
package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Idosegev23/ldrsagent/internal/api"
	"github.com/Idosegev23/ldrsagent/pkg/models"
)

// Responder is the generic LLM-backed capability. It answers the input using
// only the job's persisted knowledge pack and reports which documents it
// grounded the answer on.
type Responder struct {
	id     string
	client *api.Client
	// maxTokens bounds each generation call.
	maxTokens int64
}

// NewResponder creates a responder registered under the given capability id.
func NewResponder(id string, client *api.Client) *Responder {
	return &Responder{id: id, client: client, maxTokens: 4096}
}

// ID implements orchestrator.Capability.
func (r *Responder) ID() string {
	return r.id
}

// CanHandle implements orchestrator.Capability. The responder is generic and
// accepts any intent it is routed.
func (r *Responder) CanHandle(string) bool {
	return true
}

const responderSystemPrompt = `You are a work assistant completing one task for a user.
Use ONLY the reference documents provided in the task; do not invent facts.
Respond with a single JSON object, no prose around it:
{
  "output": "<the completed work product>",
  "confidence": <0.0-1.0 self-assessment>,
  "citations": ["<ids of reference documents you used>"],
  "next_action": "complete" | "needs_subtask" | "clarify",
  "subtask": {"description": "<what you still need>", "capability_id": ""}
}
Set next_action to "needs_subtask" only when the task cannot be finished
without information a separate lookup must produce. Set it to "clarify" when
the request itself is too ambiguous to act on. Include "subtask" only with
"needs_subtask". Cite only document ids that were provided.`

// Execute implements orchestrator.Capability.
func (r *Responder) Execute(ctx context.Context, job *models.Job, input string) (*models.Result, error) {
	prompt := buildPrompt(job, input)
	text, tokens, err := r.client.Complete(ctx, responderSystemPrompt, prompt, r.maxTokens)
	if err != nil {
		return nil, fmt.Errorf("responder generation: %w", err)
	}

	result := parseResponse(text)
	result.TokensUsed = tokens
	result.Citations = filterCitations(result.Citations, job.KnowledgePack)
	return result, nil
}

// buildPrompt renders the task and the persisted knowledge pack.
// The responder never retrieves; everything it may cite is inlined here.
func buildPrompt(job *models.Job, input string) string {
	var b strings.Builder
	b.WriteString("Task:\n")
	b.WriteString(input)

	if len(job.Memory) > 0 {
		b.WriteString("\n\nPrior progress on this job:\n")
		for _, entry := range job.Memory {
			if entry.Stage == "subtask" {
				fmt.Fprintf(&b, "- %s\n", entry.Message)
			}
		}
	}

	pack := job.KnowledgePack
	if pack == nil || len(pack.Documents) == 0 {
		b.WriteString("\n\nReference documents: none retrieved.\n")
		return b.String()
	}

	b.WriteString("\n\nReference documents:\n")
	for _, doc := range pack.Documents {
		fmt.Fprintf(&b, "--- id: %s", doc.ID)
		if doc.Title != "" {
			fmt.Fprintf(&b, " title: %s", doc.Title)
		}
		b.WriteString(" ---\n")
		b.WriteString(doc.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// responderPayload is the JSON contract the model is asked to follow.
type responderPayload struct {
	Output     string   `json:"output"`
	Confidence float64  `json:"confidence"`
	Citations  []string `json:"citations"`
	NextAction string   `json:"next_action"`
	SubTask    *struct {
		Description  string `json:"description"`
		CapabilityID string `json:"capability_id"`
	} `json:"subtask"`
}

// parseResponse decodes the model's JSON reply, tolerating code fences and
// surrounding prose. A reply that is not valid JSON is kept as plain output
// with reduced confidence rather than failing the attempt.
func parseResponse(text string) *models.Result {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		var payload responderPayload
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &payload); err == nil && payload.Output != "" {
			result := &models.Result{
				Success:    true,
				Output:     payload.Output,
				Confidence: clamp01(payload.Confidence),
				Citations:  payload.Citations,
				NextAction: parseNextAction(payload.NextAction),
			}
			if result.NextAction == models.NextActionNeedsSubTask {
				if payload.SubTask == nil || payload.SubTask.Description == "" {
					// A sub-task request without a task is noise.
					result.NextAction = models.NextActionComplete
				} else {
					result.SubTaskRequest = &models.SubTaskRequest{
						CapabilityID: payload.SubTask.CapabilityID,
						Description:  payload.SubTask.Description,
					}
				}
			}
			return result
		}
	}

	return &models.Result{
		Success:    cleaned != "",
		Output:     cleaned,
		Confidence: 0.3,
		NextAction: models.NextActionComplete,
	}
}

func parseNextAction(s string) models.NextAction {
	switch models.NextAction(strings.ToLower(strings.TrimSpace(s))) {
	case models.NextActionNeedsSubTask:
		return models.NextActionNeedsSubTask
	case models.NextActionClarify:
		return models.NextActionClarify
	default:
		return models.NextActionComplete
	}
}

// filterCitations drops citations that do not resolve to a retrieved document.
func filterCitations(citations []string, pack *models.KnowledgePack) []string {
	if len(citations) == 0 || pack == nil {
		return nil
	}
	known := make(map[string]bool, len(pack.Documents))
	for _, doc := range pack.Documents {
		known[doc.ID] = true
	}
	var kept []string
	for _, c := range citations {
		if known[c] {
			kept = append(kept, c)
		}
	}
	return kept
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
