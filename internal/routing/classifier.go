package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Idosegev23/ldrsagent/internal/api"
	"github.com/Idosegev23/ldrsagent/pkg/models"
)

// Classifier turns raw request text into an intent with a confidence score.
// The classifier is an external collaborator; the orchestrator treats low
// confidence as a soft clarification outcome, not a hard failure.
type Classifier interface {
	Classify(ctx context.Context, rawInput string) (models.Intent, error)
}

// KeywordClassifier classifies by keyword overlap against the planner's rules.
// It needs no network and backs tests and offline deployments.
type KeywordClassifier struct {
	planner *Planner
}

// NewKeywordClassifier creates a keyword classifier over the planner's rules.
func NewKeywordClassifier(planner *Planner) *KeywordClassifier {
	return &KeywordClassifier{planner: planner}
}

// Classify implements Classifier. Confidence is the fraction of the best
// intent's keywords found in the input; zero matches yields an "unknown"
// intent with zero confidence.
func (c *KeywordClassifier) Classify(_ context.Context, rawInput string) (models.Intent, error) {
	input := strings.ToLower(rawInput)

	best := models.Intent{Name: "unknown", Confidence: 0}
	for _, name := range c.planner.IntentNames() {
		keywords := c.planner.KeywordsFor(name)
		if len(keywords) == 0 {
			continue
		}
		hits := 0
		for _, kw := range keywords {
			if strings.Contains(input, strings.ToLower(kw)) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		confidence := float64(hits) / float64(len(keywords))
		if confidence > best.Confidence {
			best = models.Intent{Name: name, Confidence: confidence}
		}
	}

	return best, nil
}

// LLMClassifier classifies with a single Anthropic API call.
type LLMClassifier struct {
	client  *api.Client
	planner *Planner
}

// NewLLMClassifier creates a classifier backed by the given API client,
// constrained to the planner's known intents.
func NewLLMClassifier(client *api.Client, planner *Planner) *LLMClassifier {
	return &LLMClassifier{client: client, planner: planner}
}

const classifySystemPrompt = `You classify work requests into exactly one intent.
Respond with only a JSON object: {"intent": "<name>", "confidence": <0..1>}.
Use "unknown" with low confidence when no listed intent fits.`

// Classify implements Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, rawInput string) (models.Intent, error) {
	prompt := fmt.Sprintf("Known intents: %s\n\nRequest:\n%s",
		strings.Join(c.planner.IntentNames(), ", "), rawInput)

	text, _, err := c.client.Complete(ctx, classifySystemPrompt, prompt, 256)
	if err != nil {
		return models.Intent{}, fmt.Errorf("classify request: %w", err)
	}

	intent, err := parseIntentJSON(text)
	if err != nil {
		return models.Intent{}, fmt.Errorf("parse classifier response: %w", err)
	}
	return intent, nil
}

// parseIntentJSON extracts the intent object from a model response, tolerating
// surrounding prose or code fences.
func parseIntentJSON(text string) (models.Intent, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return models.Intent{}, fmt.Errorf("no JSON object in %q", text)
	}

	var payload struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
		return models.Intent{}, err
	}
	if payload.Intent == "" {
		return models.Intent{}, fmt.Errorf("classifier returned empty intent")
	}
	return models.Intent{Name: payload.Intent, Confidence: payload.Confidence}, nil
}
