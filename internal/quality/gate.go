// Package quality implements the acceptance gate between capability
// execution and job completion.
package quality

import (
	"fmt"
	"strings"
	"time"

	"github.com/Idosegev23/ldrsagent/pkg/models"
)

// Config holds gate settings.
type Config struct {
	// Threshold is the minimum score in [0,1] a result must reach to pass.
	Threshold float64
	// LenientOnInternalSuccess passes a result that reports internal success
	// even when its score falls under the threshold. Composite results from
	// multi-capability plans tend to score low on the per-field checks while
	// being perfectly usable; the switch exists to avoid those false negatives.
	LenientOnInternalSuccess bool
}

// DefaultConfig returns sensible gate defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:                0.6,
		LenientOnInternalSuccess: true,
	}
}

// Gate scores capability results and decides pass or retry.
type Gate struct {
	config Config
}

// NewGate creates a gate with the given configuration.
func NewGate(config Config) *Gate {
	if config.Threshold <= 0 {
		config.Threshold = DefaultConfig().Threshold
	}
	return &Gate{config: config}
}

// Score weights. The internal-success signal dominates; the remaining
// components measure how well the output is grounded and self-assessed.
const (
	weightSuccess    = 0.40
	weightOutput     = 0.20
	weightConfidence = 0.25
	weightCitations  = 0.15
)

// Validate scores the result against the job and returns the verdict.
// The result of a failed execution (nil or Success=false with empty output)
// scores low and fails; the retry decision belongs to the orchestrator.
func (g *Gate) Validate(job *models.Job, result *models.Result) *models.ValidationResult {
	verdict := &models.ValidationResult{CheckedAt: time.Now()}

	if result == nil {
		verdict.Reasons = append(verdict.Reasons, "no result produced")
		return verdict
	}

	var score float64
	var reasons []string

	if result.Success {
		score += weightSuccess
	} else {
		reasons = append(reasons, "capability reported failure")
	}

	if strings.TrimSpace(result.Output) != "" {
		score += weightOutput
	} else {
		reasons = append(reasons, "empty output")
	}

	if result.Confidence > 0 {
		score += weightConfidence * clamp01(result.Confidence)
	} else {
		reasons = append(reasons, "no confidence reported")
	}

	score += weightCitations * citationScore(job, result)
	if len(result.Citations) == 0 && hasKnowledge(job) {
		reasons = append(reasons, "output cites none of the retrieved documents")
	}

	verdict.Score = clamp01(score)
	verdict.Passed = verdict.Score >= g.config.Threshold

	if !verdict.Passed && g.config.LenientOnInternalSuccess && result.Success {
		verdict.Passed = true
		reasons = append(reasons, fmt.Sprintf("lenient pass: internal success at score %.2f", verdict.Score))
	}

	verdict.Reasons = reasons
	return verdict
}

// citationScore returns the fraction of citations that resolve to documents
// in the job's persisted knowledge pack. Jobs without retrieved documents
// get full marks, since there is nothing to cite.
func citationScore(job *models.Job, result *models.Result) float64 {
	if !hasKnowledge(job) {
		return 1
	}
	if len(result.Citations) == 0 {
		return 0
	}

	known := make(map[string]bool, len(job.KnowledgePack.Documents))
	for _, doc := range job.KnowledgePack.Documents {
		known[doc.ID] = true
	}

	resolved := 0
	for _, c := range result.Citations {
		if known[c] {
			resolved++
		}
	}
	return float64(resolved) / float64(len(result.Citations))
}

// hasKnowledge reports whether the job carries retrieved documents.
func hasKnowledge(job *models.Job) bool {
	return job != nil && job.KnowledgePack != nil && len(job.KnowledgePack.Documents) > 0
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
