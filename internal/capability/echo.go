package capability

import (
	"context"
	"fmt"
	"strings"

	"github.com/Idosegev23/ldrsagent/pkg/models"
)

// Echo is an offline capability that restates the input together with the
// retrieved documents. It backs smoke tests and deployments without an API
// key, and cites every document it was given.
type Echo struct {
	id string
}

// NewEcho creates an echo capability under the given id.
func NewEcho(id string) *Echo {
	return &Echo{id: id}
}

// ID implements orchestrator.Capability.
func (e *Echo) ID() string {
	return e.id
}

// CanHandle implements orchestrator.Capability.
func (e *Echo) CanHandle(string) bool {
	return true
}

// Execute implements orchestrator.Capability.
func (e *Echo) Execute(_ context.Context, job *models.Job, input string) (*models.Result, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Received: %s\n", input)

	var citations []string
	if pack := job.KnowledgePack; pack != nil {
		for _, doc := range pack.Documents {
			citations = append(citations, doc.ID)
			fmt.Fprintf(&b, "Using %s: %s\n", doc.ID, firstLine(doc.Content))
		}
	}

	return &models.Result{
		Success:    true,
		Output:     b.String(),
		Citations:  citations,
		Confidence: 0.9,
		NextAction: models.NextActionComplete,
	}, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
