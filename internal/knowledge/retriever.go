// Package knowledge defines the retriever contract and local implementations.
//
// The retriever is an external collaborator: the orchestrator calls it exactly
// once per processing attempt and persists the returned pack on the job before
// any capability runs. Capabilities read the persisted pack and never query
// the retriever themselves.
package knowledge

import (
	"context"
	"time"

	"github.com/Idosegev23/ldrsagent/pkg/models"
)

// Context carries the tenant scope of a retrieval call.
type Context struct {
	// ClientID identifies the tenant.
	ClientID string
	// UserID identifies the requesting user.
	UserID string
}

// Retriever turns a resolved query into a knowledge pack.
// A no-results pack with Ready=true is a valid response; implementations
// return an error only on genuine infrastructure failure.
type Retriever interface {
	Retrieve(ctx context.Context, query, jobID string, rc Context) (*models.KnowledgePack, error)
}

// Static is a retriever that always returns the same ready pack.
// Useful as a default when no knowledge source is configured.
type Static struct {
	// Pack is returned on every call; nil means an empty ready pack.
	Pack *models.KnowledgePack
}

// Retrieve implements Retriever.
func (s *Static) Retrieve(_ context.Context, query, _ string, _ Context) (*models.KnowledgePack, error) {
	if s.Pack != nil {
		pack := *s.Pack
		pack.Query = query
		pack.RetrievedAt = time.Now()
		return &pack, nil
	}
	return &models.KnowledgePack{
		Ready:       true,
		Query:       query,
		RetrievedAt: time.Now(),
	}, nil
}
