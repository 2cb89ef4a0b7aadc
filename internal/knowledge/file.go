package knowledge

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Idosegev23/ldrsagent/pkg/models"
)

// fixture is the on-disk YAML shape of a local knowledge base.
type fixture struct {
	Documents []fixtureDocument `yaml:"documents"`
	// Gaps lists topics the knowledge base knows it cannot answer.
	// A query touching a gap yields a not-ready pack with the gap reported
	// in Missing, which is fatal for the processing attempt.
	Gaps []string `yaml:"gaps"`
}

// fixtureDocument is one document entry in the fixture file.
type fixtureDocument struct {
	ID      string   `yaml:"id"`
	Title   string   `yaml:"title"`
	Source  string   `yaml:"source"`
	Tags    []string `yaml:"tags"`
	Content string   `yaml:"content"`
}

// FileRetriever serves knowledge packs from a YAML fixture file.
// It backs local development and deployments without a retrieval service.
type FileRetriever struct {
	docs []fixtureDocument
	gaps []string
}

// NewFileRetriever loads the fixture at path.
func NewFileRetriever(path string) (*FileRetriever, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge fixture: %w", err)
	}

	var f fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse knowledge fixture: %w", err)
	}

	return &FileRetriever{docs: f.Documents, gaps: f.Gaps}, nil
}

// Retrieve implements Retriever. Documents match when any query token
// appears in their tags, title, or content. A query touching a declared gap
// returns Ready=false with the gap listed in Missing. A query matching
// nothing returns a valid empty pack with Ready=true.
func (r *FileRetriever) Retrieve(_ context.Context, query, _ string, _ Context) (*models.KnowledgePack, error) {
	pack := &models.KnowledgePack{
		Ready:       true,
		Query:       query,
		RetrievedAt: time.Now(),
	}

	tokens := tokenize(query)

	for _, gap := range r.gaps {
		for _, tok := range tokens {
			if strings.Contains(strings.ToLower(gap), tok) || strings.Contains(tok, strings.ToLower(gap)) {
				pack.Ready = false
				pack.Missing = append(pack.Missing, gap)
				break
			}
		}
	}
	if !pack.Ready {
		return pack, nil
	}

	for _, doc := range r.docs {
		if matches(doc, tokens) {
			pack.Documents = append(pack.Documents, models.Document{
				ID:      doc.ID,
				Title:   doc.Title,
				Source:  doc.Source,
				Content: doc.Content,
			})
			pack.Chunks = append(pack.Chunks, models.Chunk{
				DocumentID: doc.ID,
				Content:    doc.Content,
				Score:      1,
			})
		}
	}

	return pack, nil
}

// matches reports whether any query token appears in the document.
func matches(doc fixtureDocument, tokens []string) bool {
	haystack := strings.ToLower(doc.Title + " " + doc.Content + " " + strings.Join(doc.Tags, " "))
	for _, tok := range tokens {
		if strings.Contains(haystack, tok) {
			return true
		}
	}
	return false
}

// tokenize lowercases and splits a query, dropping short stop-ish tokens.
func tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) >= 3 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
