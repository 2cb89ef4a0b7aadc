package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const testFixture = `
documents:
  - id: doc-pricing
    title: Pricing sheet 2026
    source: drive
    tags: [pricing, quotes]
    content: Standard tier costs 49 per seat per month.
  - id: doc-onboarding
    title: Onboarding checklist
    source: wiki
    tags: [onboarding]
    content: New clients get a kickoff call within three days.
gaps:
  - contracts
`

func fixtureRetriever(t *testing.T) *FileRetriever {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kb.yaml")
	if err := os.WriteFile(path, []byte(testFixture), 0600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	r, err := NewFileRetriever(path)
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	return r
}

func TestFileRetrieverMatchesByTagAndContent(t *testing.T) {
	r := fixtureRetriever(t)

	pack, err := r.Retrieve(context.Background(), "pricing for new lead", "job-1", Context{ClientID: "c1"})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if !pack.Ready {
		t.Fatal("expected ready pack")
	}
	if len(pack.Documents) != 1 || pack.Documents[0].ID != "doc-pricing" {
		t.Fatalf("unexpected documents: %+v", pack.Documents)
	}
	if len(pack.Chunks) != 1 || pack.Chunks[0].DocumentID != "doc-pricing" {
		t.Errorf("unexpected chunks: %+v", pack.Chunks)
	}
	if pack.Query != "pricing for new lead" {
		t.Errorf("query not recorded: %q", pack.Query)
	}
}

func TestFileRetrieverNoResultsIsReady(t *testing.T) {
	r := fixtureRetriever(t)

	pack, err := r.Retrieve(context.Background(), "completely unrelated topic", "job-1", Context{})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if !pack.Ready {
		t.Fatal("no-results must still be a ready pack")
	}
	if len(pack.Documents) != 0 {
		t.Errorf("expected no documents, got %d", len(pack.Documents))
	}
}

func TestFileRetrieverGapYieldsNotReady(t *testing.T) {
	r := fixtureRetriever(t)

	pack, err := r.Retrieve(context.Background(), "summarize the contracts folder", "job-1", Context{})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if pack.Ready {
		t.Fatal("expected not-ready pack for a declared gap")
	}
	if len(pack.Missing) != 1 || pack.Missing[0] != "contracts" {
		t.Errorf("expected contracts gap reported, got %v", pack.Missing)
	}
}

func TestStaticRetrieverEmptyReady(t *testing.T) {
	s := &Static{}
	pack, err := s.Retrieve(context.Background(), "anything", "job-1", Context{})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if !pack.Ready || len(pack.Documents) != 0 {
		t.Errorf("expected empty ready pack, got %+v", pack)
	}
}
