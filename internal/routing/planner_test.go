package routing

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testRules = `
intents:
  - name: draft_email
    keywords: [email, reply, draft]
    capability: email_drafter
    knowledge_query: "email history for: {input}"
    integrations: [mail]
  - name: summarize_meeting
    keywords: [summarize, meeting, notes]
    capability: summarizer
    knowledge_query: "{input}"
default:
  capability: generic_responder
  knowledge_query: "{input}"
`

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	return path
}

func TestPlannerResolve(t *testing.T) {
	p, err := NewPlanner(writeRules(t, testRules))
	if err != nil {
		t.Fatalf("new planner: %v", err)
	}

	route, err := p.Resolve("draft_email")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if route.CapabilityID != "email_drafter" {
		t.Errorf("expected email_drafter, got %q", route.CapabilityID)
	}
	if len(route.Integrations) != 1 || route.Integrations[0] != "mail" {
		t.Errorf("unexpected integrations: %v", route.Integrations)
	}
}

func TestPlannerResolveFallsBackToDefault(t *testing.T) {
	p, err := NewPlanner(writeRules(t, testRules))
	if err != nil {
		t.Fatalf("new planner: %v", err)
	}

	route, err := p.Resolve("unknown")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if route.CapabilityID != "generic_responder" {
		t.Errorf("expected default route, got %q", route.CapabilityID)
	}
}

func TestPlannerNoRouteWithoutDefault(t *testing.T) {
	rules := `
intents:
  - name: draft_email
    capability: email_drafter
`
	p, err := NewPlanner(writeRules(t, rules))
	if err != nil {
		t.Fatalf("new planner: %v", err)
	}

	_, err = p.Resolve("something_else")
	if !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
}

func TestPlannerRejectsIncompleteRule(t *testing.T) {
	_, err := NewPlanner(writeRules(t, "intents:\n  - name: broken\n"))
	if err == nil {
		t.Fatal("expected error for rule without capability")
	}
}

func TestBuildQuery(t *testing.T) {
	route := Route{KnowledgeQuery: "email history for: {input}"}
	got := BuildQuery(route, "reply to Dana")
	if got != "email history for: reply to Dana" {
		t.Errorf("unexpected query %q", got)
	}

	if got := BuildQuery(Route{}, "raw"); got != "raw" {
		t.Errorf("empty template should fall back to input, got %q", got)
	}
}

func TestPlannerWatchReload(t *testing.T) {
	path := writeRules(t, testRules)
	p, err := NewPlanner(path)
	if err != nil {
		t.Fatalf("new planner: %v", err)
	}

	stop := make(chan struct{})
	defer close(stop)
	if err := p.Watch(path, stop); err != nil {
		t.Fatalf("watch: %v", err)
	}

	updated := `
intents:
  - name: draft_email
    capability: better_drafter
`
	if err := os.WriteFile(path, []byte(updated), 0600); err != nil {
		t.Fatalf("rewrite rules: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		route, err := p.Resolve("draft_email")
		if err == nil && route.CapabilityID == "better_drafter" {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("rules not reloaded; still %+v", route)
		case <-time.After(20 * time.Millisecond):
		}
	}
}
