package capability

import (
	"context"
	"strings"
	"testing"

	"github.com/Idosegev23/ldrsagent/pkg/models"
)

func TestParseResponseWellFormed(t *testing.T) {
	text := `{"output":"Drafted the email.","confidence":0.85,"citations":["d1","d2"],"next_action":"complete"}`
	result := parseResponse(text)

	if !result.Success || result.Output != "Drafted the email." {
		t.Fatalf("result = %+v", result)
	}
	if result.Confidence != 0.85 {
		t.Errorf("confidence = %v", result.Confidence)
	}
	if len(result.Citations) != 2 {
		t.Errorf("citations = %v", result.Citations)
	}
	if result.NextAction != models.NextActionComplete {
		t.Errorf("next action = %s", result.NextAction)
	}
}

func TestParseResponseCodeFenceAndProse(t *testing.T) {
	text := "Here you go:\n```json\n{\"output\":\"done\",\"confidence\":1.4,\"next_action\":\"complete\"}\n```"
	result := parseResponse(text)
	if result.Output != "done" {
		t.Fatalf("output = %q", result.Output)
	}
	if result.Confidence != 1 {
		t.Errorf("confidence not clamped: %v", result.Confidence)
	}
}

func TestParseResponseSubTask(t *testing.T) {
	text := `{"output":"I need the attendee list.","confidence":0.6,"next_action":"needs_subtask","subtask":{"description":"find the attendee list","capability_id":"lookup"}}`
	result := parseResponse(text)
	if result.NextAction != models.NextActionNeedsSubTask {
		t.Fatalf("next action = %s", result.NextAction)
	}
	if result.SubTaskRequest == nil || result.SubTaskRequest.CapabilityID != "lookup" {
		t.Fatalf("subtask = %+v", result.SubTaskRequest)
	}
}

func TestParseResponseSubTaskWithoutDescriptionDowngrades(t *testing.T) {
	text := `{"output":"x","confidence":0.5,"next_action":"needs_subtask"}`
	result := parseResponse(text)
	if result.NextAction != models.NextActionComplete {
		t.Fatalf("next action = %s, want downgrade to complete", result.NextAction)
	}
}

func TestParseResponsePlainTextFallback(t *testing.T) {
	result := parseResponse("Sure, here is the summary you asked for.")
	if !result.Success {
		t.Fatal("non-empty plain reply should be usable")
	}
	if result.Confidence != 0.3 {
		t.Errorf("fallback confidence = %v", result.Confidence)
	}
	if !strings.Contains(result.Output, "summary") {
		t.Errorf("output = %q", result.Output)
	}
}

func TestFilterCitationsDropsUnknown(t *testing.T) {
	pack := &models.KnowledgePack{Documents: []models.Document{{ID: "d1"}, {ID: "d2"}}}
	kept := filterCitations([]string{"d1", "hallucinated", "d2"}, pack)
	if len(kept) != 2 || kept[0] != "d1" || kept[1] != "d2" {
		t.Fatalf("kept = %v", kept)
	}
	if got := filterCitations([]string{"d1"}, nil); got != nil {
		t.Fatalf("citations without a pack = %v", got)
	}
}

func TestBuildPromptInlinesDocumentsAndSubTaskMemory(t *testing.T) {
	job := &models.Job{
		Memory: []models.MemoryEntry{
			{Stage: "classify", Message: "intent draft_email"},
			{Stage: "subtask", Message: "sub-job abc settled as done: alice, bob"},
		},
		KnowledgePack: &models.KnowledgePack{
			Ready:     true,
			Documents: []models.Document{{ID: "d1", Title: "Style guide", Content: "Keep it short."}},
		},
	}
	prompt := buildPrompt(job, "draft the weekly update")

	for _, want := range []string{"draft the weekly update", "id: d1", "Keep it short.", "alice, bob"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "intent draft_email") {
		t.Error("non-subtask memory leaked into the prompt")
	}
}

func TestEchoCitesEveryDocument(t *testing.T) {
	echo := NewEcho("echo")
	job := &models.Job{KnowledgePack: &models.KnowledgePack{
		Documents: []models.Document{{ID: "d1", Content: "first\nrest"}, {ID: "d2", Content: "second"}},
	}}

	result, err := echo.Execute(context.Background(), job, "hello")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(result.Citations) != 2 {
		t.Fatalf("citations = %v", result.Citations)
	}
	if !strings.Contains(result.Output, "first") || strings.Contains(result.Output, "rest") {
		t.Errorf("output should use only the first line: %q", result.Output)
	}
}
