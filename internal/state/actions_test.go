package state

import (
	"errors"
	"testing"
	"time"

	"github.com/Idosegev23/ldrsagent/pkg/models"
)

func newTestAction(id string) *models.PendingAction {
	return &models.PendingAction{
		ID:        id,
		JobID:     "job-1",
		Kind:      "send_email",
		Payload:   `{"to":"team@example.com"}`,
		Status:    models.ActionPending,
		CreatedAt: time.Now(),
	}
}

func TestCreateAndGetAction(t *testing.T) {
	db := testDB(t)
	if err := db.CreatePendingAction(newTestAction("act-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := db.GetAction("act-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Kind != "send_email" || got.Status != models.ActionPending {
		t.Errorf("action not round-tripped: %+v", got)
	}
}

func TestCreatePendingActionStampsCreatedAt(t *testing.T) {
	db := testDB(t)
	a := &models.PendingAction{
		ID:      "act-bare",
		JobID:   "job-1",
		Kind:    "send_email",
		Payload: "{}",
		Status:  models.ActionPending,
	}
	if err := db.CreatePendingAction(a); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := db.GetAction("act-bare")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at persisted as the zero time")
	}
}

func TestApproveActionIdempotent(t *testing.T) {
	db := testDB(t)
	if err := db.CreatePendingAction(newTestAction("act-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := db.ApproveAction("act-1"); err != nil {
		t.Fatalf("first approve: %v", err)
	}
	if err := db.ApproveAction("act-1"); err != nil {
		t.Fatalf("second approve should be a no-op: %v", err)
	}

	if err := db.MarkActionExecuted("act-1"); err != nil {
		t.Fatalf("mark executed: %v", err)
	}
	// Approving after execution is still a no-op.
	if err := db.ApproveAction("act-1"); err != nil {
		t.Fatalf("approve after execution should be a no-op: %v", err)
	}

	got, err := db.GetAction("act-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.ActionExecuted {
		t.Errorf("expected executed, got %s", got.Status)
	}
	if got.ExecutedAt == nil {
		t.Error("expected executed_at set")
	}
}

func TestRejectAction(t *testing.T) {
	db := testDB(t)
	if err := db.CreatePendingAction(newTestAction("act-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := db.RejectAction("act-1"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if err := db.RejectAction("act-1"); err != nil {
		t.Fatalf("second reject should be a no-op: %v", err)
	}

	err := db.ApproveAction("act-1")
	if !errors.Is(err, ErrActionDecided) {
		t.Fatalf("expected ErrActionDecided approving rejected action, got %v", err)
	}
}

func TestExecuteRequiresApproval(t *testing.T) {
	db := testDB(t)
	if err := db.CreatePendingAction(newTestAction("act-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := db.MarkActionExecuted("act-1")
	if !errors.Is(err, ErrActionDecided) {
		t.Fatalf("expected ErrActionDecided executing pending action, got %v", err)
	}
}

func TestListActionsByStatus(t *testing.T) {
	db := testDB(t)
	for _, id := range []string{"act-1", "act-2", "act-3"} {
		if err := db.CreatePendingAction(newTestAction(id)); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if err := db.ApproveAction("act-2"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	pending, err := db.ListActions(models.ActionPending)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("expected 2 pending actions, got %d", len(pending))
	}

	all, err := db.ListActions("")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 actions, got %d", len(all))
	}
}
