package models

import "testing"

func TestJobStatusValid(t *testing.T) {
	valid := []JobStatus{
		JobStatusQueued, JobStatusRunning, JobStatusBlocked,
		JobStatusNeedsHumanReview, JobStatusDone, JobStatusFailed,
	}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}

	if JobStatus("unknown").Valid() {
		t.Error("expected unknown status to be invalid")
	}
	if JobStatus("").Valid() {
		t.Error("expected empty status to be invalid")
	}
}

func TestJobStatusTerminal(t *testing.T) {
	tests := []struct {
		status   JobStatus
		terminal bool
	}{
		{JobStatusQueued, false},
		{JobStatusRunning, false},
		{JobStatusBlocked, false},
		{JobStatusDone, true},
		{JobStatusFailed, true},
		{JobStatusNeedsHumanReview, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestJobStatusCanTransition(t *testing.T) {
	tests := []struct {
		from    JobStatus
		to      JobStatus
		allowed bool
	}{
		{JobStatusQueued, JobStatusRunning, true},
		{JobStatusRunning, JobStatusBlocked, true},
		{JobStatusRunning, JobStatusDone, true},
		{JobStatusRunning, JobStatusFailed, true},
		{JobStatusRunning, JobStatusNeedsHumanReview, true},
		{JobStatusBlocked, JobStatusRunning, true},

		// No regressions out of terminal states.
		{JobStatusDone, JobStatusRunning, false},
		{JobStatusFailed, JobStatusQueued, false},
		{JobStatusNeedsHumanReview, JobStatusRunning, false},

		// No skipping the claim stage.
		{JobStatusQueued, JobStatusDone, false},
		{JobStatusQueued, JobStatusBlocked, false},
		{JobStatusBlocked, JobStatusDone, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.allowed {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestActionStatusValid(t *testing.T) {
	for _, s := range []ActionStatus{ActionPending, ActionApproved, ActionExecuted, ActionRejected} {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}
	if ActionStatus("maybe").Valid() {
		t.Error("expected unknown action status to be invalid")
	}
}
