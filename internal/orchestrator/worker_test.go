package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/Idosegev23/ldrsagent/pkg/models"
)

func TestWorkerProcessesQueuedJobs(t *testing.T) {
	h := newHarness(t, summarizeIntent(), nil, nil)
	h.registry.Register(&fakeCapability{id: "summarizer", handler: func(_ context.Context, _ *models.Job, input string) (*models.Result, error) {
		return goodResult("done: " + input), nil
	}})

	job, err := h.orch.SubmitJob("summarize the standup", "c", "u")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	worker := NewWorker(h.orch, h.db, 5*time.Millisecond, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	finished := make(chan error, 1)
	go func() { finished <- worker.Run(ctx) }()

	deadline := time.After(3 * time.Second)
	for {
		got, err := h.db.GetJob(job.ID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if got.Status == models.JobStatusDone {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("job never finished, status %s", got.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("worker did not exit on context cancel")
	}
}

func TestWorkerStopExitsLoop(t *testing.T) {
	h := newHarness(t, summarizeIntent(), nil, nil)
	worker := NewWorker(h.orch, h.db, 5*time.Millisecond, 5*time.Millisecond)

	finished := make(chan error, 1)
	go func() { finished <- worker.Run(context.Background()) }()

	// Let the loop spin on an empty queue, then pause and stop it.
	time.Sleep(20 * time.Millisecond)
	worker.Pause()
	worker.Stop()

	select {
	case err := <-finished:
		if err != nil {
			t.Fatalf("stopped worker returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after Stop")
	}
}

func TestWorkerPauseHoldsClaims(t *testing.T) {
	h := newHarness(t, summarizeIntent(), nil, nil)
	h.registry.Register(&fakeCapability{id: "summarizer", handler: func(context.Context, *models.Job, string) (*models.Result, error) {
		return goodResult("fast"), nil
	}})

	worker := NewWorker(h.orch, h.db, 5*time.Millisecond, 5*time.Millisecond)
	worker.Pause()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)
	time.Sleep(20 * time.Millisecond)

	job, err := h.orch.SubmitJob("summarize while paused", "c", "u")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	got, _ := h.db.GetJob(job.ID)
	if got.Status != models.JobStatusQueued {
		t.Fatalf("paused worker claimed the job, status %s", got.Status)
	}

	worker.Resume()
	deadline := time.After(3 * time.Second)
	for {
		got, _ = h.db.GetJob(job.ID)
		if got.Status == models.JobStatusDone {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("job never finished after resume, status %s", got.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
