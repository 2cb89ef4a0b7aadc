package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Idosegev23/ldrsagent/internal/graph"
	"github.com/Idosegev23/ldrsagent/pkg/models"
)

// runnerFunc adapts a function to the StepRunner interface.
type runnerFunc func(ctx context.Context, job *models.Job, step *models.ExecutionStep) (*models.Result, error)

func (f runnerFunc) RunStep(ctx context.Context, job *models.Job, step *models.ExecutionStep) (*models.Result, error) {
	return f(ctx, job, step)
}

func planOf(steps ...*models.ExecutionStep) *models.ExecutionPlan {
	return &models.ExecutionPlan{ID: "plan-1", JobID: "job-1", Steps: steps, CreatedAt: time.Now()}
}

func step(id string, ordinal int, deps ...string) *models.ExecutionStep {
	return &models.ExecutionStep{
		ID:           id,
		Ordinal:      ordinal,
		CapabilityID: "cap",
		Input:        "input " + id,
		DependsOn:    deps,
		Status:       models.StepStatusPending,
	}
}

func okRunner() (runnerFunc, *sync.Map) {
	var ran sync.Map
	return func(_ context.Context, _ *models.Job, s *models.ExecutionStep) (*models.Result, error) {
		ran.Store(s.ID, time.Now())
		return &models.Result{Success: true, Output: "out " + s.ID, Confidence: 1, TokensUsed: 10}, nil
	}, &ran
}

func TestExecutorRespectsBatchOrdering(t *testing.T) {
	// 1,2,3 are independent; 4 and 5 wait on subsets of them; 6 waits on both.
	steps := []*models.ExecutionStep{
		step("s1", 1), step("s2", 2), step("s3", 3),
		step("s4", 4, "s1", "s2"), step("s5", 5, "s3"),
		step("s6", 6, "s4", "s5"),
	}

	var mu sync.Mutex
	ends := make(map[string]time.Time)
	starts := make(map[string]time.Time)
	runner := runnerFunc(func(_ context.Context, _ *models.Job, s *models.ExecutionStep) (*models.Result, error) {
		mu.Lock()
		starts[s.ID] = time.Now()
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		ends[s.ID] = time.Now()
		mu.Unlock()
		return &models.Result{Success: true, Output: s.ID, Confidence: 1}, nil
	})

	executor := NewExecutor(runner, 0, nil)
	result, err := executor.Execute(context.Background(), &models.Job{ID: "job-1"}, planOf(steps...))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("result not successful: %+v", result)
	}
	if result.BatchesRun != 3 {
		t.Errorf("batches run = %d, want 3", result.BatchesRun)
	}
	if len(result.Outcomes) != len(steps) {
		t.Fatalf("outcomes = %d, want %d", len(result.Outcomes), len(steps))
	}

	after := func(a, b string) {
		t.Helper()
		if !starts[a].After(ends[b]) {
			t.Errorf("step %s started before its dependency %s finished", a, b)
		}
	}
	after("s4", "s1")
	after("s4", "s2")
	after("s5", "s3")
	after("s6", "s4")
	after("s6", "s5")
}

func TestExecutorRunsBatchPeersConcurrently(t *testing.T) {
	var arrived sync.WaitGroup
	arrived.Add(2)
	runner := runnerFunc(func(_ context.Context, _ *models.Job, s *models.ExecutionStep) (*models.Result, error) {
		arrived.Done()
		both := make(chan struct{})
		go func() {
			arrived.Wait()
			close(both)
		}()
		select {
		case <-both:
			return &models.Result{Success: true, Output: s.ID, Confidence: 1}, nil
		case <-time.After(2 * time.Second):
			return nil, errors.New("batch peer never started")
		}
	})

	executor := NewExecutor(runner, 0, nil)
	result, err := executor.Execute(context.Background(), &models.Job{ID: "job-1"},
		planOf(step("a", 1), step("b", 2)))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("steps did not overlap: %+v", result.Outcomes)
	}
}

func TestExecutorCapturesStepErrorWithoutAbortingPeers(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, _ *models.Job, s *models.ExecutionStep) (*models.Result, error) {
		if s.ID == "bad" {
			return nil, errors.New("boom")
		}
		return &models.Result{Success: true, Output: s.ID, Confidence: 1}, nil
	})

	bad := step("bad", 1)
	good := step("good", 2)
	tail := step("tail", 3, "good")

	executor := NewExecutor(runner, 0, nil)
	result, err := executor.Execute(context.Background(), &models.Job{ID: "job-1"}, planOf(bad, good, tail))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if result.Success {
		t.Error("plan with a failed step reported success")
	}
	if result.Halted {
		t.Error("non-critical failure halted the plan")
	}
	if result.BatchesRun != 2 {
		t.Errorf("batches run = %d, want 2", result.BatchesRun)
	}
	if outcome := result.Outcomes[1]; outcome.Success || outcome.Error != "boom" {
		t.Errorf("bad outcome = %+v", outcome)
	}
	if outcome := result.Outcomes[3]; !outcome.Success {
		t.Errorf("downstream of a healthy step should still run: %+v", outcome)
	}
	if bad.Status != models.StepStatusFailed || bad.Error != "boom" {
		t.Errorf("failed step not annotated: %+v", bad)
	}
}

func TestExecutorCriticalFailureHaltsLaterBatches(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, _ *models.Job, s *models.ExecutionStep) (*models.Result, error) {
		if s.ID == "critical" {
			return nil, errors.New("pipeline broken")
		}
		return &models.Result{Success: true, Output: s.ID, Confidence: 1}, nil
	})

	critical := step("critical", 1)
	critical.Critical = true
	peer := step("peer", 2)
	next := step("next", 3, "peer")

	executor := NewExecutor(runner, 0, nil)
	result, err := executor.Execute(context.Background(), &models.Job{ID: "job-1"}, planOf(critical, peer, next))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if !result.Halted || result.Success {
		t.Fatalf("result = %+v, want halted failure", result)
	}
	if result.BatchesRun != 1 {
		t.Errorf("batches run = %d, want 1", result.BatchesRun)
	}
	// The peer in the same batch still finished.
	if outcome := result.Outcomes[2]; !outcome.Success {
		t.Errorf("batch peer outcome = %+v, want success", outcome)
	}
	// The later batch never ran and is not in the outcomes.
	if _, ok := result.Outcomes[3]; ok {
		t.Error("skipped step has an outcome")
	}
	if next.Status != models.StepStatusSkipped {
		t.Errorf("skipped step status = %s", next.Status)
	}
}

func TestExecutorRejectsCyclicPlan(t *testing.T) {
	runner, ran := okRunner()
	a := step("a", 1, "b")
	b := step("b", 2, "a")

	executor := NewExecutor(runner, 0, nil)
	_, err := executor.Execute(context.Background(), &models.Job{ID: "job-1"}, planOf(a, b))
	if !errors.Is(err, graph.ErrCycleDetected) {
		t.Fatalf("err = %v, want cycle detection", err)
	}
	ran.Range(func(key, _ any) bool {
		t.Errorf("step %v ran despite the cycle", key)
		return true
	})
}

func TestExecutorRejectsDanglingDependency(t *testing.T) {
	runner, _ := okRunner()
	executor := NewExecutor(runner, 0, nil)
	_, err := executor.Execute(context.Background(), &models.Job{ID: "job-1"},
		planOf(step("a", 1, "missing")))
	if !errors.Is(err, graph.ErrDanglingDependency) {
		t.Fatalf("err = %v, want dangling dependency", err)
	}
}

func TestExecutorStepTimeout(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, _ *models.Job, s *models.ExecutionStep) (*models.Result, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return &models.Result{Success: true, Confidence: 1}, nil
		}
	})

	executor := NewExecutor(runner, 20*time.Millisecond, nil)
	result, err := executor.Execute(context.Background(), &models.Job{ID: "job-1"}, planOf(step("slow", 1)))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	outcome := result.Outcomes[1]
	if outcome.Success {
		t.Fatal("timed-out step reported success")
	}
	if outcome.Error == "" {
		t.Fatal("timed-out step has no captured error")
	}
}
