package orchestrator

import (
	"context"
	"time"

	"github.com/Idosegev23/ldrsagent/internal/state"
)

// Worker is the claim loop: it repeatedly claims the oldest queued job and
// hands it to the orchestrator. Multiple workers can run against the same
// store; the claim itself guarantees each job is processed exactly once.
//
// The loop never crashes on a processing error. Errors are logged and the
// loop backs off before claiming again.
type Worker struct {
	orch         *Orchestrator
	db           *state.DB
	idleBackoff  time.Duration
	errorBackoff time.Duration
	pause        *PauseController
}

// NewWorker creates a worker over the given orchestrator and store.
// idleBackoff is the sleep when nothing is queued; errorBackoff is the sleep
// after a claim or processing error.
func NewWorker(orch *Orchestrator, db *state.DB, idleBackoff, errorBackoff time.Duration) *Worker {
	if idleBackoff <= 0 {
		idleBackoff = time.Second
	}
	if errorBackoff <= 0 {
		errorBackoff = 5 * time.Second
	}
	return &Worker{
		orch:         orch,
		db:           db,
		idleBackoff:  idleBackoff,
		errorBackoff: errorBackoff,
		pause:        NewPauseController(),
	}
}

// Pause stops the worker from claiming new jobs. The job in flight finishes.
func (w *Worker) Pause() {
	w.pause.Pause()
}

// Resume re-enables claiming after a pause.
func (w *Worker) Resume() {
	w.pause.Resume()
}

// Stop signals the loop to exit after the current job.
func (w *Worker) Stop() {
	w.pause.Stop()
}

// Run drives the claim loop until the context is cancelled or Stop is called.
func (w *Worker) Run(ctx context.Context) error {
	debugLog("worker started (idle backoff %s, error backoff %s)", w.idleBackoff, w.errorBackoff)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.pause.WaitIfPaused(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Stopped.
			debugLog("worker stopped")
			return nil
		}

		job, err := w.db.ClaimNext()
		if err != nil {
			debugLog("worker: claim failed: %v", err)
			if !w.sleep(ctx, w.errorBackoff) {
				return ctx.Err()
			}
			continue
		}
		if job == nil {
			if !w.sleep(ctx, w.idleBackoff) {
				return ctx.Err()
			}
			continue
		}

		w.orch.emit(Event{Type: EventJobClaimed, JobID: job.ID})
		debugLog("worker: claimed job %s", job.ID)

		if err := w.orch.Process(ctx, job); err != nil {
			debugLog("worker: job %s processing error: %v", job.ID, err)
			if !w.sleep(ctx, w.errorBackoff) {
				return ctx.Err()
			}
		}
	}
}

// sleep waits for d or until the context is cancelled.
// Returns false when the context ended.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
