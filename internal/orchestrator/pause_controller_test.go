package orchestrator

import (
	"context"
	"testing"
	"time"
)

func TestPauseControllerBlocksUntilResume(t *testing.T) {
	pc := NewPauseController()
	pc.Pause()
	if !pc.IsPaused() {
		t.Fatal("not paused after Pause")
	}

	released := make(chan error, 1)
	go func() {
		released <- pc.WaitIfPaused(context.Background())
	}()

	select {
	case <-released:
		t.Fatal("WaitIfPaused returned while paused")
	case <-time.After(30 * time.Millisecond):
	}

	pc.Resume()
	select {
	case err := <-released:
		if err != nil {
			t.Fatalf("wait after resume: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitIfPaused did not release after Resume")
	}
}

func TestPauseControllerStopUnblocks(t *testing.T) {
	pc := NewPauseController()
	pc.Pause()

	released := make(chan error, 1)
	go func() {
		released <- pc.WaitIfPaused(context.Background())
	}()

	pc.Stop()
	select {
	case err := <-released:
		if err == nil {
			t.Fatal("stopped wait should return an error")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitIfPaused did not release after Stop")
	}
	if !pc.IsStopped() {
		t.Error("IsStopped = false after Stop")
	}
}

func TestPauseControllerContextCancel(t *testing.T) {
	pc := NewPauseController()
	pc.Pause()

	ctx, cancel := context.WithCancel(context.Background())
	released := make(chan error, 1)
	go func() {
		released <- pc.WaitIfPaused(ctx)
	}()

	cancel()
	select {
	case err := <-released:
		if err == nil {
			t.Fatal("cancelled wait should return an error")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitIfPaused did not release on context cancel")
	}
}

func TestPauseControllerPassThroughWhenRunning(t *testing.T) {
	pc := NewPauseController()
	if err := pc.WaitIfPaused(context.Background()); err != nil {
		t.Fatalf("unpaused wait: %v", err)
	}
}
