package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Idosegev23/ldrsagent/internal/config"
	"github.com/Idosegev23/ldrsagent/internal/orchestrator"
)

var workerQuiet bool

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the job claim loop",
	Long: `Run the worker: repeatedly claim the oldest queued job and process it
through classification, knowledge retrieval, capability execution, and the
quality gate. Multiple workers may share one job store.

The worker runs until interrupted. Pending actions derived from completed
jobs stay queued for 'ldrsagent actions' approval; nothing outward-facing
runs without it.`,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().BoolVarP(&workerQuiet, "quiet", "q", false, "Suppress per-event output")
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	logger := orchestrator.NewDebugLoggerForData(filepath.Dir(db.Path()))
	defer logger.Close()

	emitter := orchestrator.NewEventEmitter(256)
	orch, planner, err := buildOrchestrator(cfg, db, emitter, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	stop := make(chan struct{})
	defer close(stop)
	if cfg.Routing.WatchRules && cfg.Routing.RulesPath != "" {
		if err := planner.Watch(cfg.Routing.RulesPath, stop); err != nil {
			return fmt.Errorf("watch routing rules: %w", err)
		}
	}

	go printEvents(emitter)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Println("\nshutting down...")
		cancel()
	}()

	fmt.Printf("worker started, job store at %s\n", db.Path())
	worker := orchestrator.NewWorker(orch, db, cfg.Worker.IdleBackoff, cfg.Worker.ErrorBackoff)
	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// printEvents streams orchestrator events to the terminal until the emitter
// closes.
func printEvents(emitter *orchestrator.EventEmitter) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	for event := range emitter.Events() {
		if workerQuiet {
			continue
		}
		short := event.JobID
		if len(short) > 8 {
			short = short[:8]
		}
		switch event.Type {
		case orchestrator.EventJobClaimed:
			fmt.Printf("%s job %s claimed\n", cyan("→"), short)
		case orchestrator.EventJobClassified:
			fmt.Printf("  job %s classified as %s\n", short, event.Message)
		case orchestrator.EventJobDone:
			fmt.Printf("%s job %s done\n", green("✓"), short)
		case orchestrator.EventJobFailed:
			fmt.Printf("%s job %s failed: %v\n", red("✗"), short, event.Error)
		case orchestrator.EventJobNeedsReview:
			fmt.Printf("%s job %s needs human review: %s\n", yellow("!"), short, event.Message)
		case orchestrator.EventJobBlocked:
			fmt.Printf("%s job %s blocked on sub-job %s\n", yellow("⏸"), short, event.Message)
		case orchestrator.EventJobResumed:
			fmt.Printf("%s job %s resumed\n", cyan("→"), short)
		case orchestrator.EventQualityFailed:
			fmt.Printf("  job %s quality gate rejected (score %.2f)\n", short, event.Score)
		case orchestrator.EventActionCreated:
			fmt.Printf("%s job %s queued a pending %s action\n", yellow("?"), short, event.Message)
		case orchestrator.EventStepFailed:
			fmt.Printf("  job %s step %s failed: %v\n", short, event.CapabilityID, event.Error)
		}
	}
}
