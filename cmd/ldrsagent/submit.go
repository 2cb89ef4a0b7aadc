package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Idosegev23/ldrsagent/internal/config"
	"github.com/Idosegev23/ldrsagent/internal/orchestrator"
)

var (
	submitClientID string
	submitUserID   string
)

var submitCmd = &cobra.Command{
	Use:   "submit <request...>",
	Short: "Enqueue a work request",
	Long: `Enqueue a natural-language work request for the worker to pick up.

Examples:
  ldrsagent submit "summarize the quarterly review meeting"
  ldrsagent submit --client acme --user dana "draft a reply to the vendor"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitClientID, "client", "", "Tenant the request belongs to")
	submitCmd.Flags().StringVar(&submitUserID, "user", "", "Requesting user")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	orch, _, err := buildOrchestrator(cfg, db, nil, orchestrator.NopLogger())
	if err != nil {
		return err
	}

	job, err := orch.SubmitJob(strings.Join(args, " "), submitClientID, submitUserID)
	if err != nil {
		return err
	}
	fmt.Printf("queued job %s\n", job.ID)
	return nil
}
