package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Idosegev23/ldrsagent/internal/config"
	"github.com/Idosegev23/ldrsagent/internal/state"
	"github.com/Idosegev23/ldrsagent/pkg/models"
)

var actionsAll bool

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "Review pending actions",
	Long: `List and decide pending actions.

Completed jobs that touch external systems (email, calendar) queue their
side effects as pending actions. Nothing runs until a human approves it
here. Approval is idempotent: approving an already-executed action is a
no-op.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runActionsList(cmd, args)
	},
}

var actionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List actions awaiting a decision",
	RunE:  runActionsList,
}

var actionsApproveCmd = &cobra.Command{
	Use:   "approve <action-id>",
	Short: "Approve a pending action",
	Args:  cobra.ExactArgs(1),
	RunE:  runActionsApprove,
}

var actionsRejectCmd = &cobra.Command{
	Use:   "reject <action-id>",
	Short: "Reject a pending action",
	Args:  cobra.ExactArgs(1),
	RunE:  runActionsReject,
}

func init() {
	actionsCmd.AddCommand(actionsListCmd)
	actionsCmd.AddCommand(actionsApproveCmd)
	actionsCmd.AddCommand(actionsRejectCmd)
	actionsListCmd.Flags().BoolVar(&actionsAll, "all", false, "Include decided and executed actions")
}

func openActionStore() (*state.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return openStore(cfg)
}

func runActionsList(cmd *cobra.Command, args []string) error {
	db, err := openActionStore()
	if err != nil {
		return err
	}
	defer db.Close()

	filter := models.ActionPending
	if actionsAll {
		filter = ""
	}
	actions, err := db.ListActions(filter)
	if err != nil {
		return err
	}
	if len(actions) == 0 {
		fmt.Println("No pending actions.")
		return nil
	}

	for _, action := range actions {
		age := formatDuration(time.Since(action.CreatedAt))
		fmt.Printf("  %s  %-9s %-14s job %s  %s ago\n",
			action.ID, colorActionStatus(action.Status), action.Kind, action.JobID, age)
	}
	return nil
}

func runActionsApprove(cmd *cobra.Command, args []string) error {
	db, err := openActionStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.ApproveAction(args[0]); err != nil {
		return err
	}
	fmt.Printf("approved action %s\n", args[0])
	return nil
}

func runActionsReject(cmd *cobra.Command, args []string) error {
	db, err := openActionStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.RejectAction(args[0]); err != nil {
		return err
	}
	fmt.Printf("rejected action %s\n", args[0])
	return nil
}

func colorActionStatus(status models.ActionStatus) string {
	switch status {
	case models.ActionApproved, models.ActionExecuted:
		return color.GreenString(string(status))
	case models.ActionRejected:
		return color.RedString(string(status))
	default:
		return color.YellowString(string(status))
	}
}
