package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ldrsagent",
	Short: "Job orchestration engine for natural-language work requests",
	Long: `ldrsagent turns natural-language work requests into completed work.

A request is classified into an intent, routed to a capability, grounded on
retrieved knowledge, executed (sequentially or as a dependency-ordered plan),
and quality-gated before it completes. Side-effecting operations are held as
pending actions until a human approves them.

Typical flow:
  ldrsagent submit "summarize the quarterly review"   # enqueue a request
  ldrsagent worker                                    # run the claim loop
  ldrsagent status                                    # inspect jobs
  ldrsagent actions list                              # review pending actions`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(actionsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
