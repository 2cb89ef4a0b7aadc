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

var statusFilter string

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Show job state",
	Long: `Display the state of jobs in the store.

Without arguments, lists recent jobs. With a job id, shows the full record
including the stage audit trail, spawned sub-jobs, and the quality verdict.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusFilter, "filter", "", "Only list jobs in this status (queued, running, blocked, needs_human_review, done, failed)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if len(args) == 1 {
		return showJob(db, args[0])
	}
	return listJobs(db)
}

func listJobs(db *state.DB) error {
	filter := models.JobStatus(statusFilter)
	if statusFilter != "" && !filter.Valid() {
		return fmt.Errorf("unknown status %q", statusFilter)
	}

	jobs, err := db.ListJobs(filter)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("No jobs. Run 'ldrsagent submit <request>' to enqueue one.")
		return nil
	}

	counts := make(map[models.JobStatus]int)
	for _, job := range jobs {
		counts[job.Status]++
	}
	fmt.Printf("%d jobs:", len(jobs))
	for _, status := range []models.JobStatus{
		models.JobStatusQueued, models.JobStatusRunning, models.JobStatusBlocked,
		models.JobStatusNeedsHumanReview, models.JobStatusDone, models.JobStatusFailed,
	} {
		if counts[status] > 0 {
			fmt.Printf(" %d %s", counts[status], status)
		}
	}
	fmt.Println()
	fmt.Println()

	// Most recent last, like a log.
	for _, job := range jobs {
		age := formatDuration(time.Since(job.CreatedAt))
		fmt.Printf("  %s  %-20s %s ago  %s\n",
			job.ID, colorStatus(job.Status), age, truncateLine(job.RawInput, 60))
	}
	return nil
}

func showJob(db *state.DB, id string) error {
	job, err := db.GetJob(id)
	if err != nil {
		return err
	}

	fmt.Printf("Job %s\n", job.ID)
	fmt.Printf("  Status:  %s\n", colorStatus(job.Status))
	fmt.Printf("  Request: %s\n", job.RawInput)
	if job.ClientID != "" || job.UserID != "" {
		fmt.Printf("  Tenant:  client=%s user=%s\n", job.ClientID, job.UserID)
	}
	if job.Intent != nil {
		fmt.Printf("  Intent:  %s (confidence %.2f)\n", job.Intent.Name, job.Intent.Confidence)
	}
	if job.AssignedCapability != "" {
		fmt.Printf("  Capability: %s\n", job.AssignedCapability)
	}
	if job.ParentJobID != "" {
		fmt.Printf("  Parent:  %s\n", job.ParentJobID)
	}
	if job.RetryCount > 0 {
		fmt.Printf("  Retries: %d\n", job.RetryCount)
	}
	if job.KnowledgePack != nil {
		fmt.Printf("  Knowledge: %d documents, ready=%t\n",
			len(job.KnowledgePack.Documents), job.KnowledgePack.Ready)
	}
	if job.ValidationResult != nil {
		fmt.Printf("  Quality: score %.2f, passed=%t\n",
			job.ValidationResult.Score, job.ValidationResult.Passed)
	}
	if job.Result != nil {
		fmt.Printf("\nResult (success=%t, %d tokens):\n%s\n",
			job.Result.Success, job.Result.TokensUsed, job.Result.Output)
	}

	children, err := db.ChildJobs(job.ID)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		fmt.Println("\nSub-jobs:")
		for _, child := range children {
			fmt.Printf("  %s  %-20s %s\n", child.ID, colorStatus(child.Status), truncateLine(child.RawInput, 50))
		}
	}

	if len(job.Memory) > 0 {
		fmt.Println("\nStages:")
		for _, entry := range job.Memory {
			fmt.Printf("  %s  %-9s %s\n", entry.At.Format("15:04:05"), entry.Stage, truncateLine(entry.Message, 90))
		}
	}
	return nil
}

func colorStatus(status models.JobStatus) string {
	switch status {
	case models.JobStatusDone:
		return color.GreenString(string(status))
	case models.JobStatusFailed:
		return color.RedString(string(status))
	case models.JobStatusNeedsHumanReview, models.JobStatusBlocked:
		return color.YellowString(string(status))
	case models.JobStatusRunning:
		return color.CyanString(string(status))
	default:
		return string(status)
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}

func truncateLine(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
