package cmd

import (
	"github.com/spf13/cobra"

	"github.com/halcyonlabs/repgraph/core/jobs"
)

// =============================================================================
// Jobs Command Flags
// =============================================================================

var (
	jobsListStatus string
	jobsListLimit  int
)

// =============================================================================
// Jobs Commands
// =============================================================================

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and control computation jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent jobs",
	RunE:  runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show one job's record",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a running job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsCancel,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsCancelCmd)

	jobsListCmd.Flags().StringVar(&jobsListStatus, "status", "", "Filter by status (queued, running, completed, failed)")
	jobsListCmd.Flags().IntVar(&jobsListLimit, "limit", 20, "Maximum jobs to return")
}

// =============================================================================
// Execution
// =============================================================================

func runJobsList(cmd *cobra.Command, args []string) error {
	env, err := newEnv(false)
	if err != nil {
		return err
	}
	defer env.close()

	list, err := env.service.ListJobs(env.principal(), jobs.JobStatus(jobsListStatus), jobsListLimit)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), list)
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	env, err := newEnv(false)
	if err != nil {
		return err
	}
	defer env.close()

	job, err := env.service.GetComputationStatus(args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), job)
}

func runJobsCancel(cmd *cobra.Command, args []string) error {
	env, err := newEnv(false)
	if err != nil {
		return err
	}
	defer env.close()

	if err := env.service.CancelComputation(env.principal(), args[0]); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]string{"canceled": args[0]})
}
