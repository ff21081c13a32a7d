package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/halcyonlabs/repgraph/core/jobs"
)

// =============================================================================
// Compute Command Flags
// =============================================================================

var (
	computeType        string
	computeTarget      string
	computeDepth       int
	computeMaxNodes    int
	computeMinStrength float64
	computeWait        bool
)

// =============================================================================
// Compute Command
// =============================================================================

var computeCmd = &cobra.Command{
	Use:   "compute",
	Short: "Submit a score computation job",
	Long: `Submit a score computation job. Full runs recompute every user in
every domain; per-user and per-domain runs narrow the coverage. Only
one job per (type, target) may be queued or running at a time.

Examples:
  repgraph compute --operator --type full --wait
  repgraph compute --operator --type per_domain --target community
  repgraph compute --as-user 7c2e... --type per_user --target 7c2e...`,
	RunE: runCompute,
}

func init() {
	rootCmd.AddCommand(computeCmd)

	computeCmd.Flags().StringVar(&computeType, "type", string(jobs.JobTypeFull), "Job type (full, per_user, per_domain)")
	computeCmd.Flags().StringVar(&computeTarget, "target", "", "User node ID (per_user) or domain (per_domain)")
	computeCmd.Flags().IntVar(&computeDepth, "depth", 0, "Traversal depth override for this run")
	computeCmd.Flags().IntVar(&computeMaxNodes, "max-nodes", 0, "Node cap override for this run")
	computeCmd.Flags().Float64Var(&computeMinStrength, "min-strength", -1, "Minimum edge strength override for this run")
	computeCmd.Flags().BoolVar(&computeWait, "wait", false, "Block until the job finishes and print the final record")
}

// =============================================================================
// Execution
// =============================================================================

func runCompute(cmd *cobra.Command, args []string) error {
	env, err := newEnv(false)
	if err != nil {
		return err
	}
	defer env.close()

	parameters := map[string]any{}
	if computeDepth > 0 {
		parameters["depth"] = computeDepth
	}
	if computeMaxNodes > 0 {
		parameters["max_nodes"] = computeMaxNodes
	}
	if computeMinStrength >= 0 {
		parameters["min_strength"] = computeMinStrength
	}

	job, err := env.service.SubmitComputation(env.principal(), jobs.JobType(computeType), computeTarget, parameters)
	if err != nil {
		return err
	}

	if !computeWait {
		return printJSON(cmd.OutOrStdout(), job)
	}

	env.manager.Wait()
	job, err = env.service.GetComputationStatus(job.ID)
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), job); err != nil {
		return err
	}
	if job.Status == jobs.StatusFailed {
		return fmt.Errorf("job %s failed", job.ID)
	}
	return nil
}
