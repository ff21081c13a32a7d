package cmd

import (
	"github.com/spf13/cobra"

	"github.com/halcyonlabs/repgraph/core/scoring"
)

// =============================================================================
// Score Command Flags
// =============================================================================

var (
	scoreHistoryDomain string
	scoreHistoryLimit  int
	scoreCompareDomain string
)

// =============================================================================
// Score Commands
// =============================================================================

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Read reputation scores",
}

var scoreGetCmd = &cobra.Command{
	Use:   "get <user-node-id>",
	Short: "Show a user's scores across all domains",
	Long: `Show a user's stored scores. The factor breakdown is included only
when acting as the user themselves (--as-user) or as an operator
(--operator).

Examples:
  repgraph score get 7c2e...
  repgraph score get 7c2e... --operator`,
	Args: cobra.ExactArgs(1),
	RunE: runScoreGet,
}

var scoreHistoryCmd = &cobra.Command{
	Use:   "history <user-node-id>",
	Short: "Show a user's score history for one domain",
	Args:  cobra.ExactArgs(1),
	RunE:  runScoreHistory,
}

var scoreCompareCmd = &cobra.Command{
	Use:   "compare <user-node-id>",
	Short: "Compare a user's score to the population",
	Args:  cobra.ExactArgs(1),
	RunE:  runScoreCompare,
}

var scoreBaselineCmd = &cobra.Command{
	Use:   "baseline <domain>",
	Short: "Recompute the population baseline for a domain",
	Args:  cobra.ExactArgs(1),
	RunE:  runScoreBaseline,
}

func init() {
	rootCmd.AddCommand(scoreCmd)
	scoreCmd.AddCommand(scoreGetCmd)
	scoreCmd.AddCommand(scoreHistoryCmd)
	scoreCmd.AddCommand(scoreCompareCmd)
	scoreCmd.AddCommand(scoreBaselineCmd)

	scoreHistoryCmd.Flags().StringVar(&scoreHistoryDomain, "domain", string(scoring.DomainOverall), "Reputation domain")
	scoreHistoryCmd.Flags().IntVar(&scoreHistoryLimit, "limit", 50, "Maximum entries")
	scoreCompareCmd.Flags().StringVar(&scoreCompareDomain, "domain", string(scoring.DomainOverall), "Reputation domain")
}

// =============================================================================
// Execution
// =============================================================================

func runScoreGet(cmd *cobra.Command, args []string) error {
	env, err := newEnv(false)
	if err != nil {
		return err
	}
	defer env.close()

	scores, err := env.service.GetUserScores(env.principal(), args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), scores)
}

func runScoreHistory(cmd *cobra.Command, args []string) error {
	env, err := newEnv(false)
	if err != nil {
		return err
	}
	defer env.close()

	history, err := env.service.GetScoreHistory(args[0], scoring.Domain(scoreHistoryDomain), scoreHistoryLimit)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), history)
}

func runScoreCompare(cmd *cobra.Command, args []string) error {
	env, err := newEnv(false)
	if err != nil {
		return err
	}
	defer env.close()

	comparison, err := env.service.CompareToAverage(args[0], scoring.Domain(scoreCompareDomain))
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), comparison)
}

func runScoreBaseline(cmd *cobra.Command, args []string) error {
	env, err := newEnv(false)
	if err != nil {
		return err
	}
	defer env.close()

	baseline, err := env.service.RecomputeBaseline(env.principal(), scoring.Domain(args[0]))
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), baseline)
}
