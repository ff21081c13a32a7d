package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/halcyonlabs/repgraph/core/graph"
)

// =============================================================================
// Search Command Flags
// =============================================================================

const (
	// SearchDefaultLimit is the default number of results.
	SearchDefaultLimit = 20
)

var (
	searchNodeType string
	searchLimit    int
)

// =============================================================================
// Search Command
// =============================================================================

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search nodes by name and description",
	Long: `Search nodes with full-text matching over names and descriptions.
Name matches rank above description matches.

Examples:
  repgraph search "shore cleanup"
  repgraph search --type mission cleanup`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringVarP(&searchNodeType, "type", "t", "", "Filter by node type")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", SearchDefaultLimit, "Maximum number of results")
}

// =============================================================================
// Execution
// =============================================================================

func runSearch(cmd *cobra.Command, args []string) error {
	env, err := newEnv(true)
	if err != nil {
		return err
	}
	defer env.close()

	matches, err := env.service.SearchNodes(strings.Join(args, " "), graph.NodeType(searchNodeType), searchLimit)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), matches)
}
