package cmd

import (
	"github.com/spf13/cobra"

	"github.com/halcyonlabs/repgraph/core/graph"
	"github.com/halcyonlabs/repgraph/core/layout"
	"github.com/halcyonlabs/repgraph/core/query"
)

// =============================================================================
// Graph Command Flags
// =============================================================================

var (
	graphDepth       int
	graphMaxNodes    int
	graphMinStrength float64
	graphNodeTypes   []string
	graphEdgeTypes   []string
	graphAlgorithm   string
)

// =============================================================================
// Graph Commands
// =============================================================================

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Read graph neighborhoods and layouts",
}

var graphExpandCmd = &cobra.Command{
	Use:   "expand <node-id>",
	Short: "Expand the neighborhood around a node",
	Long: `Expand the neighborhood around a node with bounded breadth-first
traversal. When the node cap truncates a hop, the strongest
connections win.

Examples:
  repgraph graph expand 7c2e... --depth 2 --max-nodes 100
  repgraph graph expand 7c2e... --edge-type follow --edge-type vote`,
	Args: cobra.ExactArgs(1),
	RunE: runGraphExpand,
}

var graphLayoutCmd = &cobra.Command{
	Use:   "layout <node-id>",
	Short: "Compute 2D positions for a node's neighborhood",
	Long: `Expand a node's neighborhood and position it with a deterministic
layout algorithm: force, radial, or circular.

Examples:
  repgraph graph layout 7c2e... --algorithm radial
  repgraph graph layout 7c2e... --algorithm force --depth 1`,
	Args: cobra.ExactArgs(1),
	RunE: runGraphLayout,
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.AddCommand(graphExpandCmd)
	graphCmd.AddCommand(graphLayoutCmd)

	for _, cmd := range []*cobra.Command{graphExpandCmd, graphLayoutCmd} {
		cmd.Flags().IntVar(&graphDepth, "depth", 0, "Traversal depth (1-3, 0 uses the default)")
		cmd.Flags().IntVar(&graphMaxNodes, "max-nodes", 0, "Node cap (10-500, 0 uses the default)")
		cmd.Flags().Float64Var(&graphMinStrength, "min-strength", -1, "Minimum edge strength (negative uses the default)")
		cmd.Flags().StringArrayVar(&graphNodeTypes, "node-type", nil, "Restrict to node type (repeatable)")
		cmd.Flags().StringArrayVar(&graphEdgeTypes, "edge-type", nil, "Restrict to edge type (repeatable)")
	}
	graphLayoutCmd.Flags().StringVar(&graphAlgorithm, "algorithm", string(layout.AlgorithmForce), "Layout algorithm (force, radial, circular)")
}

// =============================================================================
// Execution
// =============================================================================

func graphOptions() query.GraphOptions {
	opts := query.GraphOptions{
		Depth:       graphDepth,
		MaxNodes:    graphMaxNodes,
		MinStrength: graphMinStrength,
	}
	for _, nt := range graphNodeTypes {
		opts.NodeTypes = append(opts.NodeTypes, graph.NodeType(nt))
	}
	for _, et := range graphEdgeTypes {
		opts.EdgeTypes = append(opts.EdgeTypes, graph.EdgeType(et))
	}
	return opts
}

func runGraphExpand(cmd *cobra.Command, args []string) error {
	env, err := newEnv(false)
	if err != nil {
		return err
	}
	defer env.close()

	sub, err := env.service.GetUserGraph(args[0], graphOptions())
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), sub)
}

func runGraphLayout(cmd *cobra.Command, args []string) error {
	env, err := newEnv(false)
	if err != nil {
		return err
	}
	defer env.close()

	viz, err := env.service.GetVisualization(args[0], layout.Algorithm(graphAlgorithm), graphOptions())
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), viz)
}
