package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/halcyonlabs/repgraph/core/graph"
)

// =============================================================================
// Ingest Command Flags
// =============================================================================

var (
	ingestNodeType        string
	ingestEntityID        string
	ingestEntityType      string
	ingestName            string
	ingestNodeDescription string
	ingestImageURL        string
	ingestWeight          float64
	ingestNodeAttrs       []string

	ingestEdgeType        string
	ingestSourceID        string
	ingestTargetID        string
	ingestStrength        float64
	ingestUndirected      bool
	ingestEdgeDescription string
	ingestActivityID      string
	ingestActivityType    string
	ingestOccurredAt      string
	ingestEdgeAttrs       []string
)

// =============================================================================
// Ingest Commands
// =============================================================================

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Write nodes and edges into the graph",
}

var ingestNodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Create or update a node",
	Long: `Create or update a node. Nodes are keyed by their external entity
reference; ingesting the same entity again merges metadata instead of
creating a duplicate.

Examples:
  repgraph ingest node --type user --entity-id u-1 --entity-type user --name "Ada"
  repgraph ingest node --type mission --entity-id m-9 --entity-type mission \
      --name "Shore cleanup" --weight 0.8 --attr region=coast`,
	RunE: runIngestNode,
}

var ingestEdgeCmd = &cobra.Command{
	Use:   "edge",
	Short: "Create or update an edge",
	Long: `Create or update an edge between two existing nodes. Edges are keyed
by (source, target, type); repeating the triple updates strength and
merges metadata.

Examples:
  repgraph ingest edge --type participation --source <node> --target <node> --strength 0.8
  repgraph ingest edge --type follow --source <node> --target <node> \
      --occurred-at 2026-08-01T12:00:00Z`,
	RunE: runIngestEdge,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.AddCommand(ingestNodeCmd)
	ingestCmd.AddCommand(ingestEdgeCmd)

	ingestNodeCmd.Flags().StringVar(&ingestNodeType, "type", "", "Node type (user, mission, community, tag, activity, extension)")
	ingestNodeCmd.Flags().StringVar(&ingestEntityID, "entity-id", "", "External entity ID")
	ingestNodeCmd.Flags().StringVar(&ingestEntityType, "entity-type", "", "External entity type")
	ingestNodeCmd.Flags().StringVar(&ingestName, "name", "", "Display name")
	ingestNodeCmd.Flags().StringVar(&ingestNodeDescription, "description", "", "Description")
	ingestNodeCmd.Flags().StringVar(&ingestImageURL, "image-url", "", "Image URL")
	ingestNodeCmd.Flags().Float64Var(&ingestWeight, "weight", graph.DefaultNodeWeight, "Node weight in [0, 1]")
	ingestNodeCmd.Flags().StringArrayVar(&ingestNodeAttrs, "attr", nil, "Attribute as key=value (repeatable)")
	ingestNodeCmd.MarkFlagRequired("type")
	ingestNodeCmd.MarkFlagRequired("entity-id")
	ingestNodeCmd.MarkFlagRequired("entity-type")
	ingestNodeCmd.MarkFlagRequired("name")

	ingestEdgeCmd.Flags().StringVar(&ingestEdgeType, "type", "", "Edge type (participation, creation, comment, rating, like, follow, vote, association, extension)")
	ingestEdgeCmd.Flags().StringVar(&ingestSourceID, "source", "", "Source node ID")
	ingestEdgeCmd.Flags().StringVar(&ingestTargetID, "target", "", "Target node ID")
	ingestEdgeCmd.Flags().Float64Var(&ingestStrength, "strength", graph.DefaultEdgeStrength, "Edge strength in [0, 1]")
	ingestEdgeCmd.Flags().BoolVar(&ingestUndirected, "undirected", false, "Treat the edge as undirected")
	ingestEdgeCmd.Flags().StringVar(&ingestEdgeDescription, "description", "", "Description")
	ingestEdgeCmd.Flags().StringVar(&ingestActivityID, "activity-id", "", "Originating activity entity ID")
	ingestEdgeCmd.Flags().StringVar(&ingestActivityType, "activity-type", "", "Originating activity entity type")
	ingestEdgeCmd.Flags().StringVar(&ingestOccurredAt, "occurred-at", "", "When the interaction happened (RFC 3339)")
	ingestEdgeCmd.Flags().StringArrayVar(&ingestEdgeAttrs, "attr", nil, "Attribute as key=value (repeatable)")
	ingestEdgeCmd.MarkFlagRequired("type")
	ingestEdgeCmd.MarkFlagRequired("source")
	ingestEdgeCmd.MarkFlagRequired("target")
}

// =============================================================================
// Execution
// =============================================================================

func runIngestNode(cmd *cobra.Command, args []string) error {
	attrs, err := parseAttrs(ingestNodeAttrs)
	if err != nil {
		return err
	}

	env, err := newEnv(true)
	if err != nil {
		return err
	}
	defer env.close()

	nodes := graph.NewNodeStore(env.db)
	node, err := nodes.UpsertNode(
		graph.NodeType(ingestNodeType),
		graph.EntityRef{ID: ingestEntityID, Type: ingestEntityType},
		graph.NodeMetadata{
			Name:        ingestName,
			Description: ingestNodeDescription,
			ImageURL:    ingestImageURL,
			Attributes:  attrs,
		},
		ingestWeight,
	)
	if err != nil {
		return err
	}

	if env.index != nil {
		if err := env.index.IndexNode(node); err != nil {
			env.logger.Warn("node stored but not indexed", "node_id", node.ID, "error", err)
		}
	}

	return printJSON(cmd.OutOrStdout(), node)
}

func runIngestEdge(cmd *cobra.Command, args []string) error {
	attrs, err := parseAttrs(ingestEdgeAttrs)
	if err != nil {
		return err
	}

	var occurredAt time.Time
	if ingestOccurredAt != "" {
		occurredAt, err = time.Parse(time.RFC3339, ingestOccurredAt)
		if err != nil {
			return fmt.Errorf("parse --occurred-at: %w", err)
		}
	}

	env, err := newEnv(false)
	if err != nil {
		return err
	}
	defer env.close()

	edges := graph.NewEdgeStore(env.db)
	edge, err := edges.UpsertEdge(
		ingestSourceID,
		ingestTargetID,
		graph.EdgeType(ingestEdgeType),
		ingestStrength,
		!ingestUndirected,
		graph.EdgeMetadata{
			Description: ingestEdgeDescription,
			Activity:    graph.EntityRef{ID: ingestActivityID, Type: ingestActivityType},
			OccurredAt:  occurredAt,
			Attributes:  attrs,
		},
	)
	if err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), edge)
}

func parseAttrs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	attrs := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --attr %q, want key=value", pair)
		}
		attrs[key] = value
	}
	return attrs, nil
}
