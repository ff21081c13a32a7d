package layout

import (
	"math"

	"github.com/halcyonlabs/repgraph/core/graph"
)

// circularRadiusPerNode scales the ring with the node count so labels
// stay readable on dense subgraphs.
const circularRadiusPerNode = 24.0

// circularLayout places all nodes on one ring. Ring order is a greedy
// adjacency grouping: each placed node is followed by its strongest
// unplaced neighbor, which keeps heavy edges short and reduces
// crossings without solving the full ordering problem.
func circularLayout(sub *graph.Subgraph) []Point {
	adj := adjacency(sub)
	order := greedyOrder(sub, adj)

	n := len(order)
	radius := math.Max(100, circularRadiusPerNode*float64(n))

	positions := make(map[string]vec, n)
	for i, id := range order {
		angle := 2 * math.Pi * float64(i) / float64(n)
		positions[id] = vec{
			x: radius * math.Cos(angle),
			y: radius * math.Sin(angle),
		}
	}

	return toPoints(sub, positions)
}

func greedyOrder(sub *graph.Subgraph, adj map[string]map[string]float64) []string {
	placed := make(map[string]bool, len(sub.Nodes))
	order := make([]string, 0, len(sub.Nodes))

	current := sub.Nodes[0].ID
	placed[current] = true
	order = append(order, current)

	for len(order) < len(sub.Nodes) {
		next := strongestUnplaced(sub, adj, current, placed)
		if next == "" {
			// No connected candidate; continue with the next node in
			// subgraph order to keep the result deterministic.
			for _, n := range sub.Nodes {
				if !placed[n.ID] {
					next = n.ID
					break
				}
			}
		}
		placed[next] = true
		order = append(order, next)
		current = next
	}

	return order
}

func strongestUnplaced(sub *graph.Subgraph, adj map[string]map[string]float64, current string, placed map[string]bool) string {
	best := ""
	bestStrength := 0.0
	// Scan in subgraph node order so strength ties resolve the same
	// way every run.
	for _, n := range sub.Nodes {
		if placed[n.ID] {
			continue
		}
		s, ok := adj[current][n.ID]
		if !ok {
			continue
		}
		if s > bestStrength {
			best = n.ID
			bestStrength = s
		}
	}
	return best
}
