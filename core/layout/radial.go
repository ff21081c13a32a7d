package layout

import (
	"math"

	"github.com/halcyonlabs/repgraph/core/graph"
)

// radialRingSpacing is the distance between consecutive rings.
const radialRingSpacing = 120.0

// radialLayout places the subgraph root at the origin and each BFS
// layer on its own concentric ring, siblings spaced evenly by angle.
// Nodes unreachable from the root through subgraph edges land on an
// outermost ring of their own.
func radialLayout(sub *graph.Subgraph) []Point {
	adj := adjacency(sub)
	root := sub.Nodes[0]

	// BFS in subgraph node order for deterministic layer assignment.
	layer := map[string]int{root.ID: 0}
	queue := []string{root.ID}
	maxLayer := 0
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		// Visit neighbors in subgraph node order, not map order.
		for _, n := range sub.Nodes {
			if _, seen := layer[n.ID]; seen {
				continue
			}
			if _, connected := adj[curr][n.ID]; !connected {
				continue
			}
			layer[n.ID] = layer[curr] + 1
			if layer[n.ID] > maxLayer {
				maxLayer = layer[n.ID]
			}
			queue = append(queue, n.ID)
		}
	}

	orphanLayer := maxLayer + 1
	rings := make(map[int][]string)
	for _, n := range sub.Nodes {
		l, ok := layer[n.ID]
		if !ok {
			l = orphanLayer
		}
		rings[l] = append(rings[l], n.ID)
	}

	positions := make(map[string]vec, len(sub.Nodes))
	for l, ids := range rings {
		radius := float64(l) * radialRingSpacing
		for i, id := range ids {
			angle := 2 * math.Pi * float64(i) / float64(len(ids))
			positions[id] = vec{
				x: radius * math.Cos(angle),
				y: radius * math.Sin(angle),
			}
		}
	}

	return toPoints(sub, positions)
}
