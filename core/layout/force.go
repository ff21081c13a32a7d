package layout

import (
	"hash/fnv"
	"math"

	"github.com/halcyonlabs/repgraph/core/graph"
)

// Force simulation tuning. The iteration budget is fixed; the step size
// decays so the simulation settles rather than oscillates.
const (
	forceIterations    = 200
	forceArea          = 1000.0
	forceInitialStep   = 30.0
	forceStepDecay     = 0.97
	forceMinDistance   = 0.01
	forceRepulsionGain = 2000.0
)

type vec struct {
	x, y float64
}

// forceLayout runs the iterative simulation. Initial placement is
// seeded by a hash of each node's ID, not by wall-clock randomness, so
// the layout is reproducible for the same subgraph.
func forceLayout(sub *graph.Subgraph) []Point {
	n := len(sub.Nodes)
	pos := make(map[string]vec, n)
	for _, node := range sub.Nodes {
		pos[node.ID] = seededPosition(node.ID)
	}

	if n == 1 {
		return toPoints(sub, pos)
	}

	step := forceInitialStep
	for iter := 0; iter < forceIterations; iter++ {
		disp := make(map[string]vec, n)

		applyRepulsion(sub, pos, disp)
		applyAttraction(sub, pos, disp)

		for _, node := range sub.Nodes {
			d := disp[node.ID]
			length := math.Hypot(d.x, d.y)
			if length < forceMinDistance {
				continue
			}
			// Displacement is capped by the cooling step.
			scale := math.Min(length, step) / length
			p := pos[node.ID]
			pos[node.ID] = vec{x: p.x + d.x*scale, y: p.y + d.y*scale}
		}

		step *= forceStepDecay
	}

	return toPoints(sub, pos)
}

// applyRepulsion pushes every node pair apart with force inversely
// proportional to the squared distance.
func applyRepulsion(sub *graph.Subgraph, pos map[string]vec, disp map[string]vec) {
	for i, a := range sub.Nodes {
		for _, b := range sub.Nodes[i+1:] {
			pa, pb := pos[a.ID], pos[b.ID]
			dx, dy := pa.x-pb.x, pa.y-pb.y
			distSq := dx*dx + dy*dy
			if distSq < forceMinDistance {
				// Coincident seeds; nudge deterministically apart.
				dx, dy = 1, 0
				distSq = 1
			}
			force := forceRepulsionGain / distSq
			dist := math.Sqrt(distSq)
			fx, fy := force*dx/dist, force*dy/dist

			da := disp[a.ID]
			disp[a.ID] = vec{x: da.x + fx, y: da.y + fy}
			db := disp[b.ID]
			disp[b.ID] = vec{x: db.x - fx, y: db.y - fy}
		}
	}
}

// applyAttraction pulls edge endpoints together in proportion to
// distance. Stronger edges pull harder, so they settle at shorter
// equilibrium distances against the pairwise repulsion.
func applyAttraction(sub *graph.Subgraph, pos map[string]vec, disp map[string]vec) {
	for _, e := range sub.Edges {
		if e.SourceID == e.TargetID {
			continue
		}
		ps, ok := pos[e.SourceID]
		if !ok {
			continue
		}
		pt, ok := pos[e.TargetID]
		if !ok {
			continue
		}

		dx, dy := pt.x-ps.x, pt.y-ps.y
		dist := math.Hypot(dx, dy)
		if dist < forceMinDistance {
			continue
		}

		pull := (0.01 + 0.09*e.Strength) * dist
		fx, fy := pull*dx/dist, pull*dy/dist

		ds := disp[e.SourceID]
		disp[e.SourceID] = vec{x: ds.x + fx, y: ds.y + fy}
		dt := disp[e.TargetID]
		disp[e.TargetID] = vec{x: dt.x - fx, y: dt.y - fy}
	}
}

// seededPosition derives a deterministic initial position from the node
// ID hash: an angle and a radius spread over the layout area.
func seededPosition(nodeID string) vec {
	h := fnv.New64a()
	h.Write([]byte(nodeID))
	sum := h.Sum64()

	angle := float64(sum%3600) / 3600.0 * 2 * math.Pi
	radius := forceArea/4 + float64((sum/3600)%1000)/1000.0*forceArea/4
	return vec{
		x: radius * math.Cos(angle),
		y: radius * math.Sin(angle),
	}
}

func toPoints(sub *graph.Subgraph, pos map[string]vec) []Point {
	points := make([]Point, len(sub.Nodes))
	for i, node := range sub.Nodes {
		p := pos[node.ID]
		points[i] = Point{NodeID: node.ID, X: p.x, Y: p.y}
	}
	return points
}
