// Package layout positions subgraphs for rendering. Every algorithm is
// a pure function of (subgraph, algorithm): no stored state, no
// wall-clock randomness, so the same subgraph always lays out the same
// way.
package layout

import (
	"errors"
	"fmt"

	"github.com/halcyonlabs/repgraph/core/graph"
)

var (
	ErrInvalidAlgorithm = errors.New("invalid layout algorithm")
)

// Algorithm selects the placement strategy.
type Algorithm string

const (
	// AlgorithmForce runs an iterative force simulation: nodes repel
	// each other, edges pull their endpoints together in proportion to
	// strength.
	AlgorithmForce Algorithm = "force"

	// AlgorithmRadial places the root at the center and BFS layers on
	// concentric rings.
	AlgorithmRadial Algorithm = "radial"

	// AlgorithmCircular places all nodes on a single ring, ordered to
	// keep strongly connected nodes adjacent.
	AlgorithmCircular Algorithm = "circular"
)

// ValidAlgorithms returns all valid Algorithm values.
func ValidAlgorithms() []Algorithm {
	return []Algorithm{AlgorithmForce, AlgorithmRadial, AlgorithmCircular}
}

// IsValid returns true if the algorithm is a recognized value.
func (a Algorithm) IsValid() bool {
	for _, valid := range ValidAlgorithms() {
		if a == valid {
			return true
		}
	}
	return false
}

// String returns the string representation of the algorithm.
func (a Algorithm) String() string {
	return string(a)
}

// Point is one positioned node.
type Point struct {
	NodeID string  `json:"node_id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// Compute positions every node of the subgraph with the chosen
// algorithm. Point order follows subgraph node order.
func Compute(sub *graph.Subgraph, algorithm Algorithm) ([]Point, error) {
	if !algorithm.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAlgorithm, algorithm)
	}
	if len(sub.Nodes) == 0 {
		return []Point{}, nil
	}

	switch algorithm {
	case AlgorithmRadial:
		return radialLayout(sub), nil
	case AlgorithmCircular:
		return circularLayout(sub), nil
	default:
		return forceLayout(sub), nil
	}
}

// adjacency builds an undirected neighbor map with the strongest edge
// strength per pair. Direction is irrelevant for placement.
func adjacency(sub *graph.Subgraph) map[string]map[string]float64 {
	adj := make(map[string]map[string]float64, len(sub.Nodes))
	for _, n := range sub.Nodes {
		adj[n.ID] = make(map[string]float64)
	}
	for _, e := range sub.Edges {
		if e.SourceID == e.TargetID {
			continue
		}
		if _, ok := adj[e.SourceID]; !ok {
			continue
		}
		if _, ok := adj[e.TargetID]; !ok {
			continue
		}
		if e.Strength > adj[e.SourceID][e.TargetID] {
			adj[e.SourceID][e.TargetID] = e.Strength
			adj[e.TargetID][e.SourceID] = e.Strength
		}
	}
	return adj
}
