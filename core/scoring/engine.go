package scoring

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/halcyonlabs/repgraph/core/graph"
)

var (
	ErrInvalidDomain     = errors.New("invalid reputation domain")
	ErrUserNotInSubgraph = errors.New("user node not present in subgraph")
	ErrInvalidGraphState = errors.New("corrupt graph state")
)

// Engine turns a bounded subgraph into an explainable, bounded score.
// It is a pure computation: the same subgraph and configuration always
// produce the same score, which keeps recomputation idempotent.
type Engine struct {
	cfg Config
	now func() time.Time
}

// NewEngine creates an Engine with the given configuration.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg.normalized(), now: time.Now}
}

// ComputeScore scores one user on one domain axis from the evidence in
// the subgraph. The subgraph is expected to be centered on the user
// (the user must appear in it).
//
// Users with no incoming evidence get the neutral prior: score 50,
// confidence 0.5. Unknown is not bad.
func (e *Engine) ComputeScore(userNodeID string, domain Domain, subDomain string, sub *graph.Subgraph) (*Score, error) {
	if !domain.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}
	user := sub.Node(userNodeID)
	if user == nil {
		return nil, fmt.Errorf("%w: %s", ErrUserNotInSubgraph, userNodeID)
	}

	incoming := incomingEdges(userNodeID, sub)
	if len(incoming) == 0 {
		return e.neutralScore(userNodeID, domain, subDomain), nil
	}

	factors, neighborCount, err := e.buildFactors(userNodeID, domain, incoming, sub)
	if err != nil {
		return nil, err
	}

	raw := 0.0
	for _, f := range factors {
		raw += f.Contribution * f.Weight
	}
	if raw < 0 {
		raw = 0
	}

	value := 100 * raw / (raw + e.cfg.SquashK)
	confidence := e.confidence(len(incoming), neighborCount)

	return &Score{
		UserNodeID:   userNodeID,
		Domain:       domain,
		SubDomain:    subDomain,
		Value:        value,
		Confidence:   confidence,
		Factors:      factors,
		CalculatedAt: e.now().UTC(),
	}, nil
}

func (e *Engine) neutralScore(userNodeID string, domain Domain, subDomain string) *Score {
	return &Score{
		UserNodeID:   userNodeID,
		Domain:       domain,
		SubDomain:    subDomain,
		Value:        NeutralScore,
		Confidence:   NeutralConfidence,
		Factors:      []Factor{},
		CalculatedAt: e.now().UTC(),
	}
}

// incomingEdges returns the user's evidence: directed edges arriving at
// the user plus undirected edges touching them. Multiple edges of the
// same type between the same pair all count; repeated interactions
// compound rather than deduplicate.
func incomingEdges(userNodeID string, sub *graph.Subgraph) []*graph.Edge {
	var incoming []*graph.Edge
	for _, edge := range sub.Edges {
		if edge.TargetID == userNodeID || (!edge.Directed && edge.SourceID == userNodeID) {
			incoming = append(incoming, edge)
		}
	}
	return incoming
}

type factorAccum struct {
	contribution float64
	edgeCount    int
	order        int
}

func (e *Engine) buildFactors(userNodeID string, domain Domain, incoming []*graph.Edge, sub *graph.Subgraph) ([]Factor, int, error) {
	domainCfg := e.cfg.Domains[domain]
	accum := make(map[string]*factorAccum)
	neighbors := make(map[string]bool)
	now := e.now()

	for _, edge := range incoming {
		other := sub.Node(edge.OtherEnd(userNodeID))
		if other == nil {
			// Edge to a truncated node; no endpoint weight available.
			continue
		}

		if badFloat(edge.Strength) {
			return nil, 0, fmt.Errorf("%w: edge %s has strength %v", ErrInvalidGraphState, edge.ID, edge.Strength)
		}
		if badFloat(other.Weight) {
			return nil, 0, fmt.Errorf("%w: node %s has weight %v", ErrInvalidGraphState, other.ID, other.Weight)
		}

		key := edge.EdgeType.String()
		if domainCfg.SplitByNodeType {
			key = key + ":" + other.NodeType.String()
		}

		a, ok := accum[key]
		if !ok {
			a = &factorAccum{order: len(accum)}
			accum[key] = a
		}
		a.contribution += edge.Strength * other.Weight * e.decay(edge, now)
		a.edgeCount++
		neighbors[other.ID] = true
	}

	factors := make([]Factor, 0, len(accum))
	for key, a := range accum {
		weight := factorWeight(domainCfg, key)
		factors = append(factors, Factor{
			Name:         key,
			Description:  describeFactor(key, a.edgeCount),
			Contribution: a.contribution,
			Weight:       weight,
		})
	}

	// Strongest weighted contribution first; name breaks ties so the
	// ordering is stable across runs.
	sort.SliceStable(factors, func(i, j int) bool {
		wi := factors[i].Contribution * factors[i].Weight
		wj := factors[j].Contribution * factors[j].Weight
		if wi != wj {
			return wi > wj
		}
		return factors[i].Name < factors[j].Name
	})

	return factors, len(neighbors), nil
}

// decay returns the recency multiplier for an edge. Evidence is halved
// at the configured half-life and fades linearly to zero at twice that
// age. Edges without a timestamp do not decay.
func (e *Engine) decay(edge *graph.Edge, now time.Time) float64 {
	if e.cfg.DecayHalfLifeDays <= 0 || edge.Metadata.OccurredAt.IsZero() {
		return 1.0
	}

	ageDays := now.Sub(edge.Metadata.OccurredAt).Hours() / 24.0
	if ageDays <= 0 {
		return 1.0
	}

	factor := 1.0 - ageDays/(2.0*e.cfg.DecayHalfLifeDays)
	return math.Max(0, factor)
}

// confidence grows monotonically with evidence volume and is bounded to
// [0.5, 1): half a point of confidence comes from existing at all, the
// rest from corroborating edges and distinct neighbors.
func (e *Engine) confidence(edgeCount, neighborCount int) float64 {
	evidence := float64(edgeCount) + 0.5*float64(neighborCount)
	c := 0.5 + 0.5*evidence/(evidence+e.cfg.EvidenceScale)
	return math.Min(1, c)
}

func factorWeight(cfg DomainConfig, key string) float64 {
	// Split factor keys look like "participation:mission"; the domain
	// weight is configured per edge type.
	edgeType := key
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			edgeType = key[:i]
			break
		}
	}

	if w, ok := cfg.FactorWeights[graph.EdgeType(edgeType)]; ok {
		if w < 0 {
			return 0
		}
		return w
	}
	return DefaultFactorWeight
}

func describeFactor(key string, edges int) string {
	if edges == 1 {
		return fmt.Sprintf("1 %s interaction", key)
	}
	return fmt.Sprintf("%d %s interactions", edges, key)
}

func badFloat(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
