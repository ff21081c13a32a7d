package scoring

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/halcyonlabs/repgraph/core/graph"
)

// buildSubgraph wires n neighbor nodes into a user node with the given
// directed incoming edges. Neighbor i has weight weights[i] and the
// edge from it has strength strengths[i].
func buildSubgraph(userID string, strengths, weights []float64, edgeType graph.EdgeType) *graph.Subgraph {
	sub := &graph.Subgraph{
		Nodes: []*graph.Node{{
			ID:       userID,
			NodeType: graph.NodeTypeUser,
			Weight:   0.5,
		}},
	}
	for i := range strengths {
		neighborID := fmt.Sprintf("n-%d", i)
		sub.Nodes = append(sub.Nodes, &graph.Node{
			ID:       neighborID,
			NodeType: graph.NodeTypeUser,
			Weight:   weights[i],
		})
		sub.Edges = append(sub.Edges, &graph.Edge{
			ID:       fmt.Sprintf("e-%d", i),
			SourceID: neighborID,
			TargetID: userID,
			EdgeType: edgeType,
			Strength: strengths[i],
			Directed: true,
		})
	}
	return sub
}

func newTestEngine() *Engine {
	// Decay off so expectations are exact.
	return NewEngine(Config{DecayHalfLifeDays: 0, Domains: DefaultConfig().Domains})
}

func TestEngine_ComputeScore_NeutralPrior(t *testing.T) {
	engine := newTestEngine()
	sub := &graph.Subgraph{Nodes: []*graph.Node{{ID: "u-1", NodeType: graph.NodeTypeUser, Weight: 0.5}}}

	score, err := engine.ComputeScore("u-1", DomainOverall, "", sub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score.Value != NeutralScore {
		t.Errorf("expected neutral score %v, got %v", NeutralScore, score.Value)
	}
	if score.Confidence != NeutralConfidence {
		t.Errorf("expected neutral confidence %v, got %v", NeutralConfidence, score.Confidence)
	}
	if len(score.Factors) != 0 {
		t.Errorf("expected no factors, got %d", len(score.Factors))
	}
}

func TestEngine_ComputeScore_KnownValue(t *testing.T) {
	engine := newTestEngine()
	sub := buildSubgraph("u-1",
		[]float64{0.8, 0.6, 0.4},
		[]float64{0.5, 0.5, 0.5},
		graph.EdgeTypeParticipation)

	score, err := engine.ComputeScore("u-1", DomainOverall, "", sub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// raw = (0.8+0.6+0.4)*0.5 = 0.9; value = 100*0.9/(0.9+3).
	want := 100 * 0.9 / 3.9
	if math.Abs(score.Value-want) > 1e-9 {
		t.Errorf("expected score %v, got %v", want, score.Value)
	}

	// evidence = 3 edges + 0.5*3 neighbors = 4.5.
	wantConfidence := 0.5 + 0.5*4.5/(4.5+DefaultEvidenceScale)
	if math.Abs(score.Confidence-wantConfidence) > 1e-9 {
		t.Errorf("expected confidence %v, got %v", wantConfidence, score.Confidence)
	}

	if len(score.Factors) != 1 {
		t.Fatalf("expected 1 factor, got %d", len(score.Factors))
	}
	if score.Factors[0].Name != "participation" {
		t.Errorf("expected participation factor, got %s", score.Factors[0].Name)
	}
	if score.Factors[0].Description != "3 participation interactions" {
		t.Errorf("unexpected description %q", score.Factors[0].Description)
	}
}

func TestEngine_ComputeScore_Bounds(t *testing.T) {
	engine := newTestEngine()

	strengths := make([]float64, 200)
	weights := make([]float64, 200)
	for i := range strengths {
		strengths[i] = 1.0
		weights[i] = 1.0
	}
	sub := buildSubgraph("u-1", strengths, weights, graph.EdgeTypeVote)

	score, err := engine.ComputeScore("u-1", DomainOverall, "", sub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score.Value >= 100 || score.Value < 0 {
		t.Errorf("score out of bounds: %v", score.Value)
	}
	if score.Confidence >= 1 || score.Confidence < 0.5 {
		t.Errorf("confidence out of bounds: %v", score.Confidence)
	}
}

func TestEngine_ComputeScore_Monotonic(t *testing.T) {
	engine := newTestEngine()

	small := buildSubgraph("u-1", []float64{0.5}, []float64{0.5}, graph.EdgeTypeLike)
	large := buildSubgraph("u-1", []float64{0.5, 0.5}, []float64{0.5, 0.5}, graph.EdgeTypeLike)

	a, err := engine.ComputeScore("u-1", DomainOverall, "", small)
	if err != nil {
		t.Fatalf("small: %v", err)
	}
	b, err := engine.ComputeScore("u-1", DomainOverall, "", large)
	if err != nil {
		t.Fatalf("large: %v", err)
	}

	if b.Value <= a.Value {
		t.Errorf("expected more evidence to raise the score: %v then %v", a.Value, b.Value)
	}
	if b.Confidence <= a.Confidence {
		t.Errorf("expected more evidence to raise confidence: %v then %v", a.Confidence, b.Confidence)
	}
}

func TestEngine_ComputeScore_Deterministic(t *testing.T) {
	engine := newTestEngine()
	sub := buildSubgraph("u-1", []float64{0.8, 0.3}, []float64{0.9, 0.2}, graph.EdgeTypeRating)

	a, err := engine.ComputeScore("u-1", DomainTrust, "", sub)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	b, err := engine.ComputeScore("u-1", DomainTrust, "", sub)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if a.Value != b.Value || a.Confidence != b.Confidence {
		t.Errorf("expected identical results, got %v/%v and %v/%v",
			a.Value, a.Confidence, b.Value, b.Confidence)
	}
}

func TestEngine_ComputeScore_FactorOrdering(t *testing.T) {
	engine := newTestEngine()

	user := &graph.Node{ID: "u-1", NodeType: graph.NodeTypeUser, Weight: 0.5}
	strong := &graph.Node{ID: "n-strong", NodeType: graph.NodeTypeUser, Weight: 1.0}
	weak := &graph.Node{ID: "n-weak", NodeType: graph.NodeTypeUser, Weight: 0.2}
	sub := &graph.Subgraph{
		Nodes: []*graph.Node{user, strong, weak},
		Edges: []*graph.Edge{
			{ID: "e-1", SourceID: "n-weak", TargetID: "u-1", EdgeType: graph.EdgeTypeLike, Strength: 0.2, Directed: true},
			{ID: "e-2", SourceID: "n-strong", TargetID: "u-1", EdgeType: graph.EdgeTypeRating, Strength: 0.9, Directed: true},
		},
	}

	score, err := engine.ComputeScore("u-1", DomainOverall, "", sub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(score.Factors) != 2 {
		t.Fatalf("expected 2 factors, got %d", len(score.Factors))
	}
	if score.Factors[0].Name != "rating" {
		t.Errorf("expected strongest factor first, got %s", score.Factors[0].Name)
	}
}

func TestEngine_ComputeScore_SplitByNodeType(t *testing.T) {
	engine := newTestEngine()

	user := &graph.Node{ID: "u-1", NodeType: graph.NodeTypeUser, Weight: 0.5}
	mission := &graph.Node{ID: "m-1", NodeType: graph.NodeTypeMission, Weight: 0.5}
	community := &graph.Node{ID: "c-1", NodeType: graph.NodeTypeCommunity, Weight: 0.5}
	sub := &graph.Subgraph{
		Nodes: []*graph.Node{user, mission, community},
		Edges: []*graph.Edge{
			{ID: "e-1", SourceID: "m-1", TargetID: "u-1", EdgeType: graph.EdgeTypeParticipation, Strength: 0.8, Directed: true},
			{ID: "e-2", SourceID: "c-1", TargetID: "u-1", EdgeType: graph.EdgeTypeParticipation, Strength: 0.8, Directed: true},
		},
	}

	score, err := engine.ComputeScore("u-1", DomainMission, "", sub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(score.Factors) != 2 {
		t.Fatalf("expected factors split by node type, got %d", len(score.Factors))
	}
	names := map[string]bool{}
	for _, f := range score.Factors {
		names[f.Name] = true
	}
	if !names["participation:mission"] || !names["participation:community"] {
		t.Errorf("unexpected factor names: %v", names)
	}
}

func TestEngine_ComputeScore_UndirectedCounts(t *testing.T) {
	engine := newTestEngine()

	user := &graph.Node{ID: "u-1", NodeType: graph.NodeTypeUser, Weight: 0.5}
	other := &graph.Node{ID: "n-1", NodeType: graph.NodeTypeUser, Weight: 0.5}
	sub := &graph.Subgraph{
		Nodes: []*graph.Node{user, other},
		Edges: []*graph.Edge{
			// Undirected, with the user as source: still evidence.
			{ID: "e-1", SourceID: "u-1", TargetID: "n-1", EdgeType: graph.EdgeTypeAssociation, Strength: 0.6, Directed: false},
		},
	}

	score, err := engine.ComputeScore("u-1", DomainOverall, "", sub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score.Value <= 0 || len(score.Factors) != 1 {
		t.Errorf("expected undirected edge to count, got %v with %d factors", score.Value, len(score.Factors))
	}
}

func TestEngine_Decay(t *testing.T) {
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	engine := NewEngine(Config{DecayHalfLifeDays: 30, Domains: DefaultConfig().Domains})
	engine.now = func() time.Time { return now }

	scoreAt := func(occurred time.Time) float64 {
		sub := buildSubgraph("u-1", []float64{0.8}, []float64{0.5}, graph.EdgeTypeVote)
		sub.Edges[0].Metadata.OccurredAt = occurred
		score, err := engine.ComputeScore("u-1", DomainOverall, "", sub)
		if err != nil {
			t.Fatalf("compute: %v", err)
		}
		return score.Value
	}

	fresh := scoreAt(now)
	halfLife := scoreAt(now.AddDate(0, 0, -30))
	ancient := scoreAt(now.AddDate(0, 0, -90))

	if halfLife >= fresh {
		t.Errorf("expected decay at half-life: fresh %v, old %v", fresh, halfLife)
	}
	// Past twice the half-life the contribution is gone entirely.
	if ancient != 0 {
		t.Errorf("expected fully decayed edge to contribute nothing, got %v", ancient)
	}

	t.Run("no timestamp means no decay", func(t *testing.T) {
		if got := scoreAt(time.Time{}); got != fresh {
			t.Errorf("expected undated edge to score as fresh, got %v want %v", got, fresh)
		}
	})
}

func TestEngine_ComputeScore_Errors(t *testing.T) {
	engine := newTestEngine()
	sub := buildSubgraph("u-1", []float64{0.5}, []float64{0.5}, graph.EdgeTypeLike)

	t.Run("invalid domain", func(t *testing.T) {
		_, err := engine.ComputeScore("u-1", Domain("karma"), "", sub)
		if !errors.Is(err, ErrInvalidDomain) {
			t.Errorf("expected ErrInvalidDomain, got %v", err)
		}
	})

	t.Run("user not in subgraph", func(t *testing.T) {
		_, err := engine.ComputeScore("u-other", DomainOverall, "", sub)
		if !errors.Is(err, ErrUserNotInSubgraph) {
			t.Errorf("expected ErrUserNotInSubgraph, got %v", err)
		}
	})

	t.Run("corrupt strength", func(t *testing.T) {
		bad := buildSubgraph("u-1", []float64{0.5}, []float64{0.5}, graph.EdgeTypeLike)
		bad.Edges[0].Strength = math.NaN()
		_, err := engine.ComputeScore("u-1", DomainOverall, "", bad)
		if !errors.Is(err, ErrInvalidGraphState) {
			t.Errorf("expected ErrInvalidGraphState, got %v", err)
		}
	})

	t.Run("corrupt weight", func(t *testing.T) {
		bad := buildSubgraph("u-1", []float64{0.5}, []float64{0.5}, graph.EdgeTypeLike)
		bad.Nodes[1].Weight = math.Inf(1)
		_, err := engine.ComputeScore("u-1", DomainOverall, "", bad)
		if !errors.Is(err, ErrInvalidGraphState) {
			t.Errorf("expected ErrInvalidGraphState, got %v", err)
		}
	})
}
