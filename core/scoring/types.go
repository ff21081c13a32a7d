package scoring

import (
	"time"

	"github.com/halcyonlabs/repgraph/core/graph"
)

// =============================================================================
// Reputation Domains
// =============================================================================

// Domain is a named axis of reputation. Each user carries one score per
// (domain, sub-domain) pair.
type Domain string

const (
	// DomainOverall is the blended, default reputation axis.
	DomainOverall Domain = "overall"

	// DomainCommunity weighs community participation and social edges.
	DomainCommunity Domain = "community"

	// DomainMission weighs mission participation and completion.
	DomainMission Domain = "mission"

	// DomainContent weighs authored content and reactions to it.
	DomainContent Domain = "content"

	// DomainTrust weighs ratings and long-lived relationships.
	DomainTrust Domain = "trust"
)

// ValidDomains returns all valid Domain values.
func ValidDomains() []Domain {
	return []Domain{
		DomainOverall,
		DomainCommunity,
		DomainMission,
		DomainContent,
		DomainTrust,
	}
}

// IsValid returns true if the domain is a recognized value.
func (d Domain) IsValid() bool {
	for _, valid := range ValidDomains() {
		if d == valid {
			return true
		}
	}
	return false
}

// String returns the string representation of the domain.
func (d Domain) String() string {
	return string(d)
}

// =============================================================================
// Scores and Factors
// =============================================================================

// Factor is a named, weighted contributor to a computed score. Factors
// make scores explainable: the final score is the squashed
// weight-normalized sum of factor contributions.
type Factor struct {
	// Name identifies the behavior category, e.g. "participation" or
	// "participation:mission" when node-type splitting is configured.
	Name string `json:"name"`

	// Description is a human-readable summary of the evidence.
	Description string `json:"description"`

	// Contribution is the signed evidence mass this factor adds before
	// domain weighting.
	Contribution float64 `json:"contribution"`

	// Weight is the non-negative domain-specific multiplier.
	Weight float64 `json:"weight"`
}

// Score is a computed reputation value for one user on one domain axis.
// Scores are unique per (user, domain, sub-domain).
type Score struct {
	// ID is the unique identifier of the stored row.
	ID string `json:"id"`

	// UserNodeID is the graph node ID of the scored user.
	UserNodeID string `json:"user_node_id"`

	// Domain is the reputation axis.
	Domain Domain `json:"domain"`

	// SubDomain narrows the axis to a tag or category. Empty for the
	// whole domain.
	SubDomain string `json:"sub_domain,omitempty"`

	// Value is the bounded score in [0,100]. 50 is the neutral prior
	// for users with no evidence.
	Value float64 `json:"score"`

	// Confidence in [0,1] reflects how much evidence backs the score.
	// 0.5 means no evidence at all.
	Confidence float64 `json:"confidence"`

	// Factors is the ordered explanation of the score, strongest
	// weighted contribution first.
	Factors []Factor `json:"factors"`

	// CalculatedAt is when the score was computed.
	CalculatedAt time.Time `json:"calculated_at"`
}

// =============================================================================
// Engine Configuration
// =============================================================================

// DefaultSquashK is the default squash constant: raw evidence mass at
// which the bounded score reaches 50.
const DefaultSquashK = 3.0

// DefaultEvidenceScale is the default evidence volume at which
// confidence reaches 0.75 (halfway between the neutral 0.5 and 1.0).
const DefaultEvidenceScale = 8.0

// DefaultFactorWeight applies to behavior categories a domain does not
// configure explicitly.
const DefaultFactorWeight = 1.0

// NeutralScore and NeutralConfidence form the prior assigned to a user
// with no evidence in a domain.
const (
	NeutralScore      = 50.0
	NeutralConfidence = 0.5
)

// DomainConfig tunes how one reputation domain turns edges into factors.
type DomainConfig struct {
	// FactorWeights maps edge types to their importance for this
	// domain. Unlisted types fall back to DefaultFactorWeight.
	FactorWeights map[graph.EdgeType]float64 `yaml:"factor_weights"`

	// SplitByNodeType additionally distinguishes factors by the node
	// type on the far end of the edge (e.g. participation in a mission
	// vs. in a community).
	SplitByNodeType bool `yaml:"split_by_node_type"`
}

// Config carries every tunable of the score computation. The engine
// itself hard-codes nothing: squash constant, decay half-life, and
// per-domain factor weights all arrive here.
type Config struct {
	// SquashK is the constant in score = 100*raw/(raw+k).
	SquashK float64 `yaml:"squash_k"`

	// DecayHalfLifeDays controls recency decay of edge evidence.
	// An edge's contribution is halved once it is this old and fades
	// linearly to zero at twice this age. Zero disables decay.
	DecayHalfLifeDays float64 `yaml:"decay_half_life_days"`

	// EvidenceScale controls how fast confidence approaches 1.
	EvidenceScale float64 `yaml:"evidence_scale"`

	// Domains configures factor weighting per reputation domain.
	Domains map[Domain]DomainConfig `yaml:"domains"`
}

// DefaultConfig returns the engine defaults: every domain weighs all
// behavior equally except where the platform's axes obviously diverge.
func DefaultConfig() Config {
	return Config{
		SquashK:           DefaultSquashK,
		DecayHalfLifeDays: 30,
		EvidenceScale:     DefaultEvidenceScale,
		Domains: map[Domain]DomainConfig{
			DomainOverall: {},
			DomainMission: {
				SplitByNodeType: true,
				FactorWeights: map[graph.EdgeType]float64{
					graph.EdgeTypeParticipation: 2.0,
					graph.EdgeTypeCreation:      1.5,
					graph.EdgeTypeLike:          0.5,
					graph.EdgeTypeFollow:        0.25,
				},
			},
			DomainCommunity: {
				FactorWeights: map[graph.EdgeType]float64{
					graph.EdgeTypeParticipation: 1.5,
					graph.EdgeTypeFollow:        1.5,
					graph.EdgeTypeComment:       1.0,
					graph.EdgeTypeVote:          1.0,
				},
			},
			DomainContent: {
				FactorWeights: map[graph.EdgeType]float64{
					graph.EdgeTypeCreation: 2.0,
					graph.EdgeTypeComment:  1.5,
					graph.EdgeTypeLike:     1.0,
					graph.EdgeTypeRating:   1.0,
					graph.EdgeTypeFollow:   0.25,
				},
			},
			DomainTrust: {
				FactorWeights: map[graph.EdgeType]float64{
					graph.EdgeTypeRating:      2.0,
					graph.EdgeTypeFollow:      1.0,
					graph.EdgeTypeAssociation: 0.5,
					graph.EdgeTypeLike:        0.25,
				},
			},
		},
	}
}

// normalized fills zero values with defaults so a partially specified
// configuration behaves sensibly.
func (c Config) normalized() Config {
	if c.SquashK <= 0 {
		c.SquashK = DefaultSquashK
	}
	if c.EvidenceScale <= 0 {
		c.EvidenceScale = DefaultEvidenceScale
	}
	if c.DecayHalfLifeDays < 0 {
		c.DecayHalfLifeDays = 0
	}
	return c
}
