package graph

import (
	"time"
)

// =============================================================================
// Node Types
// =============================================================================

// NodeType identifies what kind of entity a graph node represents.
// The reputation graph mirrors platform records (users, missions,
// communities, tags, activities) as nodes; each node keeps a non-owning
// reference back to the record it represents.
type NodeType string

const (
	// NodeTypeUser represents a platform user account.
	NodeTypeUser NodeType = "user"

	// NodeTypeMission represents a mission (quest/task) record.
	NodeTypeMission NodeType = "mission"

	// NodeTypeCommunity represents a community or guild.
	NodeTypeCommunity NodeType = "community"

	// NodeTypeTag represents a topic or category tag.
	NodeTypeTag NodeType = "tag"

	// NodeTypeActivity represents a discrete activity event
	// (a vote, a token transfer, a completion, ...).
	NodeTypeActivity NodeType = "activity"

	// NodeTypeExtension is the escape hatch for node kinds introduced
	// by newer ingestion producers. The concrete kind travels in the
	// node's attribute bag under the "extension_type" key; the engine
	// treats extension nodes as opaque neighbors.
	NodeTypeExtension NodeType = "extension"
)

// ValidNodeTypes returns all valid NodeType values.
func ValidNodeTypes() []NodeType {
	return []NodeType{
		NodeTypeUser,
		NodeTypeMission,
		NodeTypeCommunity,
		NodeTypeTag,
		NodeTypeActivity,
		NodeTypeExtension,
	}
}

// IsValid returns true if the node type is a recognized value.
func (nt NodeType) IsValid() bool {
	for _, valid := range ValidNodeTypes() {
		if nt == valid {
			return true
		}
	}
	return false
}

// String returns the string representation of the node type.
func (nt NodeType) String() string {
	return string(nt)
}

// =============================================================================
// Edge Types
// =============================================================================

// EdgeType identifies the behavior category an edge records.
// Edges are the raw material of scoring: each type maps to a factor
// whose weight is configured per reputation domain.
type EdgeType string

const (
	// EdgeTypeParticipation represents taking part in a mission or event.
	EdgeTypeParticipation EdgeType = "participation"

	// EdgeTypeCreation represents authoring a mission, post, or community.
	EdgeTypeCreation EdgeType = "creation"

	// EdgeTypeComment represents commenting on another entity.
	EdgeTypeComment EdgeType = "comment"

	// EdgeTypeRating represents an explicit rating given or received.
	EdgeTypeRating EdgeType = "rating"

	// EdgeTypeLike represents a like/upvote reaction.
	EdgeTypeLike EdgeType = "like"

	// EdgeTypeFollow represents one user following another entity.
	EdgeTypeFollow EdgeType = "follow"

	// EdgeTypeVote represents a governance or poll vote.
	EdgeTypeVote EdgeType = "vote"

	// EdgeTypeAssociation represents a generic relatedness link.
	// This is the only edge type for which self-loops are legal.
	EdgeTypeAssociation EdgeType = "association"

	// EdgeTypeExtension is the escape hatch for relationship kinds this
	// engine does not know yet; the concrete kind travels in the edge's
	// attribute bag under the "extension_type" key.
	EdgeTypeExtension EdgeType = "extension"
)

// ValidEdgeTypes returns all valid EdgeType values.
func ValidEdgeTypes() []EdgeType {
	return []EdgeType{
		EdgeTypeParticipation,
		EdgeTypeCreation,
		EdgeTypeComment,
		EdgeTypeRating,
		EdgeTypeLike,
		EdgeTypeFollow,
		EdgeTypeVote,
		EdgeTypeAssociation,
		EdgeTypeExtension,
	}
}

// IsValid returns true if the edge type is a recognized value.
func (et EdgeType) IsValid() bool {
	for _, valid := range ValidEdgeTypes() {
		if et == valid {
			return true
		}
	}
	return false
}

// AllowsSelfLoop reports whether an edge of this type may connect a
// node to itself.
func (et EdgeType) AllowsSelfLoop() bool {
	return et == EdgeTypeAssociation
}

// String returns the string representation of the edge type.
func (et EdgeType) String() string {
	return string(et)
}

// =============================================================================
// Core Data Structures
// =============================================================================

// EntityRef points at the external platform record a node represents.
// The graph holds a non-owning reference; the record itself is owned by
// its originating subsystem.
type EntityRef struct {
	// ID is the external record's identifier.
	ID string `json:"id"`

	// Type names the external record's kind (e.g. "user", "mission").
	Type string `json:"type"`
}

// IsZero reports whether the reference is unset.
func (r EntityRef) IsZero() bool {
	return r.ID == "" && r.Type == ""
}

// NodeMetadata carries display and classification data for a node.
type NodeMetadata struct {
	// Name is the human-readable label. Required.
	Name string `json:"name"`

	// Description is optional free-form text.
	Description string `json:"description,omitempty"`

	// ImageURL is an optional avatar or thumbnail.
	ImageURL string `json:"image_url,omitempty"`

	// Attributes is a free-form bag for producer-specific data.
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Node is a vertex in the reputation graph.
type Node struct {
	// ID is the unique identifier for this node.
	ID string `json:"id"`

	// NodeType specifies what kind of entity this node represents.
	NodeType NodeType `json:"node_type"`

	// Entity references the external record this node mirrors.
	// Nodes are unique per (Entity.ID, Entity.Type).
	Entity EntityRef `json:"entity"`

	// Metadata carries display data. Metadata merges are
	// last-write-wins per field on upsert.
	Metadata NodeMetadata `json:"metadata"`

	// Weight is the importance multiplier in [0,1]. Defaults to 0.5.
	Weight float64 `json:"weight"`

	// CreatedAt is when this node was first created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when this node was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// EdgeMetadata carries descriptive data for an edge.
type EdgeMetadata struct {
	// Description is optional free-form text.
	Description string `json:"description,omitempty"`

	// Activity references the activity record that produced this edge,
	// when one exists.
	Activity EntityRef `json:"activity,omitempty"`

	// OccurredAt is when the underlying interaction happened.
	// Zero means unknown; scoring applies no recency decay then.
	OccurredAt time.Time `json:"occurred_at,omitempty"`

	// Attributes is a free-form bag for producer-specific data.
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Edge is a weighted relationship between two nodes.
// Edges are unique per (SourceID, TargetID, EdgeType).
type Edge struct {
	// ID is the unique identifier for this edge.
	ID string `json:"id"`

	// SourceID is the ID of the source node.
	SourceID string `json:"source_id"`

	// TargetID is the ID of the target node.
	TargetID string `json:"target_id"`

	// EdgeType specifies the behavior category.
	EdgeType EdgeType `json:"edge_type"`

	// Strength is the interaction intensity in [0,1]. Defaults to 0.5.
	Strength float64 `json:"strength"`

	// Directed marks whether the relationship has direction.
	// Undirected edges are visible from both endpoints.
	Directed bool `json:"directed"`

	// Metadata carries descriptive data.
	Metadata EdgeMetadata `json:"metadata"`

	// CreatedAt is when this edge was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when this edge was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// OtherEnd returns the node ID on the opposite side of the edge from
// nodeID.
func (e *Edge) OtherEnd(nodeID string) string {
	if e.SourceID == nodeID {
		return e.TargetID
	}
	return e.SourceID
}

// Subgraph is a bounded, filtered neighborhood returned by traversal.
// Nodes[0] is always the expansion root. Node and edge order is
// deterministic for a fixed graph snapshot and identical parameters.
type Subgraph struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// Node returns the subgraph node with the given ID, or nil.
func (s *Subgraph) Node(id string) *Node {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// Root returns the expansion root, or nil for an empty subgraph.
func (s *Subgraph) Root() *Node {
	if len(s.Nodes) == 0 {
		return nil
	}
	return s.Nodes[0]
}

// =============================================================================
// Graph Statistics
// =============================================================================

// Stats summarizes the stored graph for dashboards and operators.
type Stats struct {
	// TotalNodes is the count of all nodes.
	TotalNodes int64 `json:"total_nodes"`

	// NodesByType maps node type to count.
	NodesByType map[NodeType]int64 `json:"nodes_by_type"`

	// TotalEdges is the count of all edges.
	TotalEdges int64 `json:"total_edges"`

	// EdgesByType maps edge type to count.
	EdgesByType map[EdgeType]int64 `json:"edges_by_type"`

	// DBSizeBytes is the database file size.
	DBSizeBytes int64 `json:"db_size_bytes"`
}
