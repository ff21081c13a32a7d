package graph

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrEdgeNotFound    = errors.New("edge not found")
	ErrInvalidEdgeType = errors.New("invalid edge type")
	ErrInvalidStrength = errors.New("edge strength must be in [0,1]")
	ErrUnknownNode     = errors.New("edge endpoint node not found")
	ErrSelfLoop        = errors.New("self-loops are only permitted for association edges")
)

// DefaultEdgeStrength is the interaction intensity applied when a
// producer does not state one.
const DefaultEdgeStrength = 0.5

// EdgeStore provides upsert and lookup operations for graph edges.
// Edges are keyed by (source, target, type): repeated upserts for the
// same triple merge metadata and overwrite strength and direction.
//
// Thread safety: an upsert is a single INSERT .. ON CONFLICT statement
// against the UNIQUE (source_id, target_id, edge_type) index, matching
// NodeStore, so concurrent writers for the same triple merge instead
// of failing.
type EdgeStore struct {
	db *DB
}

// NewEdgeStore creates an EdgeStore backed by the given database.
func NewEdgeStore(db *DB) *EdgeStore {
	return &EdgeStore{db: db}
}

// UpsertEdge creates or merges the edge (sourceID, targetID, edgeType).
// Both endpoints must already exist as nodes.
func (es *EdgeStore) UpsertEdge(sourceID, targetID string, edgeType EdgeType, strength float64, directed bool, metadata EdgeMetadata) (*Edge, error) {
	if !edgeType.IsValid() {
		return nil, ErrInvalidEdgeType
	}
	if math.IsNaN(strength) || math.IsInf(strength, 0) || strength < 0 || strength > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidStrength, strength)
	}
	if sourceID == targetID && !edgeType.AllowsSelfLoop() {
		return nil, ErrSelfLoop
	}

	// Same single-statement upsert as NodeStore: concurrent writers
	// for one triple must merge, never trip over each other. The
	// endpoint check rides on the foreign keys instead of a prior
	// SELECT inside a transaction.
	now := formatTime(time.Now())
	_, err := es.db.db.Exec(`
		INSERT INTO edges (id, source_id, target_id, edge_type, strength, directed, description, activity_id, activity_type, occurred_at, attributes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, target_id, edge_type) DO UPDATE SET
			strength      = excluded.strength,
			directed      = excluded.directed,
			description   = COALESCE(excluded.description, edges.description),
			activity_id   = COALESCE(excluded.activity_id, edges.activity_id),
			activity_type = COALESCE(excluded.activity_type, edges.activity_type),
			occurred_at   = COALESCE(excluded.occurred_at, edges.occurred_at),
			attributes    = json_patch(COALESCE(edges.attributes, '{}'), COALESCE(excluded.attributes, '{}')),
			updated_at    = excluded.updated_at
	`, uuid.NewString(), sourceID, targetID, edgeType, strength, boolToInt(directed),
		nullString(metadata.Description), nullString(metadata.Activity.ID), nullString(metadata.Activity.Type),
		nullTime(metadata.OccurredAt), attributesJSON(metadata.Attributes), now, now)
	if err != nil {
		if constraintViolation(err, sqlite3.ErrConstraintForeignKey) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrUnknownNode, sourceID, targetID)
		}
		return nil, fmt.Errorf("upsert edge %s->%s (type=%s): %w", sourceID, targetID, edgeType, err)
	}

	return es.getByKey(sourceID, targetID, edgeType)
}

func (es *EdgeStore) getByKey(sourceID, targetID string, edgeType EdgeType) (*Edge, error) {
	row := es.db.db.QueryRow(edgeSelect+" WHERE source_id = ? AND target_id = ? AND edge_type = ?", sourceID, targetID, edgeType)
	edge, err := scanEdgeFields(row)
	if err == sql.ErrNoRows {
		return nil, ErrEdgeNotFound
	}
	return edge, err
}

// GetEdge looks up an edge by ID.
func (es *EdgeStore) GetEdge(id string) (*Edge, error) {
	row := es.db.db.QueryRow(edgeSelect+" WHERE id = ?", id)
	edge, err := scanEdgeFields(row)
	if err == sql.ErrNoRows {
		return nil, ErrEdgeNotFound
	}
	return edge, err
}

// GetEdgesFrom returns edges leaving the node: directed edges with the
// node as source, plus undirected edges touching it from either side.
// Results are ordered by descending strength then creation time so
// traversal sees the most salient edges first.
func (es *EdgeStore) GetEdgesFrom(nodeID string, edgeTypes ...EdgeType) ([]*Edge, error) {
	where := "(source_id = ? OR (directed = 0 AND target_id = ?))"
	return es.queryEdges(where, nodeID, edgeTypes)
}

// GetEdgesTo returns edges arriving at the node: directed edges with
// the node as target, plus undirected edges touching it. Scoring reads
// these as a user's incoming evidence.
func (es *EdgeStore) GetEdgesTo(nodeID string, edgeTypes ...EdgeType) ([]*Edge, error) {
	where := "(target_id = ? OR (directed = 0 AND source_id = ?))"
	return es.queryEdges(where, nodeID, edgeTypes)
}

func (es *EdgeStore) queryEdges(where string, nodeID string, edgeTypes []EdgeType) ([]*Edge, error) {
	args := []any{nodeID, nodeID}
	if len(edgeTypes) > 0 {
		placeholders := strings.TrimRight(strings.Repeat("?,", len(edgeTypes)), ",")
		where += " AND edge_type IN (" + placeholders + ")"
		for _, et := range edgeTypes {
			args = append(args, et)
		}
	}

	rows, err := es.db.db.Query(edgeSelect+" WHERE "+where+" ORDER BY strength DESC, created_at, id", args...)
	if err != nil {
		return nil, fmt.Errorf("query edges for %s: %w", nodeID, err)
	}
	defer rows.Close()

	return scanEdges(rows)
}

// DeleteEdge removes an edge by ID.
func (es *EdgeStore) DeleteEdge(id string) error {
	result, err := es.db.db.Exec("DELETE FROM edges WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete edge %s: %w", id, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrEdgeNotFound
	}
	return nil
}

const edgeSelect = `
	SELECT id, source_id, target_id, edge_type, strength, directed, description, activity_id, activity_type, occurred_at, attributes, created_at, updated_at
	FROM edges`

func scanEdgeFields(row rowScanner) (*Edge, error) {
	var edge Edge
	var directed int
	var description, activityID, activityType, occurredAt, attrsJSON sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&edge.ID, &edge.SourceID, &edge.TargetID, &edge.EdgeType,
		&edge.Strength, &directed, &description, &activityID, &activityType,
		&occurredAt, &attrsJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	edge.Directed = directed != 0
	edge.Metadata.Description = description.String
	edge.Metadata.Activity = EntityRef{ID: activityID.String, Type: activityType.String}
	if occurredAt.Valid {
		edge.Metadata.OccurredAt, _ = time.Parse(time.RFC3339Nano, occurredAt.String)
	}
	if attrsJSON.Valid && attrsJSON.String != "" && attrsJSON.String != "null" {
		if err := json.Unmarshal([]byte(attrsJSON.String), &edge.Metadata.Attributes); err != nil {
			edge.Metadata.Attributes = nil
		}
	}
	edge.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	edge.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	return &edge, nil
}

func scanEdges(rows *sql.Rows) ([]*Edge, error) {
	var edges []*Edge
	for rows.Next() {
		edge, err := scanEdgeFields(rows)
		if err != nil {
			return nil, fmt.Errorf("scan edge row: %w", err)
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.Format(time.RFC3339Nano)
}
