package scoring

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonlabs/repgraph/core/graph"
)

var (
	ErrScoreNotFound = errors.New("score not found")
)

// ScoreStore persists computed scores. Rows are keyed UNIQUE
// (user, domain, sub-domain) so a recomputation overwrites the stale
// row instead of accumulating duplicates; every write also appends to
// the score history for dashboard charts.
type ScoreStore struct {
	db *graph.DB
}

// NewScoreStore creates a ScoreStore backed by the shared graph database.
func NewScoreStore(db *graph.DB) *ScoreStore {
	return &ScoreStore{db: db}
}

// Upsert writes a score, replacing any previous row for the same
// (user, domain, sub-domain) key, and appends a history entry.
func (ss *ScoreStore) Upsert(score *Score) error {
	if !score.Domain.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidDomain, score.Domain)
	}

	factors, err := json.Marshal(score.Factors)
	if err != nil {
		return fmt.Errorf("marshal factors for %s/%s: %w", score.UserNodeID, score.Domain, err)
	}

	if score.ID == "" {
		score.ID = uuid.NewString()
	}
	calculatedAt := score.CalculatedAt.UTC().Format(time.RFC3339Nano)

	tx, err := ss.db.BeginTx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO scores (id, user_node_id, domain, sub_domain, score, confidence, factors, calculated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_node_id, domain, sub_domain) DO UPDATE SET
			score = excluded.score,
			confidence = excluded.confidence,
			factors = excluded.factors,
			calculated_at = excluded.calculated_at
	`, score.ID, score.UserNodeID, score.Domain, score.SubDomain,
		score.Value, score.Confidence, string(factors), calculatedAt)
	if err != nil {
		return fmt.Errorf("upsert score %s/%s/%s: %w", score.UserNodeID, score.Domain, score.SubDomain, err)
	}

	_, err = tx.Exec(`
		INSERT INTO score_history (id, user_node_id, domain, sub_domain, score, confidence, calculated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), score.UserNodeID, score.Domain, score.SubDomain,
		score.Value, score.Confidence, calculatedAt)
	if err != nil {
		return fmt.Errorf("append score history for %s/%s: %w", score.UserNodeID, score.Domain, err)
	}

	return tx.Commit()
}

// Get returns the score for one (user, domain, sub-domain) key.
func (ss *ScoreStore) Get(userNodeID string, domain Domain, subDomain string) (*Score, error) {
	row := ss.db.DB().QueryRow(scoreSelect+" WHERE user_node_id = ? AND domain = ? AND sub_domain = ?",
		userNodeID, domain, subDomain)
	score, err := scanScore(row)
	if err == sql.ErrNoRows {
		return nil, ErrScoreNotFound
	}
	return score, err
}

// GetUserScores returns all scores for a user ordered by domain.
func (ss *ScoreStore) GetUserScores(userNodeID string) ([]*Score, error) {
	rows, err := ss.db.DB().Query(scoreSelect+" WHERE user_node_id = ? ORDER BY domain, sub_domain", userNodeID)
	if err != nil {
		return nil, fmt.Errorf("query scores for %s: %w", userNodeID, err)
	}
	defer rows.Close()

	return scanScores(rows)
}

// DomainValues returns every stored score value for a domain, ordered
// ascending. Feeds percentile computation for comparisons.
func (ss *ScoreStore) DomainValues(domain Domain) ([]float64, error) {
	rows, err := ss.db.DB().Query(
		"SELECT score FROM scores WHERE domain = ? AND sub_domain = '' ORDER BY score", domain)
	if err != nil {
		return nil, fmt.Errorf("query domain values for %s: %w", domain, err)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan score value: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// HistoryEntry is one point of a user's score-over-time chart.
type HistoryEntry struct {
	Domain       Domain    `json:"domain"`
	SubDomain    string    `json:"sub_domain,omitempty"`
	Value        float64   `json:"score"`
	Confidence   float64   `json:"confidence"`
	CalculatedAt time.Time `json:"calculated_at"`
}

// GetHistory returns up to limit history entries for a user and domain,
// newest first. A limit of 0 means no limit.
func (ss *ScoreStore) GetHistory(userNodeID string, domain Domain, limit int) ([]*HistoryEntry, error) {
	query := `
		SELECT domain, sub_domain, score, confidence, calculated_at
		FROM score_history WHERE user_node_id = ? AND domain = ?
		ORDER BY calculated_at DESC`
	args := []any{userNodeID, domain}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := ss.db.DB().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query score history for %s: %w", userNodeID, err)
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		var entry HistoryEntry
		var calculatedAt string
		if err := rows.Scan(&entry.Domain, &entry.SubDomain, &entry.Value, &entry.Confidence, &calculatedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entry.CalculatedAt, _ = time.Parse(time.RFC3339Nano, calculatedAt)
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// CountByDomain returns how many scores exist per domain.
func (ss *ScoreStore) CountByDomain() (map[Domain]int64, error) {
	rows, err := ss.db.DB().Query("SELECT domain, COUNT(*) FROM scores GROUP BY domain")
	if err != nil {
		return nil, fmt.Errorf("count scores by domain: %w", err)
	}
	defer rows.Close()

	counts := make(map[Domain]int64)
	for rows.Next() {
		var domain Domain
		var count int64
		if err := rows.Scan(&domain, &count); err != nil {
			return nil, fmt.Errorf("scan score count: %w", err)
		}
		counts[domain] = count
	}
	return counts, rows.Err()
}

const scoreSelect = `
	SELECT id, user_node_id, domain, sub_domain, score, confidence, factors, calculated_at
	FROM scores`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScore(row rowScanner) (*Score, error) {
	var score Score
	var factorsJSON, calculatedAt string

	err := row.Scan(&score.ID, &score.UserNodeID, &score.Domain, &score.SubDomain,
		&score.Value, &score.Confidence, &factorsJSON, &calculatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(factorsJSON), &score.Factors); err != nil {
		score.Factors = []Factor{}
	}
	score.CalculatedAt, _ = time.Parse(time.RFC3339Nano, calculatedAt)

	return &score, nil
}

func scanScores(rows *sql.Rows) ([]*Score, error) {
	var scores []*Score
	for rows.Next() {
		score, err := scanScore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan score row: %w", err)
		}
		scores = append(scores, score)
	}
	return scores, rows.Err()
}
