package scoring

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/halcyonlabs/repgraph/core/graph"
)

// ErrBaselineNotFound indicates no baseline has been computed for a domain.
var ErrBaselineNotFound = errors.New("baseline not found")

// Baseline is a population snapshot for one domain, used to place an
// individual score relative to everyone else.
type Baseline struct {
	Domain      Domain    `json:"domain"`
	Average     float64   `json:"average"`
	StdDev      float64   `json:"std_dev"`
	SampleCount int       `json:"sample_count"`
	ComputedAt  time.Time `json:"computed_at"`
}

// BaselineStore persists per-domain population baselines.
type BaselineStore struct {
	db     *graph.DB
	scores *ScoreStore
}

func NewBaselineStore(db *graph.DB) *BaselineStore {
	return &BaselineStore{
		db:     db,
		scores: NewScoreStore(db),
	}
}

// Recompute rebuilds the baseline for a domain from the current stored
// scores. A domain with no scores yet gets the neutral prior as its
// average so comparisons remain well defined.
func (bs *BaselineStore) Recompute(domain Domain) (*Baseline, error) {
	if !domain.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}

	values, err := bs.scores.DomainValues(domain)
	if err != nil {
		return nil, fmt.Errorf("load domain scores: %w", err)
	}

	baseline := &Baseline{
		Domain:      domain,
		Average:     NeutralScore,
		SampleCount: len(values),
		ComputedAt:  time.Now().UTC(),
	}
	if len(values) > 0 {
		mean, std := stat.MeanStdDev(values, nil)
		baseline.Average = mean
		if len(values) > 1 {
			baseline.StdDev = std
		}
	}

	_, err = bs.db.DB().Exec(`
		INSERT INTO baselines (domain, average_score, std_dev, sample_count, computed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET
			average_score = excluded.average_score,
			std_dev = excluded.std_dev,
			sample_count = excluded.sample_count,
			computed_at = excluded.computed_at
	`, string(baseline.Domain), baseline.Average, baseline.StdDev,
		baseline.SampleCount, baseline.ComputedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("store baseline: %w", err)
	}

	return baseline, nil
}

// Get returns the stored baseline for a domain.
func (bs *BaselineStore) Get(domain Domain) (*Baseline, error) {
	if !domain.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}

	row := bs.db.DB().QueryRow(`
		SELECT domain, average_score, std_dev, sample_count, computed_at
		FROM baselines WHERE domain = ?
	`, string(domain))

	var baseline Baseline
	var computedAt string
	err := row.Scan(&baseline.Domain, &baseline.Average, &baseline.StdDev,
		&baseline.SampleCount, &computedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: domain %q", ErrBaselineNotFound, domain)
	}
	if err != nil {
		return nil, fmt.Errorf("load baseline: %w", err)
	}

	baseline.ComputedAt, err = time.Parse(time.RFC3339Nano, computedAt)
	if err != nil {
		return nil, fmt.Errorf("parse baseline timestamp: %w", err)
	}

	return &baseline, nil
}
