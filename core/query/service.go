// Package query is the external read/submit surface of the reputation
// graph. It wraps the stores, traversal, scoring, and job packages
// behind one service with parameter validation, authorization, and
// caching, so callers never touch the underlying stores directly.
package query

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dgraph-io/ristretto"
	lru "github.com/hashicorp/golang-lru/v2"
	"gonum.org/v1/gonum/stat"

	"github.com/halcyonlabs/repgraph/core/graph"
	"github.com/halcyonlabs/repgraph/core/jobs"
	"github.com/halcyonlabs/repgraph/core/layout"
	"github.com/halcyonlabs/repgraph/core/scoring"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrForbidden indicates the principal is not allowed to perform
	// the operation or see the requested detail.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidParameter indicates a request parameter is outside its
	// accepted range.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrSearchDisabled indicates the service was built without a
	// node search index.
	ErrSearchDisabled = errors.New("search index not configured")
)

// =============================================================================
// Bounds and defaults
// =============================================================================

// Request-facing bounds. The traversal package accepts a wider window
// for internal callers; requests coming through this service are held
// to these.
const (
	MinGraphDepth    = 1
	MaxGraphDepth    = 3
	MinGraphMaxNodes = 10
	MaxGraphMaxNodes = 500
)

const (
	defaultScoreCacheCounters = 100000
	defaultScoreCacheBuffer   = 64
	defaultLayoutCacheSize    = 128
)

// =============================================================================
// Principal
// =============================================================================

// Principal identifies the caller. UserID is the caller's user node ID
// when known; Operator grants full visibility and job control.
type Principal struct {
	UserID   string
	Operator bool
}

// Anonymous is the zero principal: public reads only.
var Anonymous = Principal{}

func (p Principal) canSeeFactors(userNodeID string) bool {
	return p.Operator || (p.UserID != "" && p.UserID == userNodeID)
}

// =============================================================================
// Options
// =============================================================================

// Options configures a Service. Zero values take defaults.
type Options struct {
	// DefaultDepth, DefaultMaxNodes, and DefaultMinStrength fill in
	// graph request parameters the caller omits.
	DefaultDepth       int
	DefaultMaxNodes    int
	DefaultMinStrength float64

	// ScoreTTL bounds staleness of cached score reads. Zero disables
	// the score cache.
	ScoreTTL        time.Duration
	ScoreMaxEntries int64

	// LayoutCacheSize bounds the number of retained layouts.
	LayoutCacheSize int
}

// DefaultOptions returns the standard service configuration.
func DefaultOptions() Options {
	return Options{
		DefaultDepth:       2,
		DefaultMaxNodes:    100,
		DefaultMinStrength: 0.2,
		ScoreTTL:           5 * time.Minute,
		ScoreMaxEntries:    10000,
		LayoutCacheSize:    defaultLayoutCacheSize,
	}
}

func (o Options) normalized() Options {
	defaults := DefaultOptions()
	if o.DefaultDepth <= 0 {
		o.DefaultDepth = defaults.DefaultDepth
	}
	if o.DefaultMaxNodes <= 0 {
		o.DefaultMaxNodes = defaults.DefaultMaxNodes
	}
	if o.DefaultMinStrength < 0 {
		o.DefaultMinStrength = defaults.DefaultMinStrength
	}
	if o.LayoutCacheSize <= 0 {
		o.LayoutCacheSize = defaults.LayoutCacheSize
	}
	return o
}

// GraphOptions are the request parameters for graph and visualization
// reads. Zero Depth and MaxNodes take the service defaults; a negative
// MinStrength takes the default, while an explicit zero disables the
// strength filter.
type GraphOptions struct {
	Depth       int              `json:"depth"`
	MaxNodes    int              `json:"max_nodes"`
	MinStrength float64          `json:"min_strength"`
	NodeTypes   []graph.NodeType `json:"node_types,omitempty"`
	EdgeTypes   []graph.EdgeType `json:"edge_types,omitempty"`
}

// =============================================================================
// Result shapes
// =============================================================================

// Visualization pairs a traversed subgraph with deterministic 2D
// positions for its nodes.
type Visualization struct {
	Algorithm layout.Algorithm `json:"algorithm"`
	Subgraph  *graph.Subgraph  `json:"subgraph"`
	Points    []layout.Point   `json:"points"`
}

// Comparison places one user's domain score against the population.
// Difference is the user's score minus the population average.
type Comparison struct {
	UserNodeID  string         `json:"user_node_id"`
	Domain      scoring.Domain `json:"domain"`
	Score       float64        `json:"score"`
	Average     float64        `json:"average"`
	Difference  float64        `json:"difference"`
	StdDev      float64        `json:"std_dev"`
	Percentile  float64        `json:"percentile"`
	SampleCount int            `json:"sample_count"`
}

// =============================================================================
// Service
// =============================================================================

// Service is the query facade over one reputation graph database.
type Service struct {
	db        *graph.DB
	nodes     *graph.NodeStore
	traverser *graph.Traverser
	scores    *scoring.ScoreStore
	baselines *scoring.BaselineStore
	manager   *jobs.Manager
	index     *graph.NodeIndex

	opts       Options
	scoreCache *ristretto.Cache
	layouts    *lru.Cache[string, *Visualization]
	logger     *slog.Logger
}

// NewService builds a Service over an open database and job manager.
// index may be nil; search calls then return ErrSearchDisabled.
func NewService(db *graph.DB, manager *jobs.Manager, index *graph.NodeIndex, opts Options, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.normalized()

	var scoreCache *ristretto.Cache
	if opts.ScoreTTL > 0 && opts.ScoreMaxEntries > 0 {
		var err error
		scoreCache, err = ristretto.NewCache(&ristretto.Config{
			NumCounters: defaultScoreCacheCounters,
			MaxCost:     opts.ScoreMaxEntries,
			BufferItems: defaultScoreCacheBuffer,
		})
		if err != nil {
			return nil, fmt.Errorf("score cache: %w", err)
		}
	}

	layouts, err := lru.New[string, *Visualization](opts.LayoutCacheSize)
	if err != nil {
		if scoreCache != nil {
			scoreCache.Close()
		}
		return nil, fmt.Errorf("layout cache: %w", err)
	}

	return &Service{
		db:         db,
		nodes:      graph.NewNodeStore(db),
		traverser:  graph.NewTraverser(db),
		scores:     scoring.NewScoreStore(db),
		baselines:  scoring.NewBaselineStore(db),
		manager:    manager,
		index:      index,
		opts:       opts,
		scoreCache: scoreCache,
		layouts:    layouts,
		logger:     logger,
	}, nil
}

// Close releases the service caches. The database and job manager are
// owned by the caller.
func (s *Service) Close() error {
	if s.scoreCache != nil {
		s.scoreCache.Close()
	}
	s.layouts.Purge()
	return nil
}

// =============================================================================
// Scores
// =============================================================================

// GetUserScores returns all stored scores for a user. Score values and
// confidence are public; the factor breakdown is visible only to the
// user themselves or an operator. There is no error path for factor
// access: rather than rejecting the whole read, responses for other
// callers succeed with the factors omitted.
func (s *Service) GetUserScores(principal Principal, userNodeID string) ([]*scoring.Score, error) {
	if userNodeID == "" {
		return nil, fmt.Errorf("%w: user node id is required", ErrInvalidParameter)
	}

	scores, err := s.loadUserScores(userNodeID)
	if err != nil {
		return nil, err
	}

	return redactScores(scores, principal.canSeeFactors(userNodeID)), nil
}

func (s *Service) loadUserScores(userNodeID string) ([]*scoring.Score, error) {
	cacheKey := "scores:" + userNodeID
	if s.scoreCache != nil {
		if cached, found := s.scoreCache.Get(cacheKey); found {
			if scores, ok := cached.([]*scoring.Score); ok {
				return scores, nil
			}
		}
	}

	if _, err := s.nodes.GetNodeByID(userNodeID); err != nil {
		return nil, err
	}

	scores, err := s.scores.GetUserScores(userNodeID)
	if err != nil {
		return nil, err
	}

	if s.scoreCache != nil {
		s.scoreCache.SetWithTTL(cacheKey, scores, 1, s.opts.ScoreTTL)
	}
	return scores, nil
}

// redactScores copies scores, stripping factors unless the caller may
// see them. Cached entries are shared, so callers never get the cached
// slice or its elements directly.
func redactScores(scores []*scoring.Score, withFactors bool) []*scoring.Score {
	out := make([]*scoring.Score, len(scores))
	for i, score := range scores {
		clone := *score
		if withFactors {
			clone.Factors = append([]scoring.Factor(nil), score.Factors...)
		} else {
			clone.Factors = nil
		}
		out[i] = &clone
	}
	return out
}

// GetScoreHistory returns past computed values for one user and domain,
// newest first.
func (s *Service) GetScoreHistory(userNodeID string, domain scoring.Domain, limit int) ([]*scoring.HistoryEntry, error) {
	if userNodeID == "" {
		return nil, fmt.Errorf("%w: user node id is required", ErrInvalidParameter)
	}
	if !domain.IsValid() {
		return nil, fmt.Errorf("%w: unknown domain %q", ErrInvalidParameter, domain)
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", ErrInvalidParameter)
	}

	if _, err := s.nodes.GetNodeByID(userNodeID); err != nil {
		return nil, err
	}
	return s.scores.GetHistory(userNodeID, domain, limit)
}

// CompareToAverage places a user's domain score against the stored
// population baseline and reports the user's empirical percentile.
func (s *Service) CompareToAverage(userNodeID string, domain scoring.Domain) (*Comparison, error) {
	if userNodeID == "" {
		return nil, fmt.Errorf("%w: user node id is required", ErrInvalidParameter)
	}
	if !domain.IsValid() {
		return nil, fmt.Errorf("%w: unknown domain %q", ErrInvalidParameter, domain)
	}

	score, err := s.scores.Get(userNodeID, domain, "")
	if err != nil {
		return nil, err
	}

	baseline, err := s.baselines.Get(domain)
	if errors.Is(err, scoring.ErrBaselineNotFound) {
		baseline, err = s.baselines.Recompute(domain)
	}
	if err != nil {
		return nil, err
	}

	values, err := s.scores.DomainValues(domain)
	if err != nil {
		return nil, err
	}

	percentile := 100.0
	if len(values) > 0 {
		percentile = 100 * stat.CDF(score.Value, stat.Empirical, values, nil)
	}

	return &Comparison{
		UserNodeID:  userNodeID,
		Domain:      domain,
		Score:       score.Value,
		Average:     baseline.Average,
		Difference:  score.Value - baseline.Average,
		StdDev:      baseline.StdDev,
		Percentile:  percentile,
		SampleCount: baseline.SampleCount,
	}, nil
}

// RecomputeBaseline rebuilds the population baseline for a domain.
// Operator only.
func (s *Service) RecomputeBaseline(principal Principal, domain scoring.Domain) (*scoring.Baseline, error) {
	if !principal.Operator {
		return nil, fmt.Errorf("%w: baseline recomputation requires operator", ErrForbidden)
	}
	if !domain.IsValid() {
		return nil, fmt.Errorf("%w: unknown domain %q", ErrInvalidParameter, domain)
	}
	return s.baselines.Recompute(domain)
}

// =============================================================================
// Graph reads
// =============================================================================

// GetUserGraph expands the neighborhood around a user node, applying
// the service defaults for omitted parameters.
func (s *Service) GetUserGraph(userNodeID string, opts GraphOptions) (*graph.Subgraph, error) {
	if userNodeID == "" {
		return nil, fmt.Errorf("%w: user node id is required", ErrInvalidParameter)
	}

	expand, err := s.expandOptions(opts)
	if err != nil {
		return nil, err
	}
	return s.traverser.Expand(userNodeID, expand)
}

func (s *Service) expandOptions(opts GraphOptions) (graph.ExpandOptions, error) {
	if opts.Depth == 0 {
		opts.Depth = s.opts.DefaultDepth
	}
	if opts.MaxNodes == 0 {
		opts.MaxNodes = s.opts.DefaultMaxNodes
	}
	if opts.MinStrength < 0 {
		opts.MinStrength = s.opts.DefaultMinStrength
	}

	if opts.Depth < MinGraphDepth || opts.Depth > MaxGraphDepth {
		return graph.ExpandOptions{}, fmt.Errorf("%w: depth %d outside [%d, %d]",
			ErrInvalidParameter, opts.Depth, MinGraphDepth, MaxGraphDepth)
	}
	if opts.MaxNodes < MinGraphMaxNodes || opts.MaxNodes > MaxGraphMaxNodes {
		return graph.ExpandOptions{}, fmt.Errorf("%w: max nodes %d outside [%d, %d]",
			ErrInvalidParameter, opts.MaxNodes, MinGraphMaxNodes, MaxGraphMaxNodes)
	}
	if math.IsNaN(opts.MinStrength) || opts.MinStrength > 1 {
		return graph.ExpandOptions{}, fmt.Errorf("%w: min strength %v outside [0, 1]",
			ErrInvalidParameter, opts.MinStrength)
	}
	for _, nt := range opts.NodeTypes {
		if !nt.IsValid() {
			return graph.ExpandOptions{}, fmt.Errorf("%w: unknown node type %q", ErrInvalidParameter, nt)
		}
	}
	for _, et := range opts.EdgeTypes {
		if !et.IsValid() {
			return graph.ExpandOptions{}, fmt.Errorf("%w: unknown edge type %q", ErrInvalidParameter, et)
		}
	}

	return graph.ExpandOptions{
		Depth:       opts.Depth,
		MaxNodes:    opts.MaxNodes,
		NodeTypes:   opts.NodeTypes,
		EdgeTypes:   opts.EdgeTypes,
		MinStrength: opts.MinStrength,
	}, nil
}

// GetVisualization expands a user's neighborhood and computes node
// positions with the requested algorithm. Layouts are deterministic for
// a given graph state, so results are cached keyed by the request and
// the current graph counts.
func (s *Service) GetVisualization(userNodeID string, algorithm layout.Algorithm, opts GraphOptions) (*Visualization, error) {
	if userNodeID == "" {
		return nil, fmt.Errorf("%w: user node id is required", ErrInvalidParameter)
	}
	if !algorithm.IsValid() {
		return nil, fmt.Errorf("%w: unknown layout algorithm %q", ErrInvalidParameter, algorithm)
	}

	expand, err := s.expandOptions(opts)
	if err != nil {
		return nil, err
	}

	cacheKey, err := s.layoutCacheKey(userNodeID, algorithm, expand)
	if err != nil {
		return nil, err
	}
	if cached, found := s.layouts.Get(cacheKey); found {
		return cached, nil
	}

	sub, err := s.traverser.Expand(userNodeID, expand)
	if err != nil {
		return nil, err
	}

	points, err := layout.Compute(sub, algorithm)
	if err != nil {
		return nil, err
	}

	viz := &Visualization{
		Algorithm: algorithm,
		Subgraph:  sub,
		Points:    points,
	}
	s.layouts.Add(cacheKey, viz)
	return viz, nil
}

// layoutCacheKey folds the graph's change token into the key so any
// mutation, including in-place node and edge updates, invalidates
// cached layouts without explicit tracking.
func (s *Service) layoutCacheKey(rootID string, algorithm layout.Algorithm, expand graph.ExpandOptions) (string, error) {
	token, err := s.db.ChangeToken()
	if err != nil {
		return "", fmt.Errorf("graph change token: %w", err)
	}
	return fmt.Sprintf("%s|%s|%d|%d|%g|%v|%v|%s",
		rootID, algorithm, expand.Depth, expand.MaxNodes, expand.MinStrength,
		expand.NodeTypes, expand.EdgeTypes, token), nil
}

// SearchNodes runs a full-text query over node names and descriptions.
func (s *Service) SearchNodes(queryStr string, nodeType graph.NodeType, limit int) ([]*graph.NodeMatch, error) {
	if s.index == nil {
		return nil, ErrSearchDisabled
	}
	if queryStr == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidParameter)
	}
	if nodeType != "" && !nodeType.IsValid() {
		return nil, fmt.Errorf("%w: unknown node type %q", ErrInvalidParameter, nodeType)
	}
	return s.index.Search(queryStr, nodeType, limit)
}

// Stats reports graph-wide counts.
func (s *Service) Stats() (*graph.Stats, error) {
	return s.db.Stats()
}

// =============================================================================
// Computation jobs
// =============================================================================

// SubmitComputation queues a score computation job and starts it in the
// background. Non-operators may only submit per-user jobs targeting
// their own node.
func (s *Service) SubmitComputation(principal Principal, jobType jobs.JobType, target string, parameters map[string]any) (*jobs.Job, error) {
	if !principal.Operator {
		if jobType != jobs.JobTypePerUser || target == "" || target != principal.UserID {
			return nil, fmt.Errorf("%w: only operators may submit %s jobs", ErrForbidden, jobType)
		}
	}

	job, err := s.manager.Submit(jobType, target, parameters)
	if err != nil {
		return nil, err
	}

	s.manager.RunAsync(job.ID)
	s.logger.Info("computation submitted",
		"job_id", job.ID,
		"type", job.Type,
		"target", job.Target)
	return job, nil
}

// GetComputationStatus returns the current job record.
func (s *Service) GetComputationStatus(jobID string) (*jobs.Job, error) {
	if jobID == "" {
		return nil, fmt.Errorf("%w: job id is required", ErrInvalidParameter)
	}
	return s.manager.Status(jobID)
}

// CancelComputation stops a running job. Operator only.
func (s *Service) CancelComputation(principal Principal, jobID string) error {
	if !principal.Operator {
		return fmt.Errorf("%w: job cancellation requires operator", ErrForbidden)
	}
	if jobID == "" {
		return fmt.Errorf("%w: job id is required", ErrInvalidParameter)
	}
	return s.manager.Cancel(jobID)
}

// ListJobs returns recent jobs, optionally filtered by status. Operator
// only: job records expose targets and failure details across users.
func (s *Service) ListJobs(principal Principal, status jobs.JobStatus, limit int) ([]*jobs.Job, error) {
	if !principal.Operator {
		return nil, fmt.Errorf("%w: job listing requires operator", ErrForbidden)
	}
	if status != "" && !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown job status %q", ErrInvalidParameter, status)
	}
	return s.manager.Store().List(status, limit)
}
