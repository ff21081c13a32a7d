package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/halcyonlabs/repgraph/core/graph"
	"github.com/halcyonlabs/repgraph/core/scoring"
)

var (
	ErrInvalidTarget = errors.New("invalid job target")
	ErrJobNotRunning = errors.New("job is not running")
)

// RunnerConfig tunes job execution.
type RunnerConfig struct {
	// Workers bounds how many units run in parallel, keeping traversal
	// load on the store bounded. Defaults to 4.
	Workers int

	// Depth, MaxNodes, MinStrength are the traversal parameters used
	// for scoring subgraphs. Job parameters may override them per run.
	Depth       int
	MaxNodes    int
	MinStrength float64
}

// DefaultRunnerConfig returns the runner defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Workers:     4,
		Depth:       2,
		MaxNodes:    100,
		MinStrength: 0.0,
	}
}

func (c RunnerConfig) normalized() RunnerConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Depth < graph.MinTraversalDepth || c.Depth > graph.MaxTraversalDepth {
		c.Depth = 2
	}
	if c.MaxNodes < 1 || c.MaxNodes > graph.MaxTraversalNodes {
		c.MaxNodes = 100
	}
	if c.MinStrength < 0 || c.MinStrength > 1 {
		c.MinStrength = 0
	}
	return c
}

// Manager owns the computation job lifecycle: it is the only writer of
// job state. Work inside a job fans out over a bounded worker pool;
// each unit (one user) touches disjoint score rows, so units never
// contend with each other.
type Manager struct {
	store     *JobStore
	nodes     *graph.NodeStore
	traverser *graph.Traverser
	engine    *scoring.Engine
	scores    *scoring.ScoreStore
	cfg       RunnerConfig
	logger    *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager creates a Manager. A nil logger falls back to slog.Default().
func NewManager(db *graph.DB, engine *scoring.Engine, cfg RunnerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     NewJobStore(db),
		nodes:     graph.NewNodeStore(db),
		traverser: graph.NewTraverser(db),
		engine:    engine,
		scores:    scoring.NewScoreStore(db),
		cfg:       cfg.normalized(),
		logger:    logger,
	}
}

// Store exposes the underlying JobStore for read paths.
func (m *Manager) Store() *JobStore {
	return m.store
}

// Submit creates a new Queued job. At most one queued or running job
// may exist per (type, target); a second submission returns
// ErrDuplicateActiveJob.
func (m *Manager) Submit(jobType JobType, target string, parameters map[string]any) (*Job, error) {
	if jobType == JobTypePerDomain && !scoring.Domain(target).IsValid() {
		return nil, fmt.Errorf("%w: unknown domain %q", ErrInvalidTarget, target)
	}
	return m.store.Create(jobType, target, parameters)
}

// Status returns the job record for polling.
func (m *Manager) Status(jobID string) (*Job, error) {
	return m.store.Get(jobID)
}

// RunAsync executes the job on a background goroutine. Use Cancel to
// request cooperative cancellation and Wait to drain on shutdown.
func (m *Manager) RunAsync(jobID string) {
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if m.cancels == nil {
		m.cancels = make(map[string]context.CancelFunc)
	}
	m.cancels[jobID] = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.cancels, jobID)
			m.mu.Unlock()
			cancel()
		}()

		if err := m.Run(ctx, jobID); err != nil {
			m.logger.Error("job run failed", "job_id", jobID, "error", err)
		}
	}()
}

// Cancel requests cooperative cancellation of a running job. The flag
// is checked between units, so cancellation takes effect within one
// unit's latency; in-flight unit work finishes to avoid partial score
// writes.
func (m *Manager) Cancel(jobID string) error {
	m.mu.Lock()
	cancel, ok := m.cancels[jobID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotRunning, jobID)
	}
	cancel()
	return nil
}

// Wait blocks until all asynchronous jobs have drained.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Run executes one job to a terminal state. The job must be Queued.
func (m *Manager) Run(ctx context.Context, jobID string) error {
	job, err := m.store.Get(jobID)
	if err != nil {
		return err
	}

	startedAt := time.Now()
	if err := m.store.MarkRunning(job.ID, startedAt); err != nil {
		return err
	}

	units, domains, err := m.plan(job)
	if err != nil {
		// Fatal before any unit ran: planning needs the store.
		return m.store.Fail(job.ID, &JobError{
			Message: "computation planning failed",
			Details: err.Error(),
		}, nil, time.Now())
	}

	opts := m.expandOptions(job.Parameters)
	agg := m.runUnits(ctx, units, domains, opts)

	result := &JobResult{
		ProcessedNodes:  agg.nodes,
		ProcessedEdges:  agg.edges,
		GeneratedScores: agg.scores,
		Performance: map[string]float64{
			"units_total":  float64(len(units)),
			"units_ok":     float64(len(units) - agg.failed),
			"units_failed": float64(agg.failed),
			"duration_ms":  float64(time.Since(startedAt).Milliseconds()),
		},
	}

	switch {
	case ctx.Err() != nil:
		return m.store.Fail(job.ID, &JobError{
			Message: "job canceled",
			Details: ctx.Err().Error(),
		}, result, time.Now())
	case len(units) > 0 && agg.failed*2 > len(units):
		return m.store.Fail(job.ID, &JobError{
			Message: fmt.Sprintf("majority of units failed (%d of %d)", agg.failed, len(units)),
			Details: agg.firstError,
		}, result, time.Now())
	default:
		return m.store.Complete(job.ID, result, time.Now())
	}
}

// plan resolves the unit list (user node IDs) and domain list for a job.
func (m *Manager) plan(job *Job) ([]string, []scoring.Domain, error) {
	switch job.Type {
	case JobTypePerUser:
		if _, err := m.nodes.GetNodeByID(job.Target); err != nil {
			return nil, nil, fmt.Errorf("resolve target user %s: %w", job.Target, err)
		}
		return []string{job.Target}, scoring.ValidDomains(), nil
	case JobTypePerDomain:
		users, err := m.nodes.ListNodeIDs(graph.NodeTypeUser)
		if err != nil {
			return nil, nil, fmt.Errorf("list user nodes: %w", err)
		}
		return users, []scoring.Domain{scoring.Domain(job.Target)}, nil
	default:
		users, err := m.nodes.ListNodeIDs(graph.NodeTypeUser)
		if err != nil {
			return nil, nil, fmt.Errorf("list user nodes: %w", err)
		}
		return users, scoring.ValidDomains(), nil
	}
}

func (m *Manager) expandOptions(parameters map[string]any) graph.ExpandOptions {
	opts := graph.ExpandOptions{
		Depth:       m.cfg.Depth,
		MaxNodes:    m.cfg.MaxNodes,
		MinStrength: m.cfg.MinStrength,
	}
	if v, ok := paramInt(parameters, "depth"); ok && v >= graph.MinTraversalDepth && v <= graph.MaxTraversalDepth {
		opts.Depth = v
	}
	if v, ok := paramInt(parameters, "max_nodes"); ok && v >= 1 && v <= graph.MaxTraversalNodes {
		opts.MaxNodes = v
	}
	if v, ok := paramFloat(parameters, "min_strength"); ok && v >= 0 && v <= 1 {
		opts.MinStrength = v
	}
	return opts
}

type aggregate struct {
	mu         sync.Mutex
	nodes      int
	edges      int
	scores     int
	failed     int
	firstError string
}

// runUnits fans units out over the worker pool. The context is checked
// between units only: cancellation never interrupts a half-written
// user.
func (m *Manager) runUnits(ctx context.Context, units []string, domains []scoring.Domain, opts graph.ExpandOptions) *aggregate {
	agg := &aggregate{}
	unitCh := make(chan string)

	var wg sync.WaitGroup
	for i := 0; i < m.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for unit := range unitCh {
				if ctx.Err() != nil {
					continue
				}
				m.runUnit(unit, domains, opts, agg)
			}
		}()
	}

	for _, unit := range units {
		if ctx.Err() != nil {
			break
		}
		unitCh <- unit
	}
	close(unitCh)
	wg.Wait()

	return agg
}

// runUnit scores one user. Failures are counted and logged, never
// propagated: a single bad node must not abort the whole run.
func (m *Manager) runUnit(userID string, domains []scoring.Domain, opts graph.ExpandOptions, agg *aggregate) {
	sub, err := m.traverser.Expand(userID, opts)
	if err != nil {
		m.recordFailure(agg, userID, fmt.Errorf("expand: %w", err))
		return
	}

	written := 0
	for _, domain := range domains {
		score, err := m.engine.ComputeScore(userID, domain, "", sub)
		if err != nil {
			m.recordFailure(agg, userID, fmt.Errorf("compute %s: %w", domain, err))
			return
		}
		if err := m.scores.Upsert(score); err != nil {
			m.recordFailure(agg, userID, fmt.Errorf("persist %s: %w", domain, err))
			return
		}
		written++
	}

	agg.mu.Lock()
	agg.nodes += len(sub.Nodes)
	agg.edges += len(sub.Edges)
	agg.scores += written
	agg.mu.Unlock()
}

func (m *Manager) recordFailure(agg *aggregate, userID string, err error) {
	m.logger.Warn("computation unit failed", "user_node_id", userID, "error", err)
	agg.mu.Lock()
	agg.failed++
	if agg.firstError == "" {
		agg.firstError = fmt.Sprintf("user %s: %v", userID, err)
	}
	agg.mu.Unlock()
}

func paramInt(params map[string]any, key string) (int, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func paramFloat(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
