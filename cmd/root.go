// Package cmd provides the repgraph CLI commands.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/halcyonlabs/repgraph/core/config"
	"github.com/halcyonlabs/repgraph/core/graph"
	"github.com/halcyonlabs/repgraph/core/jobs"
	"github.com/halcyonlabs/repgraph/core/query"
	"github.com/halcyonlabs/repgraph/core/scoring"
)

// =============================================================================
// Root Command
// =============================================================================

var (
	rootConfigPath string
	rootDBPath     string
	rootIndexPath  string
	rootAsUser     string
	rootOperator   bool
	rootVerbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "repgraph",
	Short: "Repgraph - a reputation graph and scoring engine",
	Long: `Repgraph stores a typed graph of users, missions, communities, tags,
and activities, computes bounded per-domain reputation scores from the
relationships between them, and serves graph neighborhoods and
deterministic visualization layouts.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&rootDBPath, "db", "", "Path to the graph database (overrides config)")
	rootCmd.PersistentFlags().StringVar(&rootIndexPath, "index", "", "Path to the search index (overrides config)")
	rootCmd.PersistentFlags().StringVar(&rootAsUser, "as-user", "", "Act as this user node ID")
	rootCmd.PersistentFlags().BoolVar(&rootOperator, "operator", false, "Act with operator privileges")
	rootCmd.PersistentFlags().BoolVarP(&rootVerbose, "verbose", "v", false, "Enable debug logging")
}

// =============================================================================
// Environment
// =============================================================================

// env bundles the open database, job manager, and query service for one
// command invocation.
type env struct {
	cfg     *config.Config
	db      *graph.DB
	index   *graph.NodeIndex
	manager *jobs.Manager
	service *query.Service
	logger  *slog.Logger
}

// newEnv opens everything a command needs. withIndex controls whether
// the search index is opened; commands that never search skip it so
// they do not contend for the index lock.
func newEnv(withIndex bool) (*env, error) {
	logger := newLogger()

	mgr := config.NewManager(rootConfigPath)
	if err := mgr.Load(); err != nil {
		return nil, err
	}
	cfg := mgr.Get()

	dbPath := cfg.Storage.DatabasePath
	if rootDBPath != "" {
		dbPath = rootDBPath
	}

	db, err := graph.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	var index *graph.NodeIndex
	if withIndex {
		indexPath := cfg.Storage.IndexPath
		if rootIndexPath != "" {
			indexPath = rootIndexPath
		}
		index, err = graph.OpenNodeIndex(indexPath, graph.NewNodeStore(db), cfg.Cache.NodeCacheSize)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("open search index: %w", err)
		}
	}

	engine := scoring.NewEngine(scoring.Config{
		SquashK:           cfg.Scoring.SquashK,
		DecayHalfLifeDays: cfg.Scoring.DecayHalfLifeDays,
		EvidenceScale:     cfg.Scoring.EvidenceScale,
		Domains:           scoring.DefaultConfig().Domains,
	})

	manager := jobs.NewManager(db, engine, jobs.RunnerConfig{
		Workers:     cfg.Jobs.Workers,
		Depth:       cfg.Traversal.DefaultDepth,
		MaxNodes:    cfg.Traversal.DefaultMaxNodes,
		MinStrength: cfg.Traversal.DefaultMinStrength,
	}, logger)

	service, err := query.NewService(db, manager, index, query.Options{
		DefaultDepth:       cfg.Traversal.DefaultDepth,
		DefaultMaxNodes:    cfg.Traversal.DefaultMaxNodes,
		DefaultMinStrength: cfg.Traversal.DefaultMinStrength,
		ScoreTTL:           cfg.Cache.ScoreTTL,
		ScoreMaxEntries:    cfg.Cache.ScoreMaxEntries,
		LayoutCacheSize:    cfg.Cache.LayoutCacheSize,
	}, logger)
	if err != nil {
		if index != nil {
			index.Close()
		}
		db.Close()
		return nil, err
	}

	return &env{
		cfg:     cfg,
		db:      db,
		index:   index,
		manager: manager,
		service: service,
		logger:  logger,
	}, nil
}

func (e *env) close() {
	e.manager.Wait()
	e.service.Close()
	if e.index != nil {
		e.index.Close()
	}
	e.db.Close()
}

func (e *env) principal() query.Principal {
	return query.Principal{UserID: rootAsUser, Operator: rootOperator}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if rootVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// printJSON writes a value as indented JSON, the output format shared
// by all commands.
func printJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
