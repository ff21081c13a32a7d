package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"gopkg.in/yaml.v3"
)

type Manager struct {
	configPtr unsafe.Pointer
	path      string
	watchers  []func(*Config)
	watcherMu sync.RWMutex
	stopWatch chan struct{}
	watchOnce sync.Once
}

type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Traversal TraversalConfig `yaml:"traversal"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Cache     CacheConfig     `yaml:"cache"`
}

type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	IndexPath    string `yaml:"index_path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type ScoringConfig struct {
	SquashK           float64 `yaml:"squash_k"`
	DecayHalfLifeDays float64 `yaml:"decay_half_life_days"`
	EvidenceScale     float64 `yaml:"evidence_scale"`
}

type TraversalConfig struct {
	DefaultDepth       int     `yaml:"default_depth"`
	DefaultMaxNodes    int     `yaml:"default_max_nodes"`
	DefaultMinStrength float64 `yaml:"default_min_strength"`
}

type JobsConfig struct {
	Workers int `yaml:"workers"`
}

type CacheConfig struct {
	ScoreTTL        time.Duration `yaml:"score_ttl"`
	ScoreMaxEntries int64         `yaml:"score_max_entries"`
	NodeCacheSize   int           `yaml:"node_cache_size"`
	LayoutCacheSize int           `yaml:"layout_cache_size"`
}

func NewManager(path string) *Manager {
	m := &Manager{
		path:      path,
		stopWatch: make(chan struct{}),
	}
	cfg := DefaultConfig()
	atomic.StorePointer(&m.configPtr, unsafe.Pointer(cfg))
	return m
}

func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DatabasePath: "repgraph.db",
			IndexPath:    "repgraph.bleve",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Scoring: ScoringConfig{
			SquashK:           3.0,
			DecayHalfLifeDays: 30,
			EvidenceScale:     8.0,
		},
		Traversal: TraversalConfig{
			DefaultDepth:       2,
			DefaultMaxNodes:    100,
			DefaultMinStrength: 0.2,
		},
		Jobs: JobsConfig{
			Workers: 4,
		},
		Cache: CacheConfig{
			ScoreTTL:        5 * time.Minute,
			ScoreMaxEntries: 10000,
			NodeCacheSize:   4096,
			LayoutCacheSize: 128,
		},
	}
}

func (m *Manager) Get() *Config {
	return (*Config)(atomic.LoadPointer(&m.configPtr))
}

func (m *Manager) Load() error {
	cfg := DefaultConfig()

	if err := m.loadYAMLFile(m.path, cfg); err != nil {
		return fmt.Errorf("config file: %w", err)
	}

	m.applyEnvironment(cfg)

	atomic.StorePointer(&m.configPtr, unsafe.Pointer(cfg))
	m.notifyWatchers(cfg)

	return nil
}

func (m *Manager) loadYAMLFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func (m *Manager) applyEnvironment(cfg *Config) {
	if v := os.Getenv("REPGRAPH_DATABASE_PATH"); v != "" {
		cfg.Storage.DatabasePath = v
	}
	if v := os.Getenv("REPGRAPH_INDEX_PATH"); v != "" {
		cfg.Storage.IndexPath = v
	}
	if v := os.Getenv("REPGRAPH_SCORING_SQUASH_K"); v != "" {
		if f, err := parseFloat(v); err == nil {
			cfg.Scoring.SquashK = f
		}
	}
	if v := os.Getenv("REPGRAPH_SCORING_HALF_LIFE_DAYS"); v != "" {
		if f, err := parseFloat(v); err == nil {
			cfg.Scoring.DecayHalfLifeDays = f
		}
	}
	if v := os.Getenv("REPGRAPH_TRAVERSAL_DEPTH"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Traversal.DefaultDepth = n
		}
	}
	if v := os.Getenv("REPGRAPH_TRAVERSAL_MAX_NODES"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Traversal.DefaultMaxNodes = n
		}
	}
	if v := os.Getenv("REPGRAPH_JOB_WORKERS"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Jobs.Workers = n
		}
	}
	if v := os.Getenv("REPGRAPH_SCORE_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.ScoreTTL = d
		}
	}
	if v := os.Getenv("REPGRAPH_CACHE_DISABLED"); v != "" {
		if strings.ToLower(v) == "true" {
			cfg.Cache.ScoreMaxEntries = 0
		}
	}
}

func (m *Manager) OnChange(fn func(*Config)) {
	m.watcherMu.Lock()
	m.watchers = append(m.watchers, fn)
	m.watcherMu.Unlock()
}

func (m *Manager) notifyWatchers(cfg *Config) {
	m.watcherMu.RLock()
	watchers := m.watchers
	m.watcherMu.RUnlock()

	for _, fn := range watchers {
		fn(cfg)
	}
}

func (m *Manager) Reload() error {
	return m.Load()
}

func (m *Manager) Close() error {
	m.watchOnce.Do(func() {
		close(m.stopWatch)
	})
	return nil
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func parseFloat(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(s, "%f", &f)
	return f, err
}
