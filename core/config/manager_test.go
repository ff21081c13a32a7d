package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Storage.DatabasePath != "repgraph.db" {
		t.Errorf("Storage.DatabasePath: got %s, want repgraph.db", cfg.Storage.DatabasePath)
	}
	if cfg.Scoring.SquashK != 3.0 {
		t.Errorf("Scoring.SquashK: got %v, want 3", cfg.Scoring.SquashK)
	}
	if cfg.Scoring.DecayHalfLifeDays != 30 {
		t.Errorf("Scoring.DecayHalfLifeDays: got %v, want 30", cfg.Scoring.DecayHalfLifeDays)
	}
	if cfg.Traversal.DefaultDepth != 2 {
		t.Errorf("Traversal.DefaultDepth: got %d, want 2", cfg.Traversal.DefaultDepth)
	}
	if cfg.Jobs.Workers != 4 {
		t.Errorf("Jobs.Workers: got %d, want 4", cfg.Jobs.Workers)
	}
	if cfg.Cache.ScoreTTL != 5*time.Minute {
		t.Errorf("Cache.ScoreTTL: got %v, want 5m", cfg.Cache.ScoreTTL)
	}
}

func TestManagerGet(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "config.yaml"))

	cfg := m.Get()
	if cfg == nil {
		t.Fatal("Get() returned nil")
	}
	if cfg.Storage.DatabasePath != "repgraph.db" {
		t.Errorf("unloaded manager should hold defaults, got %s", cfg.Storage.DatabasePath)
	}
}

func TestManagerLoadMissingFile(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "does-not-exist.yaml"))

	if err := m.Load(); err != nil {
		t.Fatalf("Load() with missing file: %v", err)
	}
	if m.Get().Jobs.Workers != 4 {
		t.Errorf("missing file should leave defaults, got %d workers", m.Get().Jobs.Workers)
	}
}

func TestManagerLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	content := `
storage:
  database_path: /var/lib/repgraph/graph.db
scoring:
  squash_k: 5.0
traversal:
  default_depth: 3
jobs:
  workers: 8
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	m := NewManager(path)
	if err := m.Load(); err != nil {
		t.Fatalf("Load(): %v", err)
	}

	cfg := m.Get()
	if cfg.Storage.DatabasePath != "/var/lib/repgraph/graph.db" {
		t.Errorf("Storage.DatabasePath: got %s", cfg.Storage.DatabasePath)
	}
	if cfg.Scoring.SquashK != 5.0 {
		t.Errorf("Scoring.SquashK: got %v, want 5", cfg.Scoring.SquashK)
	}
	if cfg.Traversal.DefaultDepth != 3 {
		t.Errorf("Traversal.DefaultDepth: got %d, want 3", cfg.Traversal.DefaultDepth)
	}
	if cfg.Jobs.Workers != 8 {
		t.Errorf("Jobs.Workers: got %d, want 8", cfg.Jobs.Workers)
	}
	// Keys the file omits keep their defaults.
	if cfg.Scoring.DecayHalfLifeDays != 30 {
		t.Errorf("Scoring.DecayHalfLifeDays: got %v, want default 30", cfg.Scoring.DecayHalfLifeDays)
	}
	if cfg.Cache.ScoreMaxEntries != 10000 {
		t.Errorf("Cache.ScoreMaxEntries: got %d, want default 10000", cfg.Cache.ScoreMaxEntries)
	}
}

func TestManagerLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("storage: [not a map"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	m := NewManager(path)
	if err := m.Load(); err == nil {
		t.Error("Load() should fail on malformed YAML")
	}
}

func TestManagerEnvironmentOverrides(t *testing.T) {
	t.Setenv("REPGRAPH_DATABASE_PATH", "/tmp/env.db")
	t.Setenv("REPGRAPH_SCORING_SQUASH_K", "4.5")
	t.Setenv("REPGRAPH_TRAVERSAL_MAX_NODES", "250")
	t.Setenv("REPGRAPH_JOB_WORKERS", "2")
	t.Setenv("REPGRAPH_SCORE_CACHE_TTL", "90s")

	m := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	if err := m.Load(); err != nil {
		t.Fatalf("Load(): %v", err)
	}

	cfg := m.Get()
	if cfg.Storage.DatabasePath != "/tmp/env.db" {
		t.Errorf("Storage.DatabasePath: got %s", cfg.Storage.DatabasePath)
	}
	if cfg.Scoring.SquashK != 4.5 {
		t.Errorf("Scoring.SquashK: got %v, want 4.5", cfg.Scoring.SquashK)
	}
	if cfg.Traversal.DefaultMaxNodes != 250 {
		t.Errorf("Traversal.DefaultMaxNodes: got %d, want 250", cfg.Traversal.DefaultMaxNodes)
	}
	if cfg.Jobs.Workers != 2 {
		t.Errorf("Jobs.Workers: got %d, want 2", cfg.Jobs.Workers)
	}
	if cfg.Cache.ScoreTTL != 90*time.Second {
		t.Errorf("Cache.ScoreTTL: got %v, want 90s", cfg.Cache.ScoreTTL)
	}
}

func TestManagerEnvironmentBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("jobs:\n  workers: 8\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("REPGRAPH_JOB_WORKERS", "3")

	m := NewManager(path)
	if err := m.Load(); err != nil {
		t.Fatalf("Load(): %v", err)
	}
	if got := m.Get().Jobs.Workers; got != 3 {
		t.Errorf("Jobs.Workers: got %d, want env override 3", got)
	}
}

func TestManagerCacheDisabled(t *testing.T) {
	t.Setenv("REPGRAPH_CACHE_DISABLED", "true")

	m := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	if err := m.Load(); err != nil {
		t.Fatalf("Load(): %v", err)
	}
	if got := m.Get().Cache.ScoreMaxEntries; got != 0 {
		t.Errorf("Cache.ScoreMaxEntries: got %d, want 0", got)
	}
}

func TestManagerOnChange(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "config.yaml"))

	var notified *Config
	m.OnChange(func(cfg *Config) { notified = cfg })

	if err := m.Load(); err != nil {
		t.Fatalf("Load(): %v", err)
	}
	if notified == nil {
		t.Fatal("watcher was not notified")
	}
	if notified != m.Get() {
		t.Error("watcher should receive the active config")
	}
}

func TestManagerReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m := NewManager(path)
	if err := m.Load(); err != nil {
		t.Fatalf("Load(): %v", err)
	}

	if err := os.WriteFile(path, []byte("jobs:\n  workers: 16\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := m.Reload(); err != nil {
		t.Fatalf("Reload(): %v", err)
	}
	if got := m.Get().Jobs.Workers; got != 16 {
		t.Errorf("Jobs.Workers after reload: got %d, want 16", got)
	}
}
