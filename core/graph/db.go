package graph

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// timeLayout is fixed-width (no trimmed fractional digits) so stored
// timestamps compare lexicographically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func constraintViolation(err error, code sqlite3.ErrNoExtended) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == code
}

// DB wraps the sqlite database backing the reputation graph.
// All stores (nodes, edges, scores, jobs) share one DB so related
// writes can run in a single transaction.
type DB struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// DBConfig configures the database connection pool.
type DBConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Connection pool configuration bounds.
const (
	// MinOpenConns is the minimum allowed value for MaxOpenConns.
	MinOpenConns = 1
	// MaxOpenConnsLimit is the maximum allowed value for MaxOpenConns.
	MaxOpenConnsLimit = 200
	// DefaultMaxOpenConns is suitable for moderate workloads.
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is 40% of DefaultMaxOpenConns for good reuse.
	DefaultMaxIdleConns = 10
	// DefaultConnMaxLifetime prevents stale connections.
	DefaultConnMaxLifetime = time.Hour
	// DefaultConnMaxIdleTime releases idle connections after inactivity.
	DefaultConnMaxIdleTime = 30 * time.Minute
)

// DefaultDBConfig returns a configuration suitable for moderate workloads.
func DefaultDBConfig(path string) DBConfig {
	return DBConfig{
		Path:            path,
		MaxOpenConns:    DefaultMaxOpenConns,
		MaxIdleConns:    DefaultMaxIdleConns,
		ConnMaxLifetime: DefaultConnMaxLifetime,
		ConnMaxIdleTime: DefaultConnMaxIdleTime,
	}
}

// Validate checks the configuration values and returns an error if invalid.
func (c DBConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("db config: path is required")
	}
	if c.MaxOpenConns < MinOpenConns || c.MaxOpenConns > MaxOpenConnsLimit {
		return fmt.Errorf("db config: MaxOpenConns must be between %d and %d, got %d",
			MinOpenConns, MaxOpenConnsLimit, c.MaxOpenConns)
	}
	if c.MaxIdleConns < 0 {
		return fmt.Errorf("db config: MaxIdleConns must be non-negative, got %d", c.MaxIdleConns)
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("db config: MaxIdleConns (%d) cannot exceed MaxOpenConns (%d)",
			c.MaxIdleConns, c.MaxOpenConns)
	}
	return nil
}

// Open opens a database with default configuration.
func Open(path string) (*DB, error) {
	return OpenWithConfig(DefaultDBConfig(path))
}

// OpenWithConfig opens a database with the given configuration.
// The configuration is validated before opening the database.
func OpenWithConfig(config DBConfig) (*DB, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_synchronous=normal&_busy_timeout=5000", config.Path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", config.Path, err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database at %s: %w", config.Path, err)
	}

	gdb := &DB{
		db:   db,
		path: config.Path,
	}

	if err := gdb.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database at %s: %w", config.Path, err)
	}

	return gdb, nil
}

func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}

	return d.db.Close()
}

func (d *DB) Migrate() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema on %s: %w", d.path, err)
	}

	return nil
}

func (d *DB) Vacuum() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.Exec("VACUUM")
	if err != nil {
		return fmt.Errorf("failed to vacuum database at %s: %w", d.path, err)
	}

	return nil
}

// Stats collects counts by node and edge type for dashboards.
func (d *DB) Stats() (*Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := &Stats{
		NodesByType: make(map[NodeType]int64),
		EdgesByType: make(map[EdgeType]int64),
	}

	if err := d.db.QueryRow("SELECT COUNT(*) FROM nodes").Scan(&stats.TotalNodes); err != nil {
		return nil, fmt.Errorf("failed to count nodes: %w", err)
	}

	if err := d.scanGroupedCounts("SELECT node_type, COUNT(*) FROM nodes GROUP BY node_type", func(key string, count int64) {
		stats.NodesByType[NodeType(key)] = count
	}); err != nil {
		return nil, fmt.Errorf("failed to count nodes by type: %w", err)
	}

	if err := d.db.QueryRow("SELECT COUNT(*) FROM edges").Scan(&stats.TotalEdges); err != nil {
		return nil, fmt.Errorf("failed to count edges: %w", err)
	}

	if err := d.scanGroupedCounts("SELECT edge_type, COUNT(*) FROM edges GROUP BY edge_type", func(key string, count int64) {
		stats.EdgesByType[EdgeType(key)] = count
	}); err != nil {
		return nil, fmt.Errorf("failed to count edges by type: %w", err)
	}

	if fileInfo, err := os.Stat(d.path); err == nil {
		stats.DBSizeBytes = fileInfo.Size()
	}

	return stats, nil
}

// ChangeToken returns a token that differs whenever graph contents
// change: row counts catch inserts and deletes, the latest update
// timestamps catch in-place updates. Timestamps are fixed-width, so
// MAX over them is the chronological maximum.
func (d *DB) ChangeToken() (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var nodeCount, edgeCount int64
	var nodeMax, edgeMax string
	if err := d.db.QueryRow("SELECT COUNT(*), COALESCE(MAX(updated_at), '') FROM nodes").Scan(&nodeCount, &nodeMax); err != nil {
		return "", fmt.Errorf("node change token: %w", err)
	}
	if err := d.db.QueryRow("SELECT COUNT(*), COALESCE(MAX(updated_at), '') FROM edges").Scan(&edgeCount, &edgeMax); err != nil {
		return "", fmt.Errorf("edge change token: %w", err)
	}
	return fmt.Sprintf("n%d@%s|e%d@%s", nodeCount, nodeMax, edgeCount, edgeMax), nil
}

func (d *DB) scanGroupedCounts(query string, handler func(key string, count int64)) error {
	rows, err := d.db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		handler(key, count)
	}

	return rows.Err()
}

func (d *DB) DB() *sql.DB {
	return d.db
}

func (d *DB) Path() string {
	return d.path
}

func (d *DB) BeginTx() (*sql.Tx, error) {
	return d.db.Begin()
}

func (d *DB) GetSchemaVersion() (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var version int
	err := d.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version from %s: %w", d.path, err)
	}
	return version, nil
}
