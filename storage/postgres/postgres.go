// Package postgres provides a PostgreSQL implementation of the replygate.Store interface.
// Documents live in a single JSONB table keyed by the namespaced store key.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/replygate/pkg/replygate"
)

const (
	createTable = `CREATE TABLE IF NOT EXISTS %s (
		key        TEXT PRIMARY KEY,
		doc        JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`
	createIndex = `CREATE INDEX IF NOT EXISTS %s ON %s (updated_at)`
)

// Storage implements replygate.Store using PostgreSQL
type Storage struct {
	pool   *pgxpool.Pool
	config Config

	// stopCleanup cancels the background cleanup goroutine
	stopCleanup func()
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Table is the document table name (default: "kv_documents")
	Table string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// EnsureSchema creates the table on startup when it does not exist
	EnsureSchema bool

	// Cleanup configuration. Documents untouched for longer than StaleAfter are deleted;
	// users that come back simply start from defaults.
	CleanupEnabled  bool
	CleanupInterval time.Duration
	StaleAfter      time.Duration

	// CleanupPrefixes limits cleanup to engine-written keys (default: usage and logs).
	// Keyword and settings documents belong to the configuration surface and are never removed.
	CleanupPrefixes []string
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Table:           "kv_documents",
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		EnsureSchema:    true,
		CleanupEnabled:  false,
		CleanupInterval: time.Hour,
		StaleAfter:      365 * 24 * time.Hour,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}
	if config.Table == "" {
		config.Table = "kv_documents"
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Hour
	}
	if len(config.CleanupPrefixes) == 0 {
		config.CleanupPrefixes = []string{replygate.UsageKey(""), replygate.LogsKey("")}
	}

	// Parse connection string
	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	// Apply pool settings
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if config.EnsureSchema {
		if err := ensureSchema(ctx, pool, config.Table); err != nil {
			pool.Close()
			return nil, err
		}
	}

	cleanupCtx, cancel := context.WithCancel(context.Background())
	s := &Storage{
		pool:        pool,
		config:      config,
		stopCleanup: cancel,
	}

	if config.CleanupEnabled && config.StaleAfter > 0 {
		go s.startCleanup(cleanupCtx)
	}

	return s, nil
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool, table string) error {
	tableIdent := pgx.Identifier{table}.Sanitize()
	indexIdent := pgx.Identifier{table + "_updated_at_idx"}.Sanitize()

	if _, err := pool.Exec(ctx, fmt.Sprintf(createTable, tableIdent)); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf(createIndex, indexIdent, tableIdent)); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// Close closes the PostgreSQL connection pool and stops background cleanup
func (s *Storage) Close() {
	if s.stopCleanup != nil {
		s.stopCleanup()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Storage) table() string {
	return pgx.Identifier{s.config.Table}.Sanitize()
}

// Get implements replygate.Store
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM `+s.table()+` WHERE key = $1`, key).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, replygate.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return doc, nil
}

// Set implements replygate.Store
func (s *Storage) Set(ctx context.Context, key string, doc []byte) error {
	if key == "" {
		return fmt.Errorf("invalid key")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (key, doc, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (key) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`,
		key, string(doc))
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// startCleanup runs periodic deletion of stale documents until ctx is canceled
func (s *Storage) startCleanup(ctx context.Context) {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Errors are retried on the next tick
			_, _ = s.Cleanup(ctx)
		}
	}
}

// Cleanup deletes documents under CleanupPrefixes not updated within StaleAfter
// and returns how many were removed
func (s *Storage) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.config.StaleAfter)
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+s.table()+` WHERE updated_at < $1 AND key LIKE ANY($2)`,
		cutoff, likePatterns(s.config.CleanupPrefixes))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup stale documents: %w", err)
	}
	return tag.RowsAffected(), nil
}

// likePatterns turns key prefixes into LIKE patterns, escaping the wildcards
func likePatterns(prefixes []string) []string {
	escape := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	patterns := make([]string, len(prefixes))
	for i, p := range prefixes {
		patterns[i] = escape.Replace(p) + "%"
	}
	return patterns
}

// Ping checks the PostgreSQL connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
