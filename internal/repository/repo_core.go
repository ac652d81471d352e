// Package repository is the Postgres-backed storage layer: connection
// pooling, schema management, sanitization helpers shared with
// internal/handlers, the cursor row, the dead-letter queue, and the
// read queries the HTTP surface and the verifier run against.
//
// Grounded on the teacher's internal/repository/repo_core.go: pgxpool
// construction driven by env-var pool tuning, per-connection runtime
// parameters to bound runaway statements, schema creation inside New,
// and a Close method.
package repository

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository wraps a pgxpool.Pool with the schema and query surface the
// indexer needs. Safe for concurrent use.
type Repository struct {
	db *pgxpool.Pool
}

// Config controls pool construction. Zero values fall back to the same
// defaults the teacher used (env-var overridable).
type Config struct {
	DSN string
}

// New dials the database, applies pool tuning, and ensures the schema
// exists.
func New(ctx context.Context, cfg Config) (*Repository, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("repository: parse dsn: %w", err)
	}

	if v := os.Getenv("DB_MAX_OPEN_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			pcfg.MaxConns = int32(n)
		}
	}
	if v := os.Getenv("DB_MAX_IDLE_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			pcfg.MinConns = int32(n)
		}
	}
	pcfg.MaxConnLifetime = 30 * time.Minute
	pcfg.MaxConnIdleTime = 5 * time.Minute

	if pcfg.ConnConfig.RuntimeParams == nil {
		pcfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	pcfg.ConnConfig.RuntimeParams["statement_timeout"] = envDefault("DB_STATEMENT_TIMEOUT", "300000")
	pcfg.ConnConfig.RuntimeParams["idle_in_transaction_session_timeout"] = envDefault("DB_IDLE_TX_TIMEOUT", "120000")

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("repository: connect: %w", err)
	}

	repo := &Repository{db: pool}
	if err := repo.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("repository: ensure schema: %w", err)
	}
	return repo, nil
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Close releases pool resources.
func (r *Repository) Close() {
	r.db.Close()
}

// Pool exposes the underlying pool for callers that need to open their
// own transactions; the event buffer goes through WithTx instead.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.db
}

func (r *Repository) ensureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schemaDDL)
	return err
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any error (including a panic, which is re-raised after
// rollback).
func (r *Repository) WithTx(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()
	defer tx.Rollback(ctx)

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SanitizeForPG strips NUL bytes and invalid UTF-8 so Postgres never
// rejects a row over wire-format garbage in string columns.
func SanitizeForPG(s string) string {
	if strings.ContainsRune(s, 0) {
		s = strings.ReplaceAll(s, "\x00", "")
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return s
}

// SanitizeBytesForPG applies SanitizeForPG (NUL stripping and removal of
// invalid UTF-8) to a byte slice. The UTF-8 step can alter binary data,
// so the result suits text columns, not bytea.
func SanitizeBytesForPG(b []byte) []byte {
	if b == nil {
		return nil
	}
	return []byte(SanitizeForPG(string(b)))
}
