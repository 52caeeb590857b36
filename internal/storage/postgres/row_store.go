// Package postgres persists consolidated movie rows to Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/movie-plot-crawler/internal/movie"
)

const (
	defaultTable = "movie_rows"
	// batchSize keeps each INSERT well under the 65535 bind-parameter limit.
	batchSize = 500
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// rowColumns mirrors the CSV columns; "cast" is a reserved word in Postgres.
var rowColumns = []string{
	"run_id", "movie", "year", "time_minute", "certificate", "imdb_rating",
	"genre", "cast_members", "directors", "plot",
}

// RowStoreConfig controls the Postgres connection pool used for movie rows.
type RowStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Ping(context.Context) error
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// RowStore writes movie rows into Postgres.
type RowStore struct {
	pool  execCloser
	table string
}

// NewRowStore creates a Postgres-backed RowStore using the provided config.
func NewRowStore(ctx context.Context, cfg RowStoreConfig) (*RowStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RowStore{pool: pool, table: table}, nil
}

// NewRowStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRowStoreWithPool(pool execCloser, table string) (*RowStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &RowStore{pool: pool, table: table}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *RowStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks that the pool can reach the database.
func (s *RowStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the rows table if it does not exist.
func (s *RowStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("row store is not configured")
	}
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id       TEXT NOT NULL,
	movie        TEXT NOT NULL,
	year         TEXT NOT NULL,
	time_minute  TEXT NOT NULL,
	certificate  TEXT,
	imdb_rating  DOUBLE PRECISION,
	genre        TEXT NOT NULL,
	cast_members TEXT,
	directors    TEXT,
	plot         TEXT NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// StoreRows inserts rows tagged with runID, batching multi-row INSERTs inside
// one transaction so a run is stored entirely or not at all.
func (s *RowStore) StoreRows(ctx context.Context, runID string, rows []movie.Row) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("row store is not configured")
	}
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		query, args, err := s.insertQuery(runID, rows[start:end])
		if err == nil {
			_, err = tx.Exec(ctx, query, args...)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
			return fmt.Errorf("insert rows %d-%d: %w", start, end-1, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

func (s *RowStore) insertQuery(runID string, rows []movie.Row) (string, []any, error) {
	builder := sq.Insert(s.table).
		Columns(rowColumns...).
		PlaceholderFormat(sq.Dollar)
	for _, r := range rows {
		builder = builder.Values(
			runID,
			r.Title,
			r.Year,
			r.Runtime,
			nullString(r.Certificate),
			nullFloat(r.Rating),
			r.Genre,
			nullString(r.Cast),
			nullString(r.Directors),
			r.Plot,
		)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build insert: %w", err)
	}
	return query, args, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
