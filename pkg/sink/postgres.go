package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/Sternrassler/feature-harvester/pkg/harvest"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig controls the connection pool and target table.
type PostgresConfig struct {
	DSN             string
	Table           string
	Layer           string
	IdentifierField string
	CreateTable     bool
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresSink inserts one row per record, tagged with a run id.
type PostgresSink struct {
	pool  execCloser
	table string
	layer string
	field string
	runID uuid.UUID
}

// NewPostgresSink connects to Postgres and optionally creates the table.
func NewPostgresSink(ctx context.Context, cfg PostgresConfig) (*PostgresSink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
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

	s, err := newPostgresSink(pool, table, cfg.Layer, cfg.IdentifierField)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if cfg.CreateTable {
		if err := s.EnsureTable(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewPostgresSinkWithPool constructs a sink from an existing pool (primarily for testing).
func NewPostgresSinkWithPool(pool execCloser, table, layer, identifierField string) (*PostgresSink, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return newPostgresSink(pool, table, layer, identifierField)
}

func newPostgresSink(pool execCloser, table, layer, field string) (*PostgresSink, error) {
	runID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	return &PostgresSink{pool: pool, table: table, layer: layer, field: field, runID: runID}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = "harvested_features"
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// RunID identifies the rows written by this sink.
func (s *PostgresSink) RunID() uuid.UUID {
	return s.runID
}

// EnsureTable creates the target table when missing.
func (s *PostgresSink) EnsureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id uuid NOT NULL,
	layer text NOT NULL,
	object_id bigint,
	attributes jsonb NOT NULL,
	geometry jsonb,
	harvested_at timestamptz NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Write implements Sink.
func (s *PostgresSink) Write(ctx context.Context, rec harvest.Record) error {
	attrs := rec.Attributes()
	if attrs == nil {
		attrs = map[string]any{}
	}
	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}

	var geomJSON []byte
	if geom := rec.Geometry(); geom != nil {
		if geomJSON, err = json.Marshal(geom); err != nil {
			return fmt.Errorf("marshal geometry: %w", err)
		}
	}

	var objectID any
	if s.field != "" {
		if id, ok := rec.Identifier(s.field); ok {
			objectID = id
		}
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	layer,
	object_id,
	attributes,
	geometry
) VALUES (
	$1,$2,$3,$4,$5
)`, s.table)

	if _, err := s.pool.Exec(ctx, query, s.runID.String(), s.layer, objectID, attrsJSON, geomJSON); err != nil {
		harvestSinkWritesTotal.WithLabelValues("postgres", "error").Inc()
		return fmt.Errorf("insert record: %w", err)
	}
	harvestSinkWritesTotal.WithLabelValues("postgres", "ok").Inc()
	return nil
}

// Close releases the underlying pool resources.
func (s *PostgresSink) Close(context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
