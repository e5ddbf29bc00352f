package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/hostmesh/hostmesh/internal/config"
)

// schema is applied at startup; idempotent so every replica can run it.
// The sessions foreign keys are the defense-in-depth half of the referential
// invariant; the session manager terminates dependents before a host or zone
// record is removed.
const schema = `
CREATE TABLE IF NOT EXISTS hosts (
	id                   TEXT PRIMARY KEY,
	player_id            TEXT NOT NULL,
	player_name          TEXT NOT NULL DEFAULT '',
	ip_address           TEXT NOT NULL,
	port                 INTEGER NOT NULL,
	public_ip            TEXT NOT NULL DEFAULT '',
	cpu_cores            INTEGER NOT NULL DEFAULT 0,
	cpu_frequency_mhz    DOUBLE PRECISION NOT NULL DEFAULT 0,
	memory_mb            INTEGER NOT NULL DEFAULT 0,
	network_speed_mbps   DOUBLE PRECISION NOT NULL DEFAULT 0,
	latency_ms           DOUBLE PRECISION NOT NULL DEFAULT 0,
	packet_loss_percent  DOUBLE PRECISION NOT NULL DEFAULT 0,
	bandwidth_usage_mbps DOUBLE PRECISION NOT NULL DEFAULT 0,
	status               TEXT NOT NULL,
	max_players          INTEGER NOT NULL DEFAULT 0,
	current_players      INTEGER NOT NULL DEFAULT 0,
	max_zones            INTEGER NOT NULL DEFAULT 0,
	current_zones        INTEGER NOT NULL DEFAULT 0,
	quality_score        DOUBLE PRECISION NOT NULL DEFAULT 0,
	last_heartbeat       TIMESTAMPTZ NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL,
	extra_metadata       JSONB NOT NULL DEFAULT '{}',
	CONSTRAINT hosts_player_capacity CHECK (current_players >= 0 AND current_players <= max_players),
	CONSTRAINT hosts_zone_capacity   CHECK (current_zones >= 0 AND current_zones <= max_zones)
);
CREATE INDEX IF NOT EXISTS hosts_status_idx ON hosts (status);
CREATE INDEX IF NOT EXISTS hosts_heartbeat_idx ON hosts (last_heartbeat);

CREATE TABLE IF NOT EXISTS zones (
	id                     TEXT PRIMARY KEY,
	name                   TEXT NOT NULL,
	map_name               TEXT NOT NULL,
	min_host_quality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	min_bandwidth_mbps     DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_latency_ms         DOUBLE PRECISION NOT NULL DEFAULT 0,
	p2p_enabled            BOOLEAN NOT NULL DEFAULT FALSE,
	p2p_priority           INTEGER NOT NULL DEFAULT 0,
	fallback_enabled       BOOLEAN NOT NULL DEFAULT TRUE,
	status                 TEXT NOT NULL,
	max_players            INTEGER NOT NULL DEFAULT 0,
	recommended_players    INTEGER NOT NULL DEFAULT 0,
	created_at             TIMESTAMPTZ NOT NULL,
	updated_at             TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id                          TEXT PRIMARY KEY,
	host_id                     TEXT NOT NULL REFERENCES hosts (id),
	zone_id                     TEXT NOT NULL REFERENCES zones (id),
	status                      TEXT NOT NULL,
	connected_players           TEXT[] NOT NULL DEFAULT '{}',
	current_players             INTEGER NOT NULL DEFAULT 0,
	max_players                 INTEGER NOT NULL DEFAULT 0,
	average_latency_ms          DOUBLE PRECISION NOT NULL DEFAULT 0,
	average_packet_loss_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
	bandwidth_usage_mbps        DOUBLE PRECISION NOT NULL DEFAULT 0,
	quality_score               DOUBLE PRECISION NOT NULL DEFAULT 0,
	player_satisfaction_score   DOUBLE PRECISION NOT NULL DEFAULT 0,
	capacity_released           BOOLEAN NOT NULL DEFAULT FALSE,
	created_at                  TIMESTAMPTZ NOT NULL,
	started_at                  TIMESTAMPTZ,
	ended_at                    TIMESTAMPTZ,
	metrics_updated_at          TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS sessions_host_idx ON sessions (host_id, status);
CREATE INDEX IF NOT EXISTS sessions_zone_idx ON sessions (zone_id, status);
CREATE INDEX IF NOT EXISTS sessions_status_idx ON sessions (status);
`

// Postgres is the production Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// NewPostgres connects to the database, applies the schema and returns the
// store. The pool is owned by the returned store and released by Close.
func NewPostgres(ctx context.Context, cfg *config.Config) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.URL)
	if err != nil {
		return nil, errors.Wrap(err, "parse postgres config")
	}
	if cfg.Postgres.MaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.Postgres.MaxConnections)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, "create postgres pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "apply schema")
	}

	return &Postgres{pool: pool}, nil
}

// Ping verifies database connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error so a failed capacity mutation never half-applies.
func (p *Postgres) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(ctx), "commit tx")
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
