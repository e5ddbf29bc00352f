package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/hostmesh/hostmesh/models"
)

const sessionColumns = `id, host_id, zone_id, status, connected_players,
	current_players, max_players, average_latency_ms, average_packet_loss_percent,
	bandwidth_usage_mbps, quality_score, player_satisfaction_score,
	capacity_released, created_at, started_at, ended_at, metrics_updated_at`

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(
		&s.ID, &s.HostID, &s.ZoneID, &s.Status, &s.ConnectedPlayers,
		&s.CurrentPlayers, &s.MaxPlayers, &s.AverageLatencyMs, &s.AveragePacketLossPercent,
		&s.BandwidthUsageMbps, &s.QualityScore, &s.PlayerSatisfactionScore,
		&s.CapacityReleased, &s.CreatedAt, &s.StartedAt, &s.EndedAt, &s.MetricsUpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan session")
	}
	return &s, nil
}

// CreateSessionForHost reserves host capacity and inserts the session in one
// transaction. The host row is locked first, so two replicas creating
// sessions against the same host serialize on the capacity check.
func (p *Postgres) CreateSessionForHost(ctx context.Context, s *models.Session) error {
	return p.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+hostColumns+` FROM hosts WHERE id = $1 FOR UPDATE`, s.HostID)
		h, err := scanHost(row)
		if err != nil {
			return err
		}

		if h.Status != models.HostStatusOnline {
			return models.ErrHostOffline
		}
		if !h.HasZoneCapacity() {
			return models.ErrCapacityExceeded
		}
		if h.CurrentPlayers+len(s.ConnectedPlayers) > h.MaxPlayers {
			return models.ErrCapacityExceeded
		}

		h.CurrentZones++
		h.CurrentPlayers += len(s.ConnectedPlayers)
		h.QualityScore = models.ComputeQualityScore(h)
		h.UpdatedAt = nowUTC()
		if err := updateHostTx(ctx, tx, h); err != nil {
			return err
		}

		if s.ConnectedPlayers == nil {
			s.ConnectedPlayers = []string{}
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO sessions (`+sessionColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
			s.ID, s.HostID, s.ZoneID, s.Status, s.ConnectedPlayers,
			s.CurrentPlayers, s.MaxPlayers, s.AverageLatencyMs, s.AveragePacketLossPercent,
			s.BandwidthUsageMbps, s.QualityScore, s.PlayerSatisfactionScore,
			s.CapacityReleased, s.CreatedAt, s.StartedAt, s.EndedAt, s.MetricsUpdatedAt,
		)
		return errors.Wrap(err, "insert session")
	})
}

// GetSession returns the session or models.ErrNotFound.
func (p *Postgres) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (p *Postgres) listSessions(ctx context.Context, q string, args ...any) ([]*models.Session, error) {
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list sessions")
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, errors.Wrap(rows.Err(), "list sessions")
}

// ListSessionsByHost returns sessions bound to the host.
func (p *Postgres) ListSessionsByHost(ctx context.Context, hostID string, activeOnly bool) ([]*models.Session, error) {
	if activeOnly {
		return p.listSessions(ctx, `
			SELECT `+sessionColumns+` FROM sessions
			WHERE host_id = $1 AND status NOT IN ($2, $3)
			ORDER BY created_at`,
			hostID, models.SessionStatusEnded, models.SessionStatusFailed)
	}
	return p.listSessions(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE host_id = $1 ORDER BY created_at`, hostID)
}

// ListSessionsByZone returns sessions bound to the zone.
func (p *Postgres) ListSessionsByZone(ctx context.Context, zoneID string, activeOnly bool) ([]*models.Session, error) {
	if activeOnly {
		return p.listSessions(ctx, `
			SELECT `+sessionColumns+` FROM sessions
			WHERE zone_id = $1 AND status NOT IN ($2, $3)
			ORDER BY created_at`,
			zoneID, models.SessionStatusEnded, models.SessionStatusFailed)
	}
	return p.listSessions(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE zone_id = $1 ORDER BY created_at`, zoneID)
}

// ListStaleSessions returns ids of non-terminal sessions whose last activity
// predates cutoff. The staleness predicate runs in SQL so concurrent replica
// sweeps see a consistent candidate set.
func (p *Postgres) ListStaleSessions(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id FROM sessions
		WHERE status NOT IN ($1, $2)
		  AND COALESCE(metrics_updated_at, started_at, created_at) < $3
		ORDER BY created_at`,
		models.SessionStatusEnded, models.SessionStatusFailed, cutoff)
	if err != nil {
		return nil, errors.Wrap(err, "list stale sessions")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan session id")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "list stale sessions")
}

// MutateSessionAndHost locks the session row and its bound host row, applies
// fn and writes both back in one transaction. Lock order is always session
// then host, so concurrent mutations cannot deadlock.
func (p *Postgres) MutateSessionAndHost(ctx context.Context, sessionID string, fn func(s *models.Session, h *models.Host) error) (*models.Session, error) {
	var out *models.Session
	err := p.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, sessionID)
		s, err := scanSession(row)
		if err != nil {
			return err
		}

		row = tx.QueryRow(ctx, `SELECT `+hostColumns+` FROM hosts WHERE id = $1 FOR UPDATE`, s.HostID)
		h, err := scanHost(row)
		if err != nil {
			return err
		}

		if err := fn(s, h); err != nil {
			return err
		}

		h.UpdatedAt = nowUTC()
		if err := updateHostTx(ctx, tx, h); err != nil {
			return err
		}

		if s.ConnectedPlayers == nil {
			s.ConnectedPlayers = []string{}
		}
		_, err = tx.Exec(ctx, `
			UPDATE sessions SET
				status = $2, connected_players = $3, current_players = $4,
				average_latency_ms = $5, average_packet_loss_percent = $6,
				bandwidth_usage_mbps = $7, quality_score = $8,
				player_satisfaction_score = $9, capacity_released = $10,
				started_at = $11, ended_at = $12, metrics_updated_at = $13
			WHERE id = $1`,
			s.ID, s.Status, s.ConnectedPlayers, s.CurrentPlayers,
			s.AverageLatencyMs, s.AveragePacketLossPercent,
			s.BandwidthUsageMbps, s.QualityScore,
			s.PlayerSatisfactionScore, s.CapacityReleased,
			s.StartedAt, s.EndedAt, s.MetricsUpdatedAt,
		)
		if err != nil {
			return errors.Wrap(err, "update session")
		}
		out = s
		return nil
	})
	return out, err
}
