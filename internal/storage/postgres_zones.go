package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/hostmesh/hostmesh/models"
)

const zoneColumns = `id, name, map_name, min_host_quality_score, min_bandwidth_mbps,
	max_latency_ms, p2p_enabled, p2p_priority, fallback_enabled, status,
	max_players, recommended_players, created_at, updated_at`

func scanZone(row pgx.Row) (*models.Zone, error) {
	var z models.Zone
	err := row.Scan(
		&z.ID, &z.Name, &z.MapName, &z.MinHostQualityScore, &z.MinBandwidthMbps,
		&z.MaxLatencyMs, &z.P2PEnabled, &z.P2PPriority, &z.FallbackEnabled, &z.Status,
		&z.MaxPlayers, &z.RecommendedPlayers, &z.CreatedAt, &z.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan zone")
	}
	return &z, nil
}

// UpsertZone creates or replaces the zone record by ID.
func (p *Postgres) UpsertZone(ctx context.Context, z *models.Zone) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO zones (`+zoneColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			map_name = EXCLUDED.map_name,
			min_host_quality_score = EXCLUDED.min_host_quality_score,
			min_bandwidth_mbps = EXCLUDED.min_bandwidth_mbps,
			max_latency_ms = EXCLUDED.max_latency_ms,
			p2p_enabled = EXCLUDED.p2p_enabled,
			p2p_priority = EXCLUDED.p2p_priority,
			fallback_enabled = EXCLUDED.fallback_enabled,
			status = EXCLUDED.status,
			max_players = EXCLUDED.max_players,
			recommended_players = EXCLUDED.recommended_players,
			updated_at = EXCLUDED.updated_at`,
		z.ID, z.Name, z.MapName, z.MinHostQualityScore, z.MinBandwidthMbps,
		z.MaxLatencyMs, z.P2PEnabled, z.P2PPriority, z.FallbackEnabled, z.Status,
		z.MaxPlayers, z.RecommendedPlayers, z.CreatedAt, z.UpdatedAt,
	)
	return errors.Wrap(err, "upsert zone")
}

// GetZone returns the zone or models.ErrNotFound.
func (p *Postgres) GetZone(ctx context.Context, id string) (*models.Zone, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+zoneColumns+` FROM zones WHERE id = $1`, id)
	return scanZone(row)
}

// ListZones returns zones, optionally filtered by P2P policy.
func (p *Postgres) ListZones(ctx context.Context, p2pEnabled *bool) ([]*models.Zone, error) {
	q := `SELECT ` + zoneColumns + ` FROM zones ORDER BY p2p_priority DESC, id`
	args := []any{}
	if p2pEnabled != nil {
		q = `SELECT ` + zoneColumns + ` FROM zones WHERE p2p_enabled = $1 ORDER BY p2p_priority DESC, id`
		args = append(args, *p2pEnabled)
	}

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list zones")
	}
	defer rows.Close()

	var zones []*models.Zone
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, errors.Wrap(rows.Err(), "list zones")
}

// MutateZone locks the zone row, applies fn and writes the result back.
func (p *Postgres) MutateZone(ctx context.Context, id string, fn func(z *models.Zone) error) (*models.Zone, error) {
	var out *models.Zone
	err := p.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+zoneColumns+` FROM zones WHERE id = $1 FOR UPDATE`, id)
		z, err := scanZone(row)
		if err != nil {
			return err
		}

		if err := fn(z); err != nil {
			return err
		}
		z.UpdatedAt = nowUTC()

		_, err = tx.Exec(ctx, `
			UPDATE zones SET
				name = $2, map_name = $3, min_host_quality_score = $4,
				min_bandwidth_mbps = $5, max_latency_ms = $6, p2p_enabled = $7,
				p2p_priority = $8, fallback_enabled = $9, status = $10,
				max_players = $11, recommended_players = $12, updated_at = $13
			WHERE id = $1`,
			z.ID, z.Name, z.MapName, z.MinHostQualityScore,
			z.MinBandwidthMbps, z.MaxLatencyMs, z.P2PEnabled,
			z.P2PPriority, z.FallbackEnabled, z.Status,
			z.MaxPlayers, z.RecommendedPlayers, z.UpdatedAt,
		)
		if err != nil {
			return errors.Wrap(err, "update zone")
		}
		out = z
		return nil
	})
	return out, err
}
