package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/hostmesh/hostmesh/models"
)

const hostColumns = `id, player_id, player_name, ip_address, port, public_ip,
	cpu_cores, cpu_frequency_mhz, memory_mb, network_speed_mbps,
	latency_ms, packet_loss_percent, bandwidth_usage_mbps, status,
	max_players, current_players, max_zones, current_zones, quality_score,
	last_heartbeat, created_at, updated_at, extra_metadata`

func scanHost(row pgx.Row) (*models.Host, error) {
	var h models.Host
	err := row.Scan(
		&h.ID, &h.PlayerID, &h.PlayerName, &h.IPAddress, &h.Port, &h.PublicIP,
		&h.CPUCores, &h.CPUFrequencyMHz, &h.MemoryMB, &h.NetworkSpeedMbps,
		&h.LatencyMs, &h.PacketLossPercent, &h.BandwidthUsageMbps, &h.Status,
		&h.MaxPlayers, &h.CurrentPlayers, &h.MaxZones, &h.CurrentZones, &h.QualityScore,
		&h.LastHeartbeat, &h.CreatedAt, &h.UpdatedAt, &h.ExtraMetadata,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan host")
	}
	return &h, nil
}

// UpsertHost creates or replaces the host record by ID. Re-registration of a
// known host updates its fields without duplicating the row.
func (p *Postgres) UpsertHost(ctx context.Context, h *models.Host) error {
	if h.ExtraMetadata == nil {
		h.ExtraMetadata = map[string]string{}
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO hosts (`+hostColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
		ON CONFLICT (id) DO UPDATE SET
			player_id = EXCLUDED.player_id,
			player_name = EXCLUDED.player_name,
			ip_address = EXCLUDED.ip_address,
			port = EXCLUDED.port,
			public_ip = EXCLUDED.public_ip,
			cpu_cores = EXCLUDED.cpu_cores,
			cpu_frequency_mhz = EXCLUDED.cpu_frequency_mhz,
			memory_mb = EXCLUDED.memory_mb,
			network_speed_mbps = EXCLUDED.network_speed_mbps,
			latency_ms = EXCLUDED.latency_ms,
			packet_loss_percent = EXCLUDED.packet_loss_percent,
			bandwidth_usage_mbps = EXCLUDED.bandwidth_usage_mbps,
			status = EXCLUDED.status,
			max_players = EXCLUDED.max_players,
			max_zones = EXCLUDED.max_zones,
			quality_score = EXCLUDED.quality_score,
			last_heartbeat = EXCLUDED.last_heartbeat,
			updated_at = EXCLUDED.updated_at,
			extra_metadata = EXCLUDED.extra_metadata`,
		h.ID, h.PlayerID, h.PlayerName, h.IPAddress, h.Port, h.PublicIP,
		h.CPUCores, h.CPUFrequencyMHz, h.MemoryMB, h.NetworkSpeedMbps,
		h.LatencyMs, h.PacketLossPercent, h.BandwidthUsageMbps, h.Status,
		h.MaxPlayers, h.CurrentPlayers, h.MaxZones, h.CurrentZones, h.QualityScore,
		h.LastHeartbeat, h.CreatedAt, h.UpdatedAt, h.ExtraMetadata,
	)
	return errors.Wrap(err, "upsert host")
}

// GetHost returns the host or models.ErrNotFound.
func (p *Postgres) GetHost(ctx context.Context, id string) (*models.Host, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+hostColumns+` FROM hosts WHERE id = $1`, id)
	return scanHost(row)
}

// ListHosts returns hosts, optionally filtered by status.
func (p *Postgres) ListHosts(ctx context.Context, status models.HostStatus) ([]*models.Host, error) {
	q := `SELECT ` + hostColumns + ` FROM hosts ORDER BY id`
	args := []any{}
	if status != "" {
		q = `SELECT ` + hostColumns + ` FROM hosts WHERE status = $1 ORDER BY id`
		args = append(args, status)
	}

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list hosts")
	}
	defer rows.Close()

	var hosts []*models.Host
	for rows.Next() {
		h, err := scanHost(rows)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, h)
	}
	return hosts, errors.Wrap(rows.Err(), "list hosts")
}

// MutateHost locks the host row, applies fn and writes the result back in
// one transaction. Two replicas mutating the same host serialize here.
func (p *Postgres) MutateHost(ctx context.Context, id string, fn func(h *models.Host) error) (*models.Host, error) {
	var out *models.Host
	err := p.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+hostColumns+` FROM hosts WHERE id = $1 FOR UPDATE`, id)
		h, err := scanHost(row)
		if err != nil {
			return err
		}

		if err := fn(h); err != nil {
			return err
		}
		h.UpdatedAt = nowUTC()

		if err := updateHostTx(ctx, tx, h); err != nil {
			return err
		}
		out = h
		return nil
	})
	return out, err
}

func updateHostTx(ctx context.Context, tx pgx.Tx, h *models.Host) error {
	_, err := tx.Exec(ctx, `
		UPDATE hosts SET
			player_id = $2, player_name = $3, ip_address = $4, port = $5, public_ip = $6,
			cpu_cores = $7, cpu_frequency_mhz = $8, memory_mb = $9, network_speed_mbps = $10,
			latency_ms = $11, packet_loss_percent = $12, bandwidth_usage_mbps = $13, status = $14,
			max_players = $15, current_players = $16, max_zones = $17, current_zones = $18,
			quality_score = $19, last_heartbeat = $20, updated_at = $21, extra_metadata = $22
		WHERE id = $1`,
		h.ID, h.PlayerID, h.PlayerName, h.IPAddress, h.Port, h.PublicIP,
		h.CPUCores, h.CPUFrequencyMHz, h.MemoryMB, h.NetworkSpeedMbps,
		h.LatencyMs, h.PacketLossPercent, h.BandwidthUsageMbps, h.Status,
		h.MaxPlayers, h.CurrentPlayers, h.MaxZones, h.CurrentZones,
		h.QualityScore, h.LastHeartbeat, h.UpdatedAt, h.ExtraMetadata,
	)
	return errors.Wrap(err, "update host")
}

// DeleteHost removes the host record.
func (p *Postgres) DeleteHost(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM hosts WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete host")
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListExpiredHosts returns ONLINE hosts whose heartbeat is older than cutoff.
func (p *Postgres) ListExpiredHosts(ctx context.Context, cutoff time.Time) ([]*models.Host, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+hostColumns+` FROM hosts
		WHERE status = $1 AND last_heartbeat < $2
		ORDER BY id`,
		models.HostStatusOnline, cutoff)
	if err != nil {
		return nil, errors.Wrap(err, "list expired hosts")
	}
	defer rows.Close()

	var hosts []*models.Host
	for rows.Next() {
		h, err := scanHost(rows)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, h)
	}
	return hosts, errors.Wrap(rows.Err(), "list expired hosts")
}
