// Package registry tracks candidate hosts and the zone catalog. Host
// selection is the coordinator's placement decision: rank every eligible
// host for a zone by quality score and hand back the best one.
package registry

import (
	"context"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/hostmesh/hostmesh/internal/storage"
	"github.com/hostmesh/hostmesh/models"
)

// SessionTerminator force-fails the sessions bound to a host. It is the
// session manager, injected as an interface so the registry can cascade on
// unregister without a package cycle.
type SessionTerminator interface {
	FailSessionsForHost(ctx context.Context, hostID, reason string) (int, error)
}

// HostRegistry manages host records: registration, heartbeats and the
// select-best placement query.
type HostRegistry struct {
	store    storage.Store
	sessions SessionTerminator
	validate *validator.Validate
	log      *logrus.Entry
}

// NewHostRegistry creates a host registry on the given store.
func NewHostRegistry(store storage.Store, sessions SessionTerminator, log *logrus.Logger) *HostRegistry {
	return &HostRegistry{
		store:    store,
		sessions: sessions,
		validate: validator.New(),
		log:      log.WithField("component", "host-registry"),
	}
}

// Register upserts a host by its caller-supplied ID. A new host comes up
// ONLINE with zeroed load counters and a quality score computed from its
// declared hardware. Re-registering a known host updates its declared fields
// but preserves the coordinator-owned load counters.
func (r *HostRegistry) Register(ctx context.Context, spec *models.Host) (*models.Host, error) {
	if err := r.validate.Struct(spec); err != nil {
		return nil, validationError(err)
	}

	now := time.Now().UTC()

	updated, err := r.store.MutateHost(ctx, spec.ID, func(h *models.Host) error {
		h.PlayerID = spec.PlayerID
		h.PlayerName = spec.PlayerName
		h.IPAddress = spec.IPAddress
		h.Port = spec.Port
		h.PublicIP = spec.PublicIP
		h.CPUCores = spec.CPUCores
		h.CPUFrequencyMHz = spec.CPUFrequencyMHz
		h.MemoryMB = spec.MemoryMB
		h.NetworkSpeedMbps = spec.NetworkSpeedMbps
		h.MaxPlayers = spec.MaxPlayers
		h.MaxZones = spec.MaxZones
		h.ExtraMetadata = spec.ExtraMetadata
		h.Status = models.HostStatusOnline
		h.LastHeartbeat = now
		h.QualityScore = models.ComputeQualityScore(h)
		return nil
	})
	if err == nil {
		r.log.WithField("host_id", updated.ID).Info("host re-registered")
		return updated, nil
	}
	if err != models.ErrNotFound {
		return nil, err
	}

	host := *spec
	host.Status = models.HostStatusOnline
	host.CurrentPlayers = 0
	host.CurrentZones = 0
	host.LatencyMs = 0
	host.PacketLossPercent = 0
	host.BandwidthUsageMbps = 0
	host.LastHeartbeat = now
	host.CreatedAt = now
	host.UpdatedAt = now
	host.QualityScore = models.ComputeQualityScore(&host)

	if err := r.store.UpsertHost(ctx, &host); err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"host_id":       host.ID,
		"quality_score": host.QualityScore,
	}).Info("host registered")
	return &host, nil
}

// Heartbeat records fresh telemetry and recomputes the quality score.
// The self-reported load counters are advisory only: the session manager is
// the authoritative writer of current_players/current_zones, so divergence
// is logged but the coordinator's counters win.
func (r *HostRegistry) Heartbeat(ctx context.Context, hostID string, t models.Telemetry) (*models.Host, error) {
	if err := r.validate.Struct(t); err != nil {
		return nil, validationError(err)
	}

	return r.store.MutateHost(ctx, hostID, func(h *models.Host) error {
		h.LatencyMs = t.LatencyMs
		h.PacketLossPercent = t.PacketLossPercent
		h.BandwidthUsageMbps = t.BandwidthUsageMbps
		h.LastHeartbeat = time.Now().UTC()
		h.QualityScore = models.ComputeQualityScore(h)

		if t.CurrentPlayers != h.CurrentPlayers || t.CurrentZones != h.CurrentZones {
			r.log.WithFields(logrus.Fields{
				"host_id":          h.ID,
				"reported_players": t.CurrentPlayers,
				"tracked_players":  h.CurrentPlayers,
				"reported_zones":   t.CurrentZones,
				"tracked_zones":    h.CurrentZones,
			}).Warn("host-reported load diverges from tracked counters")
		}
		return nil
	})
}

// Get returns the host or models.ErrNotFound.
func (r *HostRegistry) Get(ctx context.Context, hostID string) (*models.Host, error) {
	return r.store.GetHost(ctx, hostID)
}

// List returns hosts, optionally filtered by status ("" = all).
func (r *HostRegistry) List(ctx context.Context, status models.HostStatus) ([]*models.Host, error) {
	return r.store.ListHosts(ctx, status)
}

// SelectBest returns the best eligible host to serve the zone, or
// models.ErrNotFound when none qualifies so the caller can fall back to
// non-P2P hosting. Eligibility: ONLINE, spare player and zone capacity,
// quality score and bandwidth above the zone's floor, latency below its
// ceiling. Ties break toward the least-loaded host, then by host ID for
// determinism across replicas.
func (r *HostRegistry) SelectBest(ctx context.Context, zone *models.Zone) (*models.Host, error) {
	if !zone.Hostable() {
		return nil, models.ErrZoneDisabled
	}

	hosts, err := r.store.ListHosts(ctx, models.HostStatusOnline)
	if err != nil {
		return nil, err
	}

	var eligible []*models.Host
	for _, h := range hosts {
		if !h.HasPlayerCapacity() || !h.HasZoneCapacity() {
			continue
		}
		if h.QualityScore < zone.MinHostQualityScore {
			continue
		}
		if h.NetworkSpeedMbps < zone.MinBandwidthMbps {
			continue
		}
		if zone.MaxLatencyMs > 0 && h.LatencyMs > zone.MaxLatencyMs {
			continue
		}
		eligible = append(eligible, h)
	}

	if len(eligible) == 0 {
		return nil, models.ErrNotFound
	}

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].QualityScore != eligible[j].QualityScore {
			return eligible[i].QualityScore > eligible[j].QualityScore
		}
		if eligible[i].CurrentPlayers != eligible[j].CurrentPlayers {
			return eligible[i].CurrentPlayers < eligible[j].CurrentPlayers
		}
		return eligible[i].ID < eligible[j].ID
	})

	return eligible[0], nil
}

// Unregister takes the host OFFLINE, force-fails its sessions (releasing
// their capacity and players) and removes the record.
func (r *HostRegistry) Unregister(ctx context.Context, hostID string) error {
	_, err := r.store.MutateHost(ctx, hostID, func(h *models.Host) error {
		h.Status = models.HostStatusOffline
		return nil
	})
	if err != nil {
		return err
	}

	if r.sessions != nil {
		failed, err := r.sessions.FailSessionsForHost(ctx, hostID, "host unregistered")
		if err != nil {
			return err
		}
		if failed > 0 {
			r.log.WithFields(logrus.Fields{
				"host_id":  hostID,
				"sessions": failed,
			}).Info("terminated sessions for unregistered host")
		}
	}

	return r.store.DeleteHost(ctx, hostID)
}

// validationError converts a validator error into the coordinator's
// ValidationError type, keeping the first offending field.
func validationError(err error) error {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		return models.NewValidationError(verrs[0].Field(), "failed rule "+verrs[0].Tag())
	}
	return models.NewValidationError("", err.Error())
}
