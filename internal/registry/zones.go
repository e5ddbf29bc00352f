package registry

import (
	"context"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/hostmesh/hostmesh/internal/storage"
	"github.com/hostmesh/hostmesh/models"
)

// ZoneRegistry manages the zone catalog: which maps are hostable, under what
// requirements, and whether P2P hosting is currently switched on for them.
type ZoneRegistry struct {
	store    storage.Store
	validate *validator.Validate
	log      *logrus.Entry
}

// NewZoneRegistry creates a zone registry on the given store.
func NewZoneRegistry(store storage.Store, log *logrus.Logger) *ZoneRegistry {
	return &ZoneRegistry{
		store:    store,
		validate: validator.New(),
		log:      log.WithField("component", "zone-registry"),
	}
}

// zoneCatalogEntry is one zone definition in the YAML catalog file.
type zoneCatalogEntry struct {
	ID                  string  `yaml:"id"`
	Name                string  `yaml:"name"`
	MapName             string  `yaml:"map_name"`
	MinHostQualityScore float64 `yaml:"min_host_quality_score"`
	MinBandwidthMbps    float64 `yaml:"min_bandwidth_mbps"`
	MaxLatencyMs        float64 `yaml:"max_latency_ms"`
	P2PEnabled          bool    `yaml:"p2p_enabled"`
	P2PPriority         int     `yaml:"p2p_priority"`
	FallbackEnabled     bool    `yaml:"fallback_enabled"`
	MaxPlayers          int     `yaml:"max_players"`
	RecommendedPlayers  int     `yaml:"recommended_players"`
}

// LoadCatalog reads a YAML zone catalog and upserts every entry. Zones not
// listed in the file are left untouched, so runtime toggles survive restarts
// of replicas that carry an older catalog.
func (r *ZoneRegistry) LoadCatalog(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrap(err, "read zone catalog")
	}

	var catalog struct {
		Zones []zoneCatalogEntry `yaml:"zones"`
	}
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return 0, errors.Wrap(err, "parse zone catalog")
	}

	for _, e := range catalog.Zones {
		zone := &models.Zone{
			ID:                  e.ID,
			Name:                e.Name,
			MapName:             e.MapName,
			MinHostQualityScore: e.MinHostQualityScore,
			MinBandwidthMbps:    e.MinBandwidthMbps,
			MaxLatencyMs:        e.MaxLatencyMs,
			P2PEnabled:          e.P2PEnabled,
			P2PPriority:         e.P2PPriority,
			FallbackEnabled:     e.FallbackEnabled,
			Status:              models.ZoneStatusEnabled,
			MaxPlayers:          e.MaxPlayers,
			RecommendedPlayers:  e.RecommendedPlayers,
		}
		if _, err := r.Upsert(ctx, zone); err != nil {
			return 0, errors.Wrapf(err, "catalog zone %s", e.ID)
		}
	}

	r.log.WithFields(logrus.Fields{
		"path":  path,
		"zones": len(catalog.Zones),
	}).Info("zone catalog loaded")
	return len(catalog.Zones), nil
}

// Upsert creates the zone or updates its definition. An update keeps the
// existing administrative status and timestamps; a create starts ENABLED
// unless the caller set a status.
func (r *ZoneRegistry) Upsert(ctx context.Context, spec *models.Zone) (*models.Zone, error) {
	if err := r.validate.Struct(spec); err != nil {
		return nil, validationError(err)
	}

	updated, err := r.store.MutateZone(ctx, spec.ID, func(z *models.Zone) error {
		z.Name = spec.Name
		z.MapName = spec.MapName
		z.MinHostQualityScore = spec.MinHostQualityScore
		z.MinBandwidthMbps = spec.MinBandwidthMbps
		z.MaxLatencyMs = spec.MaxLatencyMs
		z.P2PEnabled = spec.P2PEnabled
		z.P2PPriority = spec.P2PPriority
		z.FallbackEnabled = spec.FallbackEnabled
		z.MaxPlayers = spec.MaxPlayers
		z.RecommendedPlayers = spec.RecommendedPlayers
		return nil
	})
	if err == nil {
		return updated, nil
	}
	if err != models.ErrNotFound {
		return nil, err
	}

	zone := *spec
	if zone.Status == "" {
		zone.Status = models.ZoneStatusEnabled
	}
	now := time.Now().UTC()
	zone.CreatedAt = now
	zone.UpdatedAt = now

	if err := r.store.UpsertZone(ctx, &zone); err != nil {
		return nil, err
	}
	r.log.WithField("zone_id", zone.ID).Info("zone created")
	return &zone, nil
}

// Get returns the zone or models.ErrNotFound.
func (r *ZoneRegistry) Get(ctx context.Context, zoneID string) (*models.Zone, error) {
	return r.store.GetZone(ctx, zoneID)
}

// List returns zones ordered by P2P priority, optionally filtered on the
// p2p_enabled flag.
func (r *ZoneRegistry) List(ctx context.Context, p2pEnabled *bool) ([]*models.Zone, error) {
	return r.store.ListZones(ctx, p2pEnabled)
}

// SetStatus changes the zone's administrative status.
func (r *ZoneRegistry) SetStatus(ctx context.Context, zoneID string, status models.ZoneStatus) (*models.Zone, error) {
	switch status {
	case models.ZoneStatusEnabled, models.ZoneStatusDisabled, models.ZoneStatusMaintenance:
	default:
		return nil, models.NewValidationError("status", "unknown zone status")
	}
	return r.store.MutateZone(ctx, zoneID, func(z *models.Zone) error {
		z.Status = status
		return nil
	})
}

// EnableP2P switches P2P hosting on for the zone. Already-enabled is a no-op.
func (r *ZoneRegistry) EnableP2P(ctx context.Context, zoneID string) (*models.Zone, error) {
	z, err := r.store.MutateZone(ctx, zoneID, func(z *models.Zone) error {
		z.P2PEnabled = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.log.WithField("zone_id", zoneID).Info("p2p hosting enabled")
	return z, nil
}

// DisableP2P switches P2P hosting off for the zone. Sessions already running
// in the zone keep going; only new placements are refused.
func (r *ZoneRegistry) DisableP2P(ctx context.Context, zoneID string) (*models.Zone, error) {
	z, err := r.store.MutateZone(ctx, zoneID, func(z *models.Zone) error {
		z.P2PEnabled = false
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.log.WithField("zone_id", zoneID).Info("p2p hosting disabled")
	return z, nil
}
