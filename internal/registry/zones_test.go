package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostmesh/hostmesh/internal/storage"
	"github.com/hostmesh/hostmesh/models"
)

func zoneSpec(id string) *models.Zone {
	return &models.Zone{
		ID:                  id,
		Name:                "Zone " + id,
		MapName:             "map_" + id,
		MinHostQualityScore: 50,
		MinBandwidthMbps:    100,
		MaxLatencyMs:        150,
		P2PEnabled:          true,
		P2PPriority:         1,
		FallbackEnabled:     true,
		MaxPlayers:          16,
		RecommendedPlayers:  8,
	}
}

func TestZoneRegistry_Upsert(t *testing.T) {
	ctx := context.Background()
	reg := NewZoneRegistry(storage.NewMemory(), testLogger())

	zone, err := reg.Upsert(ctx, zoneSpec("zone-1"))
	require.NoError(t, err)
	assert.Equal(t, models.ZoneStatusEnabled, zone.Status)
	assert.False(t, zone.CreatedAt.IsZero())

	// Updating keeps the administrative status.
	_, err = reg.SetStatus(ctx, "zone-1", models.ZoneStatusMaintenance)
	require.NoError(t, err)

	spec := zoneSpec("zone-1")
	spec.MaxPlayers = 32
	updated, err := reg.Upsert(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, 32, updated.MaxPlayers)
	assert.Equal(t, models.ZoneStatusMaintenance, updated.Status)
}

func TestZoneRegistry_Upsert_Validation(t *testing.T) {
	ctx := context.Background()
	reg := NewZoneRegistry(storage.NewMemory(), testLogger())

	tests := []struct {
		name   string
		mutate func(z *models.Zone)
	}{
		{"missing id", func(z *models.Zone) { z.ID = "" }},
		{"missing name", func(z *models.Zone) { z.Name = "" }},
		{"missing map", func(z *models.Zone) { z.MapName = "" }},
		{"quality floor above 100", func(z *models.Zone) { z.MinHostQualityScore = 120 }},
		{"negative bandwidth", func(z *models.Zone) { z.MinBandwidthMbps = -1 }},
		{"negative priority", func(z *models.Zone) { z.P2PPriority = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := zoneSpec("zone-1")
			tt.mutate(spec)
			_, err := reg.Upsert(ctx, spec)
			var verr *models.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestZoneRegistry_EnableDisableP2P(t *testing.T) {
	ctx := context.Background()
	reg := NewZoneRegistry(storage.NewMemory(), testLogger())

	_, err := reg.Upsert(ctx, zoneSpec("zone-1"))
	require.NoError(t, err)

	zone, err := reg.DisableP2P(ctx, "zone-1")
	require.NoError(t, err)
	assert.False(t, zone.P2PEnabled)
	assert.False(t, zone.Hostable())

	zone, err = reg.EnableP2P(ctx, "zone-1")
	require.NoError(t, err)
	assert.True(t, zone.P2PEnabled)
	assert.True(t, zone.Hostable())

	// Enabling an enabled zone is a no-op.
	zone, err = reg.EnableP2P(ctx, "zone-1")
	require.NoError(t, err)
	assert.True(t, zone.P2PEnabled)

	_, err = reg.EnableP2P(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestZoneRegistry_List(t *testing.T) {
	ctx := context.Background()
	reg := NewZoneRegistry(storage.NewMemory(), testLogger())

	low := zoneSpec("low")
	low.P2PPriority = 1
	high := zoneSpec("high")
	high.P2PPriority = 9
	disabled := zoneSpec("off")
	disabled.P2PEnabled = false

	for _, z := range []*models.Zone{low, high, disabled} {
		_, err := reg.Upsert(ctx, z)
		require.NoError(t, err)
	}

	all, err := reg.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "high", all[0].ID, "priority order")

	enabled := true
	p2p, err := reg.List(ctx, &enabled)
	require.NoError(t, err)
	assert.Len(t, p2p, 2)
}

func TestZoneRegistry_LoadCatalog(t *testing.T) {
	ctx := context.Background()
	reg := NewZoneRegistry(storage.NewMemory(), testLogger())

	catalog := `zones:
  - id: forest-glade
    name: Forest Glade
    map_name: forest_01
    min_host_quality_score: 60
    min_bandwidth_mbps: 50
    max_latency_ms: 120
    p2p_enabled: true
    p2p_priority: 5
    fallback_enabled: true
    max_players: 24
    recommended_players: 12
  - id: lava-caves
    name: Lava Caves
    map_name: caves_03
    p2p_enabled: false
    max_players: 8
`
	path := filepath.Join(t.TempDir(), "zones.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalog), 0644))

	n, err := reg.LoadCatalog(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	zone, err := reg.Get(ctx, "forest-glade")
	require.NoError(t, err)
	assert.Equal(t, 60.0, zone.MinHostQualityScore)
	assert.Equal(t, 24, zone.MaxPlayers)
	assert.True(t, zone.Hostable())

	caves, err := reg.Get(ctx, "lava-caves")
	require.NoError(t, err)
	assert.False(t, caves.Hostable())
}

func TestZoneRegistry_LoadCatalog_PreservesRuntimeToggles(t *testing.T) {
	ctx := context.Background()
	reg := NewZoneRegistry(storage.NewMemory(), testLogger())

	catalog := `zones:
  - id: forest-glade
    name: Forest Glade
    map_name: forest_01
    p2p_enabled: true
    max_players: 24
`
	path := filepath.Join(t.TempDir(), "zones.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalog), 0644))

	_, err := reg.LoadCatalog(ctx, path)
	require.NoError(t, err)

	_, err = reg.SetStatus(ctx, "forest-glade", models.ZoneStatusDisabled)
	require.NoError(t, err)

	// Reloading the same catalog must not re-enable the zone.
	_, err = reg.LoadCatalog(ctx, path)
	require.NoError(t, err)

	zone, err := reg.Get(ctx, "forest-glade")
	require.NoError(t, err)
	assert.Equal(t, models.ZoneStatusDisabled, zone.Status)
}

func TestZoneRegistry_LoadCatalog_MissingFile(t *testing.T) {
	reg := NewZoneRegistry(storage.NewMemory(), testLogger())
	_, err := reg.LoadCatalog(context.Background(), "/does/not/exist.yaml")
	assert.Error(t, err)
}
