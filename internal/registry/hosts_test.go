package registry

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostmesh/hostmesh/internal/storage"
	"github.com/hostmesh/hostmesh/models"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func hostSpec(id string) *models.Host {
	return &models.Host{
		ID:               id,
		PlayerID:         "player-" + id,
		PlayerName:       "Player " + id,
		IPAddress:        "192.168.1.10",
		Port:             7777,
		CPUCores:         8,
		CPUFrequencyMHz:  3200,
		MemoryMB:         16384,
		NetworkSpeedMbps: 500,
		MaxPlayers:       16,
		MaxZones:         2,
	}
}

func testZone(id string) *models.Zone {
	return &models.Zone{
		ID:         id,
		Name:       "Zone " + id,
		MapName:    "map_" + id,
		P2PEnabled: true,
		Status:     models.ZoneStatusEnabled,
		MaxPlayers: 16,
	}
}

type fakeTerminator struct {
	failedHosts []string
	count       int
}

func (f *fakeTerminator) FailSessionsForHost(ctx context.Context, hostID, reason string) (int, error) {
	f.failedHosts = append(f.failedHosts, hostID)
	return f.count, nil
}

func TestHostRegistry_Register(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	reg := NewHostRegistry(store, nil, testLogger())

	host, err := reg.Register(ctx, hostSpec("h1"))
	require.NoError(t, err)

	assert.Equal(t, models.HostStatusOnline, host.Status)
	assert.Equal(t, 0, host.CurrentPlayers)
	assert.Equal(t, 0, host.CurrentZones)
	assert.Equal(t, 100.0, host.QualityScore)
	assert.False(t, host.LastHeartbeat.IsZero())
}

func TestHostRegistry_Register_Validation(t *testing.T) {
	ctx := context.Background()
	reg := NewHostRegistry(storage.NewMemory(), nil, testLogger())

	tests := []struct {
		name   string
		mutate func(h *models.Host)
	}{
		{"missing id", func(h *models.Host) { h.ID = "" }},
		{"short id", func(h *models.Host) { h.ID = "ab" }},
		{"missing player", func(h *models.Host) { h.PlayerID = "" }},
		{"bad ip", func(h *models.Host) { h.IPAddress = "not-an-ip" }},
		{"bad port", func(h *models.Host) { h.Port = 70000 }},
		{"negative players", func(h *models.Host) { h.MaxPlayers = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := hostSpec("h1")
			tt.mutate(spec)
			_, err := reg.Register(ctx, spec)
			var verr *models.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestHostRegistry_Register_PreservesCountersOnReRegister(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	reg := NewHostRegistry(store, nil, testLogger())

	_, err := reg.Register(ctx, hostSpec("h1"))
	require.NoError(t, err)

	// The session manager has since reserved capacity.
	_, err = store.MutateHost(ctx, "h1", func(h *models.Host) error {
		h.CurrentPlayers = 4
		h.CurrentZones = 1
		return nil
	})
	require.NoError(t, err)

	spec := hostSpec("h1")
	spec.MaxPlayers = 32
	host, err := reg.Register(ctx, spec)
	require.NoError(t, err)

	assert.Equal(t, 32, host.MaxPlayers, "declared fields update")
	assert.Equal(t, 4, host.CurrentPlayers, "load counters survive re-registration")
	assert.Equal(t, 1, host.CurrentZones)
}

func TestHostRegistry_Heartbeat(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	reg := NewHostRegistry(store, nil, testLogger())

	registered, err := reg.Register(ctx, hostSpec("h1"))
	require.NoError(t, err)

	host, err := reg.Heartbeat(ctx, "h1", models.Telemetry{
		LatencyMs:          100,
		PacketLossPercent:  2,
		BandwidthUsageMbps: 50,
	})
	require.NoError(t, err)

	assert.Equal(t, 100.0, host.LatencyMs)
	assert.Equal(t, 2.0, host.PacketLossPercent)
	assert.Less(t, host.QualityScore, registered.QualityScore,
		"degraded telemetry lowers the score")
	// 100ms costs 10 latency points, 2% loss costs 4 loss points.
	assert.InDelta(t, 86.0, host.QualityScore, 0.0001)
}

func TestHostRegistry_Heartbeat_UnknownHost(t *testing.T) {
	reg := NewHostRegistry(storage.NewMemory(), nil, testLogger())
	_, err := reg.Heartbeat(context.Background(), "nope", models.Telemetry{})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestHostRegistry_SelectBest(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	reg := NewHostRegistry(store, nil, testLogger())

	// Three online hosts with distinct telemetry.
	for _, id := range []string{"h1", "h2", "h3"} {
		_, err := reg.Register(ctx, hostSpec(id))
		require.NoError(t, err)
	}
	_, err := reg.Heartbeat(ctx, "h1", models.Telemetry{LatencyMs: 200})
	require.NoError(t, err)
	_, err = reg.Heartbeat(ctx, "h2", models.Telemetry{LatencyMs: 50})
	require.NoError(t, err)
	_, err = reg.Heartbeat(ctx, "h3", models.Telemetry{LatencyMs: 120})
	require.NoError(t, err)

	best, err := reg.SelectBest(ctx, testZone("z1"))
	require.NoError(t, err)
	assert.Equal(t, "h2", best.ID)
}

func TestHostRegistry_SelectBest_QualityFloor(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	reg := NewHostRegistry(store, nil, testLogger())

	_, err := reg.Register(ctx, hostSpec("h1"))
	require.NoError(t, err)
	_, err = reg.Heartbeat(ctx, "h1", models.Telemetry{LatencyMs: 250, PacketLossPercent: 8})
	require.NoError(t, err)

	zone := testZone("z1")
	zone.MinHostQualityScore = 90

	_, err = reg.SelectBest(ctx, zone)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestHostRegistry_SelectBest_Filters(t *testing.T) {
	ctx := context.Background()

	t.Run("offline hosts excluded", func(t *testing.T) {
		store := storage.NewMemory()
		reg := NewHostRegistry(store, nil, testLogger())
		_, err := reg.Register(ctx, hostSpec("h1"))
		require.NoError(t, err)
		_, err = store.MutateHost(ctx, "h1", func(h *models.Host) error {
			h.Status = models.HostStatusOffline
			return nil
		})
		require.NoError(t, err)

		_, err = reg.SelectBest(ctx, testZone("z1"))
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("full hosts excluded", func(t *testing.T) {
		store := storage.NewMemory()
		reg := NewHostRegistry(store, nil, testLogger())
		_, err := reg.Register(ctx, hostSpec("h1"))
		require.NoError(t, err)
		_, err = store.MutateHost(ctx, "h1", func(h *models.Host) error {
			h.CurrentZones = h.MaxZones
			return nil
		})
		require.NoError(t, err)

		_, err = reg.SelectBest(ctx, testZone("z1"))
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("bandwidth floor", func(t *testing.T) {
		store := storage.NewMemory()
		reg := NewHostRegistry(store, nil, testLogger())
		spec := hostSpec("h1")
		spec.NetworkSpeedMbps = 20
		_, err := reg.Register(ctx, spec)
		require.NoError(t, err)

		zone := testZone("z1")
		zone.MinBandwidthMbps = 100
		_, err = reg.SelectBest(ctx, zone)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("latency ceiling", func(t *testing.T) {
		store := storage.NewMemory()
		reg := NewHostRegistry(store, nil, testLogger())
		_, err := reg.Register(ctx, hostSpec("h1"))
		require.NoError(t, err)
		_, err = reg.Heartbeat(ctx, "h1", models.Telemetry{LatencyMs: 90})
		require.NoError(t, err)

		zone := testZone("z1")
		zone.MaxLatencyMs = 50
		_, err = reg.SelectBest(ctx, zone)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("disabled zone", func(t *testing.T) {
		store := storage.NewMemory()
		reg := NewHostRegistry(store, nil, testLogger())
		_, err := reg.Register(ctx, hostSpec("h1"))
		require.NoError(t, err)

		zone := testZone("z1")
		zone.P2PEnabled = false
		_, err = reg.SelectBest(ctx, zone)
		assert.ErrorIs(t, err, models.ErrZoneDisabled)
	})
}

func TestHostRegistry_SelectBest_TieBreaks(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	reg := NewHostRegistry(store, nil, testLogger())

	// Identical specs; h2 carries more players but scores are forced equal
	// below, so load decides.
	for _, id := range []string{"h1", "h2"} {
		_, err := reg.Register(ctx, hostSpec(id))
		require.NoError(t, err)
	}
	for _, id := range []string{"h1", "h2"} {
		_, err := store.MutateHost(ctx, id, func(h *models.Host) error {
			h.QualityScore = 80
			return nil
		})
		require.NoError(t, err)
	}
	_, err := store.MutateHost(ctx, "h2", func(h *models.Host) error {
		h.CurrentPlayers = 5
		return nil
	})
	require.NoError(t, err)

	best, err := reg.SelectBest(ctx, testZone("z1"))
	require.NoError(t, err)
	assert.Equal(t, "h1", best.ID, "least loaded wins a score tie")
}

func TestHostRegistry_Unregister(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	term := &fakeTerminator{count: 2}
	reg := NewHostRegistry(store, term, testLogger())

	_, err := reg.Register(ctx, hostSpec("h1"))
	require.NoError(t, err)

	require.NoError(t, reg.Unregister(ctx, "h1"))

	assert.Equal(t, []string{"h1"}, term.failedHosts, "sessions cascade first")
	_, err = store.GetHost(ctx, "h1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestHostRegistry_Unregister_UnknownHost(t *testing.T) {
	reg := NewHostRegistry(storage.NewMemory(), nil, testLogger())
	err := reg.Unregister(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestHostRegistry_List(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	reg := NewHostRegistry(store, nil, testLogger())

	_, err := reg.Register(ctx, hostSpec("h1"))
	require.NoError(t, err)
	_, err = reg.Register(ctx, hostSpec("h2"))
	require.NoError(t, err)
	_, err = store.MutateHost(ctx, "h2", func(h *models.Host) error {
		h.Status = models.HostStatusMaintenance
		return nil
	})
	require.NoError(t, err)

	all, err := reg.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	online, err := reg.List(ctx, models.HostStatusOnline)
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, "h1", online[0].ID)
}

// Heartbeats must never disturb the load counters the session manager owns.
func TestHostRegistry_Heartbeat_CountersUntouched(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	reg := NewHostRegistry(store, nil, testLogger())

	_, err := reg.Register(ctx, hostSpec("h1"))
	require.NoError(t, err)
	_, err = store.MutateHost(ctx, "h1", func(h *models.Host) error {
		h.CurrentPlayers = 3
		h.CurrentZones = 1
		return nil
	})
	require.NoError(t, err)

	host, err := reg.Heartbeat(ctx, "h1", models.Telemetry{
		LatencyMs:      20,
		CurrentPlayers: 7,
		CurrentZones:   2,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, host.CurrentPlayers)
	assert.Equal(t, 1, host.CurrentZones)
}
