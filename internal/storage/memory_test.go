package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostmesh/hostmesh/models"
)

func testHost(id string) *models.Host {
	now := time.Now().UTC()
	return &models.Host{
		ID:            id,
		PlayerID:      "player-" + id,
		IPAddress:     "192.168.1.10",
		Port:          7777,
		Status:        models.HostStatusOnline,
		MaxPlayers:    8,
		MaxZones:      2,
		LastHeartbeat: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func testSession(id, hostID string, players ...string) *models.Session {
	if players == nil {
		players = []string{}
	}
	return &models.Session{
		ID:               id,
		HostID:           hostID,
		ZoneID:           "zone-1",
		Status:           models.SessionStatusPending,
		ConnectedPlayers: players,
		CurrentPlayers:   len(players),
		MaxPlayers:       8,
		CreatedAt:        time.Now().UTC(),
	}
}

func TestMemory_HostCRUD(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	_, err := store.GetHost(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, store.UpsertHost(ctx, testHost("h1")))

	h, err := store.GetHost(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "h1", h.ID)

	// The returned copy must not alias store state.
	h.CurrentPlayers = 99
	again, err := store.GetHost(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, 0, again.CurrentPlayers)

	require.NoError(t, store.DeleteHost(ctx, "h1"))
	assert.ErrorIs(t, store.DeleteHost(ctx, "h1"), models.ErrNotFound)
}

func TestMemory_ListHostsByStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	online := testHost("h1")
	offline := testHost("h2")
	offline.Status = models.HostStatusOffline
	require.NoError(t, store.UpsertHost(ctx, online))
	require.NoError(t, store.UpsertHost(ctx, offline))

	all, err := store.ListHosts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlineOnly, err := store.ListHosts(ctx, models.HostStatusOnline)
	require.NoError(t, err)
	require.Len(t, onlineOnly, 1)
	assert.Equal(t, "h1", onlineOnly[0].ID)
}

func TestMemory_MutateHost_AbortsOnError(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	require.NoError(t, store.UpsertHost(ctx, testHost("h1")))

	_, err := store.MutateHost(ctx, "h1", func(h *models.Host) error {
		h.CurrentPlayers = 5
		return assert.AnError
	})
	assert.Error(t, err)

	h, err := store.GetHost(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, 0, h.CurrentPlayers, "aborted mutation must not commit")
}

func TestMemory_CreateSessionForHost(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	require.NoError(t, store.UpsertHost(ctx, testHost("h1")))

	require.NoError(t, store.CreateSessionForHost(ctx, testSession("s1", "h1", "p1", "p2")))

	h, err := store.GetHost(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, 1, h.CurrentZones)
	assert.Equal(t, 2, h.CurrentPlayers)
}

func TestMemory_CreateSessionForHost_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown host", func(t *testing.T) {
		store := NewMemory()
		err := store.CreateSessionForHost(ctx, testSession("s1", "nope"))
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("offline host", func(t *testing.T) {
		store := NewMemory()
		h := testHost("h1")
		h.Status = models.HostStatusOffline
		require.NoError(t, store.UpsertHost(ctx, h))

		err := store.CreateSessionForHost(ctx, testSession("s1", "h1"))
		assert.ErrorIs(t, err, models.ErrHostOffline)
	})

	t.Run("no zone capacity", func(t *testing.T) {
		store := NewMemory()
		h := testHost("h1")
		h.MaxZones = 0
		require.NoError(t, store.UpsertHost(ctx, h))

		err := store.CreateSessionForHost(ctx, testSession("s1", "h1"))
		assert.ErrorIs(t, err, models.ErrCapacityExceeded)
	})

	t.Run("initial players exceed host capacity", func(t *testing.T) {
		store := NewMemory()
		h := testHost("h1")
		h.MaxPlayers = 1
		require.NoError(t, store.UpsertHost(ctx, h))

		err := store.CreateSessionForHost(ctx, testSession("s1", "h1", "p1", "p2"))
		assert.ErrorIs(t, err, models.ErrCapacityExceeded)

		// A rejected create must not leak capacity.
		got, err := store.GetHost(ctx, "h1")
		require.NoError(t, err)
		assert.Equal(t, 0, got.CurrentZones)
		assert.Equal(t, 0, got.CurrentPlayers)
	})
}

func TestMemory_MutateSessionAndHost(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	require.NoError(t, store.UpsertHost(ctx, testHost("h1")))
	require.NoError(t, store.CreateSessionForHost(ctx, testSession("s1", "h1")))

	s, err := store.MutateSessionAndHost(ctx, "s1", func(s *models.Session, h *models.Host) error {
		s.Status = models.SessionStatusActive
		h.CurrentPlayers++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, s.Status)

	h, err := store.GetHost(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, 1, h.CurrentPlayers)

	// Both writes roll back together.
	_, err = store.MutateSessionAndHost(ctx, "s1", func(s *models.Session, h *models.Host) error {
		s.Status = models.SessionStatusEnded
		h.CurrentPlayers = 99
		return assert.AnError
	})
	assert.Error(t, err)

	s2, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, s2.Status)
	h2, err := store.GetHost(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, 1, h2.CurrentPlayers)
}

func TestMemory_ListExpiredHosts(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	fresh := testHost("fresh")
	stale := testHost("stale")
	stale.LastHeartbeat = time.Now().UTC().Add(-time.Hour)
	offlineStale := testHost("offline")
	offlineStale.Status = models.HostStatusOffline
	offlineStale.LastHeartbeat = time.Now().UTC().Add(-time.Hour)

	require.NoError(t, store.UpsertHost(ctx, fresh))
	require.NoError(t, store.UpsertHost(ctx, stale))
	require.NoError(t, store.UpsertHost(ctx, offlineStale))

	expired, err := store.ListExpiredHosts(ctx, time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "stale", expired[0].ID)
}

func TestMemory_ListStaleSessions(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	h := testHost("h1")
	h.MaxZones = 10
	require.NoError(t, store.UpsertHost(ctx, h))

	old := testSession("old", "h1")
	old.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.CreateSessionForHost(ctx, old))

	ended := testSession("ended", "h1")
	ended.CreatedAt = time.Now().UTC().Add(-time.Hour)
	ended.Status = models.SessionStatusEnded
	require.NoError(t, store.CreateSessionForHost(ctx, ended))

	recent := testSession("recent", "h1")
	require.NoError(t, store.CreateSessionForHost(ctx, recent))

	ids, err := store.ListStaleSessions(ctx, time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, ids)
}
