// Package session implements the hosting session lifecycle: one session
// binds one host to one zone for a set of players, moving through
// PENDING -> ACTIVE <-> PAUSED and terminating in ENDED or FAILED. The
// manager owns the bound host's load counters for the session's lifetime
// and guarantees they are released exactly once on termination.
package session

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hostmesh/hostmesh/internal/signaling"
	"github.com/hostmesh/hostmesh/internal/storage"
	"github.com/hostmesh/hostmesh/models"
)

// Manager drives session lifecycle operations against the store and
// notifies the signaling relay on every state change.
type Manager struct {
	store storage.Store
	relay signaling.Service
	log   *logrus.Entry
}

// NewManager creates a session manager. A nil relay disables notifications.
func NewManager(store storage.Store, relay signaling.Service, log *logrus.Logger) *Manager {
	if relay == nil {
		relay = signaling.Noop{}
	}
	return &Manager{
		store: store,
		relay: relay,
		log:   log.WithField("component", "session-manager"),
	}
}

// CreateRequest carries the inputs for a new hosting session.
type CreateRequest struct {
	HostID  string   `json:"host_id" validate:"required"`
	ZoneID  string   `json:"zone_id" validate:"required"`
	Players []string `json:"players"`
}

// Create opens a PENDING session binding the host to the zone. The initial
// player set is deduplicated; the session's player cap comes from the zone.
// Host capacity (one zone slot plus the initial players) is reserved
// atomically with the insert, so two replicas racing for the same host
// cannot overshoot its limits.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*models.Session, error) {
	zone, err := m.store.GetZone(ctx, req.ZoneID)
	if err != nil {
		return nil, err
	}
	if !zone.Hostable() {
		return nil, models.ErrZoneDisabled
	}

	players := dedupe(req.Players)
	if zone.MaxPlayers > 0 && len(players) > zone.MaxPlayers {
		return nil, models.ErrSessionFull
	}

	now := time.Now().UTC()
	s := &models.Session{
		ID:               models.GenerateID("session"),
		HostID:           req.HostID,
		ZoneID:           req.ZoneID,
		Status:           models.SessionStatusPending,
		ConnectedPlayers: players,
		CurrentPlayers:   len(players),
		MaxPlayers:       zone.MaxPlayers,
		CreatedAt:        now,
	}

	if err := m.store.CreateSessionForHost(ctx, s); err != nil {
		return nil, err
	}

	m.log.WithFields(logrus.Fields{
		"session_id": s.ID,
		"host_id":    s.HostID,
		"zone_id":    s.ZoneID,
		"players":    len(players),
	}).Info("session created")
	m.relay.SessionStateChanged(ctx, signaling.Event{Type: signaling.EventSessionCreated, Session: s})
	return s, nil
}

// Get returns the session or models.ErrNotFound.
func (m *Manager) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	return m.store.GetSession(ctx, sessionID)
}

// ListByHost returns the host's sessions, optionally non-terminal only.
func (m *Manager) ListByHost(ctx context.Context, hostID string, activeOnly bool) ([]*models.Session, error) {
	return m.store.ListSessionsByHost(ctx, hostID, activeOnly)
}

// ListByZone returns the zone's sessions, optionally non-terminal only.
func (m *Manager) ListByZone(ctx context.Context, zoneID string, activeOnly bool) ([]*models.Session, error) {
	return m.store.ListSessionsByZone(ctx, zoneID, activeOnly)
}

// transition moves the session along one legal state machine edge.
func (m *Manager) transition(ctx context.Context, sessionID string, target models.SessionStatus, event signaling.EventType) (*models.Session, error) {
	s, err := m.store.MutateSessionAndHost(ctx, sessionID, func(s *models.Session, h *models.Host) error {
		if s.Status.Terminal() {
			return models.ErrAlreadyTerminal
		}
		if !s.Status.CanTransition(target) {
			return models.ErrInvalidTransition
		}
		if target == models.SessionStatusActive && s.StartedAt == nil {
			now := time.Now().UTC()
			s.StartedAt = &now
		}
		s.Status = target
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.WithFields(logrus.Fields{
		"session_id": s.ID,
		"status":     s.Status,
	}).Info("session transitioned")
	m.relay.SessionStateChanged(ctx, signaling.Event{Type: event, Session: s})
	return s, nil
}

// Activate moves a PENDING session to ACTIVE and stamps StartedAt.
func (m *Manager) Activate(ctx context.Context, sessionID string) (*models.Session, error) {
	return m.transition(ctx, sessionID, models.SessionStatusActive, signaling.EventSessionActivated)
}

// Pause moves an ACTIVE session to PAUSED. Capacity stays reserved.
func (m *Manager) Pause(ctx context.Context, sessionID string) (*models.Session, error) {
	return m.transition(ctx, sessionID, models.SessionStatusPaused, signaling.EventSessionPaused)
}

// Resume moves a PAUSED session back to ACTIVE.
func (m *Manager) Resume(ctx context.Context, sessionID string) (*models.Session, error) {
	s, err := m.store.MutateSessionAndHost(ctx, sessionID, func(s *models.Session, h *models.Host) error {
		if s.Status.Terminal() {
			return models.ErrAlreadyTerminal
		}
		if s.Status != models.SessionStatusPaused {
			return models.ErrInvalidTransition
		}
		s.Status = models.SessionStatusActive
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.WithField("session_id", s.ID).Info("session resumed")
	m.relay.SessionStateChanged(ctx, signaling.Event{Type: signaling.EventSessionResumed, Session: s})
	return s, nil
}

// AddPlayer adds the player to the session, reserving one player slot on
// the bound host in the same transaction. Adding a player who is already a
// member succeeds without changing anything.
func (m *Manager) AddPlayer(ctx context.Context, sessionID, playerID string) (*models.Session, error) {
	if playerID == "" {
		return nil, models.NewValidationError("player_id", "must not be empty")
	}

	var already bool
	s, err := m.store.MutateSessionAndHost(ctx, sessionID, func(s *models.Session, h *models.Host) error {
		if s.Status.Terminal() {
			return models.ErrAlreadyTerminal
		}
		if s.HasPlayer(playerID) {
			already = true
			return nil
		}
		if s.MaxPlayers > 0 && s.CurrentPlayers >= s.MaxPlayers {
			return models.ErrSessionFull
		}
		if !h.HasPlayerCapacity() {
			return models.ErrCapacityExceeded
		}

		s.ConnectedPlayers = append(s.ConnectedPlayers, playerID)
		s.CurrentPlayers = len(s.ConnectedPlayers)
		h.CurrentPlayers++
		h.QualityScore = models.ComputeQualityScore(h)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if already {
		return s, nil
	}

	m.log.WithFields(logrus.Fields{
		"session_id": s.ID,
		"player_id":  playerID,
		"players":    s.CurrentPlayers,
	}).Debug("player joined session")
	m.relay.SessionStateChanged(ctx, signaling.Event{Type: signaling.EventPlayerJoined, Session: s, PlayerID: playerID})
	return s, nil
}

// RemovePlayer removes the player from the session, returning the slot to
// the bound host. Removing a non-member fails with models.ErrNotAMember.
func (m *Manager) RemovePlayer(ctx context.Context, sessionID, playerID string) (*models.Session, error) {
	s, err := m.store.MutateSessionAndHost(ctx, sessionID, func(s *models.Session, h *models.Host) error {
		if s.Status.Terminal() {
			return models.ErrAlreadyTerminal
		}
		if !s.HasPlayer(playerID) {
			return models.ErrNotAMember
		}

		members := s.ConnectedPlayers[:0]
		for _, p := range s.ConnectedPlayers {
			if p != playerID {
				members = append(members, p)
			}
		}
		s.ConnectedPlayers = members
		s.CurrentPlayers = len(members)
		if h.CurrentPlayers > 0 {
			h.CurrentPlayers--
		}
		h.QualityScore = models.ComputeQualityScore(h)
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.WithFields(logrus.Fields{
		"session_id": s.ID,
		"player_id":  playerID,
		"players":    s.CurrentPlayers,
	}).Debug("player left session")
	m.relay.SessionStateChanged(ctx, signaling.Event{Type: signaling.EventPlayerLeft, Session: s, PlayerID: playerID})
	return s, nil
}

// Metrics carries a session quality report from the host.
type Metrics struct {
	AverageLatencyMs         float64 `json:"average_latency_ms" validate:"gte=0"`
	AveragePacketLossPercent float64 `json:"average_packet_loss_percent" validate:"gte=0,lte=100"`
	BandwidthUsageMbps       float64 `json:"bandwidth_usage_mbps" validate:"gte=0"`
	QualityScore             float64 `json:"quality_score" validate:"gte=0,lte=100"`
	PlayerSatisfactionScore  float64 `json:"player_satisfaction_score" validate:"gte=0,lte=100"`
}

// UpdateMetrics records a quality report and refreshes the session's
// activity timestamp, which keeps it out of the stale sweep.
func (m *Manager) UpdateMetrics(ctx context.Context, sessionID string, metrics Metrics) (*models.Session, error) {
	return m.store.MutateSessionAndHost(ctx, sessionID, func(s *models.Session, h *models.Host) error {
		if s.Status.Terminal() {
			return models.ErrAlreadyTerminal
		}
		s.AverageLatencyMs = metrics.AverageLatencyMs
		s.AveragePacketLossPercent = metrics.AveragePacketLossPercent
		s.BandwidthUsageMbps = metrics.BandwidthUsageMbps
		s.QualityScore = metrics.QualityScore
		s.PlayerSatisfactionScore = metrics.PlayerSatisfactionScore
		now := time.Now().UTC()
		s.MetricsUpdatedAt = &now
		return nil
	})
}

// terminate moves the session to a terminal state and releases its capacity
// reservation from the bound host. The CapacityReleased flag makes the
// release idempotent: a session that already released (or a repeated
// End/Fail call) decrements nothing. Terminating an already-terminal
// session is a successful no-op.
func (m *Manager) terminate(ctx context.Context, sessionID string, target models.SessionStatus, event signaling.EventType, reason string) (*models.Session, error) {
	var noop bool
	s, err := m.store.MutateSessionAndHost(ctx, sessionID, func(s *models.Session, h *models.Host) error {
		if s.Status.Terminal() {
			noop = true
			return nil
		}

		s.Status = target
		now := time.Now().UTC()
		s.EndedAt = &now

		if !s.CapacityReleased {
			h.CurrentPlayers -= s.CurrentPlayers
			if h.CurrentPlayers < 0 {
				h.CurrentPlayers = 0
			}
			h.CurrentZones--
			if h.CurrentZones < 0 {
				h.CurrentZones = 0
			}
			h.QualityScore = models.ComputeQualityScore(h)
			s.CapacityReleased = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if noop {
		return s, nil
	}

	m.log.WithFields(logrus.Fields{
		"session_id": s.ID,
		"status":     s.Status,
		"reason":     reason,
	}).Info("session terminated")
	m.relay.SessionStateChanged(ctx, signaling.Event{Type: event, Session: s})
	return s, nil
}

// End terminates the session normally.
func (m *Manager) End(ctx context.Context, sessionID string) (*models.Session, error) {
	return m.terminate(ctx, sessionID, models.SessionStatusEnded, signaling.EventSessionEnded, "ended by request")
}

// Fail terminates the session abnormally with a reason for the log.
func (m *Manager) Fail(ctx context.Context, sessionID, reason string) (*models.Session, error) {
	return m.terminate(ctx, sessionID, models.SessionStatusFailed, signaling.EventSessionFailed, reason)
}

// FailSessionsForHost force-fails every non-terminal session bound to the
// host and returns how many it terminated. Used when a host unregisters or
// its heartbeat expires.
func (m *Manager) FailSessionsForHost(ctx context.Context, hostID, reason string) (int, error) {
	sessions, err := m.store.ListSessionsByHost(ctx, hostID, true)
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, s := range sessions {
		if _, err := m.Fail(ctx, s.ID, reason); err != nil {
			// Keep going; another replica may have terminated it first.
			m.log.WithError(err).WithField("session_id", s.ID).Warn("failed to terminate session")
			continue
		}
		failed++
	}
	return failed, nil
}

// CleanupStale terminates sessions with no activity since cutoff: PENDING
// sessions that never started fail, running ones end. The sweep is
// idempotent and tolerant of races, so multiple replicas can run it
// concurrently without double-releasing capacity.
func (m *Manager) CleanupStale(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := m.store.ListStaleSessions(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for _, id := range ids {
		s, err := m.store.GetSession(ctx, id)
		if err != nil {
			continue
		}
		if s.Status == models.SessionStatusPending {
			_, err = m.Fail(ctx, id, "stale: never activated")
		} else {
			_, err = m.End(ctx, id)
		}
		if err != nil {
			m.log.WithError(err).WithField("session_id", id).Warn("stale cleanup skipped session")
			continue
		}
		cleaned++
	}

	if cleaned > 0 {
		m.log.WithField("sessions", cleaned).Info("stale sessions cleaned up")
	}
	return cleaned, nil
}

func dedupe(players []string) []string {
	seen := make(map[string]struct{}, len(players))
	out := make([]string, 0, len(players))
	for _, p := range players {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
