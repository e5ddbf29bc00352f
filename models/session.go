package models

import "time"

// SessionStatus is the lifecycle state of a hosting session.
type SessionStatus string

const (
	SessionStatusPending SessionStatus = "PENDING"
	SessionStatusActive  SessionStatus = "ACTIVE"
	SessionStatusPaused  SessionStatus = "PAUSED"
	SessionStatusEnded   SessionStatus = "ENDED"
	SessionStatusFailed  SessionStatus = "FAILED"
)

// legalTransitions enumerates the allowed state machine edges:
// PENDING -> ACTIVE, ACTIVE <-> PAUSED, and any non-terminal -> ENDED/FAILED.
var legalTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusPending: {SessionStatusActive, SessionStatusEnded, SessionStatusFailed},
	SessionStatusActive:  {SessionStatusPaused, SessionStatusEnded, SessionStatusFailed},
	SessionStatusPaused:  {SessionStatusActive, SessionStatusEnded, SessionStatusFailed},
}

// CanTransition reports whether moving from s to target is a legal edge.
func (s SessionStatus) CanTransition(target SessionStatus) bool {
	for _, t := range legalTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusEnded || s == SessionStatusFailed
}

// Session is one hosting relationship binding exactly one host to one zone
// for a set of players.
//
// The session exclusively owns its membership list; while non-terminal it is
// the only writer of the bound host's load counters. On termination the
// host's CurrentZones and CurrentPlayers are decremented by this session's
// contribution exactly once (CapacityReleased guards the release).
type Session struct {
	ID     string `json:"session_id" db:"id"`
	HostID string `json:"host_id" db:"host_id"`
	ZoneID string `json:"zone_id" db:"zone_id"`

	Status SessionStatus `json:"status" db:"status"`

	// ConnectedPlayers is the set of player ids, mirrored in CurrentPlayers.
	ConnectedPlayers []string `json:"connected_players" db:"connected_players"`
	CurrentPlayers   int      `json:"current_players" db:"current_players"`
	MaxPlayers       int      `json:"max_players" db:"max_players"`

	// Aggregate quality metrics reported while the session runs.
	AverageLatencyMs         float64 `json:"average_latency_ms" db:"average_latency_ms"`
	AveragePacketLossPercent float64 `json:"average_packet_loss_percent" db:"average_packet_loss_percent"`
	BandwidthUsageMbps       float64 `json:"bandwidth_usage_mbps" db:"bandwidth_usage_mbps"`
	QualityScore             float64 `json:"quality_score" db:"quality_score"`
	PlayerSatisfactionScore  float64 `json:"player_satisfaction_score" db:"player_satisfaction_score"`

	// CapacityReleased flips to true when the host's counters have been
	// decremented for this session, making the release idempotent.
	CapacityReleased bool `json:"-" db:"capacity_released"`

	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	MetricsUpdatedAt *time.Time `json:"metrics_updated_at,omitempty" db:"metrics_updated_at"`
}

// HasPlayer reports whether the player is a current member.
func (s *Session) HasPlayer(playerID string) bool {
	for _, p := range s.ConnectedPlayers {
		if p == playerID {
			return true
		}
	}
	return false
}

// LastActivity is the reference time for staleness checks: the last metrics
// update, falling back to StartedAt, falling back to CreatedAt.
func (s *Session) LastActivity() time.Time {
	if s.MetricsUpdatedAt != nil {
		return *s.MetricsUpdatedAt
	}
	if s.StartedAt != nil {
		return *s.StartedAt
	}
	return s.CreatedAt
}
