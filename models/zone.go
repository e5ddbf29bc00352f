package models

import "time"

// ZoneStatus is the administrative status of a zone.
type ZoneStatus string

const (
	ZoneStatusEnabled     ZoneStatus = "ENABLED"
	ZoneStatusDisabled    ZoneStatus = "DISABLED"
	ZoneStatusMaintenance ZoneStatus = "MAINTENANCE"
)

// Zone is a hostable game map or instance type, plus the requirements a
// host must meet to serve it. Zones are created from configuration and
// toggled at runtime; they are never deleted while an active session
// references them (a foreign key enforces this at the storage layer).
type Zone struct {
	ID       string `json:"zone_id" db:"id" validate:"required,min=3,max=256"`
	Name     string `json:"zone_name" db:"name" validate:"required"`
	MapName  string `json:"map_name" db:"map_name" validate:"required"`

	// Hosting requirements checked by host selection.
	MinHostQualityScore float64 `json:"min_host_quality_score" db:"min_host_quality_score" validate:"gte=0,lte=100"`
	MinBandwidthMbps    float64 `json:"min_bandwidth_mbps" db:"min_bandwidth_mbps" validate:"gte=0"`
	MaxLatencyMs        float64 `json:"max_latency_ms" db:"max_latency_ms" validate:"gte=0"`

	// P2P hosting policy.
	P2PEnabled      bool       `json:"p2p_enabled" db:"p2p_enabled"`
	P2PPriority     int        `json:"p2p_priority" db:"p2p_priority" validate:"gte=0"`
	FallbackEnabled bool       `json:"fallback_enabled" db:"fallback_enabled"`
	Status          ZoneStatus `json:"status" db:"status"`

	// Capacity hints for session sizing.
	MaxPlayers         int `json:"max_players" db:"max_players" validate:"gte=0"`
	RecommendedPlayers int `json:"recommended_players" db:"recommended_players" validate:"gte=0"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Hostable reports whether the zone currently accepts new P2P sessions.
func (z *Zone) Hostable() bool {
	return z.P2PEnabled && z.Status == ZoneStatusEnabled
}
