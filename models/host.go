package models

import "time"

// HostStatus is the operational status of a candidate host.
type HostStatus string

const (
	HostStatusOnline      HostStatus = "ONLINE"
	HostStatusOffline     HostStatus = "OFFLINE"
	HostStatusBusy        HostStatus = "BUSY"
	HostStatusMaintenance HostStatus = "MAINTENANCE"
)

// Host represents a peer-operated machine willing to serve game zones.
//
// A host registers itself with its declared hardware capability, then keeps
// its live telemetry fresh through periodic heartbeats. The coordinator
// derives a quality score from both and uses it to rank competing hosts
// when a zone needs to be served.
//
// Capacity invariant: 0 <= CurrentPlayers <= MaxPlayers and
// 0 <= CurrentZones <= MaxZones at all times. The session manager is the
// only writer of the load counters while a session bound to this host is
// non-terminal.
type Host struct {
	// ID is the caller-supplied unique host identifier.
	ID string `json:"host_id" db:"id" validate:"required,min=3,max=256"`

	// PlayerID identifies the player operating this host.
	PlayerID   string `json:"player_id" db:"player_id" validate:"required"`
	PlayerName string `json:"player_name" db:"player_name"`

	// Network endpoint the host serves from.
	IPAddress string `json:"ip_address" db:"ip_address" validate:"required,ip"`
	Port      int    `json:"port" db:"port" validate:"required,gt=0,lte=65535"`
	PublicIP  string `json:"public_ip,omitempty" db:"public_ip" validate:"omitempty,ip"`

	// Declared hardware and network capability.
	CPUCores         int     `json:"cpu_cores" db:"cpu_cores" validate:"gte=0"`
	CPUFrequencyMHz  float64 `json:"cpu_frequency_mhz" db:"cpu_frequency_mhz" validate:"gte=0"`
	MemoryMB         int     `json:"memory_mb" db:"memory_mb" validate:"gte=0"`
	NetworkSpeedMbps float64 `json:"network_speed_mbps" db:"network_speed_mbps" validate:"gte=0"`

	// Live telemetry, updated by heartbeats.
	LatencyMs          float64 `json:"latency_ms" db:"latency_ms"`
	PacketLossPercent  float64 `json:"packet_loss_percent" db:"packet_loss_percent"`
	BandwidthUsageMbps float64 `json:"bandwidth_usage_mbps" db:"bandwidth_usage_mbps"`

	Status HostStatus `json:"status" db:"status"`

	// Capacity counters.
	MaxPlayers     int `json:"max_players" db:"max_players" validate:"gte=0"`
	CurrentPlayers int `json:"current_players" db:"current_players"`
	MaxZones       int `json:"max_zones" db:"max_zones" validate:"gte=0"`
	CurrentZones   int `json:"current_zones" db:"current_zones"`

	// QualityScore is derived (0-100), recomputed whenever telemetry or
	// load changes.
	QualityScore float64 `json:"quality_score" db:"quality_score"`

	LastHeartbeat time.Time `json:"last_heartbeat" db:"last_heartbeat"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`

	// ExtraMetadata holds optional scalar annotations. Known keys:
	// "region", "client_version", "relay_hint".
	ExtraMetadata map[string]string `json:"extra_metadata,omitempty" db:"extra_metadata"`
}

// HasZoneCapacity reports whether the host can take one more zone.
func (h *Host) HasZoneCapacity() bool {
	return h.CurrentZones < h.MaxZones
}

// HasPlayerCapacity reports whether the host can take one more player.
func (h *Host) HasPlayerCapacity() bool {
	return h.CurrentPlayers < h.MaxPlayers
}

// Telemetry is the live measurement set a host reports with each heartbeat.
type Telemetry struct {
	LatencyMs          float64 `json:"latency_ms" validate:"gte=0"`
	PacketLossPercent  float64 `json:"packet_loss_percent" validate:"gte=0,lte=100"`
	BandwidthUsageMbps float64 `json:"bandwidth_usage_mbps" validate:"gte=0"`
	CurrentPlayers     int     `json:"current_players" validate:"gte=0"`
	CurrentZones       int     `json:"current_zones" validate:"gte=0"`
}
