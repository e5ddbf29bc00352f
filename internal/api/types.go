package api

import (
	"github.com/hostmesh/hostmesh/models"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// MessageResponse represents a simple message response.
type MessageResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// HostsResponse represents a list of hosts.
type HostsResponse struct {
	Count int            `json:"count"`
	Hosts []*models.Host `json:"hosts"`
}

// ZonesResponse represents a list of zones.
type ZonesResponse struct {
	Count int            `json:"count"`
	Zones []*models.Zone `json:"zones"`
}

// SessionsResponse represents a list of sessions.
type SessionsResponse struct {
	Count    int               `json:"count"`
	Sessions []*models.Session `json:"sessions"`
}

// CleanupResponse reports the result of a stale session sweep.
type CleanupResponse struct {
	Cleaned int `json:"cleaned"`
}

// PlayerRequest identifies a player joining or leaving a session.
type PlayerRequest struct {
	PlayerID string `json:"player_id"`
}
