// Package signaling connects the coordinator to the WebRTC signaling relay.
// The relay itself is an external collaborator; the coordinator's only
// obligation is to tell it when a hosting session changes state so it can
// set up or tear down the peer connections for that session.
package signaling

import (
	"context"

	"github.com/hostmesh/hostmesh/models"
)

// EventType classifies a session state change notification.
type EventType string

const (
	EventSessionCreated   EventType = "session_created"
	EventSessionActivated EventType = "session_activated"
	EventSessionPaused    EventType = "session_paused"
	EventSessionResumed   EventType = "session_resumed"
	EventSessionEnded     EventType = "session_ended"
	EventSessionFailed    EventType = "session_failed"
	EventPlayerJoined     EventType = "player_joined"
	EventPlayerLeft       EventType = "player_left"
)

// Event is one session state change notification.
type Event struct {
	Type     EventType       `json:"type"`
	Session  *models.Session `json:"session"`
	PlayerID string          `json:"player_id,omitempty"`
}

// Service receives session state change notifications. Implementations must
// not block session processing; failures are the implementation's problem to
// log and absorb.
type Service interface {
	SessionStateChanged(ctx context.Context, event Event)
}

// Noop is a Service that discards all notifications, used when no relay is
// wired up (tests, offline tooling).
type Noop struct{}

func (Noop) SessionStateChanged(ctx context.Context, event Event) {}
