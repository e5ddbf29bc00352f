package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for expected coordinator outcomes. Handlers map these to
// HTTP status codes; callers compare with errors.Is.
var (
	// ErrNotFound is returned for unknown host, zone or session ids.
	ErrNotFound = errors.New("not found")

	// ErrHostOffline rejects session creation against a non-online host.
	ErrHostOffline = errors.New("host is offline")

	// ErrZoneDisabled rejects selection against a zone not accepting P2P.
	ErrZoneDisabled = errors.New("zone is not accepting p2p sessions")

	// ErrCapacityExceeded rejects operations that would push a host's load
	// counters past their maximum.
	ErrCapacityExceeded = errors.New("host capacity exceeded")

	// ErrSessionFull rejects adding a player to a session at max_players.
	ErrSessionFull = errors.New("session is full")

	// ErrNotAMember rejects removing a player that is not in the session.
	ErrNotAMember = errors.New("player is not a session member")

	// ErrAlreadyTerminal signals an operation on an ENDED/FAILED session.
	ErrAlreadyTerminal = errors.New("session already in terminal state")

	// ErrInvalidTransition signals an illegal state machine edge.
	ErrInvalidTransition = errors.New("invalid session state transition")

	// ErrStoreUnavailable signals the durable store or shared KV store is
	// unreachable. Retryable for the durable store; the rate limiter fails
	// open instead of surfacing it.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrRateLimited signals a client exceeded its request quota.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// ValidationError reports malformed or out-of-range input, rejected before
// any mutation takes place.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// NewValidationError creates a field-level validation error.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
