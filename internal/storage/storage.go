// Package storage provides the durable store for the coordinator.
//
// The coordinator runs as multiple stateless replicas sharing one relational
// store, so every capacity-affecting operation is expressed as a conditional
// atomic read-modify-write: either a guarded UPDATE or a transaction that
// re-reads current counters before writing. The Store interface makes that
// boundary explicit; business logic supplies mutation closures and never
// performs an unguarded read-then-write of its own.
package storage

import (
	"context"
	"time"

	"github.com/hostmesh/hostmesh/models"
)

// HostStore persists candidate hosts and their load counters.
type HostStore interface {
	// UpsertHost creates or replaces a host record by ID.
	UpsertHost(ctx context.Context, host *models.Host) error

	// GetHost returns the host or models.ErrNotFound.
	GetHost(ctx context.Context, id string) (*models.Host, error)

	// ListHosts returns hosts, optionally filtered by status ("" = all).
	ListHosts(ctx context.Context, status models.HostStatus) ([]*models.Host, error)

	// MutateHost runs fn on the current host row inside the store's atomic
	// boundary and persists the result. fn returning an error aborts the
	// mutation and is returned unchanged.
	MutateHost(ctx context.Context, id string, fn func(h *models.Host) error) (*models.Host, error)

	// DeleteHost removes the host record.
	DeleteHost(ctx context.Context, id string) error

	// ListExpiredHosts returns ONLINE hosts whose last heartbeat is older
	// than cutoff.
	ListExpiredHosts(ctx context.Context, cutoff time.Time) ([]*models.Host, error)
}

// ZoneStore persists the zone catalog.
type ZoneStore interface {
	UpsertZone(ctx context.Context, zone *models.Zone) error
	GetZone(ctx context.Context, id string) (*models.Zone, error)

	// ListZones returns zones, optionally filtered by P2P policy.
	ListZones(ctx context.Context, p2pEnabled *bool) ([]*models.Zone, error)

	// MutateZone runs fn on the current zone row atomically.
	MutateZone(ctx context.Context, id string, fn func(z *models.Zone) error) (*models.Zone, error)
}

// SessionStore persists hosting sessions. Mutations that touch host load
// counters are combined with the session write in a single atomic operation.
type SessionStore interface {
	// CreateSessionForHost atomically verifies the bound host is ONLINE with
	// spare zone capacity, reserves that capacity (current_zones+1,
	// current_players+len(members)) and inserts the session. Returns
	// models.ErrHostOffline or models.ErrCapacityExceeded without mutating
	// anything when the guard fails.
	CreateSessionForHost(ctx context.Context, session *models.Session) error

	// GetSession returns the session or models.ErrNotFound.
	GetSession(ctx context.Context, id string) (*models.Session, error)

	// ListSessionsByHost returns sessions bound to the host; activeOnly
	// restricts to non-terminal ones.
	ListSessionsByHost(ctx context.Context, hostID string, activeOnly bool) ([]*models.Session, error)

	// ListSessionsByZone returns sessions bound to the zone.
	ListSessionsByZone(ctx context.Context, zoneID string, activeOnly bool) ([]*models.Session, error)

	// ListStaleSessions returns ids of non-terminal sessions whose last
	// activity (metrics update, else started_at, else created_at) is older
	// than cutoff.
	ListStaleSessions(ctx context.Context, cutoff time.Time) ([]string, error)

	// MutateSessionAndHost runs fn on the session and its bound host inside
	// one atomic boundary and persists both. The closure is where state
	// transitions, membership changes and capacity releases happen; the
	// store guarantees no other replica interleaves.
	MutateSessionAndHost(ctx context.Context, sessionID string, fn func(s *models.Session, h *models.Host) error) (*models.Session, error)
}

// Store is the full durable store surface, constructed once at process start
// and passed to every component that needs it.
type Store interface {
	HostStore
	ZoneStore
	SessionStore

	Ping(ctx context.Context) error
	Close() error
}
