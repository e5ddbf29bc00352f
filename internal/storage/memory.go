package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hostmesh/hostmesh/models"
)

// Memory is an in-process Store used in tests and local development. A
// single mutex stands in for the transactional boundary the Postgres store
// gets from row locks, which preserves the same atomicity guarantees for
// capacity checks under concurrent callers.
type Memory struct {
	mu       sync.Mutex
	hosts    map[string]*models.Host
	zones    map[string]*models.Zone
	sessions map[string]*models.Session
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		hosts:    make(map[string]*models.Host),
		zones:    make(map[string]*models.Zone),
		sessions: make(map[string]*models.Session),
	}
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
func (m *Memory) Close() error                   { return nil }

func copyHost(h *models.Host) *models.Host {
	c := *h
	if h.ExtraMetadata != nil {
		c.ExtraMetadata = make(map[string]string, len(h.ExtraMetadata))
		for k, v := range h.ExtraMetadata {
			c.ExtraMetadata[k] = v
		}
	}
	return &c
}

func copyZone(z *models.Zone) *models.Zone {
	c := *z
	return &c
}

func copySession(s *models.Session) *models.Session {
	c := *s
	c.ConnectedPlayers = append([]string{}, s.ConnectedPlayers...)
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	if s.MetricsUpdatedAt != nil {
		t := *s.MetricsUpdatedAt
		c.MetricsUpdatedAt = &t
	}
	return &c
}

// UpsertHost creates or replaces the host record by ID.
func (m *Memory) UpsertHost(ctx context.Context, h *models.Host) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hosts[h.ID] = copyHost(h)
	return nil
}

// GetHost returns the host or models.ErrNotFound.
func (m *Memory) GetHost(ctx context.Context, id string) (*models.Host, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hosts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyHost(h), nil
}

// ListHosts returns hosts, optionally filtered by status, ordered by id.
func (m *Memory) ListHosts(ctx context.Context, status models.HostStatus) ([]*models.Host, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var hosts []*models.Host
	for _, h := range m.hosts {
		if status != "" && h.Status != status {
			continue
		}
		hosts = append(hosts, copyHost(h))
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].ID < hosts[j].ID })
	return hosts, nil
}

// MutateHost applies fn under the store lock and commits on success.
func (m *Memory) MutateHost(ctx context.Context, id string, fn func(h *models.Host) error) (*models.Host, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hosts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	work := copyHost(h)
	if err := fn(work); err != nil {
		return nil, err
	}
	work.UpdatedAt = time.Now().UTC()
	m.hosts[id] = work
	return copyHost(work), nil
}

// DeleteHost removes the host record.
func (m *Memory) DeleteHost(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hosts[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.hosts, id)
	return nil
}

// ListExpiredHosts returns ONLINE hosts whose heartbeat is older than cutoff.
func (m *Memory) ListExpiredHosts(ctx context.Context, cutoff time.Time) ([]*models.Host, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var hosts []*models.Host
	for _, h := range m.hosts {
		if h.Status == models.HostStatusOnline && h.LastHeartbeat.Before(cutoff) {
			hosts = append(hosts, copyHost(h))
		}
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].ID < hosts[j].ID })
	return hosts, nil
}

// UpsertZone creates or replaces the zone record by ID.
func (m *Memory) UpsertZone(ctx context.Context, z *models.Zone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zones[z.ID] = copyZone(z)
	return nil
}

// GetZone returns the zone or models.ErrNotFound.
func (m *Memory) GetZone(ctx context.Context, id string) (*models.Zone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zones[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyZone(z), nil
}

// ListZones returns zones ordered by p2p priority desc, then id.
func (m *Memory) ListZones(ctx context.Context, p2pEnabled *bool) ([]*models.Zone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zones []*models.Zone
	for _, z := range m.zones {
		if p2pEnabled != nil && z.P2PEnabled != *p2pEnabled {
			continue
		}
		zones = append(zones, copyZone(z))
	}
	sort.Slice(zones, func(i, j int) bool {
		if zones[i].P2PPriority != zones[j].P2PPriority {
			return zones[i].P2PPriority > zones[j].P2PPriority
		}
		return zones[i].ID < zones[j].ID
	})
	return zones, nil
}

// MutateZone applies fn under the store lock and commits on success.
func (m *Memory) MutateZone(ctx context.Context, id string, fn func(z *models.Zone) error) (*models.Zone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zones[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	work := copyZone(z)
	if err := fn(work); err != nil {
		return nil, err
	}
	work.UpdatedAt = time.Now().UTC()
	m.zones[id] = work
	return copyZone(work), nil
}

// CreateSessionForHost reserves host capacity and inserts the session under
// one lock acquisition, mirroring the Postgres transaction.
func (m *Memory) CreateSessionForHost(ctx context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.hosts[s.HostID]
	if !ok {
		return models.ErrNotFound
	}
	if h.Status != models.HostStatusOnline {
		return models.ErrHostOffline
	}
	if !h.HasZoneCapacity() {
		return models.ErrCapacityExceeded
	}
	if h.CurrentPlayers+len(s.ConnectedPlayers) > h.MaxPlayers {
		return models.ErrCapacityExceeded
	}

	h.CurrentZones++
	h.CurrentPlayers += len(s.ConnectedPlayers)
	h.QualityScore = models.ComputeQualityScore(h)
	h.UpdatedAt = time.Now().UTC()

	m.sessions[s.ID] = copySession(s)
	return nil
}

// GetSession returns the session or models.ErrNotFound.
func (m *Memory) GetSession(ctx context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copySession(s), nil
}

func (m *Memory) listSessions(match func(*models.Session) bool) []*models.Session {
	var sessions []*models.Session
	for _, s := range m.sessions {
		if match(s) {
			sessions = append(sessions, copySession(s))
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions
}

// ListSessionsByHost returns sessions bound to the host.
func (m *Memory) ListSessionsByHost(ctx context.Context, hostID string, activeOnly bool) ([]*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listSessions(func(s *models.Session) bool {
		return s.HostID == hostID && (!activeOnly || !s.Status.Terminal())
	}), nil
}

// ListSessionsByZone returns sessions bound to the zone.
func (m *Memory) ListSessionsByZone(ctx context.Context, zoneID string, activeOnly bool) ([]*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listSessions(func(s *models.Session) bool {
		return s.ZoneID == zoneID && (!activeOnly || !s.Status.Terminal())
	}), nil
}

// ListStaleSessions returns ids of non-terminal sessions stale before cutoff.
func (m *Memory) ListStaleSessions(ctx context.Context, cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, s := range m.sessions {
		if !s.Status.Terminal() && s.LastActivity().Before(cutoff) {
			ids = append(ids, s.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// MutateSessionAndHost applies fn to the session and its bound host under
// one lock acquisition and commits both on success.
func (m *Memory) MutateSessionAndHost(ctx context.Context, sessionID string, fn func(s *models.Session, h *models.Host) error) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, models.ErrNotFound
	}
	h, ok := m.hosts[s.HostID]
	if !ok {
		return nil, models.ErrNotFound
	}

	workS := copySession(s)
	workH := copyHost(h)
	if err := fn(workS, workH); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	workH.UpdatedAt = now
	m.sessions[sessionID] = workS
	m.hosts[s.HostID] = workH
	return copySession(workS), nil
}
