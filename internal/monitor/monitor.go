// Package monitor runs the coordinator's background maintenance loops.
// Every replica runs all three loops; each one operates on "every row
// matching an expiry predicate", so concurrent and repeated runs across
// replicas converge on the same state instead of conflicting.
package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hostmesh/hostmesh/internal/session"
	"github.com/hostmesh/hostmesh/internal/storage"
	"github.com/hostmesh/hostmesh/models"
)

// errAlreadyExpired aborts a heartbeat expiry write another replica won.
var errAlreadyExpired = errors.New("host no longer expired")

// Config holds the loop intervals and expiry thresholds.
type Config struct {
	// HeartbeatTimeout marks a host OFFLINE when its last heartbeat is
	// older than this.
	HeartbeatTimeout time.Duration

	// SessionStaleTimeout terminates sessions with no activity for this
	// long.
	SessionStaleTimeout time.Duration

	HealthInterval    time.Duration
	CleanupInterval   time.Duration
	HeartbeatInterval time.Duration
}

// DefaultConfig returns the standard monitor timings.
func DefaultConfig() Config {
	return Config{
		HeartbeatTimeout:    90 * time.Second,
		SessionStaleTimeout: 10 * time.Minute,
		HealthInterval:      time.Minute,
		CleanupInterval:     5 * time.Minute,
		HeartbeatInterval:   30 * time.Second,
	}
}

// Monitor owns the three maintenance loops: session health, stale session
// cleanup and host heartbeat expiry.
type Monitor struct {
	store    storage.Store
	sessions *session.Manager
	cfg      Config
	log      *logrus.Entry

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a monitor. Zero config values fall back to defaults.
func New(store storage.Store, sessions *session.Manager, cfg Config, log *logrus.Logger) *Monitor {
	def := DefaultConfig()
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if cfg.SessionStaleTimeout <= 0 {
		cfg.SessionStaleTimeout = def.SessionStaleTimeout
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = def.HealthInterval
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	return &Monitor{
		store:    store,
		sessions: sessions,
		cfg:      cfg,
		log:      log.WithField("component", "monitor"),
	}
}

// Start launches the loops. Each loop runs its pass immediately, then on
// its interval, until Stop is called.
func (m *Monitor) Start() {
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{}, 3)

	go m.run(ctx, m.cfg.HealthInterval, m.checkSessionHealth)
	go m.run(ctx, m.cfg.CleanupInterval, m.cleanupStaleSessions)
	go m.run(ctx, m.cfg.HeartbeatInterval, m.expireHeartbeats)

	m.log.WithFields(logrus.Fields{
		"health_interval":    m.cfg.HealthInterval,
		"cleanup_interval":   m.cfg.CleanupInterval,
		"heartbeat_interval": m.cfg.HeartbeatInterval,
	}).Info("monitor started")
}

// Stop halts all loops and waits for them to finish their current pass.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	for i := 0; i < 3; i++ {
		<-m.done
	}
	m.cancel = nil
	m.log.Info("monitor stopped")
}

// run drives one loop. The pass function must log its own errors; a
// panic-free pass that returns is all the loop requires.
func (m *Monitor) run(ctx context.Context, interval time.Duration, pass func(ctx context.Context)) {
	defer func() { m.done <- struct{}{} }()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pass(ctx)
	for {
		select {
		case <-ticker.C:
			pass(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// checkSessionHealth aggregates quality metrics over the running sessions.
// The aggregate is logged for operators; hosts whose running sessions report
// sustained bad quality show up here long before players file reports.
func (m *Monitor) checkSessionHealth(ctx context.Context) {
	hosts, err := m.store.ListHosts(ctx, models.HostStatusOnline)
	if err != nil {
		m.log.WithError(err).Error("session health pass failed to list hosts")
		return
	}

	var total, active int
	var latencySum, lossSum float64
	for _, h := range hosts {
		sessions, err := m.store.ListSessionsByHost(ctx, h.ID, true)
		if err != nil {
			m.log.WithError(err).WithField("host_id", h.ID).Warn("session health pass skipped host")
			continue
		}
		for _, s := range sessions {
			total++
			if s.Status == models.SessionStatusActive {
				active++
				latencySum += s.AverageLatencyMs
				lossSum += s.AveragePacketLossPercent
			}
		}
	}

	fields := logrus.Fields{
		"hosts":           len(hosts),
		"sessions":        total,
		"active_sessions": active,
	}
	if active > 0 {
		fields["avg_latency_ms"] = latencySum / float64(active)
		fields["avg_packet_loss"] = lossSum / float64(active)
	}
	m.log.WithFields(fields).Debug("session health pass")
}

// cleanupStaleSessions terminates sessions whose last activity predates the
// stale timeout, releasing their host capacity.
func (m *Monitor) cleanupStaleSessions(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-m.cfg.SessionStaleTimeout)
	cleaned, err := m.sessions.CleanupStale(ctx, cutoff)
	if err != nil {
		m.log.WithError(err).Error("stale session cleanup failed")
		return
	}
	if cleaned > 0 {
		m.log.WithField("sessions", cleaned).Info("cleanup pass terminated stale sessions")
	}
}

// expireHeartbeats marks hosts OFFLINE once their heartbeat is older than
// the timeout and force-fails their sessions so players can be reassigned.
// The conditional status write means two replicas expiring the same host
// race harmlessly: the loser sees the host already OFFLINE.
func (m *Monitor) expireHeartbeats(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-m.cfg.HeartbeatTimeout)
	expired, err := m.store.ListExpiredHosts(ctx, cutoff)
	if err != nil {
		m.log.WithError(err).Error("heartbeat expiry pass failed to list hosts")
		return
	}

	for _, h := range expired {
		_, err := m.store.MutateHost(ctx, h.ID, func(h *models.Host) error {
			if h.Status != models.HostStatusOnline || !h.LastHeartbeat.Before(cutoff) {
				return errAlreadyExpired
			}
			h.Status = models.HostStatusOffline
			return nil
		})
		if err != nil {
			// Already expired by another replica, or a fresh heartbeat
			// arrived between the list and the write.
			continue
		}

		failed, err := m.sessions.FailSessionsForHost(ctx, h.ID, "host heartbeat expired")
		if err != nil {
			m.log.WithError(err).WithField("host_id", h.ID).Error("failed to terminate sessions for expired host")
			continue
		}
		m.log.WithFields(logrus.Fields{
			"host_id":        h.ID,
			"last_heartbeat": h.LastHeartbeat,
			"sessions":       failed,
		}).Warn("host heartbeat expired, marked offline")
	}
}
