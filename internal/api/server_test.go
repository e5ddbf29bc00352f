package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostmesh/hostmesh/internal/auth"
	"github.com/hostmesh/hostmesh/internal/config"
	"github.com/hostmesh/hostmesh/internal/ratelimit"
	"github.com/hostmesh/hostmesh/internal/registry"
	"github.com/hostmesh/hostmesh/internal/session"
	"github.com/hostmesh/hostmesh/internal/storage"
	"github.com/hostmesh/hostmesh/models"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.Debug = true
	cfg.Coordinator.SessionStaleTimeout = 10 * time.Minute
	cfg.Security.JWTSecret = "test-secret-for-the-api"
	cfg.Security.JWTExpiration = time.Hour
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, storage.Store) {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}

	log := testLogger()
	store := storage.NewMemory()
	sessions := session.NewManager(store, nil, log)
	deps := Deps{
		Store:    store,
		Hosts:    registry.NewHostRegistry(store, sessions, log),
		Zones:    registry.NewZoneRegistry(store, log),
		Sessions: sessions,
	}
	return New(cfg, deps, log), store
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func hostBody(id string) map[string]interface{} {
	return map[string]interface{}{
		"host_id":            id,
		"player_id":          "player-" + id,
		"ip_address":         "192.168.1.20",
		"port":               7777,
		"cpu_cores":          8,
		"memory_mb":          16384,
		"network_speed_mbps": 500,
		"max_players":        16,
		"max_zones":          2,
	}
}

func zoneBody(id string) map[string]interface{} {
	return map[string]interface{}{
		"zone_id":     id,
		"zone_name":   "Zone " + id,
		"map_name":    "map_" + id,
		"p2p_enabled": true,
		"max_players": 8,
	}
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "hostmesh", body["service"])
}

func TestServer_RegisterAndGetHost(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/hosts", hostBody("host-1"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var host models.Host
	decode(t, rec, &host)
	assert.Equal(t, "host-1", host.ID)
	assert.Equal(t, models.HostStatusOnline, host.Status)
	assert.Greater(t, host.QualityScore, 0.0)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/hosts/host-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/hosts/host-2", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var apiErr APIError
	decode(t, rec, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Code)
	assert.Equal(t, "host not found", apiErr.Message)
}

func TestServer_RegisterHost_ValidationError(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	body := hostBody("host-1")
	body["ip_address"] = "not-an-ip"

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/hosts", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var apiErr APIError
	decode(t, rec, &apiErr)
	assert.Equal(t, "validation failed", apiErr.Message)
	assert.NotEmpty(t, apiErr.FieldError)
}

func TestServer_Heartbeat(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	doRequest(t, srv, http.MethodPost, "/api/v1/hosts", hostBody("host-1"))

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/hosts/host-1/heartbeat", map[string]interface{}{
		"latency_ms":          50,
		"packet_loss_percent": 1,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var host models.Host
	decode(t, rec, &host)
	assert.Equal(t, 50.0, host.LatencyMs)
	assert.Equal(t, 1.0, host.PacketLossPercent)
}

func TestServer_IDFormatValidation(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/hosts/ab", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ContentTypeValidation(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/hosts", bytes.NewReader([]byte("id=host-1")))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ZoneLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/zones", zoneBody("zone-1"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/zones/zone-1/disable", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var zone models.Zone
	decode(t, rec, &zone)
	assert.False(t, zone.P2PEnabled)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/zones", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var zones ZonesResponse
	decode(t, rec, &zones)
	assert.Equal(t, 1, zones.Count)
}

func TestServer_BestHost(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	doRequest(t, srv, http.MethodPost, "/api/v1/hosts", hostBody("host-1"))
	doRequest(t, srv, http.MethodPost, "/api/v1/zones", zoneBody("zone-1"))

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/zones/zone-1/best-host", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var host models.Host
	decode(t, rec, &host)
	assert.Equal(t, "host-1", host.ID)

	// No eligible host once the zone is disabled.
	doRequest(t, srv, http.MethodPost, "/api/v1/zones/zone-1/disable", nil)
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/zones/zone-1/best-host", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_SessionLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	doRequest(t, srv, http.MethodPost, "/api/v1/hosts", hostBody("host-1"))
	doRequest(t, srv, http.MethodPost, "/api/v1/zones", zoneBody("zone-1"))

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/sessions", map[string]interface{}{
		"host_id": "host-1",
		"zone_id": "zone-1",
		"players": []string{"p1"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var sess models.Session
	decode(t, rec, &sess)
	assert.Equal(t, models.SessionStatusPending, sess.Status)
	id := sess.ID

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/sessions/"+id+"/activate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/sessions/"+id+"/players", map[string]interface{}{
		"player_id": "p2",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &sess)
	assert.Equal(t, 2, sess.CurrentPlayers)

	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/sessions/"+id+"/players/p3", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "removing a non-member conflicts")

	rec = doRequest(t, srv, http.MethodPut, "/api/v1/sessions/"+id+"/metrics", map[string]interface{}{
		"average_latency_ms": 42,
		"quality_score":      90,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/sessions/"+id+"/end", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &sess)
	assert.Equal(t, models.SessionStatusEnded, sess.Status)

	// Activating a terminal session conflicts.
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/sessions/"+id+"/activate", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_CreateSession_MissingFields(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/sessions", map[string]interface{}{
		"zone_id": "zone-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_MaintenanceCleanup(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/maintenance/cleanup", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CleanupResponse
	decode(t, rec, &resp)
	assert.Equal(t, 0, resp.Cleaned)
}

func TestServer_AuthEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.Security.AuthEnabled = true
	srv, _ := newTestServer(t, cfg)

	jwtService := auth.NewJWTService(cfg)
	operatorToken, err := jwtService.GenerateToken("op-1", "operator", []models.Role{models.RoleOperator})
	require.NoError(t, err)
	hostToken, err := jwtService.GenerateToken("host-1", "host", []models.Role{models.RoleHost})
	require.NoError(t, err)

	// No credentials.
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/hosts", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Health stays open.
	rec = doRequest(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	authedRequest := func(token, method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		return rec
	}

	// Operators may list hosts; host tokens may not.
	assert.Equal(t, http.StatusOK, authedRequest(operatorToken, http.MethodGet, "/api/v1/hosts").Code)
	assert.Equal(t, http.StatusForbidden, authedRequest(hostToken, http.MethodGet, "/api/v1/hosts").Code)

	// Cleanup needs admin.
	assert.Equal(t, http.StatusForbidden, authedRequest(operatorToken, http.MethodPost, "/api/v1/maintenance/cleanup").Code)

	// Garbage token.
	rec = authedRequest("garbage", http.MethodGet, "/api/v1/hosts")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_AuthWithAPIKey(t *testing.T) {
	key, err := auth.GenerateAPIKey()
	require.NoError(t, err)
	hash, err := auth.HashAPIKey(key)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Security.AuthEnabled = true
	cfg.Security.APIKeyHashes = []string{hash}
	srv, _ := newTestServer(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/hosts", nil)
	req.Header.Set("X-API-Key", key)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/hosts", nil)
	req.Header.Set("X-API-Key", "hmk_wrong")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// fixedCounter always returns the same count, simulating a window that is
// already at a given fill level.
type fixedCounter struct {
	count int64
}

func (c *fixedCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	c.count++
	return c.count, nil
}

func TestServer_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RateLimitEnabled = true

	log := testLogger()
	store := storage.NewMemory()
	sessions := session.NewManager(store, nil, log)
	limiter := ratelimit.NewLimiter(&fixedCounter{}, map[ratelimit.Class]ratelimit.Quota{
		ratelimit.ClassDefault: {Limit: 2, Window: time.Minute},
	}, log)
	srv := New(cfg, Deps{
		Store:    store,
		Hosts:    registry.NewHostRegistry(store, sessions, log),
		Zones:    registry.NewZoneRegistry(store, log),
		Sessions: sessions,
		Limiter:  limiter,
	}, log)

	for i := 0; i < 2; i++ {
		rec := doRequest(t, srv, http.MethodGet, "/api/v1/zones", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/zones", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var apiErr APIError
	decode(t, rec, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Code)
	assert.Contains(t, apiErr.Context, "reset_time")

	// Health bypasses the limiter.
	rec = doRequest(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
