// Package client is a typed HTTP client for the Hostmesh coordinator API.
// Game services and relay operators use it instead of hand-rolling requests.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hostmesh/hostmesh/models"
)

// Client talks to a Hostmesh coordinator.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the coordinator at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// APIError is a non-2xx response from the coordinator.
type APIError struct {
	StatusCode int
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("hostmesh: %s: %s (status %d)", e.Message, e.Details, e.StatusCode)
	}
	return fmt.Sprintf("hostmesh: %s (status %d)", e.Message, e.StatusCode)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
			apiErr.Message = resp.Status
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// RegisterHost registers (or re-registers) a host.
func (c *Client) RegisterHost(ctx context.Context, spec *models.Host) (*models.Host, error) {
	var host models.Host
	if err := c.do(ctx, http.MethodPost, "/api/v1/hosts", spec, &host); err != nil {
		return nil, err
	}
	return &host, nil
}

// Heartbeat reports the host's live telemetry.
func (c *Client) Heartbeat(ctx context.Context, hostID string, t models.Telemetry) (*models.Host, error) {
	var host models.Host
	if err := c.do(ctx, http.MethodPost, "/api/v1/hosts/"+hostID+"/heartbeat", t, &host); err != nil {
		return nil, err
	}
	return &host, nil
}

// UnregisterHost removes the host, terminating its sessions.
func (c *Client) UnregisterHost(ctx context.Context, hostID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/hosts/"+hostID, nil, nil)
}

// SelectBestHost asks the coordinator for the best host to serve the zone.
func (c *Client) SelectBestHost(ctx context.Context, zoneID string) (*models.Host, error) {
	var host models.Host
	if err := c.do(ctx, http.MethodGet, "/api/v1/zones/"+zoneID+"/best-host", nil, &host); err != nil {
		return nil, err
	}
	return &host, nil
}

// CreateSession opens a hosting session on the host for the zone.
func (c *Client) CreateSession(ctx context.Context, hostID, zoneID string, players []string) (*models.Session, error) {
	body := map[string]interface{}{
		"host_id": hostID,
		"zone_id": zoneID,
		"players": players,
	}
	var sess models.Session
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions", body, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// ActivateSession confirms a pending session.
func (c *Client) ActivateSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var sess models.Session
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+sessionID+"/activate", nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// AddPlayer joins a player to the session.
func (c *Client) AddPlayer(ctx context.Context, sessionID, playerID string) (*models.Session, error) {
	body := map[string]string{"player_id": playerID}
	var sess models.Session
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+sessionID+"/players", body, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// RemovePlayer removes a player from the session.
func (c *Client) RemovePlayer(ctx context.Context, sessionID, playerID string) (*models.Session, error) {
	var sess models.Session
	if err := c.do(ctx, http.MethodDelete, "/api/v1/sessions/"+sessionID+"/players/"+playerID, nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// EndSession terminates the session normally.
func (c *Client) EndSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var sess models.Session
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+sessionID+"/end", nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}
