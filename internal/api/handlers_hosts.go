package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hostmesh/hostmesh/models"
)

// listHosts handles GET /api/v1/hosts
func (s *Server) listHosts(c echo.Context) error {
	status := models.HostStatus(c.QueryParam("status"))
	switch status {
	case "", models.HostStatusOnline, models.HostStatusOffline,
		models.HostStatusBusy, models.HostStatusMaintenance:
	default:
		return BadRequestError(
			"Invalid status parameter",
			"Status must be one of: ONLINE, OFFLINE, BUSY, MAINTENANCE. Got: "+string(status),
		)
	}

	hosts, err := s.hosts.List(c.Request().Context(), status)
	if err != nil {
		return domainError(err, "host", "")
	}

	return c.JSON(http.StatusOK, HostsResponse{
		Count: len(hosts),
		Hosts: hosts,
	})
}

// getHost handles GET /api/v1/hosts/:id
func (s *Server) getHost(c echo.Context) error {
	id := c.Param("id")

	host, err := s.hosts.Get(c.Request().Context(), id)
	if err != nil {
		return domainError(err, "host", id)
	}

	return c.JSON(http.StatusOK, host)
}

// registerHost handles POST /api/v1/hosts
func (s *Server) registerHost(c echo.Context) error {
	var spec models.Host

	if err := c.Bind(&spec); err != nil {
		return BadRequestError("invalid request body", err.Error())
	}

	host, err := s.hosts.Register(c.Request().Context(), &spec)
	if err != nil {
		return domainError(err, "host", spec.ID)
	}

	return c.JSON(http.StatusCreated, host)
}

// heartbeat handles POST /api/v1/hosts/:id/heartbeat
func (s *Server) heartbeat(c echo.Context) error {
	id := c.Param("id")

	var t models.Telemetry
	if err := c.Bind(&t); err != nil {
		return BadRequestError("invalid request body", err.Error())
	}

	host, err := s.hosts.Heartbeat(c.Request().Context(), id, t)
	if err != nil {
		return domainError(err, "host", id)
	}

	return c.JSON(http.StatusOK, host)
}

// unregisterHost handles DELETE /api/v1/hosts/:id
func (s *Server) unregisterHost(c echo.Context) error {
	id := c.Param("id")

	if err := s.hosts.Unregister(c.Request().Context(), id); err != nil {
		return domainError(err, "host", id)
	}

	return c.JSON(http.StatusOK, MessageResponse{
		Message: "host unregistered",
		ID:      id,
	})
}

// listHostSessions handles GET /api/v1/hosts/:id/sessions
func (s *Server) listHostSessions(c echo.Context) error {
	id := c.Param("id")
	activeOnly := c.QueryParam("active") == "true"

	sessions, err := s.sessions.ListByHost(c.Request().Context(), id, activeOnly)
	if err != nil {
		return domainError(err, "host", id)
	}

	return c.JSON(http.StatusOK, SessionsResponse{
		Count:    len(sessions),
		Sessions: sessions,
	})
}
