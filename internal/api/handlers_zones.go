package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/hostmesh/hostmesh/models"
)

// listZones handles GET /api/v1/zones
func (s *Server) listZones(c echo.Context) error {
	var p2pEnabled *bool
	if raw := c.QueryParam("p2p_enabled"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return BadRequestError("Invalid p2p_enabled parameter", "must be true or false")
		}
		p2pEnabled = &v
	}

	zones, err := s.zones.List(c.Request().Context(), p2pEnabled)
	if err != nil {
		return domainError(err, "zone", "")
	}

	return c.JSON(http.StatusOK, ZonesResponse{
		Count: len(zones),
		Zones: zones,
	})
}

// getZone handles GET /api/v1/zones/:id
func (s *Server) getZone(c echo.Context) error {
	id := c.Param("id")

	zone, err := s.zones.Get(c.Request().Context(), id)
	if err != nil {
		return domainError(err, "zone", id)
	}

	return c.JSON(http.StatusOK, zone)
}

// upsertZone handles POST /api/v1/zones and PUT /api/v1/zones/:id
func (s *Server) upsertZone(c echo.Context) error {
	var spec models.Zone

	if err := c.Bind(&spec); err != nil {
		return BadRequestError("invalid request body", err.Error())
	}

	// On PUT the path wins over any ID in the body.
	if id := c.Param("id"); id != "" {
		spec.ID = id
	}

	zone, err := s.zones.Upsert(c.Request().Context(), &spec)
	if err != nil {
		return domainError(err, "zone", spec.ID)
	}

	return c.JSON(http.StatusOK, zone)
}

// enableZoneP2P handles POST /api/v1/zones/:id/enable
func (s *Server) enableZoneP2P(c echo.Context) error {
	id := c.Param("id")

	zone, err := s.zones.EnableP2P(c.Request().Context(), id)
	if err != nil {
		return domainError(err, "zone", id)
	}

	return c.JSON(http.StatusOK, zone)
}

// disableZoneP2P handles POST /api/v1/zones/:id/disable
func (s *Server) disableZoneP2P(c echo.Context) error {
	id := c.Param("id")

	zone, err := s.zones.DisableP2P(c.Request().Context(), id)
	if err != nil {
		return domainError(err, "zone", id)
	}

	return c.JSON(http.StatusOK, zone)
}

// selectBestHost handles GET /api/v1/zones/:id/best-host
func (s *Server) selectBestHost(c echo.Context) error {
	id := c.Param("id")

	zone, err := s.zones.Get(c.Request().Context(), id)
	if err != nil {
		return domainError(err, "zone", id)
	}

	host, err := s.hosts.SelectBest(c.Request().Context(), zone)
	if err != nil {
		return domainError(err, "eligible host", id)
	}

	return c.JSON(http.StatusOK, host)
}

// listZoneSessions handles GET /api/v1/zones/:id/sessions
func (s *Server) listZoneSessions(c echo.Context) error {
	id := c.Param("id")
	activeOnly := c.QueryParam("active") == "true"

	sessions, err := s.sessions.ListByZone(c.Request().Context(), id, activeOnly)
	if err != nil {
		return domainError(err, "zone", id)
	}

	return c.JSON(http.StatusOK, SessionsResponse{
		Count:    len(sessions),
		Sessions: sessions,
	})
}
