package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hostmesh/hostmesh/internal/session"
)

// createSession handles POST /api/v1/sessions
func (s *Server) createSession(c echo.Context) error {
	var req session.CreateRequest

	if err := c.Bind(&req); err != nil {
		return BadRequestError("invalid request body", err.Error())
	}
	if req.HostID == "" {
		return BadRequestError("host_id is required", "")
	}
	if req.ZoneID == "" {
		return BadRequestError("zone_id is required", "")
	}

	sess, err := s.sessions.Create(c.Request().Context(), req)
	if err != nil {
		return domainError(err, "session", "")
	}

	return c.JSON(http.StatusCreated, sess)
}

// getSession handles GET /api/v1/sessions/:id
func (s *Server) getSession(c echo.Context) error {
	id := c.Param("id")

	sess, err := s.sessions.Get(c.Request().Context(), id)
	if err != nil {
		return domainError(err, "session", id)
	}

	return c.JSON(http.StatusOK, sess)
}

// activateSession handles POST /api/v1/sessions/:id/activate
func (s *Server) activateSession(c echo.Context) error {
	id := c.Param("id")

	sess, err := s.sessions.Activate(c.Request().Context(), id)
	if err != nil {
		return domainError(err, "session", id)
	}

	return c.JSON(http.StatusOK, sess)
}

// pauseSession handles POST /api/v1/sessions/:id/pause
func (s *Server) pauseSession(c echo.Context) error {
	id := c.Param("id")

	sess, err := s.sessions.Pause(c.Request().Context(), id)
	if err != nil {
		return domainError(err, "session", id)
	}

	return c.JSON(http.StatusOK, sess)
}

// resumeSession handles POST /api/v1/sessions/:id/resume
func (s *Server) resumeSession(c echo.Context) error {
	id := c.Param("id")

	sess, err := s.sessions.Resume(c.Request().Context(), id)
	if err != nil {
		return domainError(err, "session", id)
	}

	return c.JSON(http.StatusOK, sess)
}

// endSession handles POST /api/v1/sessions/:id/end
func (s *Server) endSession(c echo.Context) error {
	id := c.Param("id")

	sess, err := s.sessions.End(c.Request().Context(), id)
	if err != nil {
		return domainError(err, "session", id)
	}

	return c.JSON(http.StatusOK, sess)
}

// failSession handles POST /api/v1/sessions/:id/fail
func (s *Server) failSession(c echo.Context) error {
	id := c.Param("id")

	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.Bind(&body)
	if body.Reason == "" {
		body.Reason = "failed by request"
	}

	sess, err := s.sessions.Fail(c.Request().Context(), id, body.Reason)
	if err != nil {
		return domainError(err, "session", id)
	}

	return c.JSON(http.StatusOK, sess)
}

// addPlayer handles POST /api/v1/sessions/:id/players
func (s *Server) addPlayer(c echo.Context) error {
	id := c.Param("id")

	var req PlayerRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("invalid request body", err.Error())
	}
	if req.PlayerID == "" {
		return BadRequestError("player_id is required", "")
	}

	sess, err := s.sessions.AddPlayer(c.Request().Context(), id, req.PlayerID)
	if err != nil {
		return domainError(err, "session", id)
	}

	return c.JSON(http.StatusOK, sess)
}

// removePlayer handles DELETE /api/v1/sessions/:id/players/:playerId
func (s *Server) removePlayer(c echo.Context) error {
	id := c.Param("id")
	playerID := c.Param("playerId")

	sess, err := s.sessions.RemovePlayer(c.Request().Context(), id, playerID)
	if err != nil {
		return domainError(err, "session", id)
	}

	return c.JSON(http.StatusOK, sess)
}

// updateSessionMetrics handles PUT /api/v1/sessions/:id/metrics
func (s *Server) updateSessionMetrics(c echo.Context) error {
	id := c.Param("id")

	var metrics session.Metrics
	if err := c.Bind(&metrics); err != nil {
		return BadRequestError("invalid request body", err.Error())
	}

	sess, err := s.sessions.UpdateMetrics(c.Request().Context(), id, metrics)
	if err != nil {
		return domainError(err, "session", id)
	}

	return c.JSON(http.StatusOK, sess)
}

// cleanupStaleSessions handles POST /api/v1/maintenance/cleanup
func (s *Server) cleanupStaleSessions(c echo.Context) error {
	cutoff := staleCutoff(s.config.Coordinator.SessionStaleTimeout, c.QueryParam("timeout"))

	cleaned, err := s.sessions.CleanupStale(c.Request().Context(), cutoff)
	if err != nil {
		return domainError(err, "session", "")
	}

	return c.JSON(http.StatusOK, CleanupResponse{Cleaned: cleaned})
}
