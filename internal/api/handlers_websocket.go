package api

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Cross-origin policy is enforced by the CORS middleware; relays
		// connect from their own origins.
		return true
	},
}

// signalingFeed handles GET /api/v1/ws/signaling. It upgrades the
// connection and hands it to the hub, which streams session state change
// events until the relay disconnects.
func (s *Server) signalingFeed(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return BadRequestError("websocket upgrade failed", err.Error())
	}

	s.hub.Serve(conn)
	return nil
}
