package streaming

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	defaultCapacity       = 256
	defaultFlushThreshold = 4096
)

// Server exposes the WebSocket and SSE endpoints over an existing Hub.
// Adapted from cmd/fanout/server.go's HandleWebSocket wiring, rehosted
// on labstack/echo to match the rest of the operator surface, and
// generalized from a single username-scoped channel to the three
// declared scopes with an explicit lossy query flag.
type Server struct {
	hub *Hub
}

// NewServer wraps hub for HTTP registration.
func NewServer(hub *Hub) *Server {
	return &Server{hub: hub}
}

// Register mounts /stream/ws and /stream/sse on e.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/stream/ws", s.handleWebSocket)
	e.GET("/stream/sse", s.handleSSE)
}

func (s *Server) handleWebSocket(c echo.Context) error {
	key, capacity, lossy, flushThreshold, err := parseSubscribeParams(c)
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	session, err := s.hub.Subscribe(key, capacity, lossy, flushThreshold)
	if err == ErrOverloaded {
		return c.String(http.StatusServiceUnavailable, "streaming: overloaded")
	}
	if err != nil {
		return err
	}

	return ServeWebSocket(s.hub, session, c.Response(), c.Request())
}

func (s *Server) handleSSE(c echo.Context) error {
	key, capacity, lossy, flushThreshold, err := parseSubscribeParams(c)
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	session, err := s.hub.Subscribe(key, capacity, lossy, flushThreshold)
	if err == ErrOverloaded {
		return c.String(http.StatusServiceUnavailable, "streaming: overloaded")
	}
	if err != nil {
		return err
	}

	return ServeSSE(s.hub, session, c.Response(), c.Request())
}

func parseSubscribeParams(c echo.Context) (ChannelKey, int, bool, int, error) {
	scope := Scope(c.QueryParam("scope"))
	switch scope {
	case ScopeToken, ScopeWorkflow, ScopeSession:
	default:
		return ChannelKey{}, 0, false, 0, errors.New("scope must be one of token, workflow, session")
	}

	id := c.QueryParam("id")
	if id == "" {
		return ChannelKey{}, 0, false, 0, errors.New("id is required")
	}

	capacity := defaultCapacity
	if raw := c.QueryParam("capacity"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			capacity = v
		}
	}

	lossy := c.QueryParam("lossy") == "true"

	return ChannelKey{Scope: scope, ID: id}, capacity, lossy, defaultFlushThreshold, nil
}
