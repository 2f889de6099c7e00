package server

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// Health status values reported by the service.
const (
	// StatusHealthy indicates the service is fully operational.
	StatusHealthy = "healthy"

	// StatusInitializing indicates the service is still starting up.
	// Probing clients treat it as healthy to avoid false disconnects
	// during boot.
	StatusInitializing = "initializing"
)

// HealthResponse is the body of the health endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service,omitempty"`
}

// status returns the current health status of the service.
func (s *Server) status() string {
	if time.Since(s.startedAt) < s.cfg.StartupGrace {
		return StatusInitializing
	}
	return StatusHealthy
}

// handleHealth serves the public probe endpoint.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status: s.status(),
	})
}

// handleInternalHealth serves the inter-service health endpoint.
// It is reachable only from internal networks.
func (s *Server) handleInternalHealth(c echo.Context) error {
	if !isInternalRequest(c.RealIP()) {
		s.logger.Warn("unauthorized access to internal endpoint",
			echoRemoteAttr(c),
		)
		return c.JSON(http.StatusForbidden, map[string]string{"detail": "Access forbidden"})
	}

	return c.JSON(http.StatusOK, HealthResponse{
		Status:  s.status(),
		Service: "internal-api",
	})
}

// isInternalRequest reports whether host is a loopback or private address.
func isInternalRequest(host string) bool {
	if host == "" {
		return false
	}
	if host == "localhost" {
		return true
	}

	// Strip a port if one is present.
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	ip := net.ParseIP(strings.TrimSpace(host))
	if ip == nil {
		return false
	}

	return ip.IsLoopback() || ip.IsPrivate()
}
