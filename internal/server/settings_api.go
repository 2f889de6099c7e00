package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/uplinkd/uplink/internal/settings"
)

// settingBody is the wire format of a single setting.
type settingBody struct {
	Key      string            `json:"key,omitempty"`
	Value    string            `json:"value"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// handleGetSetting serves a single setting by key.
func (s *Server) handleGetSetting(c echo.Context) error {
	key := c.Param("key")

	value, err := s.provider.Get(c.Request().Context(), key)
	if err != nil {
		if errors.Is(err, settings.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"detail": "setting not found"})
		}
		s.logger.Error("failed to read setting",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": "failed to read setting"})
	}

	return c.JSON(http.StatusOK, settingBody{Key: key, Value: value})
}

// handlePutSetting stores a single setting by key.
func (s *Server) handlePutSetting(c echo.Context) error {
	key := c.Param("key")

	var body settingBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
	}

	if err := s.provider.Set(c.Request().Context(), key, body.Value, body.Metadata); err != nil {
		s.logger.Error("failed to store setting",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": "failed to store setting"})
	}

	return c.JSON(http.StatusOK, settingBody{Key: key, Value: body.Value})
}
