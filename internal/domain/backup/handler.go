package backup

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Refresher reloads the live ward mirror after a restore rewrites the
// persisted document underneath it.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefreshFunc adapts a plain function to the Refresher interface.
type RefreshFunc func(ctx context.Context) error

func (f RefreshFunc) Refresh(ctx context.Context) error { return f(ctx) }

type Handler struct {
	svc  *Service
	ward Refresher
}

func NewHandler(svc *Service, ward Refresher) *Handler {
	return &Handler{svc: svc, ward: ward}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/backups", h.ListBackups)
	api.POST("/backups/:timestamp/restore", h.RestoreBackup)
	api.DELETE("/backups", h.ClearBackups)
}

func (h *Handler) ListBackups(c echo.Context) error {
	metas, err := h.svc.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"backups": metas})
}

func (h *Handler) RestoreBackup(c echo.Context) error {
	ts, err := strconv.ParseInt(c.Param("timestamp"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid timestamp")
	}
	ok, err := h.svc.Restore(c.Request().Context(), ts)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "backup not found")
	}
	if err := h.ward.Refresh(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ClearBackups(c echo.Context) error {
	if err := h.svc.Clear(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
