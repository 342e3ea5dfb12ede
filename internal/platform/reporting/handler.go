package reporting

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/wardtrack/wardtrack/internal/domain/ward"
)

const censusMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *ward.Service
}

func NewHandler(svc *ward.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/reports/census", h.Census)
}

// Census streams the current ward census as a spreadsheet download.
func (h *Handler) Census(c echo.Context) error {
	data, err := CensusWorkbook(h.svc.Snapshot())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	name := CensusFilename(time.Now().Format("2006-01-02"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, censusMIME, data)
}
