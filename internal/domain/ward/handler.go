package ward

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/wardtrack/wardtrack/internal/platform/auth"
	"github.com/wardtrack/wardtrack/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients", h.ListPatients)
	api.GET("/patients/:id", h.GetPatient)
	api.POST("/patients", h.CreatePatient)
	api.PUT("/patients/:id", h.UpdatePatient)
	api.POST("/patients/:id/discharge", h.DischargePatient)

	api.POST("/patients/:id/handovers", h.AddHandover)
	api.PATCH("/patients/:id/handovers/:handoverId", h.UpdateHandover)

	api.POST("/patients/:id/exams", h.AddExam)
	api.PATCH("/patients/:id/exams/:examId", h.UpdateExam)
	api.DELETE("/patients/:id/exams/:examId", h.DeleteExam)

	api.GET("/ward-notes", h.ListWardNotes)
	api.POST("/ward-notes", h.AddWardNote)
	api.DELETE("/ward-notes/:id", h.DeleteWardNote)

	api.GET("/export", h.Export)
	api.POST("/import", h.Import)
	api.POST("/reset", h.Reset)
	api.GET("/save-info", h.SaveInfo)
}

// user returns the username the request authenticated as.
func user(c echo.Context) string {
	return auth.UserFromContext(c.Request().Context())
}

// domainError maps service errors onto HTTP status codes.
func domainError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrBedOccupied):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

// -- Patients --

func (h *Handler) ListPatients(c echo.Context) error {
	var patients []Patient
	switch c.QueryParam("status") {
	case "", StatusActive:
		patients = h.svc.ActivePatients()
	case StatusDischarged:
		patients = h.svc.DischargedPatients()
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status filter")
	}

	pg := pagination.FromContext(c)
	start, end := pg.Slice(len(patients))
	return c.JSON(http.StatusOK, pagination.NewResponse(patients[start:end], len(patients), pg.Limit, pg.Offset))
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, ok := h.svc.PatientByID(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var in PatientInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.AddPatient(c.Request().Context(), user(c), in)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	var patch PatientPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), user(c), c.Param("id"), patch)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DischargePatient(c echo.Context) error {
	var req struct {
		DischargeType string `json:"dischargeType"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.DischargePatient(c.Request().Context(), user(c), c.Param("id"), req.DischargeType)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// -- Handovers --

func (h *Handler) AddHandover(c echo.Context) error {
	var req struct {
		Text        string `json:"text"`
		ScheduledAt *int64 `json:"scheduledAt"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	hand, err := h.svc.AddHandover(c.Request().Context(), user(c), c.Param("id"), req.Text, req.ScheduledAt)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusCreated, hand)
}

func (h *Handler) UpdateHandover(c echo.Context) error {
	var patch HandoverPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	hand, err := h.svc.UpdateHandover(c.Request().Context(), user(c), c.Param("id"), c.Param("handoverId"), patch)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, hand)
}

// -- External exams --

func (h *Handler) AddExam(c echo.Context) error {
	var in ExamInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	exam, err := h.svc.AddExternalExam(c.Request().Context(), user(c), c.Param("id"), in)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusCreated, exam)
}

func (h *Handler) UpdateExam(c echo.Context) error {
	var patch ExamPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	exam, err := h.svc.UpdateExternalExam(c.Request().Context(), user(c), c.Param("id"), c.Param("examId"), patch)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, exam)
}

func (h *Handler) DeleteExam(c echo.Context) error {
	if err := h.svc.DeleteExternalExam(c.Request().Context(), user(c), c.Param("id"), c.Param("examId")); err != nil {
		return domainError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Ward notes --

func (h *Handler) ListWardNotes(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"wardNotes": h.svc.WardNotes()})
}

func (h *Handler) AddWardNote(c echo.Context) error {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	note, ok := h.svc.AddWardNote(c.Request().Context(), user(c), req.Text)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "note text is required")
	}
	return c.JSON(http.StatusCreated, note)
}

func (h *Handler) DeleteWardNote(c echo.Context) error {
	if err := h.svc.DeleteWardNote(c.Request().Context(), user(c), c.Param("id")); err != nil {
		return domainError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Import / export / reset --

func (h *Handler) Export(c echo.Context) error {
	data, err := ExportJSON(h.svc.Snapshot())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", ExportFilename(time.Now())))
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, data)
}

func (h *Handler) Import(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	stats, err := h.svc.Import(c.Request().Context(), user(c), raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) Reset(c echo.Context) error {
	h.svc.Reset(c.Request().Context(), user(c))
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SaveInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.LastSaveInfo())
}
