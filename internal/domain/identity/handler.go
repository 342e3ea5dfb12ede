package identity

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wardtrack/wardtrack/internal/platform/auth"
)

type Handler struct {
	svc    *Service
	issuer *auth.TokenIssuer
}

func NewHandler(svc *Service, issuer *auth.TokenIssuer) *Handler {
	return &Handler{svc: svc, issuer: issuer}
}

// RegisterPublicRoutes mounts the endpoints reachable without a session.
func (h *Handler) RegisterPublicRoutes(api *echo.Group) {
	api.POST("/login", h.Login)
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/users", h.ListUsers)
	api.POST("/users/password", h.ChangePassword)
	api.POST("/users/:name/reset-password", h.ResetPassword)
}

type loginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	Name  string `json:"name"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ok, err := h.svc.Authenticate(c.Request().Context(), req.Name, req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "authentication unavailable")
	}
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	token, err := h.issuer.Issue(req.Name)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "token issuance failed")
	}
	return c.JSON(http.StatusOK, loginResponse{Token: token, Name: req.Name})
}

func (h *Handler) ListUsers(c echo.Context) error {
	names, err := h.svc.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"users": names})
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// ChangePassword updates the password of the authenticated user only.
func (h *Handler) ChangePassword(c echo.Context) error {
	username := auth.UserFromContext(c.Request().Context())
	if username == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "no session user")
	}
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.ChangePassword(c.Request().Context(), username, req.OldPassword, req.NewPassword); err != nil {
		if errors.Is(err, ErrUnknownUser) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ResetPassword(c echo.Context) error {
	name := c.Param("name")
	if err := h.svc.ResetPassword(c.Request().Context(), name); err != nil {
		if errors.Is(err, ErrUnknownUser) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
