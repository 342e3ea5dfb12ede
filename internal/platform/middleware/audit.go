package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/wardtrack/wardtrack/internal/platform/auth"
)

// Audit logs every mutating request with the user it was performed as.
// Reads are not audited; the ward document has no per-field access control
// and read volume would drown the log.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			switch c.Request().Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			default:
				return err
			}

			rid, _ := c.Get("request_id").(string)
			logger.Info().
				Str("request_id", rid).
				Str("user", auth.UserFromContext(c.Request().Context())).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Int("status", c.Response().Status).
				Time("at", time.Now()).
				Msg("audit")

			return err
		}
	}
}
