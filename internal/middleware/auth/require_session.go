package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/account_service/internal/logging"
	"github.com/Skotchmaster/account_service/internal/models"
	"github.com/Skotchmaster/account_service/pkg/tokens"
)

const CtxUserID = "user_id"

type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*models.Token, error)
}

// BearerToken extracts the credential from "Authorization: Bearer <token>".
func BearerToken(c echo.Context) (string, bool) {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	scheme, raw, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

// RequireSession admits requests whose bearer token is valid and still stored.
func RequireSession(a Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			l := logging.FromContext(ctx).With("middleware", "require_session")

			raw, ok := BearerToken(c)
			if !ok {
				l.Warn("auth_failed", "status", 401, "reason", "missing bearer token")
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			tok, err := a.Authenticate(ctx, raw)
			if err != nil {
				switch {
				case errors.Is(err, tokens.ErrTokenExpired):
					l.Warn("auth_failed", "status", 401, "reason", "token expired")
					return echo.NewHTTPError(http.StatusUnauthorized, "token expired")
				case errors.Is(err, tokens.ErrTokenInvalid):
					l.Warn("auth_failed", "status", 401, "reason", "invalid token")
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
				default:
					l.Error("auth_failed", "status", 500, "error", err)
					return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
				}
			}

			c.Set(CtxUserID, tok.UserID)
			req := c.Request().WithContext(logging.IntoContext(ctx, logging.FromContext(ctx).With("user_id", tok.UserID)))
			c.SetRequest(req)
			return next(c)
		}
	}
}

// UserID returns the id stored by RequireSession.
func UserID(c echo.Context) (uint, bool) {
	id, ok := c.Get(CtxUserID).(uint)
	return id, ok
}
