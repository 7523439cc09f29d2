package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/account_service/internal/handlers/auth"
	authmw "github.com/Skotchmaster/account_service/internal/middleware/auth"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	AuthHandler *auth.AuthHandler
	Sessions    authmw.Authenticator
	DB          Pinger
	// Throttle guards the public write endpoints. Nil disables it.
	Throttle echo.MiddlewareFunc
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.DB != nil {
			if err := d.DB.Ping(c.Request().Context()); err != nil {
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "db unavailable"})
			}
		}
		return c.NoContent(http.StatusOK)
	})

	var throttled []echo.MiddlewareFunc
	if d.Throttle != nil {
		throttled = append(throttled, d.Throttle)
	}

	e.POST("/register", d.AuthHandler.Register, throttled...)
	e.GET("/check_user_email/:email", d.AuthHandler.CheckUserEmail)
	e.POST("/send_verification_code", d.AuthHandler.SendVerificationCode, throttled...)
	e.GET("/verify_code", d.AuthHandler.VerifyCode)
	e.POST("/login", d.AuthHandler.Login, throttled...)
	e.POST("/logout", d.AuthHandler.Logout)
	e.GET("/current_sessions", d.AuthHandler.CurrentSessions)

	session := authmw.RequireSession(d.Sessions)

	e.GET("/me", d.AuthHandler.Me, session)
	e.PUT("/me", d.AuthHandler.UpdateMe, session)
	e.PUT("/me/password", d.AuthHandler.ChangePassword, session)
	e.DELETE("/me", d.AuthHandler.DeleteMe, session)
	e.GET("/referrals", d.AuthHandler.Referrals, session)
}
