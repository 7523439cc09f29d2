package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/account_service/internal/logging"
	authmw "github.com/Skotchmaster/account_service/internal/middleware/auth"
	"github.com/Skotchmaster/account_service/internal/models"
	"github.com/Skotchmaster/account_service/internal/service"
	"github.com/Skotchmaster/account_service/internal/util"
)

type AuthHandler struct {
	Svc *service.AuthService
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type deviceResponse struct {
	IPAddress string    `json:"ip_address"`
	LastUsed  time.Time `json:"last_used"`
}

type meResponse struct {
	ID            uint            `json:"id"`
	Email         string          `json:"email"`
	Phone         string          `json:"phone"`
	EmailVerified bool            `json:"email_verified"`
	CreatedAt     time.Time       `json:"created_at"`
	Device        *deviceResponse `json:"device"`
}

func message(msg string) echo.Map { return echo.Map{"message": msg} }

func (h *AuthHandler) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req service.RegisterInput
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	user, err := h.Svc.Register(ctx, req)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Registration successful. Please check your email to verify your account.",
		"user_id": user.ID,
	})
}

func (h *AuthHandler) CheckUserEmail(c echo.Context) error {
	exists, err := h.Svc.CheckEmail(c.Request().Context(), c.Param("email"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"exists": exists})
}

func (h *AuthHandler) SendVerificationCode(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "send_verification_code")

	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil || req.Email == "" {
		l.Warn("send_code_error", "status", 400, "reason", "email is required")
		return echo.NewHTTPError(http.StatusBadRequest, "email is required")
	}

	if err := h.Svc.SendVerificationCode(ctx, req.Email); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, message("Verification code sent"))
}

func (h *AuthHandler) VerifyCode(c echo.Context) error {
	email, code := c.QueryParam("email"), c.QueryParam("code")
	if email == "" || code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and code are required")
	}

	msg, err := h.Svc.VerifyCode(c.Request().Context(), email, code)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, message(msg))
}

func (h *AuthHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req service.LoginInput
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	req.IP = c.RealIP()

	tok, err := h.Svc.Login(ctx, req)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, tokenResponse{Token: tok.Token, ExpiresAt: tok.ExpiresAt})
}

// Logout ends every session of a user, named either by the bearer token or
// by the email in the body.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	if raw, ok := authmw.BearerToken(c); ok {
		if err := h.Svc.LogoutToken(ctx, raw); err != nil {
			return toHTTPError(err)
		}
		l.Info("successful_logout")
		return c.JSON(http.StatusOK, message("Logged out successfully"))
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil || req.Email == "" {
		l.Warn("logout_error", "status", 400, "reason", "email is required")
		return echo.NewHTTPError(http.StatusBadRequest, "email is required")
	}
	if err := h.Svc.Logout(ctx, req.Email); err != nil {
		return toHTTPError(err)
	}

	l.Info("successful_logout")
	return c.JSON(http.StatusOK, message("Logged out successfully"))
}

func (h *AuthHandler) CurrentSessions(c echo.Context) error {
	users, err := h.Svc.CurrentSessions(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, users)
}

func (h *AuthHandler) Me(c echo.Context) error {
	uid, ok := authmw.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	p, err := h.Svc.Me(c.Request().Context(), uid)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, toMe(p.User, p.Device))
}

func toMe(u *models.User, d *models.UserDevice) meResponse {
	out := meResponse{
		ID:            u.ID,
		Email:         u.Email,
		Phone:         u.Phone,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
	if d != nil {
		out.Device = &deviceResponse{IPAddress: d.IPAddress, LastUsed: d.LastUsed}
	}
	return out
}

func (h *AuthHandler) ChangePassword(c echo.Context) error {
	uid, ok := authmw.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var req service.ChangePasswordInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := h.Svc.ChangePassword(c.Request().Context(), uid, req); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, message("Password changed, please log in again"))
}

func (h *AuthHandler) UpdateMe(c echo.Context) error {
	uid, ok := authmw.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var req service.UpdateProfileInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	user, err := h.Svc.UpdateProfile(c.Request().Context(), uid, req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, toMe(user, nil))
}

func (h *AuthHandler) DeleteMe(c echo.Context) error {
	uid, ok := authmw.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err := h.Svc.DeleteUser(c.Request().Context(), uid); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, message("Account deleted"))
}

func (h *AuthHandler) Referrals(c echo.Context) error {
	uid, ok := authmw.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	offset, limit := util.Paginate(c.QueryParam("page"), c.QueryParam("size"))
	users, err := h.Svc.ListReferrals(c.Request().Context(), uid, offset, limit)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, users)
}

func toHTTPError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, service.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrConflict):
		return echo.NewHTTPError(http.StatusBadRequest, "Email already registered")
	case errors.Is(err, service.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid credentials")
	case errors.Is(err, service.ErrCodeInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid verification code")
	case errors.Is(err, service.ErrCodeExpired):
		return echo.NewHTTPError(http.StatusBadRequest, "Verification code expired")
	case errors.Is(err, service.ErrAlreadyLoggedIn):
		return echo.NewHTTPError(http.StatusForbidden, "User is already logged in")
	case errors.Is(err, service.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrRateLimitExceeded):
		return echo.NewHTTPError(http.StatusTooManyRequests, "Too many token requests, try again later")
	case errors.Is(err, service.ErrTokenExpired):
		return echo.NewHTTPError(http.StatusUnauthorized, "token expired")
	case errors.Is(err, service.ErrTokenInvalid):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	case errors.Is(err, service.ErrEmailDelivery):
		return echo.NewHTTPError(http.StatusInternalServerError, "Email settings not configured")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}
