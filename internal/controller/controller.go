package controller

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/mkazakov/sessiond/internal/models"
	"github.com/mkazakov/sessiond/internal/service"
	"github.com/mkazakov/sessiond/internal/storage"
)

type Controller struct {
	zapLogger   *zap.SugaredLogger
	authService *service.AuthService
}

func NewController(logger *zap.SugaredLogger, authService *service.AuthService) *Controller {
	return &Controller{
		zapLogger:   logger,
		authService: authService,
	}
}

// (GET /api/ping).
func (c *Controller) CheckServer(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, "ok")
}

// (POST /api/register).
func (c *Controller) Register(ctx echo.Context) error {
	var req models.RegisterRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}

	user, err := c.authService.Register(ctx.Request().Context(), string(req.Email), req.Password)
	if err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			return echo.NewHTTPError(http.StatusConflict, "email already registered")
		}
		return err
	}

	return ctx.JSON(http.StatusCreated, user)
}

// (POST /api/login).
func (c *Controller) Login(ctx echo.Context) error {
	var req models.LoginRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}

	pair, err := c.authService.Login(ctx.Request().Context(), string(req.Email), req.Password)
	if err != nil {
		return err
	}

	setTokenCookie(ctx, models.RefreshTokenCookie, pair.RefreshToken)
	setTokenCookie(ctx, models.AccessTokenCookie, pair.AccessToken)

	return ctx.JSON(http.StatusOK, pair)
}

// (POST /api/refresh).
func (c *Controller) Refresh(ctx echo.Context) error {
	refreshToken := refreshTokenFromRequest(ctx)
	if refreshToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "refresh token is missing")
	}

	accessToken, err := c.authService.Refresh(ctx.Request().Context(), refreshToken)
	if err != nil {
		return err
	}

	setTokenCookie(ctx, models.AccessTokenCookie, accessToken)

	return ctx.JSON(http.StatusOK, models.AccessTokenResponse{AccessToken: accessToken})
}

// (DELETE /api/logout).
func (c *Controller) Logout(ctx echo.Context) error {
	refreshToken := refreshTokenFromRequest(ctx)
	if refreshToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "refresh token is missing")
	}

	accessToken, _ := ctx.Get(models.MwTokenKey).(string)

	if err := c.authService.Logout(ctx.Request().Context(), refreshToken, accessToken); err != nil {
		return err
	}

	clearTokenCookie(ctx, models.RefreshTokenCookie)
	clearTokenCookie(ctx, models.AccessTokenCookie)

	return ctx.NoContent(http.StatusOK)
}

// (DELETE /api/sessions).
func (c *Controller) RevokeAllSessions(ctx echo.Context) error {
	userID, _ := ctx.Get(models.MwUserIDKey).(string)
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}

	if err := c.authService.RevokeAll(ctx.Request().Context(), userID); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusOK)
}

// (POST /api/password-reset).
func (c *Controller) RequestPasswordReset(ctx echo.Context) error {
	var req models.PasswordResetRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email is required")
	}

	if err := c.authService.RequestPasswordReset(ctx.Request().Context(), string(req.Email)); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "reset requested"})
}

// (POST /api/reset-password).
func (c *Controller) ConfirmPasswordReset(ctx echo.Context) error {
	var req models.ResetPasswordRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Token == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token and password are required")
	}

	if err := c.authService.ConfirmPasswordReset(ctx.Request().Context(), req.Token, req.Password); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "password updated"})
}

// Refresh-токен приходит либо в httpOnly cookie, либо в теле запроса.
func refreshTokenFromRequest(ctx echo.Context) string {
	if cookie, err := ctx.Cookie(models.RefreshTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	var req models.RefreshRequest
	if err := ctx.Bind(&req); err != nil {
		return ""
	}
	return req.RefreshToken
}

func setTokenCookie(ctx echo.Context, name, value string) {
	ctx.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearTokenCookie(ctx echo.Context, name string) {
	ctx.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}
