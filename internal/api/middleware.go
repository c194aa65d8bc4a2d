package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/mkazakov/sessiond/internal/models"
	"github.com/mkazakov/sessiond/internal/service"
)

const bearerPrefix = "Bearer "

// BearerAuthMiddleware проверяет access токен из заголовка Authorization.
// Токен сначала сверяется с denylist, затем с подписью; userID и сам токен
// сохраняются в контексте Echo.
func BearerAuthMiddleware(authService *service.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token := ""
			if strings.HasPrefix(header, bearerPrefix) {
				token = strings.TrimPrefix(header, bearerPrefix)
			} else if cookie, err := c.Cookie(models.AccessTokenCookie); err == nil {
				token = cookie.Value
			}
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "access token is missing")
			}

			claims, err := authService.ValidateAccess(c.Request().Context(), token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
			}

			c.Set(models.MwUserIDKey, claims.Subject)
			c.Set(models.MwRoleKey, string(claims.Role))
			c.Set(models.MwTokenKey, token)

			return next(c)
		}
	}
}

// AccessTokenCapture stashes a presented access token in the context without
// requiring one. Logout is authorized by the refresh token; the access token
// is only collected here so it can be denylisted alongside.
func AccessTokenCapture() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if strings.HasPrefix(header, bearerPrefix) {
				c.Set(models.MwTokenKey, strings.TrimPrefix(header, bearerPrefix))
			} else if cookie, err := c.Cookie(models.AccessTokenCookie); err == nil && cookie.Value != "" {
				c.Set(models.MwTokenKey, cookie.Value)
			}
			return next(c)
		}
	}
}

func GetLoggerMiddlewareConfig(a *API) echomiddleware.RequestLoggerConfig {
	return echomiddleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogError:  true,

		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := []interface{}{
				"method", c.Request().Method,
				"uri", v.URI,
				"status", v.Status,
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
				a.log.Errorw("Request", fields...)
			} else {
				a.log.Infow("Request", fields...)
			}
			return nil
		},
	}
}
