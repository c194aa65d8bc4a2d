package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/mkazakov/sessiond/internal/service"
	"github.com/mkazakov/sessiond/internal/util"
)

// ErrorHandler maps service sentinel errors to HTTP statuses in one place,
// so handlers can return them untouched. Anything unrecognized fails closed
// as a 500.
func ErrorHandler(log *zap.SugaredLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		if isUnauthorizedError(err) {
			c.JSON(http.StatusUnauthorized, map[string]string{"reason": "not authenticated"})
			return
		}

		if errors.Is(err, service.ErrBadRequest) || errors.Is(err, service.ErrTokenMalformed) {
			c.JSON(http.StatusBadRequest, map[string]string{"reason": "bad request"})
			return
		}

		var customErr util.MyResponseError
		if errors.As(err, &customErr) {
			c.JSON(customErr.Status, map[string]string{"reason": customErr.Msg})
			return
		}

		he, ok := err.(*echo.HTTPError)
		if ok {
			if he.Code == http.StatusInternalServerError {
				log.Errorw("HTTP error", "error", err, "uri", c.Request().RequestURI)
			}
			msg, isString := he.Message.(string)
			if !isString {
				msg = http.StatusText(he.Code)
			}
			if err := c.JSON(he.Code, map[string]string{"reason": msg}); err != nil {
				log.Errorw("failed to write json response", "error", err)
			}
			return
		}

		log.Errorw("unhandled error", "error", err, "uri", c.Request().RequestURI)
		c.JSON(http.StatusInternalServerError, map[string]string{"reason": "internal server error"})
	}
}

// Авторизационные ошибки никогда не раскрывают причину отказа.
func isUnauthorizedError(err error) bool {
	return errors.Is(err, service.ErrTokenInvalid) ||
		errors.Is(err, service.ErrInvalidCredentials)
}
