package controller

import (
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Reason string `json:"reason"`
}

func GetSwagger() (*openapi3.T, error) {
	return &openapi3.T{}, nil
}

// RegisterHandlersWithBaseURL wires the auth routes under base. The bearer
// middleware guards only the routes that need an authenticated caller; logout
// gets the lighter capture middleware because it is authorized by the refresh
// token alone.
func RegisterHandlersWithBaseURL(e *echo.Echo, c *Controller, base string, bearerAuth, tokenCapture echo.MiddlewareFunc) {
	g := e.Group(base)
	g.GET("/ping", c.CheckServer)
	g.POST("/register", c.Register)
	g.POST("/login", c.Login)
	g.POST("/refresh", c.Refresh)
	g.POST("/password-reset", c.RequestPasswordReset)
	g.POST("/reset-password", c.ConfirmPasswordReset)

	g.DELETE("/logout", c.Logout, tokenCapture)
	g.DELETE("/sessions", c.RevokeAllSessions, bearerAuth)
}
