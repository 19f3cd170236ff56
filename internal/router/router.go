package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/open-mic/internal/handler"
	"github.com/iliyamo/open-mic/internal/live"
	"github.com/iliyamo/open-mic/internal/metrics"
	"github.com/iliyamo/open-mic/internal/middleware"
)

// RegisterRoutes registers the unauthenticated operational routes: the
// health check and the Prometheus scrape endpoint.  db may be nil when
// the in-memory store is used.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

// RegisterAuth registers the account routes under /users.  Logout and me
// read the bearer token; logout also works with only a refresh token in
// the body.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/users")
	g.POST("/signup", a.Register, limit)
	g.POST("/login", a.Login, limit)
	g.POST("/refresh", a.Refresh, limit)

	optional := middleware.OptionalJWT(jwtSecret)
	g.POST("/logout", a.Logout, optional)
	g.GET("/logout", a.Logout, optional)
	g.GET("/me", a.Me, middleware.JWTAuth(jwtSecret))
}

// RegisterLive exposes the live snapshot channel.
func RegisterLive(e *echo.Echo, h *live.Handler) {
	e.GET("/socket/mic", h.Mic)
}
