package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/open-mic/internal/handler"
	"github.com/iliyamo/open-mic/internal/middleware"
)

// RegisterPerformer registers the routes performers use.  None of them
// require an account: a bearer token, when present, identifies the
// caller and anonymous callers identify themselves with the anon body
// field.  The mic list is served through the response cache; every
// mutating route passes the rate limiter.
func RegisterPerformer(e *echo.Echo, m *handler.MicHandler, p *handler.PerformerHandler, jwtSecret string, limit, cache echo.MiddlewareFunc) {
	optional := middleware.OptionalJWT(jwtSecret)

	e.GET("/mic/mics", m.List, optional, cache)
	e.POST("/micdetails", m.Details, optional)
	e.POST("/mic/performers", m.Performers, optional)

	// Per-route middleware rather than a /mic group: host routes share
	// the prefix with a different chain.
	mw := []echo.MiddlewareFunc{optional, limit}
	e.POST("/mic/user/signup", p.UserSignup, mw...)
	e.POST("/mic/user/waitinglist/signup", p.WaitingSignup, mw...)
	e.POST("/mic/signup", p.AnonSignup, mw...)
	e.POST("/mic/waitinglist/signup", p.WaitingSignup, mw...)
	e.POST("/mic/checkin", p.CheckIn, mw...)
	e.DELETE("/mic/removeself", p.RemoveSelf, mw...)
	e.DELETE("/mic/removeanonuser", p.RemoveAnon, mw...)
}
