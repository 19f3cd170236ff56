package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/open-mic/internal/handler"
	"github.com/iliyamo/open-mic/internal/middleware"
	"github.com/iliyamo/open-mic/internal/model"
)

// RegisterHost registers the routes that run a mic.  All require a valid
// JWT carrying a known role; whether the caller hosts the mic in question (or is an ADMIN) is
// checked by the service, which answers 403 otherwise.
func RegisterHost(e *echo.Echo, m *handler.MicHandler, p *handler.PerformerHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	mw := []echo.MiddlewareFunc{middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleUser, model.RoleAdmin), limit}

	e.POST("/mic", m.Create, mw...)
	e.POST("/mic/create", m.Create, mw...)
	e.POST("/mic/managesignupstate", m.ManageSignup, mw...)
	e.POST("/mic/managecheckin", m.ManageCheckin, mw...)
	e.POST("/mic/hide", m.Hide, mw...)
	e.POST("/mic/admin/checkin", p.AdminCheckIn, mw...)
	e.POST("/mic/completeset", p.CompleteSet, mw...)
	e.POST("/mic/skip", p.Skip, mw...)
	e.POST("/mic/missedset", p.MissedSet, mw...)
	e.POST("/mic/performer/setnext", p.SetNext, mw...)
	e.DELETE("/admin/mic/removeuser", p.AdminRemove, mw...)
}
