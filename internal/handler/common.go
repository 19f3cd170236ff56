package handler // handler defines http handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/open-mic/internal/middleware"
	"github.com/iliyamo/open-mic/internal/service"
)

// requestTimeout bounds the store work of one request.
const requestTimeout = 5 * time.Second

// actor builds the service caller from what the JWT middleware stored.
// Routes without a token yield the anonymous actor.
func actor(c echo.Context) service.Actor {
	uid, ok := middleware.UserID(c)
	if !ok {
		return service.Actor{}
	}
	return service.Actor{UserID: uid, Role: middleware.Role(c)}
}

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// writeError maps a service failure onto the HTTP contract.  Unclassified
// errors are logged and reported as 500 without detail.
func writeError(c echo.Context, err error) error {
	var se *service.Error
	if !errors.As(err, &se) {
		log.Error().Err(err).Str("module", "handler").Str("path", c.Path()).Msg("request failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	switch se.Kind {
	case service.KindValidation, service.KindBadRequest:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": se.Msg})
	case service.KindConflict:
		return c.JSON(http.StatusForbidden, echo.Map{"error": se.Msg, "email": se.Email})
	case service.KindForbidden:
		return c.JSON(http.StatusForbidden, echo.Map{"error": se.Msg})
	case service.KindNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"error": se.Msg})
	}
	log.Error().Err(err).Str("module", "handler").Str("path", c.Path()).Msg("request failed")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

func badBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
}

func micRequired(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "micId required"})
}
