package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is anything Health can ping, e.g. *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health returns the liveness endpoint.  With a non-nil db the store is
// pinged and a failure answers 503 so load balancers take the instance
// out of rotation.
func Health(db Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				return c.String(http.StatusServiceUnavailable, "store unavailable")
			}
		}
		return c.String(http.StatusOK, "ok")
	}
}
