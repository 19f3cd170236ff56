package middleware

import (
    "time"

    "github.com/google/uuid"
    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"
    "github.com/rs/zerolog/log"
)

// RequestID tags every request with an X-Request-ID (uuid) unless the
// client sent one.
func RequestID() echo.MiddlewareFunc {
    return echomw.RequestIDWithConfig(echomw.RequestIDConfig{
        Generator: uuid.NewString,
    })
}

// RequestLogger writes one zerolog line per request.  Server errors log
// at error level, client errors at warn.
func RequestLogger() echo.MiddlewareFunc {
    return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
        LogMethod:    true,
        LogURIPath:   true,
        LogRoutePath: true,
        LogStatus:    true,
        LogLatency:   true,
        LogRemoteIP:  true,
        LogRequestID: true,
        LogError:     true,
        HandleError:  true,
        LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
            ev := log.Info()
            switch {
            case v.Status >= 500:
                ev = log.Error().Err(v.Error)
            case v.Status >= 400:
                ev = log.Warn()
            }
            ev = ev.Str("module", "http").
                Str("method", v.Method).
                Str("path", v.URIPath).
                Str("route", v.RoutePath).
                Int("status", v.Status).
                Dur("latency", v.Latency.Round(time.Microsecond)).
                Str("ip", v.RemoteIP).
                Str("request_id", v.RequestID)
            if uid, ok := UserID(c); ok {
                ev = ev.Uint64("user_id", uid)
            }
            ev.Msg("request")
            return nil
        },
    })
}
