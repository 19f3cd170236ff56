package middleware

// identity.go holds helpers shared by the rate limiter and the cache:
// both key entries by caller.

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

// callerKey identifies the caller for keying: the user ID when a token
// was verified, "anon" otherwise.
func callerKey(c echo.Context) string {
    if uid, ok := UserID(c); ok {
        return strconv.FormatUint(uid, 10)
    }
    return "anon"
}
