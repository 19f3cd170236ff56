package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "net/http" // HTTP status codes for responses
    "strconv"  // numeric subjects encoded as strings
    "strings"  // string utilities for prefix checking and trimming

    "github.com/golang-jwt/jwt/v5" // JWT library for parsing and validating tokens
    "github.com/labstack/echo/v4"  // Echo framework used for defining middleware and handlers
)

// Context keys set by the JWT middleware.
const (
    ctxUserID = "user_id"
    ctxRole   = "role"
)

// JWTAuth returns an Echo middleware that requires a valid Bearer access
// token.  On success the user ID (uint64) and role (string) are stored in
// the context; read them back with UserID and Role.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            uid, role, ok := parseAccess(secret, strings.TrimPrefix(auth, "Bearer "))
            if !ok {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }
            c.Set(ctxUserID, uid)
            c.Set(ctxRole, role)
            return next(c)
        }
    }
}

// OptionalJWT identifies the caller when a valid Bearer token is present
// and lets the request through anonymously otherwise.  Signup, check-in
// and the mic list serve both registered and anonymous performers.  A
// token that is present but invalid is still rejected, so an expired
// session is not silently downgraded to an anonymous signup.
func OptionalJWT(secret string) echo.MiddlewareFunc {
    required := JWTAuth(secret)
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        withAuth := required(next)
        return func(c echo.Context) error {
            if c.Request().Header.Get("Authorization") == "" {
                return next(c)
            }
            return withAuth(c)
        }
    }
}

// parseAccess validates an HS256 access token and extracts its subject
// and role claims.
func parseAccess(secret, raw string) (uint64, string, bool) {
    tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
        // Reject tokens signed with anything but HMAC.
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, echo.ErrUnauthorized
        }
        return []byte(secret), nil
    })
    if err != nil || !tok.Valid {
        return 0, "", false
    }
    claims, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return 0, "", false
    }
    var uid uint64
    switch sub := claims["sub"].(type) {
    case float64:
        // JSON numbers decode as float64.
        uid = uint64(sub)
    case string:
        n, err := strconv.ParseUint(sub, 10, 64)
        if err != nil {
            return 0, "", false
        }
        uid = n
    }
    if uid == 0 {
        return 0, "", false
    }
    role, _ := claims["role"].(string)
    return uid, role, true
}

// UserID returns the authenticated user, if any.
func UserID(c echo.Context) (uint64, bool) {
    uid, ok := c.Get(ctxUserID).(uint64)
    return uid, ok && uid != 0
}

// Role returns the authenticated user's role, "" for anonymous callers.
func Role(c echo.Context) string {
    role, _ := c.Get(ctxRole).(string)
    return role
}
