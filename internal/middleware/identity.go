package middleware

// identity.go holds the accessors for values earlier middleware stored in
// the echo context.

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

// ActorID returns the authenticated admin id, or 0 for guests.
func ActorID(c echo.Context) uint64 {
    id, _ := c.Get(CtxUserID).(uint64)
    return id
}

// Role returns the authenticated role, or "" for guests.
func Role(c echo.Context) string {
    r, _ := c.Get(CtxRole).(string)
    return r
}

// RequestID returns the id assigned by RequestLogger.
func RequestID(c echo.Context) string {
    id, _ := c.Get(ctxRequestID).(string)
    return id
}

// principal names the caller for rate-limit keys: the admin id when
// authenticated, "guest" otherwise.
func principal(c echo.Context) string {
    if id := ActorID(c); id != 0 {
        return strconv.FormatUint(id, 10)
    }
    return "guest"
}
