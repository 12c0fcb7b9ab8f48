package middleware

import (
    "time"

    "github.com/google/uuid"
    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"
)

const (
    ctxRequestID    = "request_id"
    headerRequestID = echo.HeaderXRequestID
)

// RequestLogger assigns every request an id (reusing a valid inbound
// X-Request-ID) and logs one line per request when it completes.
func RequestLogger(log *logrus.Logger) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            id := c.Request().Header.Get(headerRequestID)
            if _, err := uuid.Parse(id); err != nil {
                id = uuid.NewString()
            }
            c.Set(ctxRequestID, id)
            c.Response().Header().Set(headerRequestID, id)

            start := time.Now()
            err := next(c)
            if err != nil {
                // let the HTTP error handler write the response first
                c.Error(err)
            }
            status := c.Response().Status
            entry := log.WithFields(logrus.Fields{
                "request_id":  id,
                "method":      c.Request().Method,
                "path":        c.Path(),
                "status":      status,
                "duration_ms": time.Since(start).Milliseconds(),
                "ip":          c.RealIP(),
            })
            switch {
            case status >= 500:
                entry.Error("request")
            case status >= 400:
                entry.Warn("request")
            default:
                entry.Info("request")
            }
            return nil
        }
    }
}
