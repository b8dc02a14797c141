// Package middleware provides HTTP middleware for the Wayfarer Echo server.
// Middleware is applied globally (all routes) or per-route group depending
// on the middleware type. See internal/app/routes.go for registration.
package middleware

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// contextKeyRequestID is the Echo context key for the request ID.
const contextKeyRequestID = "request_id"

// RequestLogger returns middleware that tags every request with an ID and
// logs it with structured fields: method, path, status, latency, remote IP.
// An incoming X-Request-ID is reused so IDs line up with the proxy's logs.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			res := c.Response()

			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" || len(id) > 64 {
				id = uuid.NewString()
			}
			c.Set(contextKeyRequestID, id)
			res.Header().Set(echo.HeaderXRequestID, id)

			err := next(c)
			if err != nil {
				// Let the error handler write the response now so the
				// status below is the one the client sees.
				c.Error(err)
				err = nil
			}

			// Log the route template, not the URL: reset links carry the raw token.
			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("path", c.Path()),
				slog.Int("status", res.Status),
				slog.Duration("latency", time.Since(start)),
				slog.String("remote_ip", c.RealIP()),
				slog.String("request_id", id),
			}

			level := slog.LevelInfo
			if res.Status >= 500 {
				level = slog.LevelError
			} else if res.Status >= 400 {
				level = slog.LevelWarn
			}

			slog.LogAttrs(req.Context(), level, "request", attrs...)

			return err
		}
	}
}

// RequestID returns the ID RequestLogger assigned, or "" outside it.
func RequestID(c echo.Context) string {
	id, _ := c.Get(contextKeyRequestID).(string)
	return id
}
