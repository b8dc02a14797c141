// Package app is the application bootstrap and dependency injection root.
// It creates and holds all shared infrastructure (DB pool, Redis client,
// Echo instance, metrics registry) and wires together all plugins.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
	"github.com/keyxmakerx/wayfarer/internal/config"
	"github.com/keyxmakerx/wayfarer/internal/middleware"
	"github.com/keyxmakerx/wayfarer/internal/plugins/auth"
	"github.com/keyxmakerx/wayfarer/internal/plugins/mail"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the MariaDB connection pool. May be nil in tests that set
	// Principals.
	DB *sql.DB

	// Redis backs the shared credential-endpoint rate limit. Nil falls back
	// to per-process limiting.
	Redis *redis.Client

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	// Metrics is the registry served on /metrics.
	Metrics *prometheus.Registry

	// Principals overrides the MariaDB principal store.
	Principals auth.PrincipalRepository

	// Hasher overrides the argon2id password hasher.
	Hasher auth.PasswordHasher

	// MailTransport overrides the SMTP transport.
	MailTransport mail.Transport
}

// New creates a new App instance with the given dependencies and configures
// the Echo server with global middleware and error handling.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client) *App {
	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	// c.RealIP() keys the rate limits, so only trusted proxies may set it.
	middleware.TrustedProxies(e, cfg.HTTP.TrustedProxies)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app := &App{
		Config:  cfg,
		DB:      db,
		Redis:   rdb,
		Echo:    e,
		Metrics: reg,
	}

	app.setupMiddleware()

	// Register the custom error handler that maps AppErrors to HTTP responses.
	e.HTTPErrorHandler = app.errorHandler

	return app
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: outermost (recovery) runs first.
func (a *App) setupMiddleware() {
	// Panic recovery -- must be outermost to catch panics from all other middleware.
	a.Echo.Use(middleware.Recovery())

	// Request logging -- log every request with method, route, status, latency.
	a.Echo.Use(middleware.RequestLogger())

	// Request metrics, labelled by route template.
	a.Echo.Use(middleware.NewHTTPMetrics(a.Metrics).Middleware())

	// Security headers -- HSTS only when served over TLS in production.
	a.Echo.Use(middleware.SecurityHeaders(a.Config.IsProduction()))

	// CORS -- the API is called cross-origin by the web client.
	a.Echo.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   a.Config.HTTP.CORSOrigins,
		AllowCredentials: true,
	}))

	// Request bodies are small JSON documents.
	a.Echo.Use(echomw.BodyLimit(a.Config.HTTP.BodyLimit))

	// Per-IP budget for the whole API. Probes are exempt.
	apiLimit := middleware.RateLimit(a.Config.RateLimit.APIRequests, a.Config.RateLimit.APIWindow)
	a.Echo.Use(skipPaths(apiLimit, "/healthz", "/metrics"))
}

// skipPaths bypasses mw for the given exact paths.
func skipPaths(mw echo.MiddlewareFunc, paths ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		wrapped := mw(next)
		return func(c echo.Context) error {
			for _, p := range paths {
				if c.Request().URL.Path == p {
					return next(c)
				}
			}
			return wrapped(c)
		}
	}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Status  string            `json:"status"`
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// errorHandler is the custom Echo error handler. It maps domain errors
// (AppError) and Echo's own errors to JSON responses: "fail" for client
// errors, "error" for server errors. Internal causes are logged, never sent.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	appErr := toAppError(err)

	attrs := []any{
		slog.Int("status", appErr.Code),
		slog.String("type", appErr.Type),
		slog.String("path", c.Path()),
		slog.String("request_id", middleware.RequestID(c)),
	}
	if appErr.Internal != nil {
		attrs = append(attrs, slog.Any("internal", appErr.Internal))
	}
	if appErr.Code >= http.StatusInternalServerError {
		slog.Error("request failed", attrs...)
	} else {
		slog.Debug("request rejected", attrs...)
	}

	if appErr.Retryable() && c.Response().Header().Get("Retry-After") == "" {
		c.Response().Header().Set("Retry-After", strconv.Itoa(int(appErr.RetryAfter.Round(time.Second)/time.Second)))
	}

	status := "fail"
	if appErr.Code >= http.StatusInternalServerError {
		status = "error"
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(appErr.Code)
	} else {
		writeErr = c.JSON(appErr.Code, errorBody{
			Status:  status,
			Error:   appErr.Type,
			Message: appErr.Message,
			Fields:  appErr.Fields,
		})
	}
	if writeErr != nil {
		slog.Error("writing error response", slog.Any("error", writeErr))
	}
}

// toAppError converts any handler error into an AppError.
func toAppError(err error) *apperror.AppError {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	// Echo's built-in HTTP errors (404 from router, 413 from BodyLimit).
	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		message := http.StatusText(echoErr.Code)
		if msg, ok := echoErr.Message.(string); ok {
			message = msg
		}
		if echoErr.Code >= http.StatusInternalServerError {
			return apperror.NewInternal(err)
		}
		return &apperror.AppError{
			Code:     echoErr.Code,
			Type:     errorType(echoErr.Code),
			Message:  message,
			Internal: echoErr.Internal,
		}
	}

	// Truly unexpected error.
	return apperror.NewInternal(err)
}

// errorType derives a machine-readable type from a status code.
func errorType(code int) string {
	return strings.ReplaceAll(strings.ToLower(http.StatusText(code)), " ", "_")
}

// Start begins listening for HTTP requests on the configured port. It
// returns nil after a graceful Shutdown.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting Wayfarer server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
	)
	if err := a.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Echo.Shutdown(ctx)
}
