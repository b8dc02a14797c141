package app

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keyxmakerx/wayfarer/internal/middleware"
	"github.com/keyxmakerx/wayfarer/internal/plugins/auth"
	"github.com/keyxmakerx/wayfarer/internal/plugins/mail"
	"github.com/keyxmakerx/wayfarer/internal/plugins/users"
)

// RegisterRoutes wires the plugins and sets up all application routes.
//
// This is the single place where all routes are aggregated. When a new
// plugin is added, its routes are registered here.
func (a *App) RegisterRoutes() error {
	e := a.Echo
	cfg := a.Config

	// --- Infrastructure Routes ---

	e.GET("/healthz", a.healthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(a.Metrics, promhttp.HandlerOpts{})))

	// --- Auth Plugin ---

	principals := a.Principals
	if principals == nil {
		principals = auth.NewPrincipalRepository(a.DB)
	}
	hasher := a.Hasher
	if hasher == nil {
		hasher = auth.NewArgon2idHasher(cfg.Auth.HashConcurrency)
	}
	transport := a.MailTransport
	if transport == nil {
		transport = mail.NewSMTPTransport(cfg.Mail)
	}

	tokens, err := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, nil)
	if err != nil {
		return err
	}

	authService := auth.NewAuthService(principals, hasher, tokens,
		mail.NewNotifier(transport, cfg.Mail, cfg.Auth.ResetTokenTTL),
		auth.ServiceConfig{
			BaseURL:       cfg.BaseURL,
			ResetTokenTTL: cfg.Auth.ResetTokenTTL,
			NotifyTimeout: cfg.Mail.Timeout,
			Metrics:       auth.NewMetrics(a.Metrics),
		})

	guard := auth.RequireAuth(authService, auth.GuardConfig{
		CookieName:     cfg.Auth.CookieName,
		DetailedErrors: cfg.Auth.DetailedErrors,
	})

	// Credential endpoints share one budget across replicas when Redis is
	// available.
	throttle := middleware.RateLimit(cfg.RateLimit.AuthRequests, cfg.RateLimit.AuthWindow)
	if a.Redis != nil {
		throttle = middleware.SharedRateLimit(a.Redis, "auth", cfg.RateLimit.AuthRequests, cfg.RateLimit.AuthWindow)
	}

	auth.RegisterRoutes(e, auth.NewHandler(authService, auth.CookieConfig{
		Name: cfg.Auth.CookieName,
		TTL:  cfg.Auth.CookieTTL(),
	}), guard, throttle)

	// --- Users Plugin ---

	users.RegisterRoutes(e, users.NewHandler(users.NewUserService(principals)), guard)

	return nil
}

// healthz reports whether the backing stores answer.
func (a *App) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if a.DB != nil {
		checks["database"] = "ok"
		if err := a.DB.PingContext(ctx); err != nil {
			checks["database"] = "unavailable"
			healthy = false
		}
	}
	if a.Redis != nil {
		// The limiter fails open, so Redis being down degrades rather than
		// fails the service.
		checks["redis"] = "ok"
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = "degraded"
		}
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	return c.JSON(code, map[string]any{"status": status, "checks": checks})
}
