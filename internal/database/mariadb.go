// Package database provides connection setup for MariaDB and Redis.
// Both connections are created once at startup and shared across the
// application via dependency injection. This package owns the connection
// lifecycle (open, configure pool, ping, close).
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// MariaDB driver -- imported for side effect of registering the driver.
	_ "github.com/go-sql-driver/mysql"
	"github.com/sethvargo/go-retry"

	"github.com/keyxmakerx/wayfarer/internal/config"
)

// Ping retry schedule: 1s doubling up to 30s, ten attempts in total.
const (
	pingAttempts  = 10
	pingBaseDelay = time.Second
	pingMaxDelay  = 30 * time.Second
	pingTimeout   = 5 * time.Second
)

// NewMariaDB creates a new MariaDB connection pool configured with the
// settings from the provided config. It pings the database until it answers
// or the retry budget is spent; MariaDB may still be starting when the app
// container launches.
func NewMariaDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening mariadb connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := pingWithRetry(ctx, db.PingContext, pingBackoff()); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging mariadb after %d attempts: %w", pingAttempts, err)
	}
	return db, nil
}

func pingBackoff() retry.Backoff {
	b := retry.NewExponential(pingBaseDelay)
	b = retry.WithCappedDuration(pingMaxDelay, b)
	return retry.WithMaxRetries(pingAttempts-1, b)
}

// pingWithRetry calls ping until it succeeds, ctx ends, or b stops.
func pingWithRetry(ctx context.Context, ping func(context.Context) error, b retry.Backoff) error {
	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()

		if err := ping(pingCtx); err != nil {
			slog.Warn("mariadb not ready, retrying...",
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", pingAttempts),
				slog.Any("error", err),
			)
			return retry.RetryableError(err)
		}
		return nil
	})
}
