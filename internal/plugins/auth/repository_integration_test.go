//go:build integration

package auth_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
	"github.com/keyxmakerx/wayfarer/internal/database"
	"github.com/keyxmakerx/wayfarer/internal/plugins/auth"
)

// openTestDB connects to TEST_DATABASE_DSN and migrates it. The DSN must
// set parseTime=true.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}

	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.RunMigrations(db))
	_, err = db.Exec(`DELETE FROM users`)
	require.NoError(t, err)
	return db
}

func newPrincipal(email string) *auth.Principal {
	return &auth.Principal{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         "test",
		PasswordHash: "hash",
		Role:         auth.RoleUser,
		Active:       true,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func TestPrincipalRepository_MariaDB(t *testing.T) {
	db := openTestDB(t)
	repo := auth.NewPrincipalRepository(db)
	ctx := context.Background()

	p := newPrincipal("ada@example.com")
	require.NoError(t, repo.Create(ctx, p))

	err := repo.Create(ctx, newPrincipal("ADA@example.com"))
	assert.Equal(t, 409, apperror.SafeCode(err), "email uniqueness is case-insensitive")

	got, err := repo.FindByEmail(ctx, "Ada@Example.com")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Nil(t, got.PasswordChangedAt)

	now := time.Now().UTC().Truncate(time.Second)
	_, err = repo.Update(ctx, p.ID, auth.PrincipalUpdate{
		SetResetToken: &auth.ResetToken{Hash: "h1", ExpiresAt: now.Add(10 * time.Minute)},
	})
	require.NoError(t, err)

	got, err = repo.FindByResetTokenHash(ctx, "h1", now)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = repo.FindByResetTokenHash(ctx, "h1", now.Add(11*time.Minute))
	assert.True(t, apperror.IsNotFound(err))

	other := "h2"
	_, err = repo.Update(ctx, p.ID, auth.PrincipalUpdate{ClearResetToken: true, IfResetTokenHash: &other})
	assert.True(t, apperror.IsNotFound(err), "precondition mismatch")

	hash, changed := "new-hash", now.Add(-time.Second)
	h1 := "h1"
	got, err = repo.Update(ctx, p.ID, auth.PrincipalUpdate{
		PasswordHash:      &hash,
		PasswordChangedAt: &changed,
		ClearResetToken:   true,
		IfResetTokenHash:  &h1,
	})
	require.NoError(t, err)
	assert.Nil(t, got.PasswordResetTokenHash)

	got, err = repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
	require.NotNil(t, got.PasswordChangedAt)
	assert.True(t, changed.Equal(*got.PasswordChangedAt))

	inactive := false
	_, err = repo.Update(ctx, p.ID, auth.PrincipalUpdate{Active: &inactive})
	require.NoError(t, err)
	_, err = repo.FindByID(ctx, p.ID)
	assert.True(t, apperror.IsNotFound(err))

	list, total, err := repo.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, total)
}
