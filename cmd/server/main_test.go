package main

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/wayfarer/internal/plugins/auth"
	"github.com/keyxmakerx/wayfarer/internal/plugins/auth/authtest"
	"github.com/keyxmakerx/wayfarer/internal/plugins/users"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "migrate", "set-role"}, names)
}

func TestSetRoleCmd_Args(t *testing.T) {
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	root.SetArgs([]string{"set-role", "ada@example.com"})
	assert.Error(t, root.Execute(), "role is required")

	root.SetArgs([]string{"set-role", "ada@example.com", "overlord"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown role")
}

func TestSetRole(t *testing.T) {
	store := authtest.NewStore()
	require.NoError(t, store.Create(context.Background(), &auth.Principal{
		ID: "p-1", Email: "ada@example.com", PasswordHash: "x", Role: auth.RoleUser, Active: true,
	}))

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())

	require.NoError(t, setRole(cmd, users.NewUserService(store), "ADA@example.com", "admin"))
	assert.Equal(t, "ada@example.com is now admin\n", out.String())

	p, _ := store.Get("p-1")
	assert.Equal(t, auth.RoleAdmin, p.Role)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, parseLevel("warn", true))
	assert.Equal(t, slog.LevelDebug, parseLevel("", true))
	assert.Equal(t, slog.LevelInfo, parseLevel("loud", false))
}
