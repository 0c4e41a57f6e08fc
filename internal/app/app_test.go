package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"missiondesk/internal/app"
	"missiondesk/internal/config"
)

func TestOpenSeedsAdminOnce(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Bootstrap.AdminName = "boss"
	cfg.Bootstrap.AdminPassword = "pw"

	eng, conn, err := app.Open(context.Background(), app.Options{Workspace: dir, Config: cfg, SeedAdmin: true})
	require.NoError(t, err)
	users, err := eng.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.True(t, users[0].IsAdmin())
	require.NoError(t, conn.Close())

	eng, conn, err = app.Open(context.Background(), app.Options{Workspace: dir, Config: cfg, SeedAdmin: true})
	require.NoError(t, err)
	defer conn.Close()
	users, err = eng.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 1)
}
