package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	q := `UPDATE missions SET status=?,assignedto=? WHERE id=?`
	assert.Equal(t, q, Rebind(SQLite, q))
	assert.Equal(t, `UPDATE missions SET status=$1,assignedto=$2 WHERE id=$3`, Rebind(Postgres, q))
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("")
	require.NoError(t, err)
	assert.Equal(t, SQLite, d)
	d, err = ParseDialect("PostgreSQL")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)
	_, err = ParseDialect("mysql")
	assert.Error(t, err)
}

func TestOpenSQLiteCreatesWorkspace(t *testing.T) {
	dir := t.TempDir()
	conn, err := Open(Config{Workspace: dir})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.Ping())
	assert.Equal(t, SQLite, conn.Dialect)
	assert.FileExists(t, filepath.Join(dir, ".missiondesk", "missiondesk.db"))
}

func TestOpenPostgresNeedsDSN(t *testing.T) {
	_, err := Open(Config{Driver: "postgres"})
	assert.Error(t, err)
}
