package cmds

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"

	"github.com/LinglingXiang/exodus-gw/internal/ddl"
	migrationerrors "github.com/LinglingXiang/exodus-gw/internal/migration_errors"
	"github.com/LinglingXiang/exodus-gw/internal/migrations"
	"github.com/LinglingXiang/exodus-gw/internal/testdb"
	"github.com/LinglingXiang/exodus-gw/internal/types"
)

// Runs the CLI against the sqlite database at path with an empty config dir
func run(t *testing.T, path string, args ...string) (string, error) {
	t.Helper()

	t.Setenv("EXODUS_GW_DB_URL", "sqlite://"+path)
	t.Setenv("EXODUS_GW_DB_CONNECT_TIMEOUT", "0s")

	var out bytes.Buffer
	cmd := newRootCmd(&app{})
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config-dir", t.TempDir()}, args...))

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func lines(out string) []string {
	return strings.Split(strings.TrimSpace(out), "\n")
}

func openSQLite(t *testing.T, path string) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", "file:"+path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestUpgradeDowngrade(t *testing.T) {
	path := testdb.SQLitePath(t)

	out, err := run(t, path, "current")
	require.NoError(t, err)
	assert.Equal(t, "base\n", out)

	out, err = run(t, path, "upgrade")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"upgraded 854e06069e65",
		"upgraded c164c7b69e55",
		"upgraded 55d4111a0e09",
		"upgraded c46641b76073",
	}, lines(out))

	out, err = run(t, path, "current")
	require.NoError(t, err)
	assert.Equal(t, "c46641b76073 (head)\n", out)

	out, err = run(t, path, "upgrade")
	require.NoError(t, err)
	assert.Empty(t, out, "nothing left to apply")

	out, err = run(t, path, "downgrade", "-1")
	require.NoError(t, err)
	assert.Equal(t, "downgraded c46641b76073\n", out)

	out, err = run(t, path, "current")
	require.NoError(t, err)
	assert.Equal(t, "55d4111a0e09\n", out)

	out, err = run(t, path, "downgrade", "base")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"downgraded 55d4111a0e09",
		"downgraded c164c7b69e55",
		"downgraded 854e06069e65",
	}, lines(out))

	out, err = run(t, path, "current")
	require.NoError(t, err)
	assert.Equal(t, "base\n", out)
}

func TestUpgradeToRevisionWithTestData(t *testing.T) {
	path := testdb.SQLitePath(t)

	out, err := run(t, path, "upgrade", "c164c7b69e55", "--test-data")
	require.NoError(t, err)
	assert.Equal(t, []string{"upgraded 854e06069e65", "upgraded c164c7b69e55"}, lines(out))

	var publishes, tasks int
	db := openSQLite(t, path)
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM publishes WHERE updated IS NULL`).Scan(&publishes))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM tasks WHERE updated IS NULL`).Scan(&tasks))
	assert.Equal(t, 2, publishes)
	assert.Equal(t, 2, tasks)
}

func TestDowngradeNeedsTarget(t *testing.T) {
	_, err := run(t, testdb.SQLitePath(t), "downgrade")
	require.Error(t, err)
}

func TestStatus(t *testing.T) {
	path := testdb.SQLitePath(t)

	_, err := run(t, path, "upgrade", "854e06069e65")
	require.NoError(t, err)

	out, err := run(t, path, "status")
	require.NoError(t, err)

	rows := lines(out)
	require.Len(t, rows, 5)
	assert.True(t, strings.HasPrefix(rows[0], "REVISION"))
	assert.True(t, strings.HasPrefix(rows[1], "854e06069e65"))
	assert.NotContains(t, rows[1], "pending")
	for _, row := range rows[2:] {
		assert.Contains(t, row, "pending")
	}
	assert.Contains(t, rows[2], "c164c7b69e55")

	t.Run("YAML", func(t *testing.T) {
		out, err := run(t, path, "status", "-o", "yaml")
		require.NoError(t, err)

		var revisions []types.Revision
		require.NoError(t, yaml.Unmarshal([]byte(out), &revisions))
		require.Len(t, revisions, 4)
		assert.Equal(t, "854e06069e65", revisions[0].ID)
		assert.True(t, revisions[0].Applied)
		assert.NotNil(t, revisions[0].AppliedAt)
		assert.Equal(t, "854e06069e65", revisions[1].DownRevision)
		assert.False(t, revisions[1].Applied)
		assert.Nil(t, revisions[1].AppliedAt)
	})

	t.Run("JSON", func(t *testing.T) {
		out, err := run(t, path, "status", "--output", "json")
		require.NoError(t, err)

		var revisions []map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &revisions))
		require.Len(t, revisions, 4)
		assert.Equal(t, "c164c7b69e55", revisions[1]["revision"])
		assert.Equal(t, false, revisions[1]["applied"])
		assert.NotContains(t, revisions[1], "applied_at")
	})

	t.Run("UnknownFormat", func(t *testing.T) {
		_, err := run(t, path, "status", "-o", "xml")
		require.Error(t, err)
	})
}

func TestHistory(t *testing.T) {
	out, err := run(t, testdb.SQLitePath(t), "history")
	require.NoError(t, err)

	rows := lines(out)
	require.Len(t, rows, 4)
	assert.True(t, strings.HasPrefix(rows[0], "base -> 854e06069e65, "))
	assert.Equal(t, "854e06069e65 -> c164c7b69e55, Add updated column to publishes and tasks", rows[1])
}

func TestReset(t *testing.T) {
	path := testdb.SQLitePath(t)

	_, err := run(t, path, "upgrade")
	require.NoError(t, err)

	_, err = run(t, path, "reset")
	require.ErrorIs(t, err, errResetNotConfirmed)

	out, err := run(t, path, "reset", "--yes")
	require.NoError(t, err)
	assert.Equal(t, "dropped all tables\n", out)

	out, err = run(t, path, "current")
	require.NoError(t, err)
	assert.Equal(t, "base\n", out)

	columns, err := ddl.SQLite.Columns(context.Background(), openSQLite(t, path), "publishes")
	require.NoError(t, err)
	assert.Empty(t, columns)
}

func TestBootstrap(t *testing.T) {
	path := testdb.SQLitePath(t)

	t.Setenv("EXODUS_GW_DB_MIGRATION_REVISION", "c164c7b69e55")
	_, err := run(t, path, "bootstrap")
	require.NoError(t, err)

	out, err := run(t, path, "current")
	require.NoError(t, err)
	assert.Equal(t, "c164c7b69e55\n", out)
}

func TestExitCodes(t *testing.T) {
	t.Run("InvalidSettings", func(t *testing.T) {
		t.Setenv("EXODUS_GW_DB_MIGRATION_MODE", "sideways")

		_, err := run(t, testdb.SQLitePath(t), "current")
		require.Error(t, err)
		assert.Equal(t, migrationerrors.ExitInvalidSettings, migrationerrors.ExitCode(err))
	})

	t.Run("Connectivity", func(t *testing.T) {
		_, err := run(t, filepath.Join(t.TempDir(), "missing", "dir", "x.db"), "upgrade")
		require.ErrorIs(t, err, migrationerrors.ErrConnectivity)
		assert.Equal(t, migrationerrors.ExitConnectivity, migrationerrors.ExitCode(err))
	})

	t.Run("SchemaConflict", func(t *testing.T) {
		path := testdb.SQLitePath(t)

		_, err := run(t, path, "upgrade", "854e06069e65")
		require.NoError(t, err)

		_, err = openSQLite(t, path).Exec(`ALTER TABLE publishes ADD COLUMN updated DATETIME`)
		require.NoError(t, err)

		out, err := run(t, path, "upgrade")
		require.ErrorIs(t, err, migrationerrors.ErrSchemaConflict)
		assert.Contains(t, err.Error(), "c164c7b69e55")
		assert.Equal(t, migrationerrors.ExitSchemaConflict, migrationerrors.ExitCode(err))
		assert.Empty(t, out)

		out, err = run(t, path, "current")
		require.NoError(t, err)
		assert.Equal(t, "854e06069e65\n", out, "nothing after the failing revision is applied")
	})

	t.Run("CommittedRevisionsArePrinted", func(t *testing.T) {
		path := testdb.SQLitePath(t)

		_, err := run(t, path, "upgrade", "c164c7b69e55")
		require.NoError(t, err)

		_, err = openSQLite(t, path).Exec(`ALTER TABLE items ADD COLUMN link_to TEXT`)
		require.NoError(t, err)

		out, err := run(t, path, "upgrade")
		require.ErrorIs(t, err, migrationerrors.ErrSchemaConflict)
		assert.Contains(t, err.Error(), "c46641b76073")
		assert.Equal(t, "upgraded 55d4111a0e09\n", out)
	})

	t.Run("WrongDirection", func(t *testing.T) {
		path := testdb.SQLitePath(t)

		_, err := run(t, path, "upgrade")
		require.NoError(t, err)

		_, err = run(t, path, "upgrade", "854e06069e65")
		require.ErrorIs(t, err, migrations.ErrWrongDirection)
		assert.Equal(t, migrationerrors.ExitErrored, migrationerrors.ExitCode(err))
	})
}
