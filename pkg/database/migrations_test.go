package database

import (
	"io/fs"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadMigrations_SortsByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"010_late.sql":   {Data: []byte("SELECT 10;")},
		"002_second.sql": {Data: []byte("SELECT 2;")},
		"001_first.sql":  {Data: []byte("SELECT 1;")},
		"README.md":      {Data: []byte("ignored")},
	}

	migrations, err := LoadMigrations(fsys)

	require.NoError(t, err)
	require.Len(t, migrations, 3)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "first", migrations[0].Name)
	assert.Equal(t, 10, migrations[2].Version)
}

func TestLoadMigrations_RejectsDuplicates(t *testing.T) {
	fsys := fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"001_b.sql": {Data: []byte("SELECT 1;")},
	}

	_, err := LoadMigrations(fsys)
	assert.Error(t, err)
}

func TestEmbeddedMigrations(t *testing.T) {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	require.NoError(t, err)

	migrations, err := LoadMigrations(sub)
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, 1, migrations[0].Version)
}

func TestMigrator_RunMigrationsIsIdempotent(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "test.db"), MaxOpenConns: 1}, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	migrator := NewMigrator(db, zap.NewNop())
	require.NoError(t, migrator.RunMigrations(""))
	require.NoError(t, migrator.RunMigrations(""))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 2, count)

	_, err = db.Exec("DELETE FROM request_history")
	assert.NoError(t, err, "delete on empty table does not fire row triggers")
}
