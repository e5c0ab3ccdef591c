package helpers

import (
	"database/sql"
	"path"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockrank/blockrank/internal/config"
	"github.com/blockrank/blockrank/internal/db"
	"github.com/blockrank/blockrank/internal/store/migrations"
)

// NewTestDB creates a new temporary SQLite database for testing purposes
func NewTestDB(t *testing.T, dbName string) *sql.DB {
	t.Helper()

	tmpDBPath := path.Join(t.TempDir(), dbName)

	dbConfig := config.DatabaseConfig{Path: tmpDBPath}
	dbConfig.ApplyDefaults()

	require.NoError(t, migrations.RunMigrations(tmpDBPath))

	database, err := db.NewSQLiteDBFromConfig(dbConfig)
	require.NoError(t, err)

	t.Cleanup(func() {
		database.Close()
	})

	return database
}
