package migrations

import (
	"database/sql"
	_ "embed"

	"github.com/blockrank/blockrank/internal/db"
	"github.com/blockrank/blockrank/internal/logger"
)

//go:embed 001_initial.sql
var mig0001 string

func all() []db.Migration {
	return []db.Migration{
		{
			ID:  "001_initial.sql",
			SQL: mig0001,
		},
	}
}

// RunMigrations runs all migrations for the indexer database at dbPath.
func RunMigrations(dbPath string) error {
	return db.RunMigrations(dbPath, all())
}

// RunMigrationsDB runs all migrations on an already opened database.
func RunMigrationsDB(log *logger.Logger, database *sql.DB) error {
	return db.RunMigrationsDB(log, database, all())
}
