package repository

import (
	"embed"
	"io/fs"

	goerrors "github.com/goliatone/go-errors"
	persistence "github.com/goliatone/go-persistence-bun"
)

// MigrationsDir is the root of the embedded schema migrations.
const MigrationsDir = "data/sql/migrations"

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// RegisterMigrations registers the profile model and the profile schema
// migrations with client. Call client.Migrate afterwards.
func RegisterMigrations(client *persistence.Client) error {
	persistence.RegisterModel((*ProfileModel)(nil))

	migrations, err := fs.Sub(migrationsFS, MigrationsDir)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open profile migrations")
	}
	client.RegisterDialectMigrations(
		migrations,
		persistence.WithDialectSourceLabel("repository/"+MigrationsDir),
	)
	return nil
}
