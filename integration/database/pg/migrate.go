package pg

import (
	"context"
	"embed"
	"errors"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded schema migrations with goose. Goose speaks
// database/sql, so the pgx pool is bridged through the stdlib adapter; the
// bridged handle is closed without closing the pool itself.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations)
	if err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	return nil
}
