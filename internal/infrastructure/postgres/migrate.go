package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"syntax/internal/infrastructure/postgres/migrations"
)

// gooseRun is swapped in tests.
var gooseRun = func(ctx context.Context, command string, db *sql.DB) error {
	switch command {
	case "up":
		return goose.UpContext(ctx, db, ".")
	case "down":
		return goose.DownContext(ctx, db, ".")
	case "status":
		return goose.StatusContext(ctx, db, ".")
	default:
		return fmt.Errorf("unknown migration command %q", command)
	}
}

// Migrate applies the embedded migrations. command is up, down or status.
func Migrate(ctx context.Context, db *sql.DB, command string) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := gooseRun(ctx, command, db); err != nil {
		return fmt.Errorf("migrate %s: %w", command, err)
	}
	return nil
}
