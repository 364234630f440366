package directory

import (
	"context"
	"database/sql"
	"fmt"
)

// postgres and sqlite disagree on auto-increment syntax; everything else in
// the schema is shared.
var idColumn = map[string]string{
	"postgres": "BIGSERIAL PRIMARY KEY",
	"sqlite3":  "INTEGER PRIMARY KEY AUTOINCREMENT",
}

// EnsureSchema creates the system-of-record tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB, driver string) error {
	id, ok := idColumn[driver]
	if !ok {
		return fmt.Errorf("unsupported database driver: %s", driver)
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users (
			id %s,
			username TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			locked BOOLEAN NOT NULL DEFAULT FALSE,
			retired BOOLEAN NOT NULL DEFAULT FALSE,
			change_password_on_login BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS roles (
			id %s,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			permissions TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS devices (
			id %s,
			name TEXT NOT NULL UNIQUE,
			address TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS settings (
			id %s,
			name TEXT NOT NULL UNIQUE,
			value TEXT NOT NULL DEFAULT 'null',
			updated_at TIMESTAMP NOT NULL
		)`, id),
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
