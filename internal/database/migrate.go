package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Migrate applies (up) or reverts (down) the *.up.sql / *.down.sql files in
// fsys. Applied versions are tracked in schema_migrations so repeated runs
// are no-ops. It returns the names of the files executed.
func Migrate(ctx context.Context, db *sql.DB, fsys fs.FS, direction Direction) ([]string, error) {
	if direction != Up && direction != Down {
		return nil, fmt.Errorf("direction must be %q or %q, got %q", Up, Down, direction)
	}

	if _, err := db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migration directory: %w", err)
	}

	suffix := fmt.Sprintf(".%s.sql", direction)
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), suffix) {
			files = append(files, entry.Name())
		}
	}

	sort.Strings(files)
	if direction == Down {
		sort.Sort(sort.Reverse(sort.StringSlice(files)))
	}

	var ran []string
	for _, filename := range files {
		version := strings.TrimSuffix(filename, suffix)

		var applied bool
		err := db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
			version).Scan(&applied)
		if err != nil {
			return ran, fmt.Errorf("check migration %s: %w", version, err)
		}
		if applied == (direction == Up) {
			continue
		}

		content, err := fs.ReadFile(fsys, filename)
		if err != nil {
			return ran, fmt.Errorf("read migration file %s: %w", filename, err)
		}

		err = WithTransaction(ctx, db, DefaultTxOptions(), func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(content)); err != nil {
				return fmt.Errorf("execute migration %s: %w", filename, err)
			}

			record := "INSERT INTO schema_migrations (version) VALUES ($1)"
			if direction == Down {
				record = "DELETE FROM schema_migrations WHERE version = $1"
			}
			if _, err := tx.ExecContext(ctx, record, version); err != nil {
				return fmt.Errorf("record migration %s: %w", version, err)
			}
			return nil
		})
		if err != nil {
			return ran, err
		}

		ran = append(ran, filename)
	}

	return ran, nil
}
