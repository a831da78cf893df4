package database

import "errors"

var (
	// ErrNoPath is returned when the database path is empty.
	ErrNoPath = errors.New("database: path is required")

	// ErrMigrationNotFound is returned when the latest applied migration has
	// no file in the migration set.
	ErrMigrationNotFound = errors.New("database: migration not found")

	// ErrNoDownSQL is returned when rolling back a migration without a .down.sql file.
	ErrNoDownSQL = errors.New("database: migration has no down SQL")
)
