// Package database provides SQLite connectivity for the relay controller.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Versioned schema migrations read from an fs.FS
//   - Connection pool and lifecycle management
//
// The audit trail always lives here. The variable store uses it too when
// variables.backend is "sqlite".
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration Strategy:
//
// Migrations are additive. New columns must be NULLABLE or have DEFAULT
// values, and every .up.sql has a matching .down.sql.
package database
