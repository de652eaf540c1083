// Package database opens the SQLite file behind the save journal and keeps
// its schema current.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Journal)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are plain SQL files named
// YYYYMMDD_HHMMSS_description.up.sql with an optional matching .down.sql.
// Each one is applied in its own transaction and recorded in
// schema_migrations.
package database
