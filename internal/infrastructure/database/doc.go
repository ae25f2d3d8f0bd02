// Package database opens the SQLite file that holds lamp and connection
// history, and applies the schema migrations embedded in package migrations.
//
// The store is optional. With database.enabled false nothing is opened and
// the lamp controller runs without history.
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if _, err := db.Migrate(ctx, migrations.FS()); err != nil {
//	    return err
//	}
//
// Migrations are YYYYMMDD_HHMMSS_name.up.sql files with an optional
// matching .down.sql. Each file runs in its own transaction and is recorded
// in schema_migrations.
package database
