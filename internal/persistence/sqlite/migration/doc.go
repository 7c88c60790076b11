// Package migration applies versioned SQL migrations to a SQLite database.
//
// Migrations are read from an fs.FS (usually an embed.FS compiled into the
// binary) and must be named {version}_{description}.sql, for example
// "001_create_records.sql". Each file runs inside its own transaction and is
// recorded in the schema_migrations table together with its checksum, so a
// migration is applied at most once.
//
// Example usage:
//
//	scanner := migration.NewFileScanner(migrationsFS)
//	executor := migration.NewSQLiteExecutor(db)
//	manager := migration.NewMigrationManager(scanner, executor, "migrations", logger)
//	if _, err := manager.RunMigrations(ctx); err != nil {
//		return err
//	}
package migration
