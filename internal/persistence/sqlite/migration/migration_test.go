package migration

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrations.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleFS() fstest.MapFS {
	return fstest.MapFS{
		"migrations/002_add_index.sql": &fstest.MapFile{Data: []byte(
			"-- Description: index names\nCREATE INDEX idx_items_name ON items (name);\n")},
		"migrations/001_create_items.sql": &fstest.MapFile{Data: []byte(
			"CREATE TABLE items (id TEXT PRIMARY KEY, name TEXT NOT NULL);\nINSERT INTO items (id, name) VALUES ('a', 'x;y');\n")},
		"migrations/README.md": &fstest.MapFile{Data: []byte("ignored")},
	}
}

func TestScanner_OrdersByVersionAndParsesDescription(t *testing.T) {
	migrations, err := NewFileScanner(sampleFS()).ScanMigrations("migrations")
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, "001", migrations[0].Version)
	assert.Equal(t, "create items", migrations[0].Description)
	assert.Equal(t, "002", migrations[1].Version)
	assert.Equal(t, "index names", migrations[1].Description)
	assert.NotEmpty(t, migrations[0].Checksum)
}

func TestScanner_RejectsBadFiles(t *testing.T) {
	tests := []struct {
		name    string
		files   fstest.MapFS
		wantErr error
	}{
		{
			name:    "bad name",
			files:   fstest.MapFS{"m/create.sql": &fstest.MapFile{Data: []byte("SELECT 1;")}},
			wantErr: ErrInvalidMigrationFile,
		},
		{
			name: "duplicate version",
			files: fstest.MapFS{
				"m/1_a.sql":  &fstest.MapFile{Data: []byte("SELECT 1;")},
				"m/01_b.sql": &fstest.MapFile{Data: []byte("SELECT 2;")},
			},
			wantErr: ErrDuplicateVersion,
		},
		{
			name:    "only comments",
			files:   fstest.MapFS{"m/1_empty.sql": &fstest.MapFile{Data: []byte("-- nothing here\n")}},
			wantErr: ErrInvalidMigrationFile,
		},
		{
			name:    "unbalanced parentheses",
			files:   fstest.MapFS{"m/1_broken.sql": &fstest.MapFile{Data: []byte("CREATE TABLE t (id TEXT;")}},
			wantErr: ErrInvalidMigrationFile,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewFileScanner(tc.files).ScanMigrations("m")
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestSplitStatements_KeepsSemicolonsInsideStrings(t *testing.T) {
	statements := splitStatements("-- header\nINSERT INTO t VALUES ('a;b');\nSELECT 1;")
	assert.Equal(t, []string{"INSERT INTO t VALUES ('a;b')", "SELECT 1"}, statements)
}

func TestManager_RunsPendingMigrationsOnce(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	manager := NewMigrationManager(NewFileScanner(sampleFS()), NewSQLiteExecutor(db), "migrations", quietLogger())

	applied, err := manager.RunMigrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	var name string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT name FROM items WHERE id = 'a'`).Scan(&name))
	assert.Equal(t, "x;y", name)

	applied, err = manager.RunMigrations(ctx)
	require.NoError(t, err)
	assert.Zero(t, applied)

	status, err := manager.GetMigrationStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "002", status.CurrentVersion)
	assert.Len(t, status.AppliedMigrations, 2)
	assert.Zero(t, status.PendingCount)
}

func TestManager_DetectsEditedMigration(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	files := sampleFS()

	_, err := NewMigrationManager(NewFileScanner(files), NewSQLiteExecutor(db), "migrations", quietLogger()).RunMigrations(ctx)
	require.NoError(t, err)

	files["migrations/002_add_index.sql"] = &fstest.MapFile{Data: []byte("CREATE INDEX idx_other ON items (id);")}
	_, err = NewMigrationManager(NewFileScanner(files), NewSQLiteExecutor(db), "migrations", quietLogger()).GetMigrationStatus(ctx)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestManager_FailedMigrationRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	files := fstest.MapFS{
		"m/001_ok.sql":     &fstest.MapFile{Data: []byte("CREATE TABLE a (id TEXT);")},
		"m/002_broken.sql": &fstest.MapFile{Data: []byte("CREATE TABLE b (id TEXT);\nINSERT INTO missing VALUES (1);")},
	}
	manager := NewMigrationManager(NewFileScanner(files), NewSQLiteExecutor(db), "m", quietLogger())

	applied, err := manager.RunMigrations(ctx)
	require.ErrorIs(t, err, ErrMigrationFailed)
	assert.Equal(t, 1, applied)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE name = 'b'`).Scan(&count))
	assert.Zero(t, count)

	status, err := manager.GetMigrationStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "001", status.CurrentVersion)
	assert.Equal(t, 1, status.PendingCount)
}

func TestExecutor_RecordsInTheSameTransaction(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	executor := NewSQLiteExecutor(db)
	require.NoError(t, executor.InitializeVersionTable(ctx))

	// A version that cannot be recorded must not leave its schema behind.
	_, err := db.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES ('007', 'then')`)
	require.NoError(t, err)
	_, err = executor.ExecuteMigration(ctx, Migration{Version: "007", SQL: "CREATE TABLE late (id TEXT);"})
	require.Error(t, err)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE name = 'late'`).Scan(&count))
	assert.Zero(t, count)

	_, err = executor.ExecuteMigration(ctx, Migration{Version: "008", SQL: "CREATE TABLE fresh (id TEXT);", Checksum: "abc"})
	require.NoError(t, err)

	applied, err := executor.GetAppliedVersions(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, "008", applied[1].Version)
	assert.Equal(t, "abc", applied[1].Checksum)
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE name = 'fresh'`).Scan(&count))
	assert.Equal(t, 1, count)
}
