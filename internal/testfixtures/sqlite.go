package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ghmassaro/presenca-treino/internal/persistence/memory"
	"github.com/ghmassaro/presenca-treino/internal/persistence/sqlite"
)

// OpenSQLite returns a migrated SQLite store in a temporary file. It is closed
// when the test ends. ids may be nil for random UUIDs.
func OpenSQLite(tb testing.TB, ids *IDGenerator) *sqlite.Storage {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "presenca.db")
	var opts []sqlite.Option
	if ids != nil {
		opts = append(opts, sqlite.WithIDGenerator(ids.NextFunc()))
	}

	storage, err := sqlite.Open(context.Background(), sqlite.TempFileTestConfig(path), opts...)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	tb.Cleanup(func() { _ = storage.Close() })

	if _, err := storage.Migrate(context.Background()); err != nil {
		tb.Fatalf("failed to migrate storage: %v", err)
	}
	return storage
}

// OpenMemory returns an in-memory store closed when the test ends.
func OpenMemory(tb testing.TB, ids *IDGenerator) *memory.Storage {
	tb.Helper()
	storage := memory.Open(ids.NextFunc())
	tb.Cleanup(func() { _ = storage.Close() })
	return storage
}
