package storage

import (
	"path/filepath"
	"testing"
)

// NewTestRepository opens a throwaway SQLite database in a temp
// directory with migrations applied. The repository is closed when the
// test finishes.
func NewTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "pmt_test.db")
	repo, err := NewSQLiteRepository(dbPath)
	if err != nil {
		t.Fatalf("open test repository: %v", err)
	}
	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}
