package testutil

import (
	"testing"

	"guard-go/internal/store"
)

// NewTestStore creates an in-memory SQLite store with the schema applied.
// The connection is closed when the test finishes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	db, err := store.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}

	if _, err := db.Exec(store.Schema); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}

	st := store.NewSQLiteStoreFromDB(db)
	t.Cleanup(func() {
		st.Close()
	})
	return st
}
