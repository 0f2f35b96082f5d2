// Package testutil provides shared test helpers for setting up stores and sessions.
package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/folio/internal/session"
	"github.com/starford/folio/internal/storage/sqlstore"
)

// TestStore creates a migrated SQLite store in a temporary directory that is
// automatically closed. Its clock advances one millisecond per write so
// updated_at ordering is deterministic.
func TestStore(t *testing.T) *sqlstore.DB {
	t.Helper()
	ctx := context.Background()
	db, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, filepath.Join(t.TempDir(), "folio-test.db"),
		sqlstore.WithClock(TickClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(ctx, nil); err != nil {
		t.Fatal(err)
	}
	return db
}

// TickClock returns a clock starting at start that advances by one
// millisecond on every call.
func TickClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Millisecond)
		return cur
	}
}

// UserContext returns a background context carrying a session for userID.
func UserContext(userID string) context.Context {
	return session.NewContext(context.Background(), session.Session{UserID: userID})
}
