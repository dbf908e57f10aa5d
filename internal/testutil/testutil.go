package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"nfccheckin/internal/store"
)

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OpenSQLite returns a private in-memory sqlite store with the production
// migrations applied. It is closed when the test finishes.
func OpenSQLite(t *testing.T) *store.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := store.NewDB(context.Background(), store.Options{
		Driver: "sqlite",
		URL:    fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", name),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := store.Migrate(context.Background(), db, DiscardLogger()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// AddRegistrant inserts one registry row directly.
func AddRegistrant(t *testing.T, db *store.DB, tagID, name, details, role string) {
	t.Helper()

	var roleArg any
	if role != "" {
		roleArg = role
	}
	_, err := db.Client.Exec(
		db.Rebind(`INSERT INTO registrants (tag_id, name, details, role) VALUES (?, ?, ?, ?)`),
		tagID, name, details, roleArg,
	)
	if err != nil {
		t.Fatalf("insert registrant %s: %v", tagID, err)
	}
}
