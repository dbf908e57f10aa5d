package store

import (
	"context"
	"fmt"
)

// SampleRegistrant is a badge row inserted into an empty registry.
type SampleRegistrant struct {
	TagID   string
	Name    string
	Details string
	Role    string
}

// DefaultRegistrants are the demo badges shipped with the service.
var DefaultRegistrants = []SampleRegistrant{
	{TagID: "ID101", Name: "Alice Johnson", Details: "Department A", Role: "Staff"},
	{TagID: "ID202", Name: "Bob Smith", Details: "Department B", Role: "Student"},
	{TagID: "ID303", Name: "Charlie Brown", Details: "Department C", Role: "Guest"},
}

// Seed inserts rows only when the registry is empty and returns how many
// rows were written.
func Seed(ctx context.Context, db *DB, rows []SampleRegistrant) (int, error) {
	var count int
	if err := db.Client.QueryRowContext(ctx, `SELECT COUNT(*) FROM registrants`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count registrants: %w", err)
	}
	if count > 0 || len(rows) == 0 {
		return 0, nil
	}

	tx, err := db.Client.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insert := db.Rebind(`INSERT INTO registrants (tag_id, name, details, role) VALUES (?, ?, ?, ?)`)
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, insert, r.TagID, r.Name, r.Details, nullable(r.Role)); err != nil {
			return 0, fmt.Errorf("seed %s: %w", r.TagID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	return len(rows), nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
