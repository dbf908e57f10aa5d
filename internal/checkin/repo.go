package checkin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"nfccheckin/internal/store"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository persists visits and reads the registry.
type Repository struct {
	db *store.DB
	q  querier
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db, q: db.Client}
}

// InTx runs fn against a repository bound to one transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (r *Repository) InTx(ctx context.Context, fn func(tx *Repository) error) error {
	tx, err := r.db.Client.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Repository{db: r.db, q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// InsertVisit appends one visit row.
func (r *Repository) InsertVisit(ctx context.Context, v Visit) error {
	_, err := r.q.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO visits (visited_at, tag_id, context_label, terminal)
		VALUES (?, ?, ?, ?)
	`), v.At, v.TagID, v.Label, v.Terminal)
	return err
}

// CountVisits counts prior visits of tagID under label.
func (r *Repository) CountVisits(ctx context.Context, tagID, label string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, r.db.Rebind(`
		SELECT COUNT(id) FROM visits WHERE tag_id = ? AND context_label = ?
	`), tagID, label).Scan(&n)
	return n, err
}

// CountByLabel counts every visit logged under label.
func (r *Repository) CountByLabel(ctx context.Context, label string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, r.db.Rebind(`
		SELECT COUNT(id) FROM visits WHERE context_label = ?
	`), label).Scan(&n)
	return n, err
}

// GetRegistrant returns the registry row for tagID, or nil when absent.
func (r *Repository) GetRegistrant(ctx context.Context, tagID string) (*Registrant, error) {
	row := r.q.QueryRowContext(ctx, r.db.Rebind(`
		SELECT tag_id, name, details, role FROM registrants WHERE tag_id = ?
	`), tagID)
	var (
		reg  Registrant
		role sql.NullString
	)
	if err := row.Scan(&reg.TagID, &reg.Name, &reg.Details, &role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if role.Valid {
		reg.Role = &role.String
	}
	return &reg, nil
}

// RoleCounts groups visits under label by registrant role. Visits for tags
// missing from the registry are dropped by the join.
func (r *Repository) RoleCounts(ctx context.Context, label string) ([]RoleCount, error) {
	rows, err := r.q.QueryContext(ctx, r.db.Rebind(`
		SELECT rg.role, COUNT(v.id)
		FROM visits v
		JOIN registrants rg ON rg.tag_id = v.tag_id
		WHERE v.context_label = ?
		GROUP BY rg.role
	`), label)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []RoleCount
	for rows.Next() {
		var (
			role sql.NullString
			rc   RoleCount
		)
		if err := rows.Scan(&role, &rc.Count); err != nil {
			return nil, err
		}
		if role.Valid {
			name := role.String
			rc.Role = &name
		}
		res = append(res, rc)
	}
	return res, rows.Err()
}

// AttendeeVisit is a registrant joined to one of their visits.
type AttendeeVisit struct {
	Name    string
	Details string
	At      time.Time
}

// AttendeesByRole lists visits under label whose registrant has role,
// newest first.
func (r *Repository) AttendeesByRole(ctx context.Context, label, role string) ([]AttendeeVisit, error) {
	rows, err := r.q.QueryContext(ctx, r.db.Rebind(`
		SELECT rg.name, rg.details, v.visited_at
		FROM visits v
		JOIN registrants rg ON rg.tag_id = v.tag_id
		WHERE v.context_label = ? AND rg.role = ?
		ORDER BY v.visited_at DESC, v.id DESC
	`), label, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []AttendeeVisit
	for rows.Next() {
		var a AttendeeVisit
		if err := rows.Scan(&a.Name, &a.Details, &a.At); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// LabelCounts groups visits whose label matches the LIKE pattern by raw
// label, largest first. The pattern uses ! as its escape character.
func (r *Repository) LabelCounts(ctx context.Context, pattern string) ([]LabelCount, error) {
	rows, err := r.q.QueryContext(ctx, r.db.Rebind(`
		SELECT context_label, COUNT(id) AS total_count
		FROM visits
		WHERE context_label LIKE ? ESCAPE '!'
		GROUP BY context_label
		ORDER BY total_count DESC, context_label ASC
	`), pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []LabelCount
	for rows.Next() {
		var lc LabelCount
		if err := rows.Scan(&lc.Label, &lc.Count); err != nil {
			return nil, err
		}
		res = append(res, lc)
	}
	return res, rows.Err()
}

// ListVisits returns the most recent visits.
func (r *Repository) ListVisits(ctx context.Context, limit int) ([]Visit, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.q.QueryContext(ctx, r.db.Rebind(`
		SELECT id, visited_at, tag_id, context_label, terminal
		FROM visits
		ORDER BY visited_at DESC, id DESC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Visit
	for rows.Next() {
		var v Visit
		if err := rows.Scan(&v.ID, &v.At, &v.TagID, &v.Label, &v.Terminal); err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}
