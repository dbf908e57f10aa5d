package terminal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"nfccheckin/internal/store"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository persists scanner terminals and their refresh tokens.
type Repository struct {
	db *store.DB
	q  querier
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db, q: db.Client}
}

// InTx runs fn against a repository bound to one transaction.
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

// UpsertTerminal ensures a terminal record exists and bumps its last seen
// time. Written as select-then-write so the same SQL runs on every dialect.
func (r *Repository) UpsertTerminal(ctx context.Context, terminalID string, at time.Time) error {
	var n int
	err := r.q.QueryRowContext(ctx, r.db.Rebind(`
		SELECT COUNT(*) FROM terminals WHERE terminal_id = ?
	`), terminalID).Scan(&n)
	if err != nil {
		return err
	}
	if n > 0 {
		_, err = r.q.ExecContext(ctx, r.db.Rebind(`
			UPDATE terminals SET last_seen_at = ? WHERE terminal_id = ?
		`), at, terminalID)
		return err
	}
	_, err = r.q.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO terminals (terminal_id, registered_at, last_seen_at)
		VALUES (?, ?, ?)
	`), terminalID, at, at)
	return err
}

// SaveRefreshToken stores a refresh token hash for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, terminalID, tokenHash string, expiresAt time.Time) error {
	_, err := r.q.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO refresh_tokens (terminal_id, token_hash, expires_at)
		VALUES (?, ?, ?)
	`), terminalID, tokenHash, expiresAt)
	return err
}

// RevokeRefreshToken marks a live token revoked and reports whether it was
// live. A second call for the same hash returns false.
func (r *Repository) RevokeRefreshToken(ctx context.Context, tokenHash string) (bool, error) {
	res, err := r.q.ExecContext(ctx, r.db.Rebind(`
		UPDATE refresh_tokens SET revoked = ? WHERE token_hash = ? AND revoked = ?
	`), true, tokenHash, false)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
