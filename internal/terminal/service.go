package terminal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"nfccheckin/internal/auth"
)

var (
	ErrTerminalRequired = errors.New("terminal_id required")
	// ErrTokenReused is returned for a refresh token that was already
	// exchanged or never issued by this service.
	ErrTokenReused = errors.New("refresh token already used")
)

// Service registers scanners and rotates their tokens.
type Service struct {
	repo   *Repository
	issuer *auth.Issuer
	now    func() time.Time
}

// NewService creates a terminal service.
func NewService(repo *Repository, issuer *auth.Issuer) *Service {
	return &Service{repo: repo, issuer: issuer, now: time.Now}
}

// Issuer exposes the token issuer for request authentication.
func (s *Service) Issuer() *auth.Issuer { return s.issuer }

// Register records terminalID and issues it a fresh token pair.
func (s *Service) Register(ctx context.Context, terminalID string) (auth.TokenPair, error) {
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return auth.TokenPair{}, ErrTerminalRequired
	}
	var pair auth.TokenPair
	err := s.repo.InTx(ctx, func(tx *Repository) error {
		if err := tx.UpsertTerminal(ctx, terminalID, s.stamp()); err != nil {
			return fmt.Errorf("upsert terminal: %w", err)
		}
		var err error
		pair, err = s.issue(ctx, tx, terminalID)
		return err
	})
	return pair, err
}

// Refresh exchanges a refresh token for a new pair. Each refresh token is
// accepted once; the replaced token is revoked in the same transaction.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	claims, err := s.issuer.Parse(refreshToken, auth.TypeRefresh)
	if err != nil {
		return auth.TokenPair{}, err
	}
	var pair auth.TokenPair
	err = s.repo.InTx(ctx, func(tx *Repository) error {
		live, err := tx.RevokeRefreshToken(ctx, hashToken(refreshToken))
		if err != nil {
			return fmt.Errorf("revoke refresh token: %w", err)
		}
		if !live {
			return ErrTokenReused
		}
		if err := tx.UpsertTerminal(ctx, claims.Subject, s.stamp()); err != nil {
			return fmt.Errorf("touch terminal: %w", err)
		}
		pair, err = s.issue(ctx, tx, claims.Subject)
		return err
	})
	return pair, err
}

func (s *Service) issue(ctx context.Context, tx *Repository, terminalID string) (auth.TokenPair, error) {
	pair, err := s.issuer.Issue(terminalID)
	if err != nil {
		return auth.TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}
	if err := tx.SaveRefreshToken(ctx, terminalID, hashToken(pair.RefreshToken), pair.RefreshExp.UTC().Truncate(time.Second)); err != nil {
		return auth.TokenPair{}, fmt.Errorf("save refresh token: %w", err)
	}
	return pair, nil
}

func (s *Service) stamp() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
