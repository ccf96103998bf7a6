package sessions

import (
	"context"
	"errors"

	"github.com/viewtube/viewtube-backend/internal/hash"
	"github.com/viewtube/viewtube-backend/internal/models"
	"github.com/viewtube/viewtube-backend/internal/tokens"
	"github.com/viewtube/viewtube-backend/internal/users"
)

// TokenPair is one session handed to a caller: both tokens are superseded
// together on every rotation.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Service implements the session rotation protocol on top of the credential
// store. A principal has at most one valid refresh token at a time: the one
// currently stored on its record.
type Service struct {
	users  users.Repository
	issuer *tokens.Issuer
}

func NewService(repo users.Repository, issuer *tokens.Issuer) *Service {
	return &Service{users: repo, issuer: issuer}
}

// Login verifies the password and opens a session. The stored refresh token
// is overwritten unconditionally: concurrent logins race and the last write
// wins, invalidating any earlier session (single-concurrent-session policy).
func (s *Service) Login(ctx context.Context, identifier, password string) (*models.User, *TokenPair, error) {
	u, err := s.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, nil, ErrPrincipalNotFound
		}
		return nil, nil, err
	}
	if !hash.CheckPassword(u.PasswordHash, password) {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.issuePair(u.ID.Hex())
	if err != nil {
		return nil, nil, err
	}
	if err := s.users.UpdateRefreshToken(ctx, u.ID.Hex(), pair.RefreshToken); err != nil {
		return nil, nil, err
	}
	u.RefreshToken = pair.RefreshToken
	return u, pair, nil
}

// Refresh rotates the session bound to raw. The overwrite is conditional on
// the stored value still equaling the presented token, so a superseded token
// fails with ErrTokenReuseDetected and of two concurrent refreshes with the
// same valid token exactly one succeeds.
func (s *Service) Refresh(ctx context.Context, raw string) (*models.User, *TokenPair, error) {
	principalID, err := s.issuer.Verify(raw, tokens.KindRefresh)
	if err != nil {
		return nil, nil, err
	}
	u, err := s.users.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, nil, ErrUnauthenticated
		}
		return nil, nil, err
	}

	pair, err := s.issuePair(principalID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.users.RotateRefreshToken(ctx, principalID, raw, pair.RefreshToken); err != nil {
		if errors.Is(err, users.ErrRotateConflict) {
			// Replay of a rotated-away (or cleared) token. The currently
			// active session stays valid; only the stale token is rejected.
			return nil, nil, ErrTokenReuseDetected
		}
		return nil, nil, err
	}
	u.RefreshToken = pair.RefreshToken
	return u, pair, nil
}

// Logout clears the stored refresh token. Idempotent: logging out a
// principal with no active session (or one already gone) is not an error.
func (s *Service) Logout(ctx context.Context, principalID string) error {
	err := s.users.ClearRefreshToken(ctx, principalID)
	if errors.Is(err, users.ErrNotFound) {
		return nil
	}
	return err
}

// ChangePassword stores a new password hash and invalidates the active
// refresh token, so sessions opened under the old password cannot be
// extended past their access-token expiry.
func (s *Service) ChangePassword(ctx context.Context, principalID, oldPassword, newPassword string) error {
	u, err := s.users.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return ErrUnauthenticated
		}
		return err
	}
	if !hash.CheckPassword(u.PasswordHash, oldPassword) {
		return ErrInvalidCredentials
	}
	newHash, err := hash.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, principalID, newHash); err != nil {
		return err
	}
	return s.Logout(ctx, principalID)
}

func (s *Service) issuePair(principalID string) (*TokenPair, error) {
	access, err := s.issuer.IssueAccess(principalID)
	if err != nil {
		return nil, err
	}
	refresh, err := s.issuer.IssueRefresh(principalID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
