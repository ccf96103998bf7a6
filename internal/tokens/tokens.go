package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/viewtube/viewtube-backend/internal/config"
)

// Kind selects which secret and TTL a token is issued and verified with.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

var (
	ErrTokenExpired   = errors.New("token expired")
	ErrBadSignature   = errors.New("token signature invalid")
	ErrTokenMalformed = errors.New("token malformed")
)

// Issuer mints and verifies signed HS256 tokens. It is pure: no persistence,
// no clock state beyond time.Now at call time. The signing secrets come from
// the immutable config loaded at process start.
type Issuer struct {
	cfg *config.Config
}

func NewIssuer(cfg *config.Config) *Issuer {
	return &Issuer{cfg: cfg}
}

// IssueAccess mints a short-lived access token for the principal.
func (i *Issuer) IssueAccess(principalID string) (string, error) {
	return i.issue(principalID, KindAccess, i.cfg.JWT.AccessTokenTTL)
}

// IssueRefresh mints a long-lived refresh token for the principal. The jti
// claim makes every issued token distinct even within the same second.
func (i *Issuer) IssueRefresh(principalID string) (string, error) {
	return i.issue(principalID, KindRefresh, i.cfg.JWT.RefreshTokenTTL)
}

func (i *Issuer) issue(principalID string, kind Kind, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   principalID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString(i.secretFor(kind))
}

// Verify checks signature and expiry of raw against the secret for kind and
// returns the embedded principal id. It never consults the credential store;
// the single-active-token check is layered on top for refresh tokens.
func (i *Issuer) Verify(raw string, kind Kind) (string, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrBadSignature
		}
		return i.secretFor(kind), nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return "", ErrBadSignature
		default:
			return "", ErrTokenMalformed
		}
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", ErrTokenMalformed
	}
	return claims.Subject, nil
}

func (i *Issuer) secretFor(kind Kind) []byte {
	if kind == KindRefresh {
		return []byte(i.cfg.JWT.RefreshSecret)
	}
	return []byte(i.cfg.JWT.AccessSecret)
}
