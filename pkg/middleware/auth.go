package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/viewtube/viewtube-backend/internal/models"
	"github.com/viewtube/viewtube-backend/internal/sessions"
	"github.com/viewtube/viewtube-backend/internal/tokens"
	"github.com/viewtube/viewtube-backend/internal/users"
)

// Context keys set by RequireAuth.
const (
	ContextUserKey        = "user"
	ContextAccessTokenKey = "accessToken"
)

// Verifier is the minimal token interface the middleware depends on
type Verifier interface {
	Verify(raw string, kind tokens.Kind) (string, error)
}

// PrincipalResolver looks up the principal a verified token refers to.
type PrincipalResolver interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// RequireAuth verifies the access token carried in the Authorization header
// or the accessToken cookie, resolves the principal and stores it in the
// request context. A missing credential and an invalid one are rejected
// with distinct messages. blacklist may be nil.
func RequireAuth(ver Verifier, resolver PrincipalResolver, blacklist *sessions.Blacklist) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := extractToken(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing credentials"})
			return
		}

		if revoked, err := blacklist.Contains(c.Request.Context(), raw); err == nil && revoked {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
			return
		}

		principalID, err := ver.Verify(raw, tokens.KindAccess)
		if err != nil {
			if errors.Is(err, tokens.ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token expired"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		u, err := resolver.FindByID(c.Request.Context(), principalID)
		if err != nil {
			if errors.Is(err, users.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.Set(ContextUserKey, u)
		c.Set(ContextAccessTokenKey, raw)
		c.Next()
	}
}

// CurrentUser returns the principal RequireAuth attached to the context.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*models.User)
	return u, ok
}

func extractToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		if tok, found := strings.CutPrefix(auth, "Bearer "); found {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	if cookie, err := c.Cookie("accessToken"); err == nil {
		return cookie
	}
	return ""
}
