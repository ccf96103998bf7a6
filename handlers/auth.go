package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/viewtube/viewtube-backend/internal/config"
	"github.com/viewtube/viewtube-backend/internal/events"
	"github.com/viewtube/viewtube-backend/internal/hash"
	"github.com/viewtube/viewtube-backend/internal/models"
	"github.com/viewtube/viewtube-backend/internal/sessions"
	"github.com/viewtube/viewtube-backend/internal/storage"
	"github.com/viewtube/viewtube-backend/internal/tokens"
	"github.com/viewtube/viewtube-backend/internal/users"
	"github.com/viewtube/viewtube-backend/pkg/logger"
	"github.com/viewtube/viewtube-backend/pkg/metrics"
	"github.com/viewtube/viewtube-backend/pkg/middleware"
)

// AuthHandler holds dependencies for the account/session endpoints. media
// and producer are optional; nil disables uploads and event publishing.
type AuthHandler struct {
	cfg       *config.Config
	sessions  *sessions.Service
	users     users.Repository
	media     *storage.MediaStorage
	producer  *events.Producer
	blacklist *sessions.Blacklist
}

func NewAuthHandler(cfg *config.Config, svc *sessions.Service, repo users.Repository,
	media *storage.MediaStorage, producer *events.Producer, blacklist *sessions.Blacklist) *AuthHandler {
	return &AuthHandler{
		cfg:       cfg,
		sessions:  svc,
		users:     repo,
		media:     media,
		producer:  producer,
		blacklist: blacklist,
	}
}

// Register routes under /users. authGuard protects the endpoints that need
// a verified access token.
func (h *AuthHandler) Register(rg *gin.RouterGroup, authGuard gin.HandlerFunc) {
	u := rg.Group("/users")
	u.POST("/register", h.RegisterUser)
	u.POST("/login", h.Login)
	u.POST("/refresh-token", h.Refresh)
	u.POST("/logout", authGuard, h.Logout)
	u.POST("/change-password", authGuard, h.ChangePassword)
	u.GET("/current-user", authGuard, h.CurrentUser)
}

// CreateCookie builds the http-only secure session cookie both tokens are
// delivered in, alongside the JSON payload.
func CreateCookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

func DeleteCookie(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *AuthHandler) setSessionCookies(c *gin.Context, pair *sessions.TokenPair) {
	now := time.Now()
	http.SetCookie(c.Writer, CreateCookie("accessToken", pair.AccessToken, now.Add(h.cfg.JWT.AccessTokenTTL)))
	http.SetCookie(c.Writer, CreateCookie("refreshToken", pair.RefreshToken, now.Add(h.cfg.JWT.RefreshTokenTTL)))
}

func clearSessionCookies(c *gin.Context) {
	http.SetCookie(c.Writer, DeleteCookie("accessToken"))
	http.SetCookie(c.Writer, DeleteCookie("refreshToken"))
}

type registerRequest struct {
	FullName string `form:"fullName" json:"fullName"`
	Email    string `form:"email" json:"email"`
	UserName string `form:"userName" json:"userName"`
	Password string `form:"password" json:"password"`
}

// RegisterUser creates a principal. Avatar and cover image are optional
// multipart files, uploaded to media storage when it is configured.
func (h *AuthHandler) RegisterUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, field := range []string{req.FullName, req.Email, req.UserName, req.Password} {
		if strings.TrimSpace(field) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "all fields are required"})
			return
		}
	}

	ctx := c.Request.Context()
	if _, err := h.users.FindByIdentifier(ctx, req.UserName); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "user already exists"})
		return
	}
	if _, err := h.users.FindByIdentifier(ctx, req.Email); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "user already exists"})
		return
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	u := &models.User{
		FullName:     req.FullName,
		Email:        req.Email,
		UserName:     strings.ToLower(req.UserName),
		PasswordHash: pwHash,
	}

	if avatar, err := c.FormFile("avatar"); err == nil {
		key, err := h.uploadMedia(ctx, "avatars", avatar)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "avatar upload failed"})
			return
		}
		u.Avatar = key
	}
	if cover, err := c.FormFile("coverImage"); err == nil {
		key, err := h.uploadMedia(ctx, "covers", cover)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "cover image upload failed"})
			return
		}
		u.CoverImage = key
	}

	created, err := h.users.Create(ctx, u)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	h.publishEvent(c, events.TypeUserRegistered, created.ID.Hex())

	c.JSON(http.StatusCreated, gin.H{"user": created})
}

func (h *AuthHandler) uploadMedia(ctx context.Context, prefix string, file *multipart.FileHeader) (string, error) {
	if h.media == nil {
		return "", nil
	}
	f, err := file.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	key := fmt.Sprintf("%s/%s%s", prefix, uuid.NewString(), filepath.Ext(file.Filename))
	return h.media.Upload(ctx, key, f, file.Size, file.Header.Get("Content-Type"))
}

type loginRequest struct {
	UserName string `json:"userName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login verifies the password and opens a session: tokens go out both in
// the JSON body and as accessToken/refreshToken cookies.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	identifier := req.UserName
	if identifier == "" {
		identifier = req.Email
	}
	if identifier == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username or email and password are required"})
		return
	}

	u, pair, err := h.sessions.Login(c.Request.Context(), identifier, req.Password)
	if err != nil {
		status, msg := errStatus(err)
		metrics.LoginAttempts.WithLabelValues(loginResult(err)).Inc()
		c.JSON(status, gin.H{"error": msg})
		return
	}
	metrics.LoginAttempts.WithLabelValues("success").Inc()
	h.publishEvent(c, events.TypeUserLoggedIn, u.ID.Hex())

	h.setSessionCookies(c, pair)
	c.JSON(http.StatusOK, gin.H{
		"user":         u,
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh rotates the session bound to the presented refresh token, taken
// from the refreshToken cookie or an explicit body field.
func (h *AuthHandler) Refresh(c *gin.Context) {
	raw := ""
	if cookie, err := c.Cookie("refreshToken"); err == nil {
		raw = cookie
	}
	if raw == "" {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			raw = req.RefreshToken
		}
	}
	if raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token missing"})
		return
	}

	_, pair, err := h.sessions.Refresh(c.Request.Context(), raw)
	if err != nil {
		if errors.Is(err, sessions.ErrTokenReuseDetected) {
			metrics.TokenReuseDetected.Inc()
			metrics.TokenRefreshes.WithLabelValues("reuse_detected").Inc()
			logger.Warnf("refresh token reuse detected")
			clearSessionCookies(c)
		} else {
			metrics.TokenRefreshes.WithLabelValues(refreshResult(err)).Inc()
		}
		status, msg := errStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	metrics.TokenRefreshes.WithLabelValues("success").Inc()

	h.setSessionCookies(c, pair)
	c.JSON(http.StatusOK, gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

// Logout clears the stored refresh token, blacklists the presented access
// token for its remaining lifetime and clears both session cookies.
func (h *AuthHandler) Logout(c *gin.Context) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	if err := h.sessions.Logout(c.Request.Context(), u.ID.Hex()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if raw, exists := c.Get(middleware.ContextAccessTokenKey); exists {
		if tok, ok := raw.(string); ok {
			if exp, err := parseExpFromJWT(tok); err == nil {
				if err := h.blacklist.Add(c.Request.Context(), tok, time.Until(exp)); err != nil {
					logger.Warnf("failed to blacklist access token: %v", err)
				}
			}
		}
	}
	h.publishEvent(c, events.TypeUserLoggedOut, u.ID.Hex())

	clearSessionCookies(c)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "old and new password are required"})
		return
	}

	if err := h.sessions.ChangePassword(c.Request.Context(), u.ID.Hex(), req.OldPassword, req.NewPassword); err != nil {
		status, msg := errStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	// changing the password revoked the refresh token; drop the cookies too
	clearSessionCookies(c)
	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}

func (h *AuthHandler) CurrentUser(c *gin.Context) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// publishEvent emits an account lifecycle event; failures are logged and
// never fail the request.
func (h *AuthHandler) publishEvent(c *gin.Context, eventType, principalID string) {
	if h.producer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if err := h.producer.Publish(ctx, eventType, principalID); err != nil {
		logger.Errorf("kafka publish error: %v", err)
	}
}

// errStatus maps session/token failures to a status code and a client-safe
// message. Persistence faults collapse to a generic internal error.
func errStatus(err error) (int, string) {
	switch {
	case errors.Is(err, sessions.ErrPrincipalNotFound):
		// distinct status preserved from the original API; the message
		// stays uniform with the wrong-password case
		return http.StatusNotFound, "invalid credentials"
	case errors.Is(err, sessions.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, sessions.ErrTokenReuseDetected):
		return http.StatusUnauthorized, "refresh token is no longer active"
	case errors.Is(err, sessions.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, tokens.ErrTokenExpired):
		return http.StatusUnauthorized, "token expired"
	case errors.Is(err, tokens.ErrBadSignature), errors.Is(err, tokens.ErrTokenMalformed):
		return http.StatusUnauthorized, "invalid token"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func loginResult(err error) string {
	switch {
	case errors.Is(err, sessions.ErrPrincipalNotFound):
		return "not_found"
	case errors.Is(err, sessions.ErrInvalidCredentials):
		return "invalid_credentials"
	default:
		return "error"
	}
}

func refreshResult(err error) string {
	switch {
	case errors.Is(err, sessions.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, tokens.ErrTokenExpired):
		return "expired"
	case errors.Is(err, tokens.ErrBadSignature), errors.Is(err, tokens.ErrTokenMalformed):
		return "invalid"
	default:
		return "error"
	}
}

// parseExpFromJWT decodes the JWT payload and returns the exp claim. Payload
// only, no signature verification: the token was already verified by the
// auth middleware and the result is only used to size the blacklist TTL.
func parseExpFromJWT(tok string) (time.Time, error) {
	parts := strings.Split(tok, ".")
	if len(parts) < 2 {
		return time.Time{}, fmt.Errorf("invalid token")
	}
	b, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return time.Time{}, err
	}
	var claims struct {
		Exp int64 `json:"exp"`
	}
	if err := json.Unmarshal(b, &claims); err != nil {
		return time.Time{}, err
	}
	if claims.Exp == 0 {
		return time.Time{}, fmt.Errorf("exp claim not present")
	}
	return time.Unix(claims.Exp, 0), nil
}
