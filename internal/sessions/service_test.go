package sessions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/viewtube/viewtube-backend/internal/config"
	"github.com/viewtube/viewtube-backend/internal/hash"
	"github.com/viewtube/viewtube-backend/internal/models"
	"github.com/viewtube/viewtube-backend/internal/tokens"
	"github.com/viewtube/viewtube-backend/internal/users"
)

func newTestService(t *testing.T) (*Service, *users.MemoryRepository, *models.User) {
	t.Helper()
	cfg := &config.Config{}
	cfg.JWT.AccessSecret = "access-test-secret-32-bytes-xxxxxxxx"
	cfg.JWT.RefreshSecret = "refresh-test-secret-32-bytes-xxxxxxx"
	cfg.JWT.AccessTokenTTL = 15 * time.Minute
	cfg.JWT.RefreshTokenTTL = 7 * 24 * time.Hour

	repo := users.NewMemoryRepository()
	pwHash, err := hash.HashPassword("secret123")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	u, err := repo.Create(context.Background(), &models.User{
		UserName:     "alice",
		Email:        "alice@example.com",
		FullName:     "Alice A",
		PasswordHash: pwHash,
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	return NewService(repo, tokens.NewIssuer(cfg)), repo, u
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Login(ctx, "alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody", "secret123"); !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
}

func TestLogin_IssuesPairBoundToPrincipal(t *testing.T) {
	svc, repo, u := newTestService(t)
	ctx := context.Background()

	got, pair, err := svc.Login(ctx, "alice", "secret123")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("login resolved wrong principal")
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", pair)
	}
	stored, _ := repo.FindByID(ctx, u.ID.Hex())
	if stored.RefreshToken != pair.RefreshToken {
		t.Fatalf("refresh token not persisted on the principal record")
	}
}

// The full rotation scenario: refresh succeeds once, the superseded token is
// rejected as reuse, and the current token keeps working.
func TestRefresh_RotationAndReuseDetection(t *testing.T) {
	svc, repo, u := newTestService(t)
	ctx := context.Background()

	_, pair, err := svc.Login(ctx, "alice", "secret123")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	_, pair2, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("first Refresh error: %v", err)
	}
	if pair2.RefreshToken == pair.RefreshToken {
		t.Fatalf("rotation must produce a new refresh token")
	}

	// replaying the rotated-away token is reuse
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenReuseDetected) {
		t.Fatalf("expected ErrTokenReuseDetected, got %v", err)
	}

	// the currently active token is unaffected by the failed replay
	_, pair3, err := svc.Refresh(ctx, pair2.RefreshToken)
	if err != nil {
		t.Fatalf("refresh with current token after replay attempt: %v", err)
	}
	stored, _ := repo.FindByID(ctx, u.ID.Hex())
	if stored.RefreshToken != pair3.RefreshToken {
		t.Fatalf("stored refresh token should be the latest issued one")
	}
}

func TestRefresh_ValidChainKeepsWorking(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, pair, err := svc.Login(ctx, "alice", "secret123")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	current := pair.RefreshToken
	for i := 0; i < 3; i++ {
		_, next, err := svc.Refresh(ctx, current)
		if err != nil {
			t.Fatalf("Refresh %d error: %v", i, err)
		}
		current = next.RefreshToken
	}
}

func TestRefresh_GarbageToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, _, err := svc.Refresh(context.Background(), "not.a.jwt"); !errors.Is(err, tokens.ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

// Two simultaneous refresh calls with the same valid token: exactly one may
// succeed, the other must see the conflict.
func TestRefresh_ConcurrentSingleWinner(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, pair, err := svc.Login(ctx, "alice", "secret123")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.Refresh(ctx, pair.RefreshToken)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrTokenReuseDetected):
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winning refresh, got %d", wins)
	}
}

func TestLogout_Idempotent(t *testing.T) {
	svc, repo, u := newTestService(t)
	ctx := context.Background()

	_, pair, err := svc.Login(ctx, "alice", "secret123")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if err := svc.Logout(ctx, u.ID.Hex()); err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if err := svc.Logout(ctx, u.ID.Hex()); err != nil {
		t.Fatalf("second Logout must not error: %v", err)
	}
	stored, _ := repo.FindByID(ctx, u.ID.Hex())
	if stored.RefreshToken != "" {
		t.Fatalf("expected no active session after logout")
	}
	// the pre-logout refresh token is gone
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenReuseDetected) {
		t.Fatalf("expected refresh after logout to fail, got %v", err)
	}
}

func TestChangePassword_InvalidatesSession(t *testing.T) {
	svc, _, u := newTestService(t)
	ctx := context.Background()

	_, pair, err := svc.Login(ctx, "alice", "secret123")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if err := svc.ChangePassword(ctx, u.ID.Hex(), "wrong", "newpass456"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong old password, got %v", err)
	}
	if err := svc.ChangePassword(ctx, u.ID.Hex(), "secret123", "newpass456"); err != nil {
		t.Fatalf("ChangePassword error: %v", err)
	}
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenReuseDetected) {
		t.Fatalf("expected old session dead after password change, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "alice", "secret123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must no longer verify, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "alice", "newpass456"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}
