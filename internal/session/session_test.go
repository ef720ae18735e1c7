package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"keygate.io/internal/account"
	"keygate.io/internal/session"
	"keygate.io/internal/store/memory"
)

type fixture struct {
	store *memory.Store
	mgr   *session.Manager
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.New(),
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.mgr = session.NewManager(f.store.Sessions(), f.store.Users(),
		session.WithClock(func() time.Time { return f.now }))

	hash, err := account.HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	err = f.store.Users().Create(context.Background(), &account.User{
		ID:           "u1",
		Email:        "user@example.com",
		Username:     "user",
		PasswordHash: hash,
		Role:         account.RoleUser,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return f
}

func TestLoginAndValidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, user, err := f.mgr.Login(ctx, "  User@Example.COM ", "correct horse", "203.0.113.9", "client/1.0")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.ID != "u1" {
		t.Fatalf("user = %+v", user)
	}
	if token == "" {
		t.Fatal("empty token")
	}

	got, err := f.mgr.Validate(ctx, token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.ID != "u1" {
		t.Fatalf("validated user = %+v", got)
	}
	if got.LastLoginAt == nil || !got.LastLoginAt.Equal(f.now) {
		t.Fatalf("last login not stamped: %+v", got.LastLoginAt)
	}
}

func TestLoginRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, _, err := f.mgr.Login(ctx, "user@example.com", "wrong", "", ""); !errors.Is(err, session.ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, _, err := f.mgr.Login(ctx, "nobody@example.com", "correct horse", "", ""); !errors.Is(err, session.ErrInvalidCredentials) {
		t.Fatalf("unknown email: got %v", err)
	}
	if _, _, err := f.mgr.Login(ctx, "", "", "", ""); !errors.Is(err, session.ErrInvalidCredentials) {
		t.Fatalf("empty credentials: got %v", err)
	}

	if err := f.store.Users().SetActive(ctx, "u1", false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, _, err := f.mgr.Login(ctx, "user@example.com", "correct horse", "", ""); !errors.Is(err, session.ErrAccountDeactivated) {
		t.Fatalf("deactivated account: got %v", err)
	}
}

func TestValidateExpiryDeletesLazily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, _, err := f.mgr.Login(ctx, "user@example.com", "correct horse", "", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	f.now = f.now.Add(session.DefaultTTL + time.Minute)
	if _, err := f.mgr.Validate(ctx, token); !errors.Is(err, session.ErrNotAuthenticated) {
		t.Fatalf("expired token: got %v", err)
	}
	// The expired row is gone from the store, not just rejected.
	if _, err := f.store.Sessions().FindByToken(ctx, token); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expired session still stored: %v", err)
	}
}

func TestValidateInactiveUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, _, err := f.mgr.Login(ctx, "user@example.com", "correct horse", "", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := f.store.Users().SetActive(ctx, "u1", false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := f.mgr.Validate(ctx, token); !errors.Is(err, session.ErrNotAuthenticated) {
		t.Fatalf("inactive user session: got %v", err)
	}
}

func TestLogoutIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, _, err := f.mgr.Login(ctx, "user@example.com", "correct horse", "", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := f.mgr.Logout(ctx, token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := f.mgr.Logout(ctx, token); err != nil {
		t.Fatalf("second logout: %v", err)
	}
	if _, err := f.mgr.Validate(ctx, token); !errors.Is(err, session.ErrNotAuthenticated) {
		t.Fatalf("validate after logout: got %v", err)
	}
}

func TestRevokeAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var tokens []string
	for i := 0; i < 3; i++ {
		token, _, err := f.mgr.Login(ctx, "user@example.com", "correct horse", "", "")
		if err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
		tokens = append(tokens, token)
	}
	if err := f.mgr.RevokeAll(ctx, "u1"); err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	for _, token := range tokens {
		if _, err := f.mgr.Validate(ctx, token); !errors.Is(err, session.ErrNotAuthenticated) {
			t.Fatalf("token survived revoke all: %v", err)
		}
	}
	// Revoking again finds nothing and still succeeds.
	if err := f.mgr.RevokeAll(ctx, "u1"); err != nil {
		t.Fatalf("second revoke all: %v", err)
	}
}
