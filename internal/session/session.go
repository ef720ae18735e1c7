// Package session issues, validates and revokes opaque session tokens.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"keygate.io/internal/account"
	"keygate.io/internal/ids"
)

// DefaultTTL matches the product's 7-day session lifetime.
const DefaultTTL = 7 * 24 * time.Hour

var (
	// ErrNotAuthenticated is the normal "no valid session" outcome: missing,
	// expired, or owned by a deactivated user. Never treated as fatal.
	ErrNotAuthenticated = errors.New("session: not authenticated")
	// ErrInvalidCredentials covers unknown email or wrong password.
	ErrInvalidCredentials = errors.New("session: invalid credentials")
	// ErrAccountDeactivated is returned when the account is soft-deactivated.
	ErrAccountDeactivated = errors.New("session: account deactivated")

	// ErrNotFound and ErrDuplicateToken are store-level sentinels.
	ErrNotFound       = errors.New("session: not found")
	ErrDuplicateToken = errors.New("session: duplicate token")
)

// Session is one issued token. Tokens are opaque and globally unique.
type Session struct {
	ID        string
	UserID    string
	Token     string
	IP        string
	UserAgent string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Store persists sessions. The token column carries a unique constraint.
type Store interface {
	Create(ctx context.Context, s *Session) error
	FindByToken(ctx context.Context, token string) (*Session, error)
	DeleteByToken(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

// Manager implements the session lifecycle over a Store and the user table.
type Manager struct {
	sessions Store
	users    account.Store
	ttl      time.Duration
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL overrides the session lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewManager constructs a Manager.
func NewManager(sessions Store, users account.Store, opts ...Option) *Manager {
	m := &Manager{
		sessions: sessions,
		users:    users,
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Login authenticates credentials and issues a session token.
func (m *Manager) Login(ctx context.Context, email, password, ip, userAgent string) (string, *account.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return "", nil, ErrInvalidCredentials
	}
	user, err := m.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !user.Active {
		return "", nil, ErrAccountDeactivated
	}
	if err := account.VerifyPassword(user.PasswordHash, password); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	token, err := m.CreateSession(ctx, user.ID, ip, userAgent)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// CreateSession issues a token for an already-authenticated user and stamps
// the user's last login time.
func (m *Manager) CreateSession(ctx context.Context, userID, ip, userAgent string) (string, error) {
	now := m.now().UTC()
	s := &Session{
		ID:        ids.New(),
		UserID:    userID,
		Token:     uuid.NewString(),
		IP:        ip,
		UserAgent: userAgent,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}
	if err := m.sessions.Create(ctx, s); err != nil {
		return "", err
	}
	if err := m.users.TouchLastLogin(ctx, userID, now); err != nil {
		return "", err
	}
	return s.Token, nil
}

// Validate resolves a token to its user. Expired rows are deleted on sight;
// a session owned by an inactive user is invalid.
func (m *Manager) Validate(ctx context.Context, token string) (*account.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrNotAuthenticated
	}
	s, err := m.sessions.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, err
	}
	if !m.now().Before(s.ExpiresAt) {
		_ = m.sessions.DeleteByToken(ctx, token)
		return nil, ErrNotAuthenticated
	}
	user, err := m.users.Find(ctx, s.UserID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, err
	}
	if !user.Active {
		return nil, ErrNotAuthenticated
	}
	return user, nil
}

// Logout deletes the session matching the token. Unknown tokens are a no-op.
func (m *Manager) Logout(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	err := m.sessions.DeleteByToken(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// RevokeAll deletes every session owned by the user. Finding none is not an
// error; the operation is idempotent.
func (m *Manager) RevokeAll(ctx context.Context, userID string) error {
	_, err := m.sessions.DeleteByUser(ctx, userID)
	return err
}
