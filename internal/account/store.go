package account

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("account: user not found")
	ErrAlreadyExists = errors.New("account: user already exists")
)

// Store manages user records.
type Store interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	SetActive(ctx context.Context, id string, active bool) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}
