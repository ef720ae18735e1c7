package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"keygate.io/internal/account"
)

type userStore struct {
	db *sql.DB
}

func (s *userStore) Create(ctx context.Context, u *account.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, email, username, password_hash, role, active, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$7)
	`, u.ID, strings.ToLower(u.Email), u.Username, u.PasswordHash, string(u.Role), u.Active, u.CreatedAt)
	if isUniqueViolation(err) {
		return account.ErrAlreadyExists
	}
	return err
}

func (s *userStore) Find(ctx context.Context, id string) (*account.User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		select id, email, username, password_hash, role, active, last_login_at, created_at, updated_at
		from users where id=$1
	`, id))
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*account.User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		select id, email, username, password_hash, role, active, last_login_at, created_at, updated_at
		from users where email=$1
	`, strings.ToLower(email)))
}

func (s *userStore) scanOne(row *sql.Row) (*account.User, error) {
	var u account.User
	var role string
	var lastLogin sql.NullTime
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &role, &u.Active, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, account.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = account.Role(role)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

func (s *userStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		update users set active=$2, updated_at=now() where id=$1
	`, id, active)
	if err != nil {
		return err
	}
	return noneMeansNotFound(res, account.ErrNotFound)
}

func (s *userStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update users set last_login_at=$2 where id=$1
	`, id, at)
	if err != nil {
		return err
	}
	return noneMeansNotFound(res, account.ErrNotFound)
}

// noneMeansNotFound maps a zero-row update to the domain's not-found error.
func noneMeansNotFound(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
