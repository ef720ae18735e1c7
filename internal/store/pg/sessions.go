package pg

import (
	"context"
	"database/sql"
	"errors"

	"keygate.io/internal/session"
)

type sessionStore struct {
	db *sql.DB
}

func (s *sessionStore) Create(ctx context.Context, sess *session.Session) error {
	_, err := s.db.ExecContext(ctx, `
		insert into sessions(id, user_id, token, ip, user_agent, expires_at, created_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, sess.ID, sess.UserID, sess.Token, sess.IP, sess.UserAgent, sess.ExpiresAt, sess.CreatedAt)
	if isUniqueViolation(err) {
		return session.ErrDuplicateToken
	}
	return err
}

func (s *sessionStore) FindByToken(ctx context.Context, token string) (*session.Session, error) {
	var sess session.Session
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, token, ip, user_agent, expires_at, created_at
		from sessions where token=$1
	`, token).Scan(&sess.ID, &sess.UserID, &sess.Token, &sess.IP, &sess.UserAgent, &sess.ExpiresAt, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *sessionStore) DeleteByToken(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `delete from sessions where token=$1`, token)
	if err != nil {
		return err
	}
	return noneMeansNotFound(res, session.ErrNotFound)
}

func (s *sessionStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from sessions where user_id=$1`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
