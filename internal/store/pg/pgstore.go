// Package pg implements every domain store on PostgreSQL via database/sql
// with the pgx stdlib driver.
package pg

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"keygate.io/internal/account"
	"keygate.io/internal/audit"
	"keygate.io/internal/killswitch"
	"keygate.io/internal/license"
	"keygate.io/internal/release"
	"keygate.io/internal/reseller"
	"keygate.io/internal/session"
)

// Store wraps the connection pool and hands out per-domain views.
type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing pool (tests).
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Users() account.Store { return &userStore{db: s.db} }

func (s *Store) Sessions() session.Store { return &sessionStore{db: s.db} }

func (s *Store) Keys() license.Store { return &licenseStore{db: s.db} }

func (s *Store) Resellers() reseller.Store { return &resellerStore{db: s.db} }

func (s *Store) KillSwitch() killswitch.Store { return &killSwitchStore{db: s.db} }

func (s *Store) Releases() release.Store { return &releaseStore{db: s.db} }

func (s *Store) Audit() audit.Store { return &auditStore{db: s.db} }

// isUniqueViolation reports whether err is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
