package pg

import (
	"context"
	"database/sql"

	"keygate.io/internal/killswitch"
)

type killSwitchStore struct {
	db *sql.DB
}

// The kill_switch table holds exactly one row, pinned by a constant primary
// key. GetOrInit races resolve via on conflict do nothing.
func (s *killSwitchStore) GetOrInit(ctx context.Context) (killswitch.State, error) {
	if _, err := s.db.ExecContext(ctx, `
		insert into kill_switch(singleton, enabled) values (true, false)
		on conflict (singleton) do nothing
	`); err != nil {
		return killswitch.State{}, err
	}
	var st killswitch.State
	var reason, enabledBy sql.NullString
	var enabledAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		select enabled, reason, enabled_at, enabled_by from kill_switch where singleton
	`).Scan(&st.Enabled, &reason, &enabledAt, &enabledBy)
	if err != nil {
		return killswitch.State{}, err
	}
	if reason.Valid {
		st.Reason = reason.String
	}
	if enabledBy.Valid {
		st.EnabledBy = enabledBy.String
	}
	if enabledAt.Valid {
		t := enabledAt.Time
		st.EnabledAt = &t
	}
	return st, nil
}

func (s *killSwitchStore) Update(ctx context.Context, st killswitch.State) error {
	_, err := s.db.ExecContext(ctx, `
		insert into kill_switch(singleton, enabled, reason, enabled_at, enabled_by)
		values (true, $1, nullif($2,''), $3, nullif($4,''))
		on conflict (singleton) do update
		set enabled=excluded.enabled, reason=excluded.reason,
		    enabled_at=excluded.enabled_at, enabled_by=excluded.enabled_by
	`, st.Enabled, st.Reason, st.EnabledAt, st.EnabledBy)
	return err
}
