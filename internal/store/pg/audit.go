package pg

import (
	"context"
	"database/sql"
	"encoding/json"

	"keygate.io/internal/audit"
)

type auditStore struct {
	db *sql.DB
}

func (s *auditStore) Append(ctx context.Context, e *audit.Entry) error {
	var details []byte
	if len(e.Details) > 0 {
		var err error
		details, err = json.Marshal(e.Details)
		if err != nil {
			return err
		}
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log(id, action, entity_type, entity_id, details, actor_id, request_id, ip, occurred_at)
		values ($1,$2,nullif($3,''),nullif($4,''),$5,nullif($6,''),nullif($7,''),nullif($8,''),$9)
	`, e.ID, e.Action, e.EntityType, e.EntityID, details, e.ActorID, e.RequestID, e.IP, e.OccurredAt)
	return err
}
