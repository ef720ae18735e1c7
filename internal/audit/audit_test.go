package audit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"keygate.io/internal/account"
	"keygate.io/internal/audit"
	"keygate.io/internal/store/memory"
)

func TestRecordEnrichesFromContext(t *testing.T) {
	store := memory.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := audit.NewRecorder(store.Audit(), audit.WithClock(func() time.Time { return now }))

	ctx := context.Background()
	ctx = audit.WithRequestID(ctx, "req-42")
	ctx = audit.WithRemoteIP(ctx, "203.0.113.9")
	ctx = account.ContextWithUser(ctx, &account.User{ID: "admin-1", Role: account.RoleAdmin})

	rec.Record(ctx, audit.ActionKeyGenerate, "license_key", "k1", map[string]any{"count": 5})

	entries := store.AuditEntries()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Action != audit.ActionKeyGenerate || e.EntityType != "license_key" || e.EntityID != "k1" {
		t.Fatalf("entry = %+v", e)
	}
	if e.ActorID != "admin-1" || e.RequestID != "req-42" || e.IP != "203.0.113.9" {
		t.Fatalf("context enrichment missing: %+v", e)
	}
	if !e.OccurredAt.Equal(now) {
		t.Fatalf("occurred at %v, want %v", e.OccurredAt, now)
	}
	if e.Details["count"] != 5 {
		t.Fatalf("details = %+v", e.Details)
	}
}

type failingAuditStore struct{}

func (failingAuditStore) Append(context.Context, *audit.Entry) error {
	return errors.New("disk full")
}

func TestRecordSwallowsStoreFailure(t *testing.T) {
	rec := audit.NewRecorder(failingAuditStore{})
	// Must not panic or propagate; the audited operation goes on.
	rec.Record(context.Background(), audit.ActionLogin, "user", "u1", nil)
}
