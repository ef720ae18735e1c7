// Package audit records administrative and security-relevant actions to an
// append-only trail. Recording is best-effort: a failed append never fails
// the operation that triggered it.
package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"keygate.io/internal/account"
	"keygate.io/internal/ids"
	"keygate.io/internal/obs"
)

// Action names. Stable values; dashboards and retention policies key on them.
const (
	ActionLogin             = "auth.login"
	ActionLogout            = "auth.logout"
	ActionLogoutAll         = "auth.logout_all"
	ActionKeyGenerate       = "license.key_generate"
	ActionKeyRevoke         = "license.key_revoke"
	ActionRedeem            = "license.redeem"
	ActionHWIDReset         = "license.hwid_reset"
	ActionKillSwitchEnable  = "killswitch.enable"
	ActionKillSwitchDisable = "killswitch.disable"
	ActionDeposit           = "wallet.deposit"
	ActionPurchase          = "wallet.purchase"
	ActionAdjust            = "wallet.adjust"
	ActionReleasePublish    = "release.publish"
	ActionUserSuspend       = "user.suspend"
	ActionUserActivate      = "user.activate"
)

// Entry is one immutable audit record.
type Entry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	IP         string         `json:"ip,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Store appends entries to the trail. Implementations never update or delete.
type Store interface {
	Append(ctx context.Context, e *Entry) error
}

type ctxKey string

const (
	requestIDKey ctxKey = "audit_request_id"
	remoteIPKey  ctxKey = "audit_remote_ip"
)

// WithRequestID attaches the request identifier for audit enrichment.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithRemoteIP attaches the caller address for audit enrichment.
func WithRemoteIP(ctx context.Context, ip string) context.Context {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, remoteIPKey, ip)
}

func requestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

func remoteIPFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(remoteIPKey).(string); ok {
		return v
	}
	return ""
}

// Recorder writes entries through a Store, enriching them from context.
type Recorder struct {
	store Store
	now   func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder constructs a Recorder over the given store.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends an entry, filling actor, request id and caller address from
// context. Failures are logged and counted but swallowed so the audited
// operation still succeeds.
func (r *Recorder) Record(ctx context.Context, action, entityType, entityID string, details map[string]any) {
	e := &Entry{
		ID:         ids.New(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		RequestID:  requestIDFromContext(ctx),
		IP:         remoteIPFromContext(ctx),
		OccurredAt: r.now().UTC(),
	}
	if u, ok := account.UserFromContext(ctx); ok {
		e.ActorID = u.ID
	}
	if len(details) > 0 {
		e.Details = make(map[string]any, len(details))
		for k, v := range details {
			e.Details[k] = v
		}
	}
	if err := r.store.Append(ctx, e); err != nil {
		obs.AuditAppendFailed()
		payload, _ := json.Marshal(map[string]any{
			"ts":     r.now().UTC().Format(time.RFC3339Nano),
			"type":   "audit_append_error",
			"action": action,
			"error":  err.Error(),
		})
		obs.Logger().Println(string(payload))
	}
}
