// Package killswitch implements the global override gate consulted before
// every entitlement decision.
package killswitch

import (
	"context"
	"time"

	"keygate.io/internal/cache"
	"keygate.io/internal/obs"
)

// State is the singleton kill switch record. When no record exists yet the
// store materializes a disabled default.
type State struct {
	Enabled   bool       `json:"enabled"`
	Reason    string     `json:"reason,omitempty"`
	EnabledAt *time.Time `json:"enabled_at,omitempty"`
	EnabledBy string     `json:"enabled_by,omitempty"`
}

// Store persists the singleton state.
type Store interface {
	// GetOrInit returns the current state, creating the disabled default if
	// none exists. Concurrent initializers must converge on a single record.
	GetOrInit(ctx context.Context) (State, error)
	// Update replaces the singleton state.
	Update(ctx context.Context, s State) error
}

const cacheKey = "keygate:killswitch"

// Gate answers "is the service globally disabled" with bounded staleness.
// Writes go straight to the store; reads may be served from cache for at most
// cacheTTL.
type Gate struct {
	store    Store
	cache    cache.Cache
	cacheTTL time.Duration
	now      func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithCache enables cached reads with the given TTL. A zero or negative TTL
// disables caching.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(g *Gate) {
		if c != nil && ttl > 0 {
			g.cache = c
			g.cacheTTL = ttl
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) Option {
	return func(g *Gate) {
		if fn != nil {
			g.now = fn
		}
	}
}

// New constructs a Gate over the given store.
func New(store Store, opts ...Option) *Gate {
	g := &Gate{store: store, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Current returns the kill switch state, serving cached values within the
// staleness budget. Cache failures fall through to the store.
func (g *Gate) Current(ctx context.Context) (State, error) {
	if g.cache != nil {
		var cached State
		if found, err := g.cache.Get(ctx, cacheKey, &cached); err == nil && found {
			return cached, nil
		}
	}
	state, err := g.store.GetOrInit(ctx)
	if err != nil {
		return State{}, err
	}
	if g.cache != nil {
		_ = g.cache.Set(ctx, cacheKey, state, g.cacheTTL)
	}
	return state, nil
}

// Enable turns the switch on, stamping actor and time. The write is durable
// before the cached copy is dropped.
func (g *Gate) Enable(ctx context.Context, actorID, reason string) (State, error) {
	at := g.now().UTC()
	state := State{
		Enabled:   true,
		Reason:    reason,
		EnabledAt: &at,
		EnabledBy: actorID,
	}
	if err := g.store.Update(ctx, state); err != nil {
		return State{}, err
	}
	g.invalidate(ctx)
	obs.SetKillSwitch(true)
	return state, nil
}

// Disable turns the switch off and clears the actor stamp.
func (g *Gate) Disable(ctx context.Context, actorID string) (State, error) {
	state := State{Enabled: false}
	if err := g.store.Update(ctx, state); err != nil {
		return State{}, err
	}
	g.invalidate(ctx)
	obs.SetKillSwitch(false)
	return state, nil
}

func (g *Gate) invalidate(ctx context.Context) {
	if g.cache == nil {
		return
	}
	// A stale cached read self-heals within cacheTTL, so log and move on.
	if err := g.cache.Delete(ctx, cacheKey); err != nil {
		obs.LogError("killswitch", "cache invalidate failed", err)
	}
}
