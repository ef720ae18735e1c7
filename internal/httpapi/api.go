// Package httpapi exposes the licensing service over HTTP.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"keygate.io/internal/account"
	"keygate.io/internal/audit"
	"keygate.io/internal/killswitch"
	"keygate.io/internal/license"
	"keygate.io/internal/obs"
	"keygate.io/internal/release"
	"keygate.io/internal/reseller"
	"keygate.io/internal/session"
)

// ReadyProbe checks dependencies for /readyz (for example a DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps carries the services the API fronts.
type Deps struct {
	Sessions  *session.Manager
	Users     account.Store
	Evaluator *license.Evaluator
	Registry  *license.Registry
	Licenses  license.Store
	Ledger    *reseller.Ledger
	Gate      *killswitch.Gate
	Releases  release.Store
	Recorder  *audit.Recorder
	Signer    *license.TokenSigner
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	deps       Deps
	readyProbe ReadyProbe
	version    string
	rateBurst  int
	ratePerSec int
}

// Option configures the API.
type Option func(*API)

// WithRateLimit overrides the per-IP token bucket parameters.
func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		if burst > 0 && perSecond > 0 {
			a.rateBurst = burst
			a.ratePerSec = perSecond
		}
	}
}

func New(rp ReadyProbe, version string, deps Deps, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		deps:       deps,
		readyProbe: rp,
		version:    version,
		rateBurst:  50,
		ratePerSec: 25,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.mux.HandleFunc("/healthz", a.healthz)
	a.mux.HandleFunc("/readyz", a.ready)
	a.mux.HandleFunc("/v1/info", a.info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/verify", a.handleVerify)
	a.mux.HandleFunc("/v1/status", a.handleStatus)
	a.mux.HandleFunc("/v1/redeem", a.handleRedeem)
	a.mux.HandleFunc("/v1/hwid/reset", a.handleHWIDReset)

	a.mux.HandleFunc("/v1/session", a.handleSession)
	a.mux.HandleFunc("/v1/users", a.handleUsersCollection)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)

	a.mux.HandleFunc("/v1/killswitch", a.handleKillSwitch)
	a.mux.HandleFunc("/v1/killswitch/enable", a.handleKillSwitchEnable)
	a.mux.HandleFunc("/v1/killswitch/disable", a.handleKillSwitchDisable)

	a.mux.HandleFunc("/v1/keys", a.handleKeysCollection)
	a.mux.HandleFunc("/v1/keys/", a.handleKeyResource)

	a.mux.HandleFunc("/v1/resellers", a.handleResellersCollection)
	a.mux.HandleFunc("/v1/resellers/", a.handleResellerResource)

	a.mux.HandleFunc("/v1/releases", a.handleReleasesCollection)
	a.mux.HandleFunc("/v1/releases/", a.handleReleaseResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler: metrics instrumentation plus the
// middleware chain.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.withAuth(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "keygate-api",
		"version": a.version,
	})
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "keygate-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
