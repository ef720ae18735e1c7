package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"keygate.io/internal/account"
	"keygate.io/internal/audit"
	"keygate.io/internal/cache"
	"keygate.io/internal/config"
	"keygate.io/internal/httpapi"
	"keygate.io/internal/ids"
	"keygate.io/internal/killswitch"
	"keygate.io/internal/license"
	"keygate.io/internal/obs"
	"keygate.io/internal/release"
	"keygate.io/internal/reseller"
	"keygate.io/internal/session"
	"keygate.io/internal/store/memory"
	"keygate.io/internal/store/pg"
)

var version = "1.0.0"

// stores abstracts the two storage backends behind one wiring point.
type stores interface {
	Users() account.Store
	Sessions() session.Store
	Keys() license.Store
	Resellers() reseller.Store
	KillSwitch() killswitch.Store
	Releases() release.Store
	Audit() audit.Store
}

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("KEYGATE_COMMIT"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	var (
		st      stores
		pgStore *pg.Store
	)
	if cfg.PGDSN != "" {
		pgStore, err = pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		st = pgStore
	} else {
		log.Printf("KEYGATE_PG_DSN not set, using in-memory stores")
		st = memory.New()
	}

	var gateOpts []killswitch.Option
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rc.Close()
		gateOpts = append(gateOpts, killswitch.WithCache(rc, cfg.KillSwitchCacheTTL))
	} else {
		gateOpts = append(gateOpts, killswitch.WithCache(cache.NewMemory(), cfg.KillSwitchCacheTTL))
	}
	gate := killswitch.New(st.KillSwitch(), gateOpts...)

	var signer *license.TokenSigner
	if cfg.EntitlementSecret != "" {
		signer = license.NewTokenSigner([]byte(cfg.EntitlementSecret), cfg.EntitlementTTL)
	} else {
		log.Printf("KEYGATE_ENTITLEMENT_SECRET not set, entitlement tokens disabled")
	}

	deps := httpapi.Deps{
		Sessions:  session.NewManager(st.Sessions(), st.Users(), session.WithTTL(cfg.SessionTTL)),
		Users:     st.Users(),
		Evaluator: license.NewEvaluator(st.Keys(), gate, license.WithReleases(st.Releases())),
		Registry:  license.NewRegistry(st.Keys()),
		Licenses:  st.Keys(),
		Ledger:    reseller.NewLedger(st.Resellers()),
		Gate:      gate,
		Releases:  st.Releases(),
		Recorder:  audit.NewRecorder(st.Audit()),
		Signer:    signer,
	}

	if cfg.BootstrapEmail != "" {
		if err := bootstrapOwner(ctx, st.Users(), cfg.BootstrapEmail, cfg.BootstrapPassword); err != nil {
			log.Fatalf("bootstrap owner: %v", err)
		}
	}

	rp := httpapi.ReadyProbe{}
	if pgStore != nil {
		rp.DB = pgStore.DB()
	}
	api := httpapi.New(rp, version, deps, httpapi.WithRateLimit(cfg.RateBurst, cfg.RatePerSec))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting keygate-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if pgStore != nil {
		_ = pgStore.Close()
	}
	log.Println("Stopped")
}

// bootstrapOwner creates the initial OWNER account. Repeated startups with the
// same email are a no-op.
func bootstrapOwner(ctx context.Context, users account.Store, email, password string) error {
	if _, err := users.FindByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, account.ErrNotFound) {
		return err
	}
	hash, err := account.HashPassword(password)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	u := &account.User{
		ID:           ids.New(),
		Email:        email,
		Username:     "owner",
		PasswordHash: hash,
		Role:         account.RoleOwner,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = users.Create(ctx, u)
	if errors.Is(err, account.ErrAlreadyExists) {
		return nil
	}
	return err
}
