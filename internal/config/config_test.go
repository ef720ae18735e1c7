package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Addr)
	}
	if cfg.SessionTTL != 168*time.Hour {
		t.Fatalf("unexpected session ttl: %s", cfg.SessionTTL)
	}
	if cfg.KillSwitchCacheTTL != 5*time.Second {
		t.Fatalf("unexpected kill switch cache ttl: %s", cfg.KillSwitchCacheTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KEYGATE_ADDR", ":9090")
	t.Setenv("KEYGATE_SESSION_TTL", "24h")
	t.Setenv("KEYGATE_ENTITLEMENT_SECRET", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("unexpected addr: %s", cfg.Addr)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Fatalf("unexpected session ttl: %s", cfg.SessionTTL)
	}
	if cfg.EntitlementSecret != "s3cret" {
		t.Fatalf("entitlement secret not read")
	}
}

func TestLoadRejectsZeroSessionTTL(t *testing.T) {
	t.Setenv("KEYGATE_SESSION_TTL", "0s")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero session ttl")
	}
}
