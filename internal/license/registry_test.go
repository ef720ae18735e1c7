package license_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"keygate.io/internal/account"
	"keygate.io/internal/license"
	"keygate.io/internal/store/memory"
)

func seedUser(t *testing.T, store *memory.Store, id string, active bool) {
	t.Helper()
	err := store.Users().Create(context.Background(), &account.User{
		ID:       id,
		Email:    id + "@example.com",
		Username: id,
		Role:     account.RoleUser,
		Active:   active,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func TestGenerateKeysBounds(t *testing.T) {
	reg := license.NewRegistry(memory.New().Keys())
	ctx := context.Background()

	if _, err := reg.GenerateKeys(ctx, 0, 30, 999, license.ProductWindows, "admin"); !errors.Is(err, license.ErrInvalidArgument) {
		t.Fatalf("count 0: got %v, want ErrInvalidArgument", err)
	}
	if _, err := reg.GenerateKeys(ctx, 101, 30, 999, license.ProductWindows, "admin"); !errors.Is(err, license.ErrInvalidArgument) {
		t.Fatalf("count above limit: got %v, want ErrInvalidArgument", err)
	}
	if _, err := reg.GenerateKeys(ctx, 1, 0, 999, license.ProductWindows, "admin"); !errors.Is(err, license.ErrInvalidArgument) {
		t.Fatalf("non-positive duration: got %v, want ErrInvalidArgument", err)
	}
	if _, err := reg.GenerateKeys(ctx, 1, 30, 999, "LINUX", "admin"); !errors.Is(err, license.ErrInvalidArgument) {
		t.Fatalf("unknown product type: got %v, want ErrInvalidArgument", err)
	}

	keys, err := reg.GenerateKeys(ctx, 5, 30, 999, license.ProductWindows, "admin")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(keys) != 5 {
		t.Fatalf("got %d keys, want 5", len(keys))
	}
	seen := map[string]bool{}
	for _, k := range keys {
		if k.Status != license.KeyAvailable {
			t.Fatalf("key status = %s, want AVAILABLE", k.Status)
		}
		if seen[k.Key] {
			t.Fatalf("duplicate key string %s", k.Key)
		}
		seen[k.Key] = true
	}
}

// unreachableKeyStore simulates a dead backend under a registry.
type unreachableKeyStore struct{ license.Store }

func (unreachableKeyStore) CreateKey(context.Context, *license.LicenseKey) error {
	return errors.New("dial tcp: connection refused")
}

func TestGenerateKeysStoreFailureIsNotAnArgumentError(t *testing.T) {
	reg := license.NewRegistry(unreachableKeyStore{Store: memory.New().Keys()})
	_, err := reg.GenerateKeys(context.Background(), 1, 30, 999, license.ProductWindows, "admin")
	if err == nil {
		t.Fatal("expected store failure to propagate")
	}
	if errors.Is(err, license.ErrInvalidArgument) {
		t.Fatalf("store failure classified as caller mistake: %v", err)
	}
}

func TestGenerateKeysRetriesOnCollision(t *testing.T) {
	store := memory.New().Keys()
	attempts := 0
	gen := func() (string, error) {
		attempts++
		if attempts < 3 {
			return "AAAA-AAAA-AAAA-AAAA", nil
		}
		return "BBBB-BBBB-BBBB-BBBB", nil
	}
	reg := license.NewRegistry(store, license.WithKeyGenerator(gen))
	ctx := context.Background()

	if err := store.CreateKey(ctx, &license.LicenseKey{ID: "k1", Key: "AAAA-AAAA-AAAA-AAAA", DurationDays: 30, ProductType: license.ProductWindows, Status: license.KeyAvailable}); err != nil {
		t.Fatalf("seed key: %v", err)
	}
	keys, err := reg.GenerateKeys(ctx, 1, 30, 999, license.ProductWindows, "admin")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if keys[0].Key != "BBBB-BBBB-BBBB-BBBB" {
		t.Fatalf("got key %s after collision retry", keys[0].Key)
	}
	if attempts != 3 {
		t.Fatalf("generator called %d times, want 3", attempts)
	}
}

func TestRevokeOnlyAvailableKeys(t *testing.T) {
	store := memory.New()
	reg := license.NewRegistry(store.Keys())
	ctx := context.Background()
	seedUser(t, store, "u1", true)

	keys, err := reg.GenerateKeys(ctx, 2, 30, 999, license.ProductWindows, "admin")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := reg.Redeem(ctx, "u1", keys[0].Key); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	if err := reg.Revoke(ctx, keys[0].ID); !errors.Is(err, license.ErrInvalidState) {
		t.Fatalf("revoke redeemed key: got %v, want ErrInvalidState", err)
	}
	if err := reg.Revoke(ctx, keys[1].ID); err != nil {
		t.Fatalf("revoke available key: %v", err)
	}
	if err := reg.Revoke(ctx, "missing"); !errors.Is(err, license.ErrKeyNotFound) {
		t.Fatalf("revoke missing key: got %v, want ErrKeyNotFound", err)
	}
}

func TestRedeemLifecycle(t *testing.T) {
	store := memory.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reg := license.NewRegistry(store.Keys(), license.WithRegistryClock(func() time.Time { return now }))
	ctx := context.Background()
	seedUser(t, store, "u1", true)
	seedUser(t, store, "u2", true)

	keys, err := reg.GenerateKeys(ctx, 3, 30, 999, license.ProductWindows, "admin")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	lic, err := reg.Redeem(ctx, "u1", keys[0].Key)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if lic.Status != license.StatusActive {
		t.Fatalf("license status = %s, want ACTIVE", lic.Status)
	}
	if want := now.AddDate(0, 0, 30); !lic.ExpiresAt.Equal(want) {
		t.Fatalf("expires at %v, want %v", lic.ExpiresAt, want)
	}

	if _, err := reg.Redeem(ctx, "u2", keys[0].Key); !errors.Is(err, license.ErrAlreadyUsed) {
		t.Fatalf("redeem used key: got %v, want ErrAlreadyUsed", err)
	}
	if _, err := reg.Redeem(ctx, "u1", keys[1].Key); !errors.Is(err, license.ErrAlreadyLicensed) {
		t.Fatalf("second license for user: got %v, want ErrAlreadyLicensed", err)
	}
	if _, err := reg.Redeem(ctx, "u2", "ZZZZ-ZZZZ-ZZZZ-ZZZZ"); !errors.Is(err, license.ErrKeyNotFound) {
		t.Fatalf("redeem unknown key: got %v, want ErrKeyNotFound", err)
	}

	if err := reg.Revoke(ctx, keys[2].ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := reg.Redeem(ctx, "u2", keys[2].Key); !errors.Is(err, license.ErrKeyRevoked) {
		t.Fatalf("redeem revoked key: got %v, want ErrKeyRevoked", err)
	}
}

func TestRedeemNormalizesKeyString(t *testing.T) {
	store := memory.New()
	reg := license.NewRegistry(store.Keys())
	ctx := context.Background()
	seedUser(t, store, "u1", true)

	keys, err := reg.GenerateKeys(ctx, 1, 30, 999, license.ProductWindows, "admin")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	sloppy := "  " + strings.ToLower(keys[0].Key) + " "
	if _, err := reg.Redeem(ctx, "u1", sloppy); err != nil {
		t.Fatalf("redeem with sloppy key input: %v", err)
	}
}
