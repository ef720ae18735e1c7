package account

import (
	"context"
	"testing"
)

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"owner":     RoleOwner,
		"ADMIN":     RoleAdmin,
		" reseller": RoleReseller,
		"User":      RoleUser,
	}
	for raw, want := range cases {
		got, err := ParseRole(raw)
		if err != nil {
			t.Fatalf("ParseRole(%q): %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseRole(%q)=%q, want %q", raw, got, want)
		}
	}
	if _, err := ParseRole("root"); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestRoleCapabilities(t *testing.T) {
	if !RoleOwner.CanAccessKillSwitch() {
		t.Fatal("owner must control the kill switch")
	}
	if RoleAdmin.CanAccessKillSwitch() {
		t.Fatal("admin must not control the kill switch")
	}
	for _, r := range []Role{RoleOwner, RoleAdmin} {
		if !r.CanManageKeys() || !r.CanManageResellers() || !r.CanManageReleases() {
			t.Fatalf("role %s missing management capabilities", r)
		}
	}
	for _, r := range []Role{RoleReseller, RoleUser} {
		if r.CanManageKeys() || r.CanManageResellers() || r.CanManageReleases() {
			t.Fatalf("role %s has unexpected management capabilities", r)
		}
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := VerifyPassword(hash, "hunter2"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); err == nil {
		t.Fatal("expected mismatch error")
	}
	if _, err := HashPassword(""); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestUserContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := UserFromContext(ctx); ok {
		t.Fatal("unexpected user in empty context")
	}
	u := &User{ID: "u1", Role: RoleAdmin}
	ctx = ContextWithUser(ctx, u)
	got, ok := UserFromContext(ctx)
	if !ok || got.ID != "u1" {
		t.Fatalf("unexpected user from context: %+v ok=%v", got, ok)
	}
}
