package license_test

import (
	"testing"
	"time"

	"keygate.io/internal/license"
)

func TestTokenRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	exp := now.Add(30 * 24 * time.Hour)
	signer := license.NewTokenSigner([]byte("test-secret"), 15*time.Minute).
		WithTokenClock(func() time.Time { return now })

	res := &license.Result{
		OK:        true,
		Code:      license.CodeOK,
		LicenseID: "lic-1",
		Key:       "AAAA-BBBB-CCCC-DDDD",
		HWID:      "HW-001",
		ExpiresAt: &exp,
	}
	token, tokenExp, err := signer.Sign(res)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if want := now.Add(15 * time.Minute); !tokenExp.Equal(want) {
		t.Fatalf("token expiry %v, want %v", tokenExp, want)
	}

	claims, err := signer.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.LicenseID != "lic-1" || claims.Key != "AAAA-BBBB-CCCC-DDDD" || claims.HWID != "HW-001" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestTokenExpiryCappedByLicense(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	exp := now.Add(5 * time.Minute) // license dies before the token TTL
	signer := license.NewTokenSigner([]byte("test-secret"), 15*time.Minute).
		WithTokenClock(func() time.Time { return now })

	_, tokenExp, err := signer.Sign(&license.Result{OK: true, Code: license.CodeOK, LicenseID: "lic-1", ExpiresAt: &exp})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !tokenExp.Equal(exp) {
		t.Fatalf("token expiry %v, want capped at %v", tokenExp, exp)
	}
}

func TestTokenRejectsFailedResult(t *testing.T) {
	signer := license.NewTokenSigner([]byte("test-secret"), 15*time.Minute)
	if _, _, err := signer.Sign(&license.Result{Code: license.CodeInvalidKey}); err == nil {
		t.Fatal("expected error signing a failed verification")
	}
	if _, _, err := signer.Sign(nil); err == nil {
		t.Fatal("expected error signing nil result")
	}
}

func TestTokenInvalidCases(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	exp := now.Add(time.Hour)
	signer := license.NewTokenSigner([]byte("test-secret"), 15*time.Minute).
		WithTokenClock(func() time.Time { return now })
	token, _, err := signer.Sign(&license.Result{OK: true, Code: license.CodeOK, LicenseID: "lic-1", ExpiresAt: &exp})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	other := license.NewTokenSigner([]byte("different-secret"), 15*time.Minute)
	if _, err := other.Parse(token); err != license.ErrInvalidToken {
		t.Fatalf("wrong secret: got %v, want ErrInvalidToken", err)
	}
	if _, err := signer.Parse("not-a-token"); err != license.ErrInvalidToken {
		t.Fatalf("garbage: got %v, want ErrInvalidToken", err)
	}

	late := license.NewTokenSigner([]byte("test-secret"), 15*time.Minute).
		WithTokenClock(func() time.Time { return now.Add(16 * time.Minute) })
	if _, err := late.Parse(token); err != license.ErrInvalidToken {
		t.Fatalf("expired: got %v, want ErrInvalidToken", err)
	}
}
