package license

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken marks an entitlement token that fails verification.
var ErrInvalidToken = errors.New("license: invalid entitlement token")

// EntitlementClaims is the payload of a short-lived proof token minted for a
// successful verification. Clients present it to downstream services instead
// of re-running the full check.
type EntitlementClaims struct {
	LicenseID string `json:"lid"`
	Key       string `json:"key"`
	HWID      string `json:"hwid,omitempty"`
	jwt.RegisteredClaims
}

// TokenSigner mints and parses HS256 entitlement tokens.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenSigner constructs a TokenSigner. ttl bounds how long a proof stays
// valid; it should be much shorter than any license duration.
func NewTokenSigner(secret []byte, ttl time.Duration) *TokenSigner {
	return &TokenSigner{secret: secret, ttl: ttl, now: time.Now}
}

// WithTokenClock overrides the time source (tests).
func (s *TokenSigner) WithTokenClock(fn func() time.Time) *TokenSigner {
	if fn != nil {
		s.now = fn
	}
	return s
}

// Sign mints a token for a successful verification result. The token expiry is
// capped by the license expiry so a proof never outlives its license.
func (s *TokenSigner) Sign(res *Result) (string, time.Time, error) {
	if res == nil || !res.OK {
		return "", time.Time{}, errors.New("license: cannot sign a failed verification")
	}
	now := s.now().UTC()
	exp := now.Add(s.ttl)
	if res.ExpiresAt != nil && res.ExpiresAt.Before(exp) {
		exp = res.ExpiresAt.UTC()
	}
	claims := EntitlementClaims{
		LicenseID: res.LicenseID,
		Key:       res.Key,
		HWID:      res.HWID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   res.LicenseID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse verifies a token and returns its claims. Expired, malformed or
// wrongly-signed tokens all map to ErrInvalidToken.
func (s *TokenSigner) Parse(token string) (*EntitlementClaims, error) {
	claims := &EntitlementClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time { return s.now().UTC() }))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
