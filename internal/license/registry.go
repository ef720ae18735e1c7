package license

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"keygate.io/internal/ids"
	"keygate.io/internal/obs"
)

const (
	maxGenerateCount = 100
	maxKeyAttempts   = 5
)

// Registry owns license key inventory: generation, revocation, redemption.
type Registry struct {
	store  Store
	newKey func() (string, error)
	now    func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithKeyGenerator overrides key-string generation (tests).
func WithKeyGenerator(fn func() (string, error)) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.newKey = fn
		}
	}
}

// WithRegistryClock overrides the time source (tests).
func WithRegistryClock(fn func() time.Time) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRegistry constructs a Registry.
func NewRegistry(store Store, opts ...RegistryOption) *Registry {
	r := &Registry{
		store:  store,
		newKey: NewKeyString,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GenerateKeys creates count AVAILABLE keys with unique key strings. A
// collision on the unique constraint triggers regeneration rather than
// failure.
func (r *Registry) GenerateKeys(ctx context.Context, count, durationDays int, priceCents int64, productType ProductType, createdBy string) ([]LicenseKey, error) {
	if count < 1 || count > maxGenerateCount {
		return nil, fmt.Errorf("%w: count must be between 1 and %d", ErrInvalidArgument, maxGenerateCount)
	}
	if durationDays <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidArgument)
	}
	if priceCents < 0 {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidArgument)
	}
	if _, err := ParseProductType(string(productType)); err != nil {
		return nil, fmt.Errorf("%w: unknown product type %q", ErrInvalidArgument, productType)
	}

	keys := make([]LicenseKey, 0, count)
	for i := 0; i < count; i++ {
		key, err := r.createOne(ctx, durationDays, priceCents, productType, createdBy)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *key)
	}
	return keys, nil
}

func (r *Registry) createOne(ctx context.Context, durationDays int, priceCents int64, productType ProductType, createdBy string) (*LicenseKey, error) {
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		keyString, err := r.newKey()
		if err != nil {
			return nil, err
		}
		now := r.now().UTC()
		key := &LicenseKey{
			ID:           ids.New(),
			Key:          keyString,
			DurationDays: durationDays,
			PriceCents:   priceCents,
			ProductType:  productType,
			Status:       KeyAvailable,
			CreatedBy:    createdBy,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		err = r.store.CreateKey(ctx, key)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, ErrDuplicateKey) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("license: could not generate a unique key in %d attempts", maxKeyAttempts)
}

// Revoke transitions an AVAILABLE key to REVOKED. Keys that are ASSIGNED or
// REDEEMED cannot be revoked.
func (r *Registry) Revoke(ctx context.Context, keyID string) error {
	if strings.TrimSpace(keyID) == "" {
		return ErrKeyNotFound
	}
	return r.store.RevokeKey(ctx, keyID)
}

// Redeem turns a key into a license for the user. Exactly one of any set of
// concurrent redemptions of the same key string succeeds.
func (r *Registry) Redeem(ctx context.Context, userID, keyString string) (*License, error) {
	keyString = strings.ToUpper(strings.TrimSpace(keyString))
	if keyString == "" {
		return nil, ErrKeyNotFound
	}
	lic, err := r.store.Redeem(ctx, userID, keyString, r.now().UTC())
	obs.ObserveRedemption(redemptionResult(err))
	if err != nil {
		return nil, err
	}
	return lic, nil
}

func redemptionResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrKeyNotFound):
		return "invalid_key"
	case errors.Is(err, ErrAlreadyUsed):
		return "already_used"
	case errors.Is(err, ErrKeyRevoked):
		return "revoked"
	case errors.Is(err, ErrAlreadyLicensed):
		return "already_licensed"
	default:
		return "error"
	}
}
