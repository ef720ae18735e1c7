package license

import (
	"context"
	"time"
)

// Store persists keys and licenses. Implementations must enforce key-string
// uniqueness and make every status transition conditional on the current
// status, so concurrent redemptions cannot both succeed.
type Store interface {
	// CreateKey inserts a new AVAILABLE key. A key-string collision returns
	// ErrDuplicateKey.
	CreateKey(ctx context.Context, key *LicenseKey) error
	FindKey(ctx context.Context, id string) (*LicenseKey, error)
	FindKeyByString(ctx context.Context, keyString string) (*LicenseKey, error)

	// RevokeKey transitions AVAILABLE -> REVOKED. Any other current status is
	// ErrInvalidState; a missing key is ErrKeyNotFound.
	RevokeKey(ctx context.Context, id string) error

	// Redeem performs the redemption transaction: precondition checks, the
	// AVAILABLE/ASSIGNED -> REDEEMED compare-and-swap, and the license insert
	// are one atomic unit. At most one concurrent caller wins.
	Redeem(ctx context.Context, userID, keyString string, now time.Time) (*License, error)

	// Verification loads the license behind a key string together with its
	// key and owning-user state. ErrLicenseNotFound when the key was never
	// redeemed; ErrKeyNotFound when the key string is unknown.
	Verification(ctx context.Context, keyString string) (*Verification, error)

	// MarkLicenseExpired transitions ACTIVE -> EXPIRED. Already-expired
	// licenses are left untouched (idempotent).
	MarkLicenseExpired(ctx context.Context, licenseID string) error

	// BindHWID sets the hardware id if and only if none is bound yet.
	// ErrInvalidState when a HWID is already present.
	BindHWID(ctx context.Context, licenseID, hwid string, now time.Time) error

	// TouchLicense refreshes the last-used timestamp.
	TouchLicense(ctx context.Context, licenseID string, now time.Time) error

	// ActiveLicenseForUser returns the user's ACTIVE, unexpired license, or
	// ErrLicenseNotFound.
	ActiveLicenseForUser(ctx context.Context, userID string, now time.Time) (*License, error)

	// ResetHWID clears the bound hardware id (administrative operation).
	ResetHWID(ctx context.Context, licenseID string) error
}
