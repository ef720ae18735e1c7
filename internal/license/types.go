// Package license implements license key lifecycle, redemption and
// entitlement evaluation.
package license

import (
	"errors"
	"strings"
	"time"
)

// KeyStatus is the lifecycle state of a license key.
//
// AVAILABLE keys may be ASSIGNED to a reseller or REDEEMED directly.
// ASSIGNED keys may only be REDEEMED. REVOKED is terminal.
type KeyStatus string

const (
	KeyAvailable KeyStatus = "AVAILABLE"
	KeyAssigned  KeyStatus = "ASSIGNED"
	KeyRedeemed  KeyStatus = "REDEEMED"
	KeyRevoked   KeyStatus = "REVOKED"
)

// ProductType identifies the platform a key unlocks.
type ProductType string

const (
	ProductWindows ProductType = "WINDOWS"
	ProductMacOS   ProductType = "MACOS"
	ProductAndroid ProductType = "ANDROID"
)

// ParseProductType normalizes and validates a product type string.
func ParseProductType(raw string) (ProductType, error) {
	switch ProductType(strings.ToUpper(strings.TrimSpace(raw))) {
	case ProductWindows:
		return ProductWindows, nil
	case ProductMacOS:
		return ProductMacOS, nil
	case ProductAndroid:
		return ProductAndroid, nil
	default:
		return "", errors.New("license: unknown product type")
	}
}

// LicenseKey is an inventory item. The key string is unique system-wide.
type LicenseKey struct {
	ID           string      `json:"id"`
	Key          string      `json:"key"`
	DurationDays int         `json:"duration_days"`
	PriceCents   int64       `json:"price_cents"`
	ProductType  ProductType `json:"product_type"`
	Status       KeyStatus   `json:"status"`
	ResellerID   string      `json:"reseller_id,omitempty"`
	CreatedBy    string      `json:"created_by,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Status is the state of a redeemed license.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusExpired Status = "EXPIRED"
	StatusRevoked Status = "REVOKED"
)

// License is the redeemed instance of a key. A key owns at most one license.
type License struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	LicenseKeyID string     `json:"license_key_id"`
	Status       Status     `json:"status"`
	ActivatedAt  time.Time  `json:"activated_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	HWID         string     `json:"hwid,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
}

// Verification is everything Verify needs about one key string in one read.
type Verification struct {
	License    License
	Key        LicenseKey
	UserActive bool
	Username   string
}

// KeySelector filters inventory for purchase operations.
type KeySelector struct {
	DurationDays int
	PriceCents   int64
	ProductType  ProductType
}
