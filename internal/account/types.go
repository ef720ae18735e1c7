// Package account holds user identity, roles and their capabilities.
package account

import (
	"errors"
	"strings"
	"time"
)

// Role is the access level attached to a user.
type Role string

const (
	RoleOwner    Role = "OWNER"
	RoleAdmin    Role = "ADMIN"
	RoleReseller Role = "RESELLER"
	RoleUser     Role = "USER"
)

// ParseRole normalizes and validates a role string.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(raw))) {
	case RoleOwner:
		return RoleOwner, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleReseller:
		return RoleReseller, nil
	case RoleUser:
		return RoleUser, nil
	default:
		return "", errors.New("account: unknown role")
	}
}

// CanManageKeys reports whether the role may generate and revoke license keys.
func (r Role) CanManageKeys() bool {
	return r == RoleOwner || r == RoleAdmin
}

// CanManageResellers reports whether the role may administer reseller accounts.
func (r Role) CanManageResellers() bool {
	return r == RoleOwner || r == RoleAdmin
}

// CanManageReleases reports whether the role may create and publish releases.
func (r Role) CanManageReleases() bool {
	return r == RoleOwner || r == RoleAdmin
}

// CanManageUsers reports whether the role may create, suspend and reactivate
// user accounts.
func (r Role) CanManageUsers() bool {
	return r == RoleOwner || r == RoleAdmin
}

// CanAccessKillSwitch reports whether the role may flip the kill switch.
func (r Role) CanAccessKillSwitch() bool {
	return r == RoleOwner
}

// User is a registered account. Users are soft-deactivated, never deleted.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Role         Role
	Active       bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
