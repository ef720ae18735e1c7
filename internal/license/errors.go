package license

import "errors"

var (
	ErrKeyNotFound     = errors.New("license: key not found")
	ErrAlreadyUsed     = errors.New("license: key already used")
	ErrKeyRevoked      = errors.New("license: key revoked")
	ErrAlreadyLicensed = errors.New("license: user already holds a valid license")
	ErrInvalidState    = errors.New("license: invalid state transition")
	ErrDuplicateKey    = errors.New("license: duplicate key string")
	ErrLicenseNotFound = errors.New("license: license not found")

	// ErrInvalidArgument marks caller mistakes so the HTTP layer can tell
	// them apart from persistence failures.
	ErrInvalidArgument = errors.New("license: invalid argument")
)
