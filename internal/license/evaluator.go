package license

import (
	"context"
	"errors"
	"strings"
	"time"

	"keygate.io/internal/killswitch"
	"keygate.io/internal/obs"
	"keygate.io/internal/release"
)

// ResultCode classifies a verification outcome. Codes are stable wire values.
type ResultCode string

const (
	CodeOK               ResultCode = "OK"
	CodeKillSwitchActive ResultCode = "KILL_SWITCH_ACTIVE"
	CodeInvalidKey       ResultCode = "INVALID_KEY"
	CodeLicenseExpired   ResultCode = "LICENSE_EXPIRED"
	CodeLicenseRevoked   ResultCode = "LICENSE_REVOKED"
	CodeUserSuspended    ResultCode = "USER_SUSPENDED"
	CodeHWIDMismatch     ResultCode = "HWID_MISMATCH"
)

// Result is a verification verdict. On success it carries the entitlement
// details and the latest published release pointer, when one exists.
type Result struct {
	OK            bool        `json:"ok"`
	Code          ResultCode  `json:"code"`
	Reason        string      `json:"reason,omitempty"`
	LicenseID     string      `json:"license_id,omitempty"`
	Key           string      `json:"key,omitempty"`
	HWID          string      `json:"hwid,omitempty"`
	ProductType   ProductType `json:"product_type,omitempty"`
	ExpiresAt     *time.Time  `json:"expires_at,omitempty"`
	Username      string      `json:"username,omitempty"`
	LatestVersion string      `json:"latest_version,omitempty"`
	DownloadURL   string      `json:"download_url,omitempty"`
}

// Evaluator answers the central entitlement question: may this key, presented
// from this hardware, use the product right now. Checks run in a fixed order
// and the first failure wins.
type Evaluator struct {
	store    Store
	gate     *killswitch.Gate
	releases release.Store
	now      func() time.Time
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithEvaluatorClock overrides the time source (tests).
func WithEvaluatorClock(fn func() time.Time) EvaluatorOption {
	return func(e *Evaluator) {
		if fn != nil {
			e.now = fn
		}
	}
}

// WithReleases attaches a release store so successful verifications carry the
// latest published build.
func WithReleases(rs release.Store) EvaluatorOption {
	return func(e *Evaluator) {
		e.releases = rs
	}
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(store Store, gate *killswitch.Gate, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{store: store, gate: gate, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Verify runs the ordered entitlement checks for a key string presented from
// the hardware identified by hwid:
//
//  1. kill switch
//  2. key and license lookup
//  3. license status
//  4. wall-clock expiry, persisted as ACTIVE -> EXPIRED
//  5. owning user active
//  6. hardware binding, when an hwid is presented: first use binds, later
//     uses must match
//
// An empty hwid skips step 6 entirely: nothing is bound and a bound license
// still verifies. An unexpected store failure is returned as an error; every
// policy failure is a non-OK Result with a nil error.
func (e *Evaluator) Verify(ctx context.Context, keyString, hwid string) (*Result, error) {
	res, err := e.verify(ctx, keyString, hwid)
	if err != nil {
		obs.ObserveVerification("error")
		return nil, err
	}
	obs.ObserveVerification(verificationOutcome(res.Code))
	return res, nil
}

func (e *Evaluator) verify(ctx context.Context, keyString, hwid string) (*Result, error) {
	ks, err := e.gate.Current(ctx)
	if err != nil {
		return nil, err
	}
	if ks.Enabled {
		reason := ks.Reason
		if reason == "" {
			reason = "service disabled"
		}
		return &Result{Code: CodeKillSwitchActive, Reason: reason}, nil
	}

	keyString = strings.ToUpper(strings.TrimSpace(keyString))
	if keyString == "" {
		return &Result{Code: CodeInvalidKey, Reason: "invalid license key"}, nil
	}
	v, err := e.store.Verification(ctx, keyString)
	if errors.Is(err, ErrKeyNotFound) || errors.Is(err, ErrLicenseNotFound) {
		return &Result{Code: CodeInvalidKey, Reason: "invalid license key"}, nil
	}
	if err != nil {
		return nil, err
	}

	switch v.License.Status {
	case StatusRevoked:
		return &Result{Code: CodeLicenseRevoked, Reason: "license revoked"}, nil
	case StatusExpired:
		return &Result{Code: CodeLicenseExpired, Reason: "license expired"}, nil
	}

	now := e.now().UTC()
	if !now.Before(v.License.ExpiresAt) {
		if err := e.store.MarkLicenseExpired(ctx, v.License.ID); err != nil && !errors.Is(err, ErrInvalidState) {
			return nil, err
		}
		return &Result{Code: CodeLicenseExpired, Reason: "license expired"}, nil
	}

	if !v.UserActive {
		return &Result{Code: CodeUserSuspended, Reason: "account suspended"}, nil
	}

	hwid = strings.TrimSpace(hwid)
	boundHWID := v.License.HWID
	if hwid != "" {
		if boundHWID == "" {
			err := e.store.BindHWID(ctx, v.License.ID, hwid, now)
			switch {
			case errors.Is(err, ErrInvalidState):
				// Lost a concurrent first-use race; reload and compare against
				// whatever won.
				fresh, ferr := e.store.Verification(ctx, keyString)
				if ferr != nil {
					return nil, ferr
				}
				boundHWID = fresh.License.HWID
			case err != nil:
				return nil, err
			default:
				boundHWID = hwid
			}
		}
		if boundHWID != hwid {
			return &Result{Code: CodeHWIDMismatch, Reason: "license is bound to another device"}, nil
		}
	}

	if err := e.store.TouchLicense(ctx, v.License.ID, now); err != nil {
		return nil, err
	}

	res := &Result{
		OK:          true,
		Code:        CodeOK,
		LicenseID:   v.License.ID,
		Key:         v.Key.Key,
		HWID:        boundHWID,
		ProductType: v.Key.ProductType,
		ExpiresAt:   &v.License.ExpiresAt,
		Username:    v.Username,
	}
	if e.releases != nil {
		latest, err := e.releases.LatestPublished(ctx)
		switch {
		case errors.Is(err, release.ErrNoRelease):
		case err != nil:
			return nil, err
		default:
			res.LatestVersion = latest.Version
			res.DownloadURL = latest.DownloadURL
		}
	}
	return res, nil
}

// ErrServiceDisabled is returned by CheckActive while the kill switch is on.
var ErrServiceDisabled = errors.New("license: service disabled")

// CheckActive reports whether the user currently holds an ACTIVE unexpired
// license, without binding or touching anything. The kill switch applies
// here too.
func (e *Evaluator) CheckActive(ctx context.Context, userID string) (*License, error) {
	ks, err := e.gate.Current(ctx)
	if err != nil {
		return nil, err
	}
	if ks.Enabled {
		return nil, ErrServiceDisabled
	}
	return e.store.ActiveLicenseForUser(ctx, userID, e.now().UTC())
}

func verificationOutcome(code ResultCode) string {
	switch code {
	case CodeOK:
		return "ok"
	case CodeKillSwitchActive:
		return "kill_switch"
	case CodeInvalidKey:
		return "invalid_key"
	case CodeLicenseExpired:
		return "expired"
	case CodeLicenseRevoked:
		return "revoked"
	case CodeUserSuspended:
		return "user_suspended"
	case CodeHWIDMismatch:
		return "hwid_mismatch"
	default:
		return "error"
	}
}
