package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"keygate.io/internal/account"
	"keygate.io/internal/audit"
	"keygate.io/internal/license"
	"keygate.io/internal/release"
)

type verifyRequest struct {
	Key  string `json:"key"`
	HWID string `json:"hwid"`
}

type verifyResponse struct {
	license.Result
	EntitlementToken string     `json:"entitlement_token,omitempty"`
	TokenExpiresAt   *time.Time `json:"token_expires_at,omitempty"`
}

// handleVerify is the hot path: the desktop client calls it on every launch.
func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// hwid is optional: clients without a fingerprint still get a verdict,
	// and no binding happens.
	res, err := a.deps.Evaluator.Verify(r.Context(), req.Key, req.HWID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	resp := verifyResponse{Result: *res}
	if res.OK && a.deps.Signer != nil {
		token, exp, err := a.deps.Signer.Sign(res)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		resp.EntitlementToken = token
		resp.TokenExpiresAt = &exp
	}

	code := http.StatusOK
	if res.Code == license.CodeKillSwitchActive {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

type statusResponse struct {
	Active        bool   `json:"active"`
	Reason        string `json:"reason,omitempty"`
	LatestVersion string `json:"latest_version,omitempty"`
	DownloadURL   string `json:"download_url,omitempty"`
	Version       string `json:"version"`
}

// handleStatus reports service availability and the latest published build.
func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	state, err := a.deps.Gate.Current(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	resp := statusResponse{Active: !state.Enabled, Reason: state.Reason, Version: a.version}
	if a.deps.Releases != nil {
		latest, err := a.deps.Releases.LatestPublished(r.Context())
		switch {
		case errors.Is(err, release.ErrNoRelease):
		case err != nil:
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		default:
			resp.LatestVersion = latest.Version
			resp.DownloadURL = latest.DownloadURL
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type redeemRequest struct {
	Key string `json:"key"`
}

func (a *API) handleRedeem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req redeemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	lic, err := a.deps.Registry.Redeem(r.Context(), user.ID, req.Key)
	if err != nil {
		handleLicenseError(w, r, err)
		return
	}

	a.deps.Recorder.Record(r.Context(), audit.ActionRedeem, "license", lic.ID, map[string]any{
		"license_key_id": lic.LicenseKeyID,
	})
	writeJSON(w, http.StatusCreated, lic)
}

type hwidResetRequest struct {
	LicenseID string `json:"license_id"`
}

// handleHWIDReset clears a license's device binding so the next Verify
// rebinds. Admin-only.
func (a *API) handleHWIDReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := requireRole(w, r, account.Role.CanManageKeys); !ok {
		return
	}
	var req hwidResetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.LicenseID) == "" {
		writeError(w, r, http.StatusBadRequest, "license_id is required")
		return
	}

	if err := a.deps.Licenses.ResetHWID(r.Context(), req.LicenseID); err != nil {
		handleLicenseError(w, r, err)
		return
	}
	a.deps.Recorder.Record(r.Context(), audit.ActionHWIDReset, "license", req.LicenseID, nil)
	writeJSON(w, http.StatusOK, map[string]any{"license_id": req.LicenseID, "hwid": ""})
}
