package httpapi

import (
	"net/http"
	"strings"

	"keygate.io/internal/account"
	"keygate.io/internal/audit"
	"keygate.io/internal/license"
)

type generateKeysRequest struct {
	Count        int    `json:"count"`
	DurationDays int    `json:"duration_days"`
	PriceCents   int64  `json:"price_cents"`
	ProductType  string `json:"product_type"`
}

type generateKeysResponse struct {
	Keys []license.LicenseKey `json:"keys"`
}

func (a *API) handleKeysCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.generateKeys(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost)
	}
}

func (a *API) generateKeys(w http.ResponseWriter, r *http.Request) {
	user, ok := requireRole(w, r, account.Role.CanManageKeys)
	if !ok {
		return
	}
	var req generateKeysRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	productType, err := license.ParseProductType(req.ProductType)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	keys, err := a.deps.Registry.GenerateKeys(r.Context(), req.Count, req.DurationDays, req.PriceCents, productType, user.ID)
	if err != nil {
		handleLicenseError(w, r, err)
		return
	}

	a.deps.Recorder.Record(r.Context(), audit.ActionKeyGenerate, "license_key", "", map[string]any{
		"count":         len(keys),
		"duration_days": req.DurationDays,
		"price_cents":   req.PriceCents,
		"product_type":  string(productType),
	})
	writeJSON(w, http.StatusCreated, generateKeysResponse{Keys: keys})
}

func (a *API) handleKeyResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/keys/")
	id, action, ok := strings.Cut(path, "/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if ok && action == "revoke" {
		a.revokeKey(w, r, id)
		return
	}
	writeError(w, r, http.StatusNotFound, "resource not found")
}

func (a *API) revokeKey(w http.ResponseWriter, r *http.Request, keyID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := requireRole(w, r, account.Role.CanManageKeys); !ok {
		return
	}
	if err := a.deps.Registry.Revoke(r.Context(), keyID); err != nil {
		handleLicenseError(w, r, err)
		return
	}
	a.deps.Recorder.Record(r.Context(), audit.ActionKeyRevoke, "license_key", keyID, nil)
	writeJSON(w, http.StatusOK, map[string]any{"id": keyID, "status": string(license.KeyRevoked)})
}
