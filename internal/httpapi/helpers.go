package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"keygate.io/internal/license"
	"keygate.io/internal/release"
	"keygate.io/internal/reseller"
	"keygate.io/internal/session"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("limit out of range")
	}
	return val, nil
}

func handleLicenseError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, license.ErrInvalidArgument):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, license.ErrKeyNotFound), errors.Is(err, license.ErrLicenseNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, license.ErrAlreadyUsed), errors.Is(err, license.ErrKeyRevoked),
		errors.Is(err, license.ErrAlreadyLicensed), errors.Is(err, license.ErrInvalidState):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, license.ErrServiceDisabled):
		writeError(w, r, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func handleWalletError(w http.ResponseWriter, r *http.Request, err error) {
	var inv *reseller.InsufficientInventoryError
	switch {
	case errors.Is(err, reseller.ErrInvalidAmount):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, reseller.ErrResellerNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, reseller.ErrInsufficientBalance), errors.Is(err, reseller.ErrResellerExists):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.As(err, &inv):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func handleSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, session.ErrAccountDeactivated):
		writeError(w, r, http.StatusForbidden, "account deactivated")
	case errors.Is(err, session.ErrNotAuthenticated):
		writeError(w, r, http.StatusUnauthorized, "not authenticated")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func handleReleaseError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, release.ErrNoRelease) {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, r, http.StatusInternalServerError, "internal error")
}
