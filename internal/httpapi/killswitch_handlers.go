package httpapi

import (
	"net/http"
	"strings"

	"keygate.io/internal/account"
	"keygate.io/internal/audit"
)

func (a *API) handleKillSwitch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := requireRole(w, r, account.Role.CanAccessKillSwitch); !ok {
		return
	}
	state, err := a.deps.Gate.Current(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type killSwitchEnableRequest struct {
	Reason string `json:"reason"`
}

func (a *API) handleKillSwitchEnable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, ok := requireRole(w, r, account.Role.CanAccessKillSwitch)
	if !ok {
		return
	}
	var req killSwitchEnableRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		writeError(w, r, http.StatusBadRequest, "reason is required")
		return
	}

	state, err := a.deps.Gate.Enable(r.Context(), user.ID, reason)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	a.deps.Recorder.Record(r.Context(), audit.ActionKillSwitchEnable, "kill_switch", "", map[string]any{
		"reason": reason,
	})
	writeJSON(w, http.StatusOK, state)
}

func (a *API) handleKillSwitchDisable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, ok := requireRole(w, r, account.Role.CanAccessKillSwitch)
	if !ok {
		return
	}
	state, err := a.deps.Gate.Disable(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	a.deps.Recorder.Record(r.Context(), audit.ActionKillSwitchDisable, "kill_switch", "", nil)
	writeJSON(w, http.StatusOK, state)
}
