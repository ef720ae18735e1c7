package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"keygate.io/internal/account"
	"keygate.io/internal/audit"
	"keygate.io/internal/ids"
)

type sessionTokenKey struct{}

func sessionTokenContext(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, sessionTokenKey{}, token)
}

func sessionTokenFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionTokenKey{}).(string); ok {
		return v
	}
	return ""
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type userResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Active   bool   `json:"active"`
}

func toUserResponse(u *account.User) userResponse {
	return userResponse{
		ID:       u.ID,
		Email:    u.Email,
		Username: u.Username,
		Role:     string(u.Role),
		Active:   u.Active,
	}
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.login(w, r)
	case http.MethodDelete:
		a.logout(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	token, user, err := a.deps.Sessions.Login(r.Context(), req.Email, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		handleSessionError(w, r, err)
		return
	}

	a.deps.Recorder.Record(r.Context(), audit.ActionLogin, "user", user.ID, nil)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: toUserResponse(user)})
}

// logout accepts the bearer token directly: /v1/session is a public path so
// an expired session can still be cleared without a 401.
func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}
	if err := a.deps.Sessions.Logout(r.Context(), token); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	a.deps.Recorder.Record(r.Context(), audit.ActionLogout, "session", "", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

type createUserRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createUser(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost)
	}
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireRole(w, r, account.Role.CanManageUsers)
	if !ok {
		return
	}

	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	username := strings.TrimSpace(req.Username)
	if email == "" || username == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email, username and password are required")
		return
	}
	role := account.RoleUser
	if req.Role != "" {
		parsed, err := account.ParseRole(req.Role)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role = parsed
	}
	// Only the owner may mint owners or admins.
	if (role == account.RoleOwner || role == account.RoleAdmin) && actor.Role != account.RoleOwner {
		writeError(w, r, http.StatusForbidden, "insufficient role")
		return
	}

	hash, err := account.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	now := time.Now().UTC()
	user := &account.User{
		ID:           ids.New(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.deps.Users.Create(r.Context(), user); err != nil {
		if errors.Is(err, account.ErrAlreadyExists) {
			writeError(w, r, http.StatusConflict, err.Error())
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Location", "/v1/users/"+user.ID)
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	id, action, ok := strings.Cut(path, "/")
	if !ok || id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	switch action {
	case "logout":
		a.forceLogout(w, r, id)
	case "suspend":
		a.setUserActive(w, r, id, false)
	case "activate":
		a.setUserActive(w, r, id, true)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// forceLogout revokes every session the user holds.
func (a *API) forceLogout(w http.ResponseWriter, r *http.Request, userID string) {
	if _, ok := requireRole(w, r, account.Role.CanManageUsers); !ok {
		return
	}
	if err := a.deps.Sessions.RevokeAll(r.Context(), userID); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	a.deps.Recorder.Record(r.Context(), audit.ActionLogoutAll, "user", userID, nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "sessions_revoked"})
}

func (a *API) setUserActive(w http.ResponseWriter, r *http.Request, userID string, active bool) {
	if _, ok := requireRole(w, r, account.Role.CanManageUsers); !ok {
		return
	}
	if err := a.deps.Users.SetActive(r.Context(), userID, active); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	action := audit.ActionUserActivate
	if !active {
		action = audit.ActionUserSuspend
		// A suspended user's sessions die with the account.
		if err := a.deps.Sessions.RevokeAll(r.Context(), userID); err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
	}
	a.deps.Recorder.Record(r.Context(), action, "user", userID, nil)
	writeJSON(w, http.StatusOK, map[string]any{"id": userID, "active": active})
}
