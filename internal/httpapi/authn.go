package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"keygate.io/internal/account"
	"keygate.io/internal/session"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// Paths a desktop client or probe hits without a session.
var publicPaths = []string{
	"/v1/verify",
	"/v1/status",
	"/v1/session",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth resolves the session bearer token to a user and attaches it to the
// request context. Public paths pass through untouched.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a.deps.Sessions == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		user, err := a.deps.Sessions.Validate(r.Context(), token)
		if err != nil {
			if errors.Is(err, session.ErrNotAuthenticated) {
				writeError(w, r, http.StatusUnauthorized, "not authenticated")
			} else {
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := account.ContextWithUser(r.Context(), user)
		ctx = sessionTokenContext(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireUser returns the authenticated user or writes a 401.
func requireUser(w http.ResponseWriter, r *http.Request) (*account.User, bool) {
	user, ok := account.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "not authenticated")
		return nil, false
	}
	return user, true
}

// requireRole returns the authenticated user when the capability check
// passes, otherwise writes 401/403.
func requireRole(w http.ResponseWriter, r *http.Request, allowed func(account.Role) bool) (*account.User, bool) {
	user, ok := requireUser(w, r)
	if !ok {
		return nil, false
	}
	if !allowed(user.Role) {
		writeError(w, r, http.StatusForbidden, "insufficient role")
		return nil, false
	}
	return user, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
