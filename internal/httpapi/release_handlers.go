package httpapi

import (
	"net/http"
	"strings"
	"time"

	"keygate.io/internal/account"
	"keygate.io/internal/audit"
	"keygate.io/internal/ids"
	"keygate.io/internal/release"
)

type createReleaseRequest struct {
	Version     string `json:"version"`
	DownloadURL string `json:"download_url"`
	Changelog   string `json:"changelog"`
}

func (a *API) handleReleasesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createRelease(w, r)
	case http.MethodGet:
		a.latestRelease(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) createRelease(w http.ResponseWriter, r *http.Request) {
	user, ok := requireRole(w, r, account.Role.CanManageReleases)
	if !ok {
		return
	}
	var req createReleaseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Version) == "" || strings.TrimSpace(req.DownloadURL) == "" {
		writeError(w, r, http.StatusBadRequest, "version and download_url are required")
		return
	}

	rel := &release.Release{
		ID:          ids.New(),
		Version:     strings.TrimSpace(req.Version),
		DownloadURL: strings.TrimSpace(req.DownloadURL),
		Changelog:   req.Changelog,
		CreatedBy:   user.ID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := a.deps.Releases.Create(r.Context(), rel); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Location", "/v1/releases/"+rel.ID)
	writeJSON(w, http.StatusCreated, rel)
}

func (a *API) latestRelease(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	latest, err := a.deps.Releases.LatestPublished(r.Context())
	if err != nil {
		handleReleaseError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

func (a *API) handleReleaseResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/releases/")
	id, action, ok := strings.Cut(path, "/")
	if !ok || id == "" || action != "publish" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := requireRole(w, r, account.Role.CanManageReleases); !ok {
		return
	}
	if err := a.deps.Releases.SetPublished(r.Context(), id, true, time.Now().UTC()); err != nil {
		handleReleaseError(w, r, err)
		return
	}
	a.deps.Recorder.Record(r.Context(), audit.ActionReleasePublish, "release", id, nil)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "published": true})
}
