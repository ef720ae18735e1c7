// Package release tracks published software releases; the entitlement
// evaluator reads the latest pointer, administrators publish new ones.
package release

import (
	"context"
	"errors"
	"time"
)

var ErrNoRelease = errors.New("release: no published release")

// Release is one downloadable build.
type Release struct {
	ID          string     `json:"id"`
	Version     string     `json:"version"`
	DownloadURL string     `json:"download_url"`
	Changelog   string     `json:"changelog,omitempty"`
	Published   bool       `json:"published"`
	Latest      bool       `json:"latest"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedBy   string     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Store persists releases.
type Store interface {
	Create(ctx context.Context, r *Release) error
	// LatestPublished returns the release flagged latest+published, or
	// ErrNoRelease.
	LatestPublished(ctx context.Context) (*Release, error)
	// SetPublished flips publication; publishing also marks the release as
	// the latest and clears the flag elsewhere.
	SetPublished(ctx context.Context, id string, published bool, now time.Time) error
}
