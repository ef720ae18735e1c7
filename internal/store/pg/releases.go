package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"keygate.io/internal/release"
)

type releaseStore struct {
	db *sql.DB
}

func (s *releaseStore) Create(ctx context.Context, r *release.Release) error {
	_, err := s.db.ExecContext(ctx, `
		insert into releases(id, version, download_url, changelog, published, latest, published_at, created_by, created_at)
		values ($1,$2,$3,nullif($4,''),$5,$6,$7,nullif($8,''),$9)
	`, r.ID, r.Version, r.DownloadURL, r.Changelog, r.Published, r.Latest, r.PublishedAt, r.CreatedBy, r.CreatedAt)
	return err
}

func (s *releaseStore) LatestPublished(ctx context.Context) (*release.Release, error) {
	var r release.Release
	var changelog, createdBy sql.NullString
	var publishedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		select id, version, download_url, changelog, published, latest, published_at, created_by, created_at
		from releases where published and latest
	`).Scan(&r.ID, &r.Version, &r.DownloadURL, &changelog, &r.Published, &r.Latest, &publishedAt, &createdBy, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, release.ErrNoRelease
	}
	if err != nil {
		return nil, err
	}
	if changelog.Valid {
		r.Changelog = changelog.String
	}
	if createdBy.Valid {
		r.CreatedBy = createdBy.String
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		r.PublishedAt = &t
	}
	return &r, nil
}

func (s *releaseStore) SetPublished(ctx context.Context, id string, published bool, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if published {
		if _, err := tx.ExecContext(ctx, `update releases set latest=false where latest`); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			update releases set published=true, latest=true, published_at=$2 where id=$1
		`, id, now)
		if err != nil {
			return err
		}
		if err := noneMeansNotFound(res, release.ErrNoRelease); err != nil {
			return err
		}
	} else {
		res, err := tx.ExecContext(ctx, `
			update releases set published=false, latest=false where id=$1
		`, id)
		if err != nil {
			return err
		}
		if err := noneMeansNotFound(res, release.ErrNoRelease); err != nil {
			return err
		}
	}
	return tx.Commit()
}
