package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"keygate.io/internal/ids"
	"keygate.io/internal/license"
)

type licenseStore struct {
	db *sql.DB
}

func (s *licenseStore) CreateKey(ctx context.Context, key *license.LicenseKey) error {
	_, err := s.db.ExecContext(ctx, `
		insert into license_keys(id, key, duration_days, price_cents, product_type, status, reseller_id, created_by, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,nullif($7,''),nullif($8,''),$9,$10)
	`, key.ID, key.Key, key.DurationDays, key.PriceCents, string(key.ProductType), string(key.Status), key.ResellerID, key.CreatedBy, key.CreatedAt, key.UpdatedAt)
	if isUniqueViolation(err) {
		return license.ErrDuplicateKey
	}
	return err
}

const keyColumns = `id, key, duration_days, price_cents, product_type, status, coalesce(reseller_id,''), coalesce(created_by,''), created_at, updated_at`

func scanKey(row interface{ Scan(...any) error }) (*license.LicenseKey, error) {
	var k license.LicenseKey
	var productType, status string
	err := row.Scan(&k.ID, &k.Key, &k.DurationDays, &k.PriceCents, &productType, &status, &k.ResellerID, &k.CreatedBy, &k.CreatedAt, &k.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, license.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	k.ProductType = license.ProductType(productType)
	k.Status = license.KeyStatus(status)
	return &k, nil
}

func (s *licenseStore) FindKey(ctx context.Context, id string) (*license.LicenseKey, error) {
	return scanKey(s.db.QueryRowContext(ctx, `select `+keyColumns+` from license_keys where id=$1`, id))
}

func (s *licenseStore) FindKeyByString(ctx context.Context, keyString string) (*license.LicenseKey, error) {
	return scanKey(s.db.QueryRowContext(ctx, `select `+keyColumns+` from license_keys where key=$1`, keyString))
}

func (s *licenseStore) RevokeKey(ctx context.Context, id string) error {
	// The status predicate makes the transition a compare-and-swap.
	res, err := s.db.ExecContext(ctx, `
		update license_keys set status='REVOKED', updated_at=now()
		where id=$1 and status='AVAILABLE'
	`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `select true from license_keys where id=$1`, id).Scan(&exists); errors.Is(err, sql.ErrNoRows) {
		return license.ErrKeyNotFound
	} else if err != nil {
		return err
	}
	return license.ErrInvalidState
}

func (s *licenseStore) Redeem(ctx context.Context, userID, keyString string, now time.Time) (*license.License, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	key, err := scanKey(tx.QueryRowContext(ctx, `select `+keyColumns+` from license_keys where key=$1 for update`, keyString))
	if err != nil {
		return nil, err
	}
	switch key.Status {
	case license.KeyRevoked:
		return nil, license.ErrKeyRevoked
	case license.KeyRedeemed:
		return nil, license.ErrAlreadyUsed
	}

	var held bool
	err = tx.QueryRowContext(ctx, `
		select true from licenses
		where user_id=$1 and status='ACTIVE' and expires_at > $2
		limit 1
	`, userID, now).Scan(&held)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if held {
		return nil, license.ErrAlreadyLicensed
	}

	if _, err := tx.ExecContext(ctx, `
		update license_keys set status='REDEEMED', updated_at=$2 where id=$1
	`, key.ID, now); err != nil {
		return nil, err
	}

	lic := &license.License{
		ID:           ids.New(),
		UserID:       userID,
		LicenseKeyID: key.ID,
		Status:       license.StatusActive,
		ActivatedAt:  now,
		ExpiresAt:    now.Add(time.Duration(key.DurationDays) * 24 * time.Hour),
	}
	_, err = tx.ExecContext(ctx, `
		insert into licenses(id, user_id, license_key_id, status, activated_at, expires_at)
		values ($1,$2,$3,$4,$5,$6)
	`, lic.ID, lic.UserID, lic.LicenseKeyID, string(lic.Status), lic.ActivatedAt, lic.ExpiresAt)
	if isUniqueViolation(err) {
		// Backstop for the one-license-per-key constraint.
		return nil, license.ErrAlreadyUsed
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return lic, nil
}

func (s *licenseStore) Verification(ctx context.Context, keyString string) (*license.Verification, error) {
	var v license.Verification
	var productType, keyStatus, licStatus string
	var hwid sql.NullString
	var lastUsed sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		select k.id, k.key, k.duration_days, k.price_cents, k.product_type, k.status,
		       coalesce(k.reseller_id,''), coalesce(k.created_by,''), k.created_at, k.updated_at,
		       l.id, l.user_id, l.license_key_id, l.status, l.activated_at, l.expires_at, l.hwid, l.last_used_at,
		       u.active, u.username
		from license_keys k
		join licenses l on l.license_key_id = k.id
		join users u on u.id = l.user_id
		where k.key=$1
	`, keyString).Scan(
		&v.Key.ID, &v.Key.Key, &v.Key.DurationDays, &v.Key.PriceCents, &productType, &keyStatus,
		&v.Key.ResellerID, &v.Key.CreatedBy, &v.Key.CreatedAt, &v.Key.UpdatedAt,
		&v.License.ID, &v.License.UserID, &v.License.LicenseKeyID, &licStatus, &v.License.ActivatedAt, &v.License.ExpiresAt, &hwid, &lastUsed,
		&v.UserActive, &v.Username,
	)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish an unknown key from an unredeemed one.
		var exists bool
		kerr := s.db.QueryRowContext(ctx, `select true from license_keys where key=$1`, keyString).Scan(&exists)
		if errors.Is(kerr, sql.ErrNoRows) {
			return nil, license.ErrKeyNotFound
		}
		if kerr != nil {
			return nil, kerr
		}
		return nil, license.ErrLicenseNotFound
	}
	if err != nil {
		return nil, err
	}
	v.Key.ProductType = license.ProductType(productType)
	v.Key.Status = license.KeyStatus(keyStatus)
	v.License.Status = license.Status(licStatus)
	if hwid.Valid {
		v.License.HWID = hwid.String
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		v.License.LastUsedAt = &t
	}
	return &v, nil
}

func (s *licenseStore) MarkLicenseExpired(ctx context.Context, licenseID string) error {
	res, err := s.db.ExecContext(ctx, `
		update licenses set status='EXPIRED' where id=$1 and status='ACTIVE'
	`, licenseID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `select true from licenses where id=$1`, licenseID).Scan(&exists); errors.Is(err, sql.ErrNoRows) {
		return license.ErrLicenseNotFound
	} else if err != nil {
		return err
	}
	// Already EXPIRED or REVOKED; expiry is idempotent.
	return nil
}

func (s *licenseStore) BindHWID(ctx context.Context, licenseID, hwid string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update licenses set hwid=$2, last_used_at=$3 where id=$1 and hwid is null
	`, licenseID, hwid, now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `select true from licenses where id=$1`, licenseID).Scan(&exists); errors.Is(err, sql.ErrNoRows) {
		return license.ErrLicenseNotFound
	} else if err != nil {
		return err
	}
	return license.ErrInvalidState
}

func (s *licenseStore) TouchLicense(ctx context.Context, licenseID string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update licenses set last_used_at=$2 where id=$1
	`, licenseID, now)
	if err != nil {
		return err
	}
	return noneMeansNotFound(res, license.ErrLicenseNotFound)
}

func (s *licenseStore) ActiveLicenseForUser(ctx context.Context, userID string, now time.Time) (*license.License, error) {
	var lic license.License
	var status string
	var hwid sql.NullString
	var lastUsed sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, license_key_id, status, activated_at, expires_at, hwid, last_used_at
		from licenses
		where user_id=$1 and status='ACTIVE' and expires_at > $2
		order by expires_at desc
		limit 1
	`, userID, now).Scan(&lic.ID, &lic.UserID, &lic.LicenseKeyID, &status, &lic.ActivatedAt, &lic.ExpiresAt, &hwid, &lastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, license.ErrLicenseNotFound
	}
	if err != nil {
		return nil, err
	}
	lic.Status = license.Status(status)
	if hwid.Valid {
		lic.HWID = hwid.String
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		lic.LastUsedAt = &t
	}
	return &lic, nil
}

func (s *licenseStore) ResetHWID(ctx context.Context, licenseID string) error {
	res, err := s.db.ExecContext(ctx, `
		update licenses set hwid=null where id=$1
	`, licenseID)
	if err != nil {
		return err
	}
	return noneMeansNotFound(res, license.ErrLicenseNotFound)
}
