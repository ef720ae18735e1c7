package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"keygate.io/internal/license"
	"keygate.io/internal/reseller"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func keyRows(k license.LicenseKey) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "key", "duration_days", "price_cents", "product_type", "status", "reseller_id", "created_by", "created_at", "updated_at"}).
		AddRow(k.ID, k.Key, k.DurationDays, k.PriceCents, string(k.ProductType), string(k.Status), k.ResellerID, k.CreatedBy, k.CreatedAt, k.UpdatedAt)
}

func TestRevokeKeyTransitions(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()

	// Available key: the conditional update hits one row.
	mock.ExpectExec("update license_keys set status='REVOKED'").WithArgs("k1").WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Keys().RevokeKey(ctx, "k1"); err != nil {
		t.Fatalf("revoke available: %v", err)
	}

	// Redeemed key: zero rows updated but the key exists.
	mock.ExpectExec("update license_keys set status='REVOKED'").WithArgs("k2").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select true from license_keys").WithArgs("k2").WillReturnRows(sqlmock.NewRows([]string{"true"}).AddRow(true))
	if err := store.Keys().RevokeKey(ctx, "k2"); !errors.Is(err, license.ErrInvalidState) {
		t.Fatalf("revoke redeemed: got %v, want ErrInvalidState", err)
	}

	// Missing key.
	mock.ExpectExec("update license_keys set status='REVOKED'").WithArgs("k3").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select true from license_keys").WithArgs("k3").WillReturnError(sql.ErrNoRows)
	if err := store.Keys().RevokeKey(ctx, "k3"); !errors.Is(err, license.ErrKeyNotFound) {
		t.Fatalf("revoke missing: got %v, want ErrKeyNotFound", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRedeemCommitsKeyAndLicenseTogether(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	key := license.LicenseKey{ID: "k1", Key: "AAAA-BBBB-CCCC-DDDD", DurationDays: 30, PriceCents: 999, ProductType: license.ProductWindows, Status: license.KeyAvailable, CreatedAt: now, UpdatedAt: now}

	mock.ExpectBegin()
	mock.ExpectQuery("from license_keys where key=.* for update").WithArgs(key.Key).WillReturnRows(keyRows(key))
	mock.ExpectQuery("select true from licenses").WithArgs("u1", now).WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("update license_keys set status='REDEEMED'").WithArgs("k1", now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into licenses").WithArgs(sqlmock.AnyArg(), "u1", "k1", "ACTIVE", now, now.Add(30*24*time.Hour)).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	lic, err := store.Keys().Redeem(ctx, "u1", key.Key, now)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if lic.Status != license.StatusActive || lic.LicenseKeyID != "k1" {
		t.Fatalf("license = %+v", lic)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRedeemUsedKeyRollsBack(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()
	key := license.LicenseKey{ID: "k1", Key: "AAAA-BBBB-CCCC-DDDD", DurationDays: 30, ProductType: license.ProductWindows, Status: license.KeyRedeemed, CreatedAt: now, UpdatedAt: now}

	mock.ExpectBegin()
	mock.ExpectQuery("from license_keys where key=.* for update").WithArgs(key.Key).WillReturnRows(keyRows(key))
	mock.ExpectRollback()

	if _, err := store.Keys().Redeem(context.Background(), "u1", key.Key, now); !errors.Is(err, license.ErrAlreadyUsed) {
		t.Fatalf("got %v, want ErrAlreadyUsed", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestKillSwitchGetOrInitSeedsSingleton(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec("insert into kill_switch").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("select enabled, reason, enabled_at, enabled_by from kill_switch").
		WillReturnRows(sqlmock.NewRows([]string{"enabled", "reason", "enabled_at", "enabled_by"}).AddRow(false, nil, nil, nil))

	st, err := store.KillSwitch().GetOrInit(context.Background())
	if err != nil {
		t.Fatalf("get or init: %v", err)
	}
	if st.Enabled || st.Reason != "" || st.EnabledAt != nil {
		t.Fatalf("default state = %+v", st)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDepositUpdatesBalanceAndLedgerAtomically(t *testing.T) {
	store, mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	resellerRow := sqlmock.NewRows([]string{"id", "user_id", "name", "balance_cents", "total_deposit_cents", "total_spent_cents", "created_at", "updated_at"}).
		AddRow("r1", "u1", "ACME", int64(1000), int64(1000), int64(0), now, now)

	mock.ExpectBegin()
	mock.ExpectQuery("from resellers where id=.* for update").WithArgs("r1").WillReturnRows(resellerRow)
	mock.ExpectExec("update resellers").WithArgs("r1", int64(3500), int64(2500), now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into wallet_transactions").
		WithArgs(sqlmock.AnyArg(), "r1", "DEPOSIT", int64(2500), int64(3500), "top-up", "admin", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := store.Resellers().Deposit(context.Background(), "r1", 2500, "admin", "top-up", now)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if tx.BalanceAfter != 3500 || tx.Type != reseller.TxDeposit {
		t.Fatalf("transaction = %+v", tx)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
