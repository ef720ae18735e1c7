package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"keygate.io/internal/ids"
	"keygate.io/internal/license"
	"keygate.io/internal/reseller"
)

type resellerStore struct {
	db *sql.DB
}

const resellerColumns = `id, user_id, name, balance_cents, total_deposit_cents, total_spent_cents, created_at, updated_at`

func scanReseller(row interface{ Scan(...any) error }) (*reseller.Reseller, error) {
	var r reseller.Reseller
	err := row.Scan(&r.ID, &r.UserID, &r.Name, &r.BalanceCents, &r.TotalDepositCents, &r.TotalSpentCents, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, reseller.ErrResellerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *resellerStore) CreateReseller(ctx context.Context, r *reseller.Reseller) error {
	_, err := s.db.ExecContext(ctx, `
		insert into resellers(id, user_id, name, balance_cents, total_deposit_cents, total_spent_cents, created_at, updated_at)
		values ($1,$2,$3,0,0,0,$4,$4)
	`, r.ID, r.UserID, r.Name, r.CreatedAt)
	if isUniqueViolation(err) {
		return reseller.ErrResellerExists
	}
	return err
}

func (s *resellerStore) FindReseller(ctx context.Context, id string) (*reseller.Reseller, error) {
	return scanReseller(s.db.QueryRowContext(ctx, `select `+resellerColumns+` from resellers where id=$1`, id))
}

func (s *resellerStore) FindResellerByUser(ctx context.Context, userID string) (*reseller.Reseller, error) {
	return scanReseller(s.db.QueryRowContext(ctx, `select `+resellerColumns+` from resellers where user_id=$1`, userID))
}

func (s *resellerStore) ListResellers(ctx context.Context) ([]reseller.Reseller, error) {
	rows, err := s.db.QueryContext(ctx, `select `+resellerColumns+` from resellers order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reseller.Reseller
	for rows.Next() {
		r, err := scanReseller(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *resellerStore) Deposit(ctx context.Context, resellerID string, amountCents int64, actorID, description string, now time.Time) (*reseller.WalletTransaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	r, err := scanReseller(tx.QueryRowContext(ctx, `select `+resellerColumns+` from resellers where id=$1 for update`, resellerID))
	if err != nil {
		return nil, err
	}
	newBalance := r.BalanceCents + amountCents
	if _, err := tx.ExecContext(ctx, `
		update resellers
		set balance_cents=$2, total_deposit_cents=total_deposit_cents+$3, updated_at=$4
		where id=$1
	`, resellerID, newBalance, amountCents, now); err != nil {
		return nil, err
	}
	wtx, err := insertWalletTx(ctx, tx, resellerID, reseller.TxDeposit, amountCents, newBalance, actorID, description, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return wtx, nil
}

func (s *resellerStore) Adjust(ctx context.Context, resellerID string, amountCents int64, actorID, description string, now time.Time) (*reseller.WalletTransaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	r, err := scanReseller(tx.QueryRowContext(ctx, `select `+resellerColumns+` from resellers where id=$1 for update`, resellerID))
	if err != nil {
		return nil, err
	}
	newBalance := r.BalanceCents + amountCents
	if newBalance < 0 {
		return nil, reseller.ErrInsufficientBalance
	}
	if _, err := tx.ExecContext(ctx, `
		update resellers set balance_cents=$2, updated_at=$3 where id=$1
	`, resellerID, newBalance, now); err != nil {
		return nil, err
	}
	wtx, err := insertWalletTx(ctx, tx, resellerID, reseller.TxAdjustment, amountCents, newBalance, actorID, description, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return wtx, nil
}

func (s *resellerStore) Purchase(ctx context.Context, resellerID string, selector license.KeySelector, quantity int, now time.Time) (*reseller.PurchaseReceipt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	r, err := scanReseller(tx.QueryRowContext(ctx, `select `+resellerColumns+` from resellers where id=$1 for update`, resellerID))
	if err != nil {
		return nil, err
	}

	// skip locked keeps concurrent purchases from queueing on the same rows.
	rows, err := tx.QueryContext(ctx, `
		select `+keyColumns+` from license_keys
		where status='AVAILABLE' and product_type=$1 and duration_days=$2 and price_cents=$3
		order by created_at, id
		limit $4
		for update skip locked
	`, string(selector.ProductType), selector.DurationDays, selector.PriceCents, quantity)
	if err != nil {
		return nil, err
	}
	var keys []license.LicenseKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		keys = append(keys, *k)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(keys) < quantity {
		return nil, &reseller.InsufficientInventoryError{Requested: quantity, Available: len(keys)}
	}

	cost := selector.PriceCents * int64(quantity)
	if r.BalanceCents < cost {
		return nil, reseller.ErrInsufficientBalance
	}
	newBalance := r.BalanceCents - cost
	if _, err := tx.ExecContext(ctx, `
		update resellers
		set balance_cents=$2, total_spent_cents=total_spent_cents+$3, updated_at=$4
		where id=$1
	`, resellerID, newBalance, cost, now); err != nil {
		return nil, err
	}
	wtx, err := insertWalletTx(ctx, tx, resellerID, reseller.TxPurchase, -cost, newBalance, r.UserID, "", now)
	if err != nil {
		return nil, err
	}

	for i := range keys {
		if _, err := tx.ExecContext(ctx, `
			update license_keys set status='ASSIGNED', reseller_id=$2, updated_at=$3 where id=$1
		`, keys[i].ID, resellerID, now); err != nil {
			return nil, err
		}
		keys[i].Status = license.KeyAssigned
		keys[i].ResellerID = resellerID
		keys[i].UpdatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	r.BalanceCents = newBalance
	r.TotalSpentCents += cost
	r.UpdatedAt = now
	return &reseller.PurchaseReceipt{Transaction: *wtx, Keys: keys, Reseller: *r}, nil
}

func (s *resellerStore) Transactions(ctx context.Context, resellerID string, limit int) ([]reseller.WalletTransaction, error) {
	if _, err := s.FindReseller(ctx, resellerID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, reseller_id, type, amount_cents, balance_after_cents, coalesce(description,''), coalesce(actor_id,''), created_at
		from wallet_transactions
		where reseller_id=$1
		order by created_at desc, id desc
		limit $2
	`, resellerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reseller.WalletTransaction
	for rows.Next() {
		var t reseller.WalletTransaction
		var typ string
		if err := rows.Scan(&t.ID, &t.ResellerID, &typ, &t.AmountCents, &t.BalanceAfter, &t.Description, &t.ActorID, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = reseller.TxType(typ)
		out = append(out, t)
	}
	return out, rows.Err()
}

func insertWalletTx(ctx context.Context, tx *sql.Tx, resellerID string, typ reseller.TxType, amountCents, balanceAfter int64, actorID, description string, now time.Time) (*reseller.WalletTransaction, error) {
	wtx := &reseller.WalletTransaction{
		ID:           ids.New(),
		ResellerID:   resellerID,
		Type:         typ,
		AmountCents:  amountCents,
		BalanceAfter: balanceAfter,
		Description:  description,
		ActorID:      actorID,
		CreatedAt:    now,
	}
	_, err := tx.ExecContext(ctx, `
		insert into wallet_transactions(id, reseller_id, type, amount_cents, balance_after_cents, description, actor_id, created_at)
		values ($1,$2,$3,$4,$5,nullif($6,''),nullif($7,''),$8)
	`, wtx.ID, wtx.ResellerID, string(wtx.Type), wtx.AmountCents, wtx.BalanceAfter, wtx.Description, wtx.ActorID, wtx.CreatedAt)
	if err != nil {
		return nil, err
	}
	return wtx, nil
}
