package reseller

import (
	"context"
	"strings"
	"time"

	"keygate.io/internal/ids"
	"keygate.io/internal/license"
	"keygate.io/internal/obs"
)

// Ledger is the wallet service. It validates inputs and delegates the atomic
// balance/ledger mutations to the store.
type Ledger struct {
	store Store
	now   func() time.Time
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithLedgerClock overrides the time source (tests).
func WithLedgerClock(fn func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewLedger constructs a Ledger.
func NewLedger(store Store, opts ...LedgerOption) *Ledger {
	l := &Ledger{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Register creates a reseller profile for a user.
func (l *Ledger) Register(ctx context.Context, userID, name string) (*Reseller, error) {
	now := l.now().UTC()
	r := &Reseller{
		ID:        ids.New(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.store.CreateReseller(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns a reseller by id.
func (l *Ledger) Get(ctx context.Context, id string) (*Reseller, error) {
	return l.store.FindReseller(ctx, id)
}

// GetByUser returns the reseller profile owned by a user.
func (l *Ledger) GetByUser(ctx context.Context, userID string) (*Reseller, error) {
	return l.store.FindResellerByUser(ctx, userID)
}

// List returns all resellers.
func (l *Ledger) List(ctx context.Context) ([]Reseller, error) {
	return l.store.ListResellers(ctx)
}

// Deposit credits a wallet. The amount must be strictly positive.
func (l *Ledger) Deposit(ctx context.Context, resellerID string, amountCents int64, actorID, description string) (*WalletTransaction, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	tx, err := l.store.Deposit(ctx, resellerID, amountCents, actorID, description, l.now().UTC())
	if err != nil {
		return nil, err
	}
	obs.ObserveWalletTransaction(string(TxDeposit))
	return tx, nil
}

// Adjust applies a signed correction to a wallet. Zero is rejected; a
// negative adjustment may not take the balance below zero.
func (l *Ledger) Adjust(ctx context.Context, resellerID string, amountCents int64, actorID, description string) (*WalletTransaction, error) {
	if amountCents == 0 {
		return nil, ErrInvalidAmount
	}
	tx, err := l.store.Adjust(ctx, resellerID, amountCents, actorID, description, l.now().UTC())
	if err != nil {
		return nil, err
	}
	obs.ObserveWalletTransaction(string(TxAdjustment))
	return tx, nil
}

// Purchase buys quantity keys matching selector, debiting the wallet and
// assigning the keys to the reseller in one atomic store operation.
func (l *Ledger) Purchase(ctx context.Context, resellerID string, selector license.KeySelector, quantity int) (*PurchaseReceipt, error) {
	if quantity <= 0 {
		return nil, ErrInvalidAmount
	}
	if _, err := license.ParseProductType(string(selector.ProductType)); err != nil {
		return nil, err
	}
	receipt, err := l.store.Purchase(ctx, resellerID, selector, quantity, l.now().UTC())
	if err != nil {
		return nil, err
	}
	obs.ObserveWalletTransaction(string(TxPurchase))
	return receipt, nil
}

// Wallet returns a reseller together with its recent transactions.
func (l *Ledger) Wallet(ctx context.Context, resellerID string, limit int) (*Reseller, []WalletTransaction, error) {
	r, err := l.store.FindReseller(ctx, resellerID)
	if err != nil {
		return nil, nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	txs, err := l.store.Transactions(ctx, resellerID, limit)
	if err != nil {
		return nil, nil, err
	}
	return r, txs, nil
}
