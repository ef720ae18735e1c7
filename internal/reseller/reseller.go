// Package reseller implements reseller wallets as a small signed-entry
// ledger: a balance is always the sum of its transaction amounts.
package reseller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"keygate.io/internal/license"
)

var (
	ErrResellerNotFound    = errors.New("reseller: not found")
	ErrResellerExists      = errors.New("reseller: profile already exists for user")
	ErrInvalidAmount       = errors.New("reseller: amount must be positive")
	ErrInsufficientBalance = errors.New("reseller: insufficient balance")
)

// InsufficientInventoryError reports a purchase that asked for more matching
// AVAILABLE keys than exist.
type InsufficientInventoryError struct {
	Requested int
	Available int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("reseller: insufficient inventory: requested %d, available %d", e.Requested, e.Available)
}

// TxType is the kind of a wallet transaction. Amounts are stored signed:
// DEPOSIT and upward ADJUSTMENTs are positive, PURCHASE and downward
// ADJUSTMENTs are negative.
type TxType string

const (
	TxDeposit    TxType = "DEPOSIT"
	TxPurchase   TxType = "PURCHASE"
	TxAdjustment TxType = "ADJUSTMENT"
)

// Reseller is a wallet holder. Monetary fields are integer cents.
type Reseller struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	Name              string    `json:"name"`
	BalanceCents      int64     `json:"balance_cents"`
	TotalDepositCents int64     `json:"total_deposit_cents"`
	TotalSpentCents   int64     `json:"total_spent_cents"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// WalletTransaction is one signed ledger entry.
type WalletTransaction struct {
	ID           string    `json:"id"`
	ResellerID   string    `json:"reseller_id"`
	Type         TxType    `json:"type"`
	AmountCents  int64     `json:"amount_cents"`
	BalanceAfter int64     `json:"balance_after_cents"`
	Description  string    `json:"description,omitempty"`
	ActorID      string    `json:"actor_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// PurchaseReceipt summarizes one completed purchase.
type PurchaseReceipt struct {
	Transaction WalletTransaction    `json:"transaction"`
	Keys        []license.LicenseKey `json:"keys"`
	Reseller    Reseller             `json:"reseller"`
}

// Store persists resellers and their wallet entries. Deposit, Purchase and
// Adjust are each one atomic unit: the balance mutation and the ledger entry
// commit together or not at all.
type Store interface {
	CreateReseller(ctx context.Context, r *Reseller) error
	FindReseller(ctx context.Context, id string) (*Reseller, error)
	FindResellerByUser(ctx context.Context, userID string) (*Reseller, error)
	ListResellers(ctx context.Context) ([]Reseller, error)

	// Deposit credits the wallet and appends a positive DEPOSIT entry.
	Deposit(ctx context.Context, resellerID string, amountCents int64, actorID, description string, now time.Time) (*WalletTransaction, error)

	// Adjust applies a signed correction. The resulting balance must not go
	// negative (ErrInsufficientBalance).
	Adjust(ctx context.Context, resellerID string, amountCents int64, actorID, description string, now time.Time) (*WalletTransaction, error)

	// Purchase atomically debits the wallet by the cost of quantity keys
	// matching selector and flips those keys AVAILABLE -> ASSIGNED to the
	// reseller. Fails whole with ErrInsufficientBalance or
	// *InsufficientInventoryError.
	Purchase(ctx context.Context, resellerID string, selector license.KeySelector, quantity int, now time.Time) (*PurchaseReceipt, error)

	// Transactions returns the wallet ledger, newest first.
	Transactions(ctx context.Context, resellerID string, limit int) ([]WalletTransaction, error)
}
