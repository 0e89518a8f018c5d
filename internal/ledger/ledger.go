package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrWalletNotFound occurs when the customer has never enabled a wallet.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrWalletExists indicates a concurrent call already created the
	// customer's wallet.
	ErrWalletExists = errors.New("wallet already exists")

	// ErrDuplicateReference indicates a balance change with the same
	// reference id is already committed. The enclosing unit must abort.
	ErrDuplicateReference = errors.New("duplicate reference_id")

	// ErrLockTimeout is returned when the wallet lock could not be acquired
	// in time. The unit made no changes and may be retried.
	ErrLockTimeout = errors.New("wallet lock wait timed out")

	// ErrNotLocked guards against mutating a wallet the transaction does
	// not hold the lock for.
	ErrNotLocked = errors.New("wallet is not locked by this transaction")
)

const (
	StatusEnabled  = "enabled"
	StatusDisabled = "disabled"

	ChangeDeposit    = "deposit"
	ChangeWithdrawal = "withdrawal"
)

// Wallet is the wallet row. Balance is the materialized fold of its
// balance changes, in minor units.
type Wallet struct {
	ID         int64
	XID        string
	CustomerID int64
	Balance    int64
	Status     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// BalanceChange is an append-only ledger entry.
type BalanceChange struct {
	ID          int64
	XID         string
	WalletID    int64
	Amount      int64
	ReferenceID string
	Type        string
	CreatedAt   time.Time
}

// Signed returns the entry's effect on the balance.
func (c BalanceChange) Signed() int64 {
	if c.Type == ChangeWithdrawal {
		return -c.Amount
	}
	return c.Amount
}

// StatusChange is an append-only audit entry, one per transition.
type StatusChange struct {
	ID        int64
	WalletID  int64
	Status    string
	CreatedAt time.Time
}

// Fold sums a sequence of balance changes.
func Fold(changes []BalanceChange) int64 {
	var total int64
	for _, c := range changes {
		total += c.Signed()
	}
	return total
}

// Store opens atomic units against the ledger tables.
type Store interface {
	// WithinTx runs fn inside one atomic unit. The unit commits when fn
	// returns nil and rolls back on any error or panic; in both cases every
	// lock taken through tx is released before WithinTx returns.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of primitives available inside an atomic unit. LockWallet
// must be called before any other operation on that wallet.
type Tx interface {
	// LockWallet takes the exclusive per-wallet lock for the customer and
	// returns the current row, or ErrWalletNotFound. When the wallet does
	// not exist the lock still covers the customer so CreateWallet in the
	// same unit cannot race another creator.
	LockWallet(ctx context.Context, customerID int64) (Wallet, error)
	CreateWallet(ctx context.Context, w Wallet) (Wallet, error)
	SetStatus(ctx context.Context, walletID int64, status string, at time.Time) error
	SetBalance(ctx context.Context, walletID int64, balance int64, at time.Time) error
	AppendStatusChange(ctx context.Context, change StatusChange) (StatusChange, error)
	LastStatusChange(ctx context.Context, walletID int64) (StatusChange, error)
	AppendBalanceChange(ctx context.Context, change BalanceChange) (BalanceChange, error)
	BalanceChanges(ctx context.Context, walletID int64) ([]BalanceChange, error)
}
