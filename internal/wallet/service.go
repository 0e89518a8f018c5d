package wallet

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/miniwallet/internal/apperr"
	"github.com/congo-pay/miniwallet/internal/clock"
	"github.com/congo-pay/miniwallet/internal/customer"
	"github.com/congo-pay/miniwallet/internal/ledger"
	"github.com/congo-pay/miniwallet/internal/metrics"
)

const (
	opEnable       = "enable"
	opDisable      = "disable"
	opView         = "view"
	opDeposit      = "deposit"
	opWithdraw     = "withdraw"
	opTransactions = "transactions"
)

// Service runs every wallet operation as one atomic unit holding the
// customer's wallet lock.
type Service struct {
	store   ledger.Store
	clock   clock.Clock
	metrics *metrics.Metrics
}

// NewService builds a wallet service. clk and m may be nil.
func NewService(store ledger.Store, clk clock.Clock, m *metrics.Metrics) *Service {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Service{store: store, clock: clk, metrics: m}
}

// EnableOrCreate creates the customer's wallet on first use, or re-enables a
// disabled one. Enabling an enabled wallet fails with already_enabled.
func (s *Service) EnableOrCreate(ctx context.Context, who customer.Identity) (Snapshot, error) {
	start := time.Now()
	var snap Snapshot
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		w, err := tx.LockWallet(ctx, who.ID)
		if err != nil && !errors.Is(err, ledger.ErrWalletNotFound) {
			return err
		}
		ctx = context.WithoutCancel(ctx)
		now := s.clock.Now()

		switch {
		case err != nil:
			w, err = tx.CreateWallet(ctx, ledger.Wallet{
				XID:        uuid.NewString(),
				CustomerID: who.ID,
				Status:     ledger.StatusEnabled,
				CreatedAt:  now,
			})
			if err != nil {
				return err
			}
		case w.Status == ledger.StatusEnabled:
			return apperr.New(apperr.KindAlreadyEnabled, w.XID, "already enabled")
		default:
			if err := tx.SetStatus(ctx, w.ID, ledger.StatusEnabled, now); err != nil {
				return err
			}
			w.Status = ledger.StatusEnabled
		}

		change, err := tx.AppendStatusChange(ctx, ledger.StatusChange{WalletID: w.ID, Status: ledger.StatusEnabled, CreatedAt: now})
		if err != nil {
			return err
		}
		snap = snapshot(who, w, change.CreatedAt)
		return nil
	})
	err = classify(err, who.XID)
	s.observe(opEnable, start, err)
	return snap, err
}

// Disable moves an enabled wallet to disabled.
func (s *Service) Disable(ctx context.Context, who customer.Identity) (Snapshot, error) {
	start := time.Now()
	var snap Snapshot
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		w, err := tx.LockWallet(ctx, who.ID)
		if err != nil {
			return err
		}
		ctx = context.WithoutCancel(ctx)

		if w.Status == ledger.StatusDisabled {
			return apperr.New(apperr.KindAlreadyDisabled, w.XID, "already disabled")
		}
		now := s.clock.Now()
		if err := tx.SetStatus(ctx, w.ID, ledger.StatusDisabled, now); err != nil {
			return err
		}
		w.Status = ledger.StatusDisabled

		change, err := tx.AppendStatusChange(ctx, ledger.StatusChange{WalletID: w.ID, Status: ledger.StatusDisabled, CreatedAt: now})
		if err != nil {
			return err
		}
		snap = snapshot(who, w, change.CreatedAt)
		return nil
	})
	err = classify(err, who.XID)
	s.observe(opDisable, start, err)
	return snap, err
}

// View returns the balance of an enabled wallet. It takes the wallet lock
// like a mutation does so it never reads a half-applied balance.
func (s *Service) View(ctx context.Context, who customer.Identity) (Snapshot, error) {
	start := time.Now()
	var snap Snapshot
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		w, err := lockEnabled(ctx, tx, who)
		if err != nil {
			return err
		}
		change, err := tx.LastStatusChange(ctx, w.ID)
		if err != nil {
			return err
		}
		snap = snapshot(who, w, change.CreatedAt)
		return nil
	})
	err = classify(err, who.XID)
	s.observe(opView, start, err)
	return snap, err
}

// Transactions lists the committed balance changes of an enabled wallet in
// creation order.
func (s *Service) Transactions(ctx context.Context, who customer.Identity) ([]Transaction, error) {
	start := time.Now()
	var out []Transaction
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		w, err := lockEnabled(ctx, tx, who)
		if err != nil {
			return err
		}
		changes, err := tx.BalanceChanges(ctx, w.ID)
		if err != nil {
			return err
		}
		out = make([]Transaction, 0, len(changes))
		for _, c := range changes {
			out = append(out, transaction(who, w, c))
		}
		return nil
	})
	err = classify(err, who.XID)
	s.observe(opTransactions, start, err)
	return out, err
}

// Deposit credits amount minor units to the customer's wallet.
func (s *Service) Deposit(ctx context.Context, who customer.Identity, amount int64, referenceID string) (Transaction, error) {
	return s.mutate(ctx, opDeposit, ledger.ChangeDeposit, who, amount, referenceID)
}

// Withdraw debits amount minor units from the customer's wallet.
func (s *Service) Withdraw(ctx context.Context, who customer.Identity, amount int64, referenceID string) (Transaction, error) {
	return s.mutate(ctx, opWithdraw, ledger.ChangeWithdrawal, who, amount, referenceID)
}

// mutate is lock, check, then write the new balance and its ledger entry in
// the same unit. A duplicate reference aborts the unit, which also discards
// the balance write.
func (s *Service) mutate(ctx context.Context, op, kind string, who customer.Identity, amount int64, referenceID string) (Transaction, error) {
	start := time.Now()
	referenceID = strings.TrimSpace(referenceID)

	var res Transaction
	err := validate(amount, referenceID)
	if err == nil {
		err = s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
			w, err := lockEnabled(ctx, tx, who)
			if err != nil {
				return err
			}
			ctx = context.WithoutCancel(ctx)

			var next int64
			switch kind {
			case ledger.ChangeDeposit:
				if amount > math.MaxInt64-w.Balance {
					return apperr.New(apperr.KindInvalidAmount, referenceID, "amount exceeds wallet capacity")
				}
				next = w.Balance + amount
			default:
				if amount > w.Balance {
					return apperr.New(apperr.KindInsufficientFunds, w.XID, "insufficient fund")
				}
				next = w.Balance - amount
			}

			now := s.clock.Now()
			if err := tx.SetBalance(ctx, w.ID, next, now); err != nil {
				return err
			}
			change, err := tx.AppendBalanceChange(ctx, ledger.BalanceChange{
				XID:         uuid.NewString(),
				WalletID:    w.ID,
				Amount:      amount,
				ReferenceID: referenceID,
				Type:        kind,
				CreatedAt:   now,
			})
			if err != nil {
				return err
			}
			res = transaction(who, w, change)
			return nil
		})
	}
	err = classify(err, referenceID)
	s.observe(op, start, err)
	return res, err
}

func validate(amount int64, referenceID string) error {
	if amount <= 0 {
		return apperr.New(apperr.KindInvalidAmount, referenceID, "amount must be positive")
	}
	if referenceID == "" {
		return apperr.New(apperr.KindInvalidRequest, "", "reference_id is required")
	}
	return nil
}

// lockEnabled takes the wallet lock and requires the wallet to be enabled.
func lockEnabled(ctx context.Context, tx ledger.Tx, who customer.Identity) (ledger.Wallet, error) {
	w, err := tx.LockWallet(ctx, who.ID)
	if err != nil {
		return ledger.Wallet{}, err
	}
	if w.Status != ledger.StatusEnabled {
		return ledger.Wallet{}, apperr.New(apperr.KindNotEnabled, w.XID, "wallet not enabled")
	}
	return w, nil
}

// classify turns store sentinels into taxonomy errors. Anything the store
// cannot explain is an infrastructure failure.
func classify(err error, subject string) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	switch {
	case errors.Is(err, ledger.ErrWalletNotFound):
		return apperr.New(apperr.KindNotFound, subject, "wallet not found")
	case errors.Is(err, ledger.ErrWalletExists):
		return apperr.New(apperr.KindAlreadyEnabled, subject, "already enabled")
	case errors.Is(err, ledger.ErrDuplicateReference):
		return apperr.New(apperr.KindDuplicateReference, subject, "duplicate reference_id")
	default:
		return apperr.Unavailable(err)
	}
}

func (s *Service) observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
	}
	s.metrics.ObserveOperation(op, outcome, time.Since(start))
}

func snapshot(who customer.Identity, w ledger.Wallet, changedAt time.Time) Snapshot {
	return Snapshot{
		XID:       w.XID,
		OwnerXID:  who.XID,
		Status:    w.Status,
		Balance:   w.Balance,
		ChangedAt: changedAt,
	}
}

func transaction(who customer.Identity, w ledger.Wallet, c ledger.BalanceChange) Transaction {
	return Transaction{
		XID:         c.XID,
		WalletXID:   w.XID,
		OwnerXID:    who.XID,
		Type:        c.Type,
		Status:      TransactionCompleted,
		Amount:      c.Amount,
		ReferenceID: c.ReferenceID,
		At:          c.CreatedAt,
	}
}
