package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func createWallet(t *testing.T, l Store, customerID int64) Wallet {
	t.Helper()
	var created Wallet
	err := l.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		if _, err := tx.LockWallet(ctx, customerID); !errors.Is(err, ErrWalletNotFound) {
			return fmt.Errorf("expected missing wallet, got %v", err)
		}
		w, err := tx.CreateWallet(ctx, Wallet{XID: uuid.NewString(), CustomerID: customerID, Status: StatusEnabled, CreatedAt: time.Now().UTC()})
		if err != nil {
			return err
		}
		created = w
		_, err = tx.AppendStatusChange(ctx, StatusChange{WalletID: w.ID, Status: StatusEnabled, CreatedAt: w.CreatedAt})
		return err
	})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	return created
}

func deposit(l Store, customerID int64, ref string, amount int64) error {
	return l.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		w, err := tx.LockWallet(ctx, customerID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := tx.SetBalance(ctx, w.ID, w.Balance+amount, now); err != nil {
			return err
		}
		_, err = tx.AppendBalanceChange(ctx, BalanceChange{XID: uuid.NewString(), WalletID: w.ID, Amount: amount, ReferenceID: ref, Type: ChangeDeposit, CreatedAt: now})
		return err
	})
}

func TestInMemoryLedger_CommitAppliesBalanceAndEntry(t *testing.T) {
	l := NewInMemory()
	w := createWallet(t, l, 1)

	if err := deposit(l, 1, "r1", 1_500); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	committed, ok := CommittedWallet(l, 1)
	if !ok {
		t.Fatal("expected committed wallet")
	}
	if committed.Balance != 1_500 {
		t.Fatalf("expected balance 1500, got %d", committed.Balance)
	}
	changes, statuses := CommittedChanges(l, w.ID)
	if len(changes) != 1 || Fold(changes) != committed.Balance {
		t.Fatalf("expected one change folding to balance, got %+v", changes)
	}
	if len(statuses) != 1 || statuses[0].Status != StatusEnabled {
		t.Fatalf("expected initial enabled status change, got %+v", statuses)
	}
}

func TestInMemoryLedger_RollbackDiscardsStagedWrites(t *testing.T) {
	l := NewInMemory()
	w := createWallet(t, l, 1)

	boom := errors.New("boom")
	err := l.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		locked, err := tx.LockWallet(ctx, 1)
		if err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, locked.ID, 9_000, time.Now()); err != nil {
			return err
		}
		if _, err := tx.AppendBalanceChange(ctx, BalanceChange{XID: uuid.NewString(), WalletID: locked.ID, Amount: 9_000, ReferenceID: "lost", Type: ChangeDeposit}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	committed, _ := CommittedWallet(l, 1)
	if committed.Balance != 0 {
		t.Fatalf("expected balance untouched, got %d", committed.Balance)
	}
	if changes, _ := CommittedChanges(l, w.ID); len(changes) != 0 {
		t.Fatalf("expected no committed changes, got %+v", changes)
	}

	// The reference was never committed, so it is still usable.
	if err := deposit(l, 1, "lost", 100); err != nil {
		t.Fatalf("reuse rolled back reference: %v", err)
	}
}

func TestInMemoryLedger_DuplicateReference(t *testing.T) {
	l := NewInMemory()
	createWallet(t, l, 1)
	createWallet(t, l, 2)

	if err := deposit(l, 1, "dup", 500); err != nil {
		t.Fatalf("initial deposit failed: %v", err)
	}
	if err := deposit(l, 1, "dup", 500); !errors.Is(err, ErrDuplicateReference) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if err := deposit(l, 2, "dup", 500); !errors.Is(err, ErrDuplicateReference) {
		t.Fatalf("expected duplicate error across wallets, got %v", err)
	}

	w, _ := CommittedWallet(l, 1)
	if w.Balance != 500 {
		t.Fatalf("expected balance 500, got %d", w.Balance)
	}
	other, _ := CommittedWallet(l, 2)
	if other.Balance != 0 {
		t.Fatalf("expected failed duplicate to leave balance untouched, got %d", other.Balance)
	}
}

func TestInMemoryLedger_ConcurrentDepositsAreSerialized(t *testing.T) {
	l := NewInMemory()
	w := createWallet(t, l, 1)

	const workers = 50
	const amount = int64(500)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := deposit(l, 1, fmt.Sprintf("tx-%d", i), amount); err != nil {
				t.Errorf("deposit %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	committed, _ := CommittedWallet(l, 1)
	if committed.Balance != workers*amount {
		t.Fatalf("lost update: expected %d, got %d", workers*amount, committed.Balance)
	}
	changes, _ := CommittedChanges(l, w.ID)
	if Fold(changes) != committed.Balance {
		t.Fatalf("balance %d does not match fold %d", committed.Balance, Fold(changes))
	}
}

func TestInMemoryLedger_LockWaitHonoursContextAndTimeout(t *testing.T) {
	l := NewInMemory(WithLockTimeout(50 * time.Millisecond))
	createWallet(t, l, 1)

	holding := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- l.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
			if _, err := tx.LockWallet(ctx, 1); err != nil {
				return err
			}
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	err := l.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		_, err := tx.LockWallet(ctx, 1)
		return err
	})
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected lock timeout, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.WithinTx(ctx, func(ctx context.Context, tx Tx) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("holder: %v", err)
	}

	// Lock is released after the holder commits.
	if err := deposit(l, 1, "after", 1); err != nil {
		t.Fatalf("deposit after release: %v", err)
	}
}

func TestInMemoryLedger_MutationRequiresLock(t *testing.T) {
	l := NewInMemory()
	w := createWallet(t, l, 1)

	err := l.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.SetBalance(ctx, w.ID, 10, time.Now())
	})
	if !errors.Is(err, ErrNotLocked) {
		t.Fatalf("expected not locked, got %v", err)
	}

	err = l.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		locked, err := tx.LockWallet(ctx, 1)
		if err != nil {
			return err
		}
		return tx.SetBalance(ctx, locked.ID, -1, time.Now())
	})
	if err == nil {
		t.Fatal("expected negative balance to be rejected")
	}
}

func TestInMemoryLedger_LockTimeoutOption(t *testing.T) {
	if got := NewInMemory().(*inMemoryLedger).lockTimeout; got != defaultMemoryLockTimeout {
		t.Fatalf("expected default %v, got %v", defaultMemoryLockTimeout, got)
	}
	if got := NewInMemory(WithLockTimeout(0)).(*inMemoryLedger).lockTimeout; got != defaultMemoryLockTimeout {
		t.Fatalf("expected non-positive timeout to keep default, got %v", got)
	}
	if got := NewInMemory(WithLockTimeout(250 * time.Millisecond)).(*inMemoryLedger).lockTimeout; got != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %v", got)
	}
}
