package ledger

import (
	"context"
	"errors"
	"sync"
	"time"
)

const defaultMemoryLockTimeout = 5 * time.Second

var (
	errNegativeBalance = errors.New("wallet balance must not be negative")
	errNonPositive     = errors.New("balance change amount must be positive")
	errNoStatusChange  = errors.New("wallet has no status change")
	errTxClosed        = errors.New("transaction already closed")
)

// inMemoryLedger keeps every table in maps. Each customer gets a one-slot
// channel acting as its wallet lock, so it only serializes callers within a
// single process.
type inMemoryLedger struct {
	lockTimeout time.Duration

	mu             sync.Mutex
	locks          map[int64]chan struct{}
	wallets        map[int64]Wallet
	balanceChanges map[int64][]BalanceChange
	statusChanges  map[int64][]StatusChange
	references     map[string]struct{}
	seq            int64
}

// Option configures the in-memory ledger.
type Option func(*inMemoryLedger)

// WithLockTimeout bounds how long a unit waits for a wallet lock. Non-positive
// values keep the default.
func WithLockTimeout(d time.Duration) Option {
	return func(l *inMemoryLedger) {
		if d > 0 {
			l.lockTimeout = d
		}
	}
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests
// and local development.
func NewInMemory(opts ...Option) Store {
	l := &inMemoryLedger{
		lockTimeout:    defaultMemoryLockTimeout,
		locks:          make(map[int64]chan struct{}),
		wallets:        make(map[int64]Wallet),
		balanceChanges: make(map[int64][]BalanceChange),
		statusChanges:  make(map[int64][]StatusChange),
		references:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *inMemoryLedger) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{
		ledger:  l,
		held:    make(map[int64]chan struct{}),
		wallets: make(map[int64]Wallet),
		owners:  make(map[int64]int64),
		refs:    make(map[string]struct{}),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

func (l *inMemoryLedger) lockFor(customerID int64) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[customerID]
	if !ok {
		lock = make(chan struct{}, 1)
		l.locks[customerID] = lock
	}
	return lock
}

func (l *inMemoryLedger) nextID() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	return l.seq
}

// memTx stages every write and applies them in commit. Rolling back is
// dropping the staged state.
type memTx struct {
	ledger *inMemoryLedger
	closed bool

	held    map[int64]chan struct{}
	wallets map[int64]Wallet
	owners  map[int64]int64

	balanceChanges []BalanceChange
	statusChanges  []StatusChange
	refs           map[string]struct{}
}

func (t *memTx) LockWallet(ctx context.Context, customerID int64) (Wallet, error) {
	if t.closed {
		return Wallet{}, errTxClosed
	}
	if _, ok := t.held[customerID]; !ok {
		lock := t.ledger.lockFor(customerID)
		timer := time.NewTimer(t.ledger.lockTimeout)
		defer timer.Stop()
		select {
		case lock <- struct{}{}:
		case <-ctx.Done():
			return Wallet{}, ctx.Err()
		case <-timer.C:
			return Wallet{}, ErrLockTimeout
		}
		t.held[customerID] = lock
	}

	if w, ok := t.wallets[customerID]; ok {
		return w, nil
	}

	t.ledger.mu.Lock()
	w, ok := t.ledger.wallets[customerID]
	t.ledger.mu.Unlock()
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	t.wallets[customerID] = w
	t.owners[w.ID] = customerID
	return w, nil
}

func (t *memTx) CreateWallet(_ context.Context, w Wallet) (Wallet, error) {
	if t.closed {
		return Wallet{}, errTxClosed
	}
	if _, ok := t.held[w.CustomerID]; !ok {
		return Wallet{}, ErrNotLocked
	}
	if _, ok := t.wallets[w.CustomerID]; ok {
		return Wallet{}, ErrWalletExists
	}
	if w.Balance < 0 {
		return Wallet{}, errNegativeBalance
	}
	w.ID = t.ledger.nextID()
	if w.UpdatedAt.IsZero() {
		w.UpdatedAt = w.CreatedAt
	}
	t.wallets[w.CustomerID] = w
	t.owners[w.ID] = w.CustomerID
	return w, nil
}

func (t *memTx) locked(walletID int64) (int64, error) {
	if t.closed {
		return 0, errTxClosed
	}
	customerID, ok := t.owners[walletID]
	if !ok {
		return 0, ErrNotLocked
	}
	return customerID, nil
}

func (t *memTx) SetStatus(_ context.Context, walletID int64, status string, at time.Time) error {
	customerID, err := t.locked(walletID)
	if err != nil {
		return err
	}
	w := t.wallets[customerID]
	w.Status = status
	w.UpdatedAt = at
	t.wallets[customerID] = w
	return nil
}

func (t *memTx) SetBalance(_ context.Context, walletID int64, balance int64, at time.Time) error {
	customerID, err := t.locked(walletID)
	if err != nil {
		return err
	}
	if balance < 0 {
		return errNegativeBalance
	}
	w := t.wallets[customerID]
	w.Balance = balance
	w.UpdatedAt = at
	t.wallets[customerID] = w
	return nil
}

func (t *memTx) AppendStatusChange(_ context.Context, change StatusChange) (StatusChange, error) {
	if _, err := t.locked(change.WalletID); err != nil {
		return StatusChange{}, err
	}
	change.ID = t.ledger.nextID()
	t.statusChanges = append(t.statusChanges, change)
	return change, nil
}

func (t *memTx) LastStatusChange(_ context.Context, walletID int64) (StatusChange, error) {
	if _, err := t.locked(walletID); err != nil {
		return StatusChange{}, err
	}
	for i := len(t.statusChanges) - 1; i >= 0; i-- {
		if t.statusChanges[i].WalletID == walletID {
			return t.statusChanges[i], nil
		}
	}
	t.ledger.mu.Lock()
	defer t.ledger.mu.Unlock()
	committed := t.ledger.statusChanges[walletID]
	if len(committed) == 0 {
		return StatusChange{}, errNoStatusChange
	}
	return committed[len(committed)-1], nil
}

func (t *memTx) AppendBalanceChange(_ context.Context, change BalanceChange) (BalanceChange, error) {
	if _, err := t.locked(change.WalletID); err != nil {
		return BalanceChange{}, err
	}
	if change.Amount <= 0 {
		return BalanceChange{}, errNonPositive
	}
	if _, ok := t.refs[change.ReferenceID]; ok {
		return BalanceChange{}, ErrDuplicateReference
	}
	t.ledger.mu.Lock()
	_, taken := t.ledger.references[change.ReferenceID]
	t.ledger.mu.Unlock()
	if taken {
		return BalanceChange{}, ErrDuplicateReference
	}

	change.ID = t.ledger.nextID()
	t.refs[change.ReferenceID] = struct{}{}
	t.balanceChanges = append(t.balanceChanges, change)
	return change, nil
}

func (t *memTx) BalanceChanges(_ context.Context, walletID int64) ([]BalanceChange, error) {
	if _, err := t.locked(walletID); err != nil {
		return nil, err
	}
	t.ledger.mu.Lock()
	out := append([]BalanceChange(nil), t.ledger.balanceChanges[walletID]...)
	t.ledger.mu.Unlock()
	for _, c := range t.balanceChanges {
		if c.WalletID == walletID {
			out = append(out, c)
		}
	}
	return out, nil
}

// commit applies the staged state. Reference ids are checked again under the
// ledger mutex because a unit on another wallet may have committed the same
// reference after AppendBalanceChange ran.
func (t *memTx) commit() error {
	if t.closed {
		return errTxClosed
	}
	l := t.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	for ref := range t.refs {
		if _, taken := l.references[ref]; taken {
			return ErrDuplicateReference
		}
	}

	for customerID, w := range t.wallets {
		l.wallets[customerID] = w
	}
	for _, c := range t.balanceChanges {
		l.balanceChanges[c.WalletID] = append(l.balanceChanges[c.WalletID], c)
		l.references[c.ReferenceID] = struct{}{}
	}
	for _, c := range t.statusChanges {
		l.statusChanges[c.WalletID] = append(l.statusChanges[c.WalletID], c)
	}
	return nil
}

func (t *memTx) release() {
	t.closed = true
	for customerID, lock := range t.held {
		<-lock
		delete(t.held, customerID)
	}
}
