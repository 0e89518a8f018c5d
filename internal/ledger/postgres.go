package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation   = "23505"
	lockNotAvailable  = "55P03"
	deadlockDetected  = "40P01"
	referenceIDKey    = "balance_changes_reference_id_key"
	walletCustomerKey = "wallets_customer_id_key"
)

// PostgresLedger keeps the ledger tables in PostgreSQL and serializes each
// wallet with a row lock held for the life of the unit.
type PostgresLedger struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPostgresLedger constructs a Postgres-backed ledger. A positive lockTimeout
// bounds how long a unit waits for a wallet row lock.
func NewPostgresLedger(db *pgxpool.Pool, lockTimeout time.Duration) *PostgresLedger {
	return &PostgresLedger{db: db, lockTimeout: lockTimeout}
}

// WithinTx runs fn in a read-committed transaction.
func (l *PostgresLedger) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(context.WithoutCancel(ctx)) // nolint:errcheck

	if l.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", l.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return translate(err)
	}
	return translate(tx.Commit(context.WithoutCancel(ctx)))
}

type pgTx struct {
	tx pgx.Tx
}

const walletColumns = `id, xid, customer_id, balance, status, created_at, updated_at`

func (t *pgTx) LockWallet(ctx context.Context, customerID int64) (Wallet, error) {
	// Lock the customer first so creation of a missing wallet is serialized
	// with every other unit for this customer.
	var id int64
	if err := t.tx.QueryRow(ctx, `SELECT id FROM customers WHERE id = $1 FOR UPDATE`, customerID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, translate(err)
	}

	row := t.tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE customer_id = $1 FOR UPDATE`, customerID)
	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, translate(err)
	}
	return w, nil
}

func (t *pgTx) CreateWallet(ctx context.Context, w Wallet) (Wallet, error) {
	xid, err := uuid.Parse(w.XID)
	if err != nil {
		return Wallet{}, err
	}
	if w.UpdatedAt.IsZero() {
		w.UpdatedAt = w.CreatedAt
	}
	row := t.tx.QueryRow(ctx, `INSERT INTO wallets (xid, customer_id, balance, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+walletColumns,
		xid, w.CustomerID, w.Balance, w.Status, w.CreatedAt.UTC(), w.UpdatedAt.UTC())
	created, err := scanWallet(row)
	if err != nil {
		return Wallet{}, translate(err)
	}
	return created, nil
}

func (t *pgTx) SetStatus(ctx context.Context, walletID int64, status string, at time.Time) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE wallets SET status = $1, updated_at = $2 WHERE id = $3`, status, at.UTC(), walletID)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrWalletNotFound
	}
	return nil
}

func (t *pgTx) SetBalance(ctx context.Context, walletID int64, balance int64, at time.Time) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE wallets SET balance = $1, updated_at = $2 WHERE id = $3`, balance, at.UTC(), walletID)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrWalletNotFound
	}
	return nil
}

func (t *pgTx) AppendStatusChange(ctx context.Context, change StatusChange) (StatusChange, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO status_changes (wallet_id, status, created_at)
        VALUES ($1, $2, $3) RETURNING id`, change.WalletID, change.Status, change.CreatedAt.UTC()).Scan(&change.ID)
	if err != nil {
		return StatusChange{}, translate(err)
	}
	return change, nil
}

func (t *pgTx) LastStatusChange(ctx context.Context, walletID int64) (StatusChange, error) {
	var c StatusChange
	err := t.tx.QueryRow(ctx, `SELECT id, wallet_id, status, created_at FROM status_changes
        WHERE wallet_id = $1 ORDER BY id DESC LIMIT 1`, walletID).Scan(&c.ID, &c.WalletID, &c.Status, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StatusChange{}, errNoStatusChange
		}
		return StatusChange{}, translate(err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

func (t *pgTx) AppendBalanceChange(ctx context.Context, change BalanceChange) (BalanceChange, error) {
	xid, err := uuid.Parse(change.XID)
	if err != nil {
		return BalanceChange{}, err
	}
	err = t.tx.QueryRow(ctx, `INSERT INTO balance_changes (xid, wallet_id, amount, reference_id, kind, created_at)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		xid, change.WalletID, change.Amount, change.ReferenceID, change.Type, change.CreatedAt.UTC()).Scan(&change.ID)
	if err != nil {
		return BalanceChange{}, translate(err)
	}
	return change, nil
}

func (t *pgTx) BalanceChanges(ctx context.Context, walletID int64) ([]BalanceChange, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, xid, wallet_id, amount, reference_id, kind, created_at
        FROM balance_changes WHERE wallet_id = $1 ORDER BY id`, walletID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []BalanceChange
	for rows.Next() {
		var (
			c   BalanceChange
			xid uuid.UUID
		)
		if err := rows.Scan(&c.ID, &xid, &c.WalletID, &c.Amount, &c.ReferenceID, &c.Type, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.XID = xid.String()
		c.CreatedAt = c.CreatedAt.UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w   Wallet
		xid uuid.UUID
	)
	if err := row.Scan(&w.ID, &xid, &w.CustomerID, &w.Balance, &w.Status, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return Wallet{}, err
	}
	w.XID = xid.String()
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}

// translate maps constraint and lock failures onto the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case uniqueViolation:
		switch pgErr.ConstraintName {
		case referenceIDKey:
			return ErrDuplicateReference
		case walletCustomerKey:
			return ErrWalletExists
		}
	case lockNotAvailable, deadlockDetected:
		return fmt.Errorf("%w: %s", ErrLockTimeout, pgErr.Message)
	}
	return err
}
