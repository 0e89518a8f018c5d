package customer

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound means no customer holds the token.
	ErrNotFound = errors.New("customer not found")
	// ErrExists means the external id (or token digest) is already taken.
	ErrExists = errors.New("customer exists")
)

// Repository persists customers.
type Repository interface {
	Create(ctx context.Context, c Customer) (Customer, error)
	FindByTokenDigest(ctx context.Context, digest []byte) (Customer, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed customer repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new customer and returns it with its internal id.
func (r *PostgresRepository) Create(ctx context.Context, c Customer) (Customer, error) {
	xid, err := uuid.Parse(c.XID)
	if err != nil {
		return Customer{}, err
	}
	err = r.db.QueryRow(ctx, `INSERT INTO customers (xid, token_digest, created_at)
        VALUES ($1, $2, $3) RETURNING id`, xid, c.TokenDigest, c.CreatedAt.UTC()).Scan(&c.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Customer{}, ErrExists
		}
		return Customer{}, err
	}
	return c, nil
}

// FindByTokenDigest fetches the customer owning a token.
func (r *PostgresRepository) FindByTokenDigest(ctx context.Context, digest []byte) (Customer, error) {
	row := r.db.QueryRow(ctx, `SELECT id, xid, token_digest, created_at FROM customers WHERE token_digest = $1`, digest)
	var (
		c   Customer
		xid uuid.UUID
	)
	if err := row.Scan(&c.ID, &xid, &c.TokenDigest, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrNotFound
		}
		return Customer{}, err
	}
	c.XID = xid.String()
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}
