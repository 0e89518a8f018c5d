package customer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/congo-pay/miniwallet/internal/apperr"
	"github.com/congo-pay/miniwallet/internal/clock"
)

// tokenBytes yields a 42 character hex token.
const tokenBytes = 21

// Resolver maps an opaque token to the customer identity.
type Resolver interface {
	Resolve(ctx context.Context, token string) (Identity, error)
}

// Service manages customer initialization and token resolution.
type Service struct {
	repo  Repository
	clock clock.Clock
}

// NewService creates a customer service. A nil clock uses the system clock.
func NewService(repo Repository, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Service{repo: repo, clock: clk}
}

// Initialize registers a customer by external id and returns its token.
func (s *Service) Initialize(ctx context.Context, externalID string) (string, error) {
	xid, err := uuid.Parse(strings.TrimSpace(externalID))
	if err != nil {
		return "", apperr.New(apperr.KindInvalidRequest, externalID, "customer_xid must be a UUID")
	}

	token, err := newToken()
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "token generation failed", err)
	}

	_, err = s.repo.Create(ctx, Customer{
		XID:         xid.String(),
		TokenDigest: Digest(token),
		CreatedAt:   s.clock.Now(),
	})
	if err != nil {
		if errors.Is(err, ErrExists) {
			return "", apperr.New(apperr.KindAlreadyInitialized, xid.String(), "already initialized")
		}
		return "", apperr.Unavailable(err)
	}
	return token, nil
}

// Resolve looks up the customer owning token.
func (s *Service) Resolve(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, apperr.New(apperr.KindUnauthorized, "", "missing token")
	}
	c, err := s.repo.FindByTokenDigest(ctx, Digest(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, apperr.New(apperr.KindUnauthorized, "", "incorrect token")
		}
		return Identity{}, apperr.Unavailable(err)
	}
	return c.Identity(), nil
}

// Digest is the at-rest form of a token.
func Digest(token string) []byte {
	sum := blake2b.Sum256([]byte(token))
	return sum[:]
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
