package customer

import (
    "context"
    "encoding/hex"
    "sync"
)

type memoryRepository struct {
    mu       sync.RWMutex
    seq      int64
    byDigest map[string]Customer
    byXID    map[string]struct{}
}

// NewMemoryRepository builds an in-memory customer store for testing.
func NewMemoryRepository() Repository {
    return &memoryRepository{byDigest: make(map[string]Customer), byXID: make(map[string]struct{})}
}

func (r *memoryRepository) Create(_ context.Context, c Customer) (Customer, error) {
    r.mu.Lock()
    defer r.mu.Unlock()
    key := hex.EncodeToString(c.TokenDigest)
    if _, exists := r.byXID[c.XID]; exists {
        return Customer{}, ErrExists
    }
    if _, exists := r.byDigest[key]; exists {
        return Customer{}, ErrExists
    }
    r.seq++
    c.ID = r.seq
    r.byDigest[key] = c
    r.byXID[c.XID] = struct{}{}
    return c, nil
}

func (r *memoryRepository) FindByTokenDigest(_ context.Context, digest []byte) (Customer, error) {
    r.mu.RLock()
    defer r.mu.RUnlock()
    c, ok := r.byDigest[hex.EncodeToString(digest)]
    if !ok {
        return Customer{}, ErrNotFound
    }
    return c, nil
}
