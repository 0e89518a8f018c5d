package wallet

import (
    "context"
    "fmt"
    "os"
    "sync"
    "testing"
    "time"

    "github.com/google/uuid"

    "github.com/congo-pay/miniwallet/internal/apperr"
    "github.com/congo-pay/miniwallet/internal/customer"
    "github.com/congo-pay/miniwallet/internal/infra"
    "github.com/congo-pay/miniwallet/internal/ledger"
)

// Runs against a real database only when MINIWALLET_TEST_DATABASE_URL is set.
func TestPostgresConcurrentMutations(t *testing.T) {
    url := os.Getenv("MINIWALLET_TEST_DATABASE_URL")
    if url == "" {
        t.Skip("MINIWALLET_TEST_DATABASE_URL not set")
    }
    ctx := context.Background()
    pool, err := infra.NewPostgresPool(ctx, url, 20)
    if err != nil {
        t.Fatalf("connect: %v", err)
    }
    defer pool.Close()
    if err := infra.Migrate(pool); err != nil {
        t.Fatalf("migrate: %v", err)
    }

    customers := customer.NewService(customer.NewPostgresRepository(pool), nil)
    token, err := customers.Initialize(ctx, uuid.NewString())
    if err != nil {
        t.Fatalf("initialize: %v", err)
    }
    who, err := customers.Resolve(ctx, token)
    if err != nil {
        t.Fatalf("resolve: %v", err)
    }

    svc := NewService(ledger.NewPostgresLedger(pool, 5*time.Second), nil, nil)

    var wg sync.WaitGroup
    var mu sync.Mutex
    created := 0
    for i := 0; i < 5; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            if _, err := svc.EnableOrCreate(ctx, who); err == nil {
                mu.Lock()
                created++
                mu.Unlock()
            } else if !apperr.Is(err, apperr.KindAlreadyEnabled) {
                t.Errorf("enable: %v", err)
            }
        }()
    }
    wg.Wait()
    if created != 1 {
        t.Fatalf("expected exactly one enable to succeed, got %d", created)
    }

    prefix := uuid.NewString()
    const workers = 20
    for i := 0; i < workers; i++ {
        wg.Add(1)
        go func(i int) {
            defer wg.Done()
            // Every reference is submitted twice; only one of each may apply.
            ref := fmt.Sprintf("%s-%d", prefix, i/2)
            if _, err := svc.Deposit(ctx, who, 100, ref); err != nil && !apperr.Is(err, apperr.KindDuplicateReference) {
                t.Errorf("deposit: %v", err)
            }
        }(i)
    }
    wg.Wait()

    snap, err := svc.View(ctx, who)
    if err != nil {
        t.Fatalf("view: %v", err)
    }
    if snap.Balance != workers/2*100 {
        t.Fatalf("expected balance %d, got %d", workers/2*100, snap.Balance)
    }

    txs, err := svc.Transactions(ctx, who)
    if err != nil {
        t.Fatalf("transactions: %v", err)
    }
    var sum int64
    for _, tx := range txs {
        sum += tx.Amount
    }
    if len(txs) != workers/2 || sum != snap.Balance {
        t.Fatalf("ledger does not fold to balance: %d entries summing to %d", len(txs), sum)
    }
}
