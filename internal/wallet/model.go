package wallet

import "time"

// TransactionCompleted is the status of every committed balance change.
const TransactionCompleted = "completed"

// Snapshot is the externally visible state of a wallet. ChangedAt is the
// time of the most recent status change (enabled_at or disabled_at).
type Snapshot struct {
    XID       string
    OwnerXID  string
    Status    string
    Balance   int64
    ChangedAt time.Time
}

// Transaction is a committed deposit or withdrawal.
type Transaction struct {
    XID         string
    WalletXID   string
    OwnerXID    string
    Type        string
    Status      string
    Amount      int64
    ReferenceID string
    At          time.Time
}
