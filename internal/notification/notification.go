package notification

import (
    "context"
    "log/slog"
)

const (
    KindWalletEnabled  = "wallet_enabled"
    KindWalletDisabled = "wallet_disabled"
    KindDeposit        = "wallet_deposit"
    KindWithdrawal     = "wallet_withdrawal"
)

// Message describes a committed wallet event.
type Message struct {
    Kind        string
    Destination string // customer xid
    WalletID    string
    Amount      int64
    ReferenceID string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
    Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger.
type LoggerNotifier struct {
    logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
    return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
    if n == nil || n.logger == nil {
        return nil
    }
    attrs := []any{
        slog.String("kind", message.Kind),
        slog.String("destination", message.Destination),
        slog.String("wallet_id", message.WalletID),
    }
    if message.ReferenceID != "" {
        attrs = append(attrs, slog.Int64("amount", message.Amount), slog.String("reference_id", message.ReferenceID))
    }
    n.logger.Info("notification", attrs...)
    return nil
}
