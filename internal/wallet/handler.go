package wallet

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/congo-pay/miniwallet/internal/apperr"
	"github.com/congo-pay/miniwallet/internal/customer"
	"github.com/congo-pay/miniwallet/internal/jsend"
	"github.com/congo-pay/miniwallet/internal/ledger"
	"github.com/congo-pay/miniwallet/internal/middleware"
	"github.com/congo-pay/miniwallet/internal/notification"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service  *Service
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewHandler builds a wallet HTTP handler. notifier may be nil.
func NewHandler(service *Service, notifier notification.Notifier, logger *slog.Logger) *Handler {
	return &Handler{service: service, notifier: notifier, logger: logger}
}

type mutationRequest struct {
	Amount      json.Number `json:"amount" form:"amount"`
	ReferenceID string      `json:"reference_id" form:"reference_id"`
}

type walletResponse struct {
	ID         string     `json:"id"`
	OwnedBy    string     `json:"owned_by"`
	Status     string     `json:"status"`
	EnabledAt  *time.Time `json:"enabled_at,omitempty"`
	DisabledAt *time.Time `json:"disabled_at,omitempty"`
	Balance    int64      `json:"balance"`
}

type depositResponse struct {
	ID          string    `json:"id"`
	WalletID    string    `json:"wallet_id"`
	DepositedBy string    `json:"deposited_by"`
	Status      string    `json:"status"`
	DepositedAt time.Time `json:"deposited_at"`
	Amount      int64     `json:"amount"`
	ReferenceID string    `json:"reference_id"`
}

type withdrawalResponse struct {
	ID          string    `json:"id"`
	WalletID    string    `json:"wallet_id"`
	WithdrawnBy string    `json:"withdrawn_by"`
	Status      string    `json:"status"`
	WithdrawnAt time.Time `json:"withdrawn_at"`
	Amount      int64     `json:"amount"`
	ReferenceID string    `json:"reference_id"`
}

type transactionResponse struct {
	ID           string    `json:"id"`
	WalletID     string    `json:"wallet_id"`
	Type         string    `json:"type"`
	Status       string    `json:"status"`
	TransactedAt time.Time `json:"transacted_at"`
	Amount       int64     `json:"amount"`
	ReferenceID  string    `json:"reference_id"`
}

// Enable creates or re-enables the caller's wallet.
func (h *Handler) Enable(c *fiber.Ctx) error {
	who, ok := middleware.Customer(c)
	if !ok {
		return jsend.Render(c, errUnresolved)
	}
	snap, err := h.service.EnableOrCreate(c.UserContext(), who)
	if err != nil {
		return jsend.Render(c, err)
	}
	h.notify(c, notification.Message{Kind: notification.KindWalletEnabled, Destination: who.XID, WalletID: snap.XID})
	return jsend.Success(c, http.StatusCreated, fiber.Map{"wallet": toWallet(snap)})
}

// Disable disables the caller's wallet. The body must carry is_disabled=true.
func (h *Handler) Disable(c *fiber.Ctx) error {
	who, ok := middleware.Customer(c)
	if !ok {
		return jsend.Render(c, errUnresolved)
	}
	if !isDisabledRequested(c) {
		return jsend.Render(c, apperr.New(apperr.KindInvalidRequest, "", "is_disabled must be true"))
	}
	snap, err := h.service.Disable(c.UserContext(), who)
	if err != nil {
		return jsend.Render(c, err)
	}
	h.notify(c, notification.Message{Kind: notification.KindWalletDisabled, Destination: who.XID, WalletID: snap.XID})
	return jsend.Success(c, http.StatusOK, fiber.Map{"wallet": toWallet(snap)})
}

// View returns the caller's enabled wallet.
func (h *Handler) View(c *fiber.Ctx) error {
	who, ok := middleware.Customer(c)
	if !ok {
		return jsend.Render(c, errUnresolved)
	}
	snap, err := h.service.View(c.UserContext(), who)
	if err != nil {
		return jsend.Render(c, err)
	}
	return jsend.Success(c, http.StatusOK, fiber.Map{"wallet": toWallet(snap)})
}

// Transactions lists the caller's deposits and withdrawals.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	who, ok := middleware.Customer(c)
	if !ok {
		return jsend.Render(c, errUnresolved)
	}
	txs, err := h.service.Transactions(c.UserContext(), who)
	if err != nil {
		return jsend.Render(c, err)
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, transactionResponse{
			ID:           t.XID,
			WalletID:     t.WalletXID,
			Type:         t.Type,
			Status:       t.Status,
			TransactedAt: t.At,
			Amount:       t.Amount,
			ReferenceID:  t.ReferenceID,
		})
	}
	return jsend.Success(c, http.StatusOK, fiber.Map{"transactions": out})
}

// Deposit credits the caller's wallet.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	who, amount, ref, err := h.mutationInput(c)
	if err != nil {
		return jsend.Render(c, err)
	}
	t, err := h.service.Deposit(c.UserContext(), who, amount, ref)
	if err != nil {
		return jsend.Render(c, err)
	}
	h.notify(c, notification.Message{Kind: notification.KindDeposit, Destination: who.XID, WalletID: t.WalletXID, Amount: t.Amount, ReferenceID: t.ReferenceID})
	return jsend.Success(c, http.StatusCreated, fiber.Map{"deposit": depositResponse{
		ID:          t.XID,
		WalletID:    t.WalletXID,
		DepositedBy: t.OwnerXID,
		Status:      t.Status,
		DepositedAt: t.At,
		Amount:      t.Amount,
		ReferenceID: t.ReferenceID,
	}})
}

// Withdraw debits the caller's wallet.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	who, amount, ref, err := h.mutationInput(c)
	if err != nil {
		return jsend.Render(c, err)
	}
	t, err := h.service.Withdraw(c.UserContext(), who, amount, ref)
	if err != nil {
		return jsend.Render(c, err)
	}
	h.notify(c, notification.Message{Kind: notification.KindWithdrawal, Destination: who.XID, WalletID: t.WalletXID, Amount: t.Amount, ReferenceID: t.ReferenceID})
	return jsend.Success(c, http.StatusCreated, fiber.Map{"withdrawal": withdrawalResponse{
		ID:          t.XID,
		WalletID:    t.WalletXID,
		WithdrawnBy: t.OwnerXID,
		Status:      t.Status,
		WithdrawnAt: t.At,
		Amount:      t.Amount,
		ReferenceID: t.ReferenceID,
	}})
}

var errUnresolved = apperr.New(apperr.KindUnauthorized, "", "missing token")

func (h *Handler) mutationInput(c *fiber.Ctx) (customer.Identity, int64, string, error) {
	who, ok := middleware.Customer(c)
	if !ok {
		return customer.Identity{}, 0, "", errUnresolved
	}
	var req mutationRequest
	if err := c.BodyParser(&req); err != nil {
		return customer.Identity{}, 0, "", apperr.Wrap(apperr.KindInvalidRequest, "invalid request body", err)
	}
	amount, err := parseAmount(req.Amount.String())
	if err != nil {
		return customer.Identity{}, 0, "", err
	}
	// BodyParser strings alias the request buffer; the ledger keeps the reference.
	return who, amount, utils.CopyString(req.ReferenceID), nil
}

// parseAmount accepts whole minor units only. Numeric text that is not an
// integer (1.5, 1e3) is an invalid amount; anything else is a malformed request.
func parseAmount(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, apperr.New(apperr.KindInvalidRequest, "", "amount is required")
	}
	amount, err := strconv.ParseInt(raw, 10, 64)
	if err == nil {
		return amount, nil
	}
	if _, ferr := strconv.ParseFloat(raw, 64); ferr == nil {
		return 0, apperr.New(apperr.KindInvalidAmount, raw, "amount must be a whole number of minor units")
	}
	return 0, apperr.New(apperr.KindInvalidRequest, raw, "amount must be an integer")
}

func isDisabledRequested(c *fiber.Ctx) bool {
	if c.Is("json") {
		var req struct {
			IsDisabled any `json:"is_disabled"`
		}
		if err := c.BodyParser(&req); err != nil {
			return false
		}
		switch v := req.IsDisabled.(type) {
		case bool:
			return v
		case string:
			b, err := strconv.ParseBool(v)
			return err == nil && b
		}
		return false
	}
	b, err := strconv.ParseBool(c.FormValue("is_disabled"))
	return err == nil && b
}

// notify runs after commit; a failed notification never changes the response.
func (h *Handler) notify(c *fiber.Ctx, msg notification.Message) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.Send(c.UserContext(), msg); err != nil && h.logger != nil {
		h.logger.Warn("wallet notification failed", slog.String("kind", msg.Kind), slog.String("wallet_id", msg.WalletID), slog.Any("error", err))
	}
}

func toWallet(s Snapshot) walletResponse {
	at := s.ChangedAt
	resp := walletResponse{ID: s.XID, OwnedBy: s.OwnerXID, Status: s.Status, Balance: s.Balance}
	if s.Status == ledger.StatusDisabled {
		resp.DisabledAt = &at
	} else {
		resp.EnabledAt = &at
	}
	return resp
}
