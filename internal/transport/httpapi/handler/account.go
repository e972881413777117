package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Jay-S9/backend-foundation/internal/ledger"
	"github.com/Jay-S9/backend-foundation/pkg/logger"
	"github.com/Jay-S9/backend-foundation/pkg/money"
)

// IdempotencyKeyHeader may carry the key when the body does not.
const IdempotencyKeyHeader = "Idempotency-Key"

// maxBodyBytes bounds request payloads.
const maxBodyBytes = 1 << 16

// LedgerService defines the ledger operations exposed over HTTP
type LedgerService interface {
	CreateAccount(ctx context.Context, accountID string, initialBalance decimal.Decimal) (ledger.Account, error)
	GetAccount(ctx context.Context, accountID string) (ledger.Account, error)
	Deposit(ctx context.Context, accountID string, amount decimal.Decimal, idempotencyKey string) (ledger.Account, error)
	Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, idempotencyKey string) (ledger.Account, error)
	Freeze(ctx context.Context, accountID string) (ledger.Account, error)
	Unfreeze(ctx context.Context, accountID string) (ledger.Account, error)
	Close(ctx context.Context, accountID string) (ledger.Account, error)
	ListTransactions(ctx context.Context, accountID string) ([]ledger.LogEntry, error)
}

// AccountHandler handles account HTTP requests
type AccountHandler struct {
	svc LedgerService
	log *logger.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(svc LedgerService, log *logger.Logger) *AccountHandler {
	return &AccountHandler{
		svc: svc,
		log: log.WithField("component", "account_handler"),
	}
}

// CreateAccountRequest represents the account creation request. Amounts
// may be sent as JSON numbers or decimal strings.
type CreateAccountRequest struct {
	AccountID      string      `json:"account_id"`
	InitialBalance json.Number `json:"initial_balance"`
}

// MovementRequest represents a deposit or withdraw request
type MovementRequest struct {
	Amount         json.Number `json:"amount"`
	IdempotencyKey string      `json:"idempotency_key"`
}

// AccountResponse represents an account
type AccountResponse struct {
	AccountID string `json:"account_id"`
	Balance   string `json:"balance"`
	State     string `json:"state"`
	Version   int64  `json:"version"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// TransactionResponse represents one transaction log entry
type TransactionResponse struct {
	Sequence     int64  `json:"sequence"`
	Action       string `json:"action"`
	Amount       string `json:"amount"`
	BalanceAfter string `json:"balance_after"`
	Timestamp    string `json:"timestamp"`
}

// TransactionsListResponse represents the response for listing transactions
type TransactionsListResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
}

// CreateAccount handles POST /accounts
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !h.decode(w, r, &req) {
		return
	}

	balance := decimal.Zero
	if req.InitialBalance != "" {
		var ok bool
		if balance, ok = h.parseAmount(w, req.InitialBalance, ledger.KindInvalidInput); !ok {
			return
		}
	}

	account, err := h.svc.CreateAccount(r.Context(), req.AccountID, balance)
	if err != nil {
		respondLedgerError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, toAccountResponse(account))
}

// GetAccount handles GET /accounts/{account_id}
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.svc.GetAccount(r.Context(), chi.URLParam(r, "account_id"))
	if err != nil {
		respondLedgerError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toAccountResponse(account))
}

// Deposit handles POST /accounts/{account_id}/deposit
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.svc.Deposit)
}

// Withdraw handles POST /accounts/{account_id}/withdraw
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.svc.Withdraw)
}

// Freeze handles POST /accounts/{account_id}/freeze
func (h *AccountHandler) Freeze(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Freeze)
}

// Unfreeze handles POST /accounts/{account_id}/unfreeze
func (h *AccountHandler) Unfreeze(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Unfreeze)
}

// Close handles POST /accounts/{account_id}/close
func (h *AccountHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Close)
}

// ListTransactions handles GET /accounts/{account_id}/transactions
func (h *AccountHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.ListTransactions(r.Context(), chi.URLParam(r, "account_id"))
	if err != nil {
		respondLedgerError(w, h.log, err)
		return
	}

	resp := TransactionsListResponse{Transactions: make([]TransactionResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Transactions = append(resp.Transactions, TransactionResponse{
			Sequence:     e.Sequence,
			Action:       string(e.Action),
			Amount:       money.Format(e.Amount),
			BalanceAfter: money.Format(e.BalanceAfter),
			Timestamp:    e.Timestamp.Format(time.RFC3339Nano),
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

type movementFunc func(ctx context.Context, accountID string, amount decimal.Decimal, key string) (ledger.Account, error)

func (h *AccountHandler) move(w http.ResponseWriter, r *http.Request, fn movementFunc) {
	var req MovementRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, ok := h.parseAmount(w, req.Amount, ledger.KindInvalidAmount)
	if !ok {
		return
	}

	key := req.IdempotencyKey
	if strings.TrimSpace(key) == "" {
		key = r.Header.Get(IdempotencyKeyHeader)
	}

	account, err := fn(r.Context(), chi.URLParam(r, "account_id"), amount, key)
	if err != nil {
		respondLedgerError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *AccountHandler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (ledger.Account, error)) {
	account, err := fn(r.Context(), chi.URLParam(r, "account_id"))
	if err != nil {
		respondLedgerError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *AccountHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, string(ledger.KindInvalidInput), "invalid request body")
		return false
	}
	return true
}

// parseAmount reports excess precision as precisionKind, which differs
// between movement amounts and initial balances.
func (h *AccountHandler) parseAmount(w http.ResponseWriter, raw json.Number, precisionKind ledger.Kind) (decimal.Decimal, bool) {
	amount, err := money.Parse(raw.String())
	switch {
	case err == nil:
		return amount, true
	case errors.Is(err, money.ErrTooPrecise):
		respondError(w, http.StatusBadRequest, string(precisionKind), err.Error())
	default:
		respondError(w, http.StatusBadRequest, string(ledger.KindInvalidInput), err.Error())
	}
	return decimal.Zero, false
}

func toAccountResponse(a ledger.Account) AccountResponse {
	return AccountResponse{
		AccountID: a.ID,
		Balance:   money.Format(a.Balance),
		State:     a.State.String(),
		Version:   a.Version,
		CreatedAt: a.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: a.UpdatedAt.Format(time.RFC3339Nano),
	}
}
