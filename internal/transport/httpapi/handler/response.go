package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Jay-S9/backend-foundation/internal/ledger"
	"github.com/Jay-S9/backend-foundation/pkg/logger"
)

// ErrorBody carries a machine readable code and a message
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// respondError sends an error envelope
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

// statusFor maps a ledger error kind onto an HTTP status.
func statusFor(kind ledger.Kind) int {
	switch kind {
	case ledger.KindInvalidInput, ledger.KindInvalidAmount,
		ledger.KindInsufficientFunds, ledger.KindInvalidStateTransition:
		return http.StatusBadRequest
	case ledger.KindAccountNotFound:
		return http.StatusNotFound
	case ledger.KindAccountNotActive, ledger.KindDuplicateRequest, ledger.KindAccountExists:
		return http.StatusConflict
	case ledger.KindPersistenceFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondLedgerError writes err as an error envelope. Store details behind a
// persistence failure stay in the logs.
func respondLedgerError(w http.ResponseWriter, log *logger.Logger, err error) {
	var e *ledger.Error
	if !errors.As(err, &e) {
		log.WithError(err).Error("unexpected error")
		respondError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}

	message := e.Error()
	if e.Kind == ledger.KindPersistenceFailure {
		message = "ledger temporarily unavailable, retry the request"
	}
	respondError(w, statusFor(e.Kind), string(e.Kind), message)
}
