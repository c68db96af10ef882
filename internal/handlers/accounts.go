package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"papertrade/internal/ledger"
	"papertrade/internal/middleware"
	"papertrade/internal/money"
	"papertrade/internal/oracle"
	"papertrade/internal/services"
)

// mapServiceError translates the engine error taxonomy to HTTP. Anything
// unrecognized is a 500.
func mapServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		respondError(w, http.StatusBadRequest, "insufficient_funds")
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, services.ErrInvalidAmount):
		respondError(w, http.StatusBadRequest, "invalid_amount")
	case errors.Is(err, services.ErrInvalidPrice):
		respondError(w, http.StatusBadRequest, "invalid_price")
	case errors.Is(err, services.ErrInvalidFrequency):
		respondError(w, http.StatusBadRequest, "invalid_frequency")
	case errors.Is(err, services.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, services.ErrConflict):
		respondError(w, http.StatusConflict, "already_terminated")
	case errors.Is(err, services.ErrNoActiveLoan):
		respondError(w, http.StatusNotFound, "no_active_loan")
	case errors.Is(err, services.ErrLoanLimit):
		respondError(w, http.StatusBadRequest, "ltv_limit_exceeded")
	case errors.Is(err, services.ErrCollateralExceeded):
		respondError(w, http.StatusBadRequest, "amount_exceeds_collateral")
	case errors.Is(err, oracle.ErrStalePrice), errors.Is(err, oracle.ErrNoPrice):
		respondError(w, http.StatusServiceUnavailable, "price_unavailable")
	default:
		respondError(w, http.StatusInternalServerError, "internal_error")
	}
}

func (h *Handler) Balances(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	account, err := h.account.Balances(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load balances")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"available_cash":   money.FormatCashMinor(account.AvailableCash),
		"reserved_cash":    money.FormatCashMinor(account.ReservedCash),
		"available_crypto": money.FormatCryptoMinor(account.AvailableCrypto),
		"reserved_crypto":  money.FormatCryptoMinor(account.ReservedCrypto),
	})
}

func (h *Handler) SelfCheck(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	check, err := h.account.SelfCheckReservations(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to self_check")
		return
	}
	respondJSON(w, http.StatusOK, check)
}

func (h *Handler) CurrentPrice(w http.ResponseWriter, r *http.Request) {
	rates, err := h.oracle.CurrentRates(r.Context())
	if err != nil {
		mapServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"buy":       money.FormatCashMinor(rates.Buy),
		"sell":      money.FormatCashMinor(rates.Sell),
		"timestamp": rates.Timestamp.UTC().Format(time.RFC3339),
	})
}

type fundingRequest struct {
	Amount string `json:"amount"`
}

func (h *Handler) fundCash(w http.ResponseWriter, r *http.Request, apply func(string, int64) (string, error)) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req fundingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, ok := parseCash(req.Amount)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	operationID, err := apply(userID, amount)
	if err != nil {
		mapServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"operation_id": operationID})
}

func (h *Handler) fundCrypto(w http.ResponseWriter, r *http.Request, apply func(string, int64) (string, error)) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req fundingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, ok := parseCrypto(req.Amount)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	operationID, err := apply(userID, amount)
	if err != nil {
		mapServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"operation_id": operationID})
}

func (h *Handler) DepositCash(w http.ResponseWriter, r *http.Request) {
	h.fundCash(w, r, func(userID string, amount int64) (string, error) {
		return h.account.DepositCash(r.Context(), userID, amount)
	})
}

func (h *Handler) WithdrawCash(w http.ResponseWriter, r *http.Request) {
	h.fundCash(w, r, func(userID string, amount int64) (string, error) {
		return h.account.WithdrawCash(r.Context(), userID, amount)
	})
}

func (h *Handler) DepositCrypto(w http.ResponseWriter, r *http.Request) {
	h.fundCrypto(w, r, func(userID string, amount int64) (string, error) {
		return h.account.DepositCrypto(r.Context(), userID, amount)
	})
}

func (h *Handler) WithdrawCrypto(w http.ResponseWriter, r *http.Request) {
	h.fundCrypto(w, r, func(userID string, amount int64) (string, error) {
		return h.account.WithdrawCrypto(r.Context(), userID, amount)
	})
}
