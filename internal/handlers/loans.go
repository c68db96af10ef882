package handlers

import (
	"encoding/json"
	"net/http"

	"papertrade/internal/middleware"
	"papertrade/internal/money"
)

func (h *Handler) DepositCollateral(w http.ResponseWriter, r *http.Request) {
	h.fundCrypto(w, r, func(userID string, amount int64) (string, error) {
		return h.loans.DepositCollateral(r.Context(), userID, amount)
	})
}

func (h *Handler) Borrow(w http.ResponseWriter, r *http.Request) {
	h.fundCash(w, r, func(userID string, amount int64) (string, error) {
		return h.loans.Borrow(r.Context(), userID, amount)
	})
}

func (h *Handler) Repay(w http.ResponseWriter, r *http.Request) {
	h.fundCash(w, r, func(userID string, amount int64) (string, error) {
		return h.loans.Repay(r.Context(), userID, amount)
	})
}

type liquidateRequest struct {
	// Amount is the collateral to sell. Empty means a full liquidation.
	Amount string `json:"amount"`
}

func (h *Handler) Liquidate(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req liquidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	var operationID string
	var err error
	if req.Amount == "" {
		operationID, err = h.loans.FullLiquidate(r.Context(), userID)
	} else {
		amount, ok := parseCrypto(req.Amount)
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid_amount")
			return
		}
		operationID, err = h.loans.PartialLiquidate(r.Context(), userID, amount)
	}
	if err != nil {
		mapServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"operation_id": operationID})
}

func (h *Handler) LoanStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	status, err := h.loans.Status(r.Context(), userID)
	if err != nil {
		mapServiceError(w, err)
		return
	}
	loan := status.Loan
	respondJSON(w, http.StatusOK, map[string]any{
		"loan_id":           loan.ID,
		"collateral":        money.FormatCryptoMinor(loan.CollateralAmount),
		"borrowed":          money.FormatCashMinor(loan.BorrowedAmount),
		"accrued_interest":  money.FormatCashMinor(loan.AccruedInterest),
		"interest_paid":     money.FormatCashMinor(loan.InterestPaid),
		"interest_rate_bps": loan.InterestRateBps,
		"max_ltv_bps":       loan.MaxLTVBps,
		"current_ltv_bps":   status.CurrentLTVBps,
		"liquidation_price": money.FormatCashMinor(status.LiquidationPrice),
		"risk":              status.Risk,
		"originated_at":     loan.OriginatedAt,
		"last_accrual_at":   loan.LastAccrualAt,
	})
}
