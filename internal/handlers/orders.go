package handlers

import (
	"encoding/json"
	"net/http"

	"papertrade/internal/middleware"
	"papertrade/internal/money"
	"papertrade/internal/services"
	"papertrade/internal/store"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) MarketBuy(w http.ResponseWriter, r *http.Request) {
	h.fundCash(w, r, func(userID string, amount int64) (string, error) {
		return h.account.MarketBuy(r.Context(), userID, amount)
	})
}

func (h *Handler) MarketSell(w http.ResponseWriter, r *http.Request) {
	h.fundCrypto(w, r, func(userID string, amount int64) (string, error) {
		return h.account.MarketSell(r.Context(), userID, amount)
	})
}

type limitOrderRequest struct {
	Side string `json:"side"` // "buy" or "sell"
	// Amount is cash for a buy, crypto for a sell.
	Amount     string `json:"amount"`
	LimitPrice string `json:"limit_price"`
}

func (h *Handler) PlaceLimitOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req limitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	limitPrice, ok := parsePrice(req.LimitPrice)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_price")
		return
	}
	var opType store.OpType
	var amount int64
	switch req.Side {
	case "buy":
		opType = store.OpLimitBuy
		amount, ok = parseCash(req.Amount)
	case "sell":
		opType = store.OpLimitSell
		amount, ok = parseCrypto(req.Amount)
	default:
		respondError(w, http.StatusBadRequest, "invalid_side")
		return
	}
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	operationID, err := h.orders.PlaceLimitOrder(r.Context(), services.PlaceLimitOrderRequest{
		UserID:     userID,
		Type:       opType,
		Amount:     amount,
		LimitPrice: limitPrice,
	})
	if err != nil {
		mapServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"operation_id": operationID})
}

func (h *Handler) CancelLimitOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	operationID := chi.URLParam(r, "id")
	if err := h.orders.CancelOrder(r.Context(), userID, operationID, "cancelled by user"); err != nil {
		mapServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"operation_id": operationID, "status": "CANCELLED"})
}

func (h *Handler) ListOperations(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	opType := store.OpType(query.Get("type"))
	if opType != "" && !opType.Valid() {
		respondError(w, http.StatusBadRequest, "invalid_type")
		return
	}
	status := store.OpStatus(query.Get("status"))
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 20)
	offset := (page - 1) * limit
	operations, err := h.orders.ListOperations(r.Context(), userID, opType, status, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load operations")
		return
	}
	normalized := make([]map[string]any, 0, len(operations))
	for _, op := range operations {
		normalized = append(normalized, operationJSON(op))
	}
	respondJSON(w, http.StatusOK, normalized)
}

func operationJSON(op store.Operation) map[string]any {
	item := map[string]any{
		"id":            op.ID,
		"type":          op.Type,
		"status":        op.Status,
		"cash_amount":   money.FormatCashMinor(op.CashAmount),
		"crypto_amount": money.FormatCryptoMinor(op.CryptoAmount),
		"created_at":    op.CreatedAt,
	}
	if op.ExecutionPrice != nil {
		item["execution_price"] = money.FormatCashMinor(*op.ExecutionPrice)
	}
	if op.LimitPrice != nil {
		item["limit_price"] = money.FormatCashMinor(*op.LimitPrice)
	}
	if op.ParentPlanID != nil {
		item["plan_id"] = *op.ParentPlanID
	}
	if op.ExecutedAt != nil {
		item["executed_at"] = *op.ExecutedAt
	}
	if op.CancellationReason != nil {
		item["cancellation_reason"] = *op.CancellationReason
	}
	return item
}
