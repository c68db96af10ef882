package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"papertrade/internal/middleware"
	"papertrade/internal/money"
	"papertrade/internal/services"
	"papertrade/internal/store"

	"github.com/go-chi/chi/v5"
)

type createPlanRequest struct {
	Side string `json:"side"` // "buy" or "sell"
	// Amount is cash per execution for a buy plan, crypto for a sell plan.
	Amount          string  `json:"amount"`
	Frequency       string  `json:"frequency"`
	TotalExecutions *int64  `json:"total_executions"`
	MaxPrice        *string `json:"max_price"`
	MinPrice        *string `json:"min_price"`
}

func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	var planType store.PlanType
	var amount int64
	switch req.Side {
	case "buy":
		planType = store.PlanBuy
		amount, ok = parseCash(req.Amount)
	case "sell":
		planType = store.PlanSell
		amount, ok = parseCrypto(req.Amount)
	default:
		respondError(w, http.StatusBadRequest, "invalid_side")
		return
	}
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	maxPrice, ok := parseOptionalPrice(req.MaxPrice)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_price")
		return
	}
	minPrice, ok := parseOptionalPrice(req.MinPrice)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_price")
		return
	}
	planID, err := h.plans.CreatePlan(r.Context(), services.CreatePlanRequest{
		UserID:             userID,
		PlanType:           planType,
		AmountPerExecution: amount,
		Frequency:          store.Frequency(req.Frequency),
		TotalExecutions:    req.TotalExecutions,
		MaxPrice:           maxPrice,
		MinPrice:           minPrice,
	})
	if err != nil {
		mapServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"plan_id": planID})
}

func parseOptionalPrice(raw *string) (*int64, bool) {
	if raw == nil || *raw == "" {
		return nil, true
	}
	price, ok := parsePrice(*raw)
	if !ok {
		return nil, false
	}
	return &price, true
}

func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	plans, err := h.plans.ListPlans(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load plans")
		return
	}
	normalized := make([]map[string]any, 0, len(plans))
	for _, plan := range plans {
		normalized = append(normalized, planJSON(plan))
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	plan, err := h.plans.GetPlan(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		mapServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, planJSON(plan))
}

func (h *Handler) PlanHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	operations, err := h.plans.PlanHistory(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		mapServiceError(w, err)
		return
	}
	normalized := make([]map[string]any, 0, len(operations))
	for _, op := range operations {
		normalized = append(normalized, operationJSON(op))
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) PausePlan(w http.ResponseWriter, r *http.Request) {
	h.transitionPlan(w, r, h.plans.PausePlan, "PAUSED")
}

func (h *Handler) ResumePlan(w http.ResponseWriter, r *http.Request) {
	h.transitionPlan(w, r, h.plans.ResumePlan, "ACTIVE")
}

func (h *Handler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	h.transitionPlan(w, r, h.plans.DeletePlan, "CANCELLED")
}

func (h *Handler) transitionPlan(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, userID, planID string) error, resulting string) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	planID := chi.URLParam(r, "id")
	if err := apply(r.Context(), userID, planID); err != nil {
		mapServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"plan_id": planID, "status": resulting})
}

func planJSON(plan store.Plan) map[string]any {
	item := map[string]any{
		"id":                plan.ID,
		"side":              plan.PlanType,
		"status":            plan.Status,
		"frequency":         plan.Frequency,
		"next_execution_at": plan.NextExecutionAt,
		"created_at":        plan.CreatedAt,
	}
	if plan.PlanType == store.PlanBuy {
		item["amount"] = money.FormatCashMinor(plan.AmountPerExecution)
	} else {
		item["amount"] = money.FormatCryptoMinor(plan.AmountPerExecution)
	}
	if plan.TotalExecutions != nil {
		item["total_executions"] = *plan.TotalExecutions
	}
	if plan.RemainingExecutions != nil {
		item["remaining_executions"] = *plan.RemainingExecutions
	}
	if formatted := optCashString(plan.MaxPrice); formatted != nil {
		item["max_price"] = *formatted
	}
	if formatted := optCashString(plan.MinPrice); formatted != nil {
		item["min_price"] = *formatted
	}
	return item
}
