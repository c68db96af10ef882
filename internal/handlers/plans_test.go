package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"papertrade/internal/services"
	"papertrade/internal/store"
)

func TestCreateBuyPlan(t *testing.T) {
	var seen services.CreatePlanRequest
	handler := newTestHandler(testHandlerDeps{
		plans: stubPlanService{
			createFn: func(_ context.Context, req services.CreatePlanRequest) (string, error) {
				seen = req
				return "plan-3", nil
			},
		},
	})
	total := int64(10)
	rr := doJSON(t, handler.Routes(), http.MethodPost, "/plans", testToken(t, "user-1"), map[string]any{
		"side":             "buy",
		"amount":           "100.00",
		"frequency":        "DAILY",
		"total_executions": total,
		"max_price":        "45000.00",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if seen.PlanType != store.PlanBuy || seen.AmountPerExecution != 10000 || seen.Frequency != store.FreqDaily {
		t.Fatalf("unexpected request: %+v", seen)
	}
	if seen.TotalExecutions == nil || *seen.TotalExecutions != 10 {
		t.Fatalf("unexpected total executions: %+v", seen.TotalExecutions)
	}
	if seen.MaxPrice == nil || *seen.MaxPrice != 4500000 {
		t.Fatalf("unexpected max price: %+v", seen.MaxPrice)
	}
	if decodeBody(t, rr)["plan_id"] != "plan-3" {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestCreateSellPlanParsesCryptoAmount(t *testing.T) {
	var seen services.CreatePlanRequest
	handler := newTestHandler(testHandlerDeps{
		plans: stubPlanService{
			createFn: func(_ context.Context, req services.CreatePlanRequest) (string, error) {
				seen = req
				return "plan-3", nil
			},
		},
	})
	rr := doJSON(t, handler.Routes(), http.MethodPost, "/plans", testToken(t, "user-1"), map[string]any{
		"side":      "sell",
		"amount":    "0.10000000",
		"frequency": "WEEKLY",
		"min_price": "70000.00",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if seen.PlanType != store.PlanSell || seen.AmountPerExecution != 10000000 {
		t.Fatalf("unexpected request: %+v", seen)
	}
	if seen.MinPrice == nil || *seen.MinPrice != 7000000 {
		t.Fatalf("unexpected min price: %+v", seen.MinPrice)
	}
}

func TestCreatePlanRejectsBadPrice(t *testing.T) {
	handler := newTestHandler(testHandlerDeps{})
	rr := doJSON(t, handler.Routes(), http.MethodPost, "/plans", testToken(t, "user-1"), map[string]any{
		"side":      "buy",
		"amount":    "100.00",
		"frequency": "DAILY",
		"max_price": "zero",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestPlanTransitions(t *testing.T) {
	var paused, resumed, deleted string
	handler := newTestHandler(testHandlerDeps{
		plans: stubPlanService{
			pauseFn:  func(_ context.Context, _, planID string) error { paused = planID; return nil },
			resumeFn: func(_ context.Context, _, planID string) error { resumed = planID; return nil },
			deleteFn: func(_ context.Context, _, planID string) error { deleted = planID; return nil },
		},
	})
	routes := handler.Routes()
	token := testToken(t, "user-1")

	rr := doJSON(t, routes, http.MethodPost, "/plans/plan-3/pause", token, nil)
	if rr.Code != http.StatusOK || decodeBody(t, rr)["status"] != "PAUSED" {
		t.Fatalf("pause: %d %s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, routes, http.MethodPost, "/plans/plan-3/resume", token, nil)
	if rr.Code != http.StatusOK || decodeBody(t, rr)["status"] != "ACTIVE" {
		t.Fatalf("resume: %d %s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, routes, http.MethodDelete, "/plans/plan-3", token, nil)
	if rr.Code != http.StatusOK || decodeBody(t, rr)["status"] != "CANCELLED" {
		t.Fatalf("delete: %d %s", rr.Code, rr.Body.String())
	}
	if paused != "plan-3" || resumed != "plan-3" || deleted != "plan-3" {
		t.Fatalf("transitions not applied: %q %q %q", paused, resumed, deleted)
	}
}

func TestPlanTransitionNotFound(t *testing.T) {
	handler := newTestHandler(testHandlerDeps{
		plans: stubPlanService{
			pauseFn: func(context.Context, string, string) error { return services.ErrNotFound },
		},
	})
	rr := doJSON(t, handler.Routes(), http.MethodPost, "/plans/missing/pause", testToken(t, "user-1"), nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestListPlansFormatsPerSide(t *testing.T) {
	total := int64(10)
	remaining := int64(4)
	handler := newTestHandler(testHandlerDeps{
		plans: stubPlanService{
			listFn: func(context.Context, string) ([]store.Plan, error) {
				return []store.Plan{
					{
						ID:                  "plan-1",
						PlanType:            store.PlanBuy,
						Status:              store.PlanActive,
						Frequency:           store.FreqDaily,
						AmountPerExecution:  10000,
						NextExecutionAt:     time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
						TotalExecutions:     &total,
						RemainingExecutions: &remaining,
					},
					{
						ID:                 "plan-2",
						PlanType:           store.PlanSell,
						Status:             store.PlanPaused,
						Frequency:          store.FreqWeekly,
						AmountPerExecution: 10000000,
					},
				}, nil
			},
		},
	})
	rr := doJSON(t, handler.Routes(), http.MethodGet, "/plans", testToken(t, "user-1"), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var list []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 plans, got %d", len(list))
	}
	if list[0]["amount"] != "100.00" {
		t.Fatalf("buy plan amount must be cash: %v", list[0])
	}
	if list[1]["amount"] != "0.10000000" {
		t.Fatalf("sell plan amount must be crypto: %v", list[1])
	}
	if list[0]["remaining_executions"] != float64(4) {
		t.Fatalf("unexpected remaining: %v", list[0])
	}
}
