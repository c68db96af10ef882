package handlers

import (
	"context"

	"papertrade/internal/services"
	"papertrade/internal/store"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	GetByEmail(ctx context.Context, email string) (store.User, error)
	GetByID(ctx context.Context, userID string) (store.User, error)
}

type AccountStore interface {
	Create(ctx context.Context, tx store.Execer, userID string, openingCash int64) error
}

type AccountService interface {
	DepositCash(ctx context.Context, userID string, amount int64) (string, error)
	WithdrawCash(ctx context.Context, userID string, amount int64) (string, error)
	DepositCrypto(ctx context.Context, userID string, amount int64) (string, error)
	WithdrawCrypto(ctx context.Context, userID string, amount int64) (string, error)
	MarketBuy(ctx context.Context, userID string, cashAmount int64) (string, error)
	MarketSell(ctx context.Context, userID string, cryptoAmount int64) (string, error)
	Balances(ctx context.Context, userID string) (store.Account, error)
	SelfCheckReservations(ctx context.Context, userID string) (services.SelfCheck, error)
}

type OrderService interface {
	PlaceLimitOrder(ctx context.Context, req services.PlaceLimitOrderRequest) (string, error)
	CancelOrder(ctx context.Context, userID, operationID, reason string) error
	ListOperations(ctx context.Context, userID string, opType store.OpType, status store.OpStatus, limit, offset int) ([]store.Operation, error)
}

type PlanService interface {
	CreatePlan(ctx context.Context, req services.CreatePlanRequest) (string, error)
	PausePlan(ctx context.Context, userID, planID string) error
	ResumePlan(ctx context.Context, userID, planID string) error
	DeletePlan(ctx context.Context, userID, planID string) error
	ListPlans(ctx context.Context, userID string) ([]store.Plan, error)
	GetPlan(ctx context.Context, userID, planID string) (store.Plan, error)
	PlanHistory(ctx context.Context, userID, planID string) ([]store.Operation, error)
}

type LoanService interface {
	DepositCollateral(ctx context.Context, userID string, cryptoAmount int64) (string, error)
	Borrow(ctx context.Context, userID string, cashAmount int64) (string, error)
	Repay(ctx context.Context, userID string, cashAmount int64) (string, error)
	PartialLiquidate(ctx context.Context, userID string, cryptoAmount int64) (string, error)
	FullLiquidate(ctx context.Context, userID string) (string, error)
	Status(ctx context.Context, userID string) (services.LoanStatus, error)
}
