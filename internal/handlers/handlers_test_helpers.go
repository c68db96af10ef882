package handlers

import (
	"context"
	"time"

	"papertrade/internal/config"
	"papertrade/internal/oracle"
	"papertrade/internal/services"
	"papertrade/internal/store"
	"papertrade/internal/websocket"

	"github.com/jmoiron/sqlx"
)

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

type stubUserStore struct {
	createFn     func(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	getByEmailFn func(ctx context.Context, email string) (store.User, error)
	getByIDFn    func(ctx context.Context, userID string) (store.User, error)
}

func (s stubUserStore) Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, username, email, passwordHash)
}

func (s stubUserStore) GetByEmail(ctx context.Context, email string) (store.User, error) {
	if s.getByEmailFn == nil {
		return store.User{}, nil
	}
	return s.getByEmailFn(ctx, email)
}

func (s stubUserStore) GetByID(ctx context.Context, userID string) (store.User, error) {
	if s.getByIDFn == nil {
		return store.User{}, nil
	}
	return s.getByIDFn(ctx, userID)
}

type stubAccountStore struct {
	createFn func(ctx context.Context, tx store.Execer, userID string, openingCash int64) error
}

func (s stubAccountStore) Create(ctx context.Context, tx store.Execer, userID string, openingCash int64) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, userID, openingCash)
}

type stubAccountService struct {
	depositCashFn    func(ctx context.Context, userID string, amount int64) (string, error)
	withdrawCashFn   func(ctx context.Context, userID string, amount int64) (string, error)
	depositCryptoFn  func(ctx context.Context, userID string, amount int64) (string, error)
	withdrawCryptoFn func(ctx context.Context, userID string, amount int64) (string, error)
	marketBuyFn      func(ctx context.Context, userID string, cashAmount int64) (string, error)
	marketSellFn     func(ctx context.Context, userID string, cryptoAmount int64) (string, error)
	balancesFn       func(ctx context.Context, userID string) (store.Account, error)
	selfCheckFn      func(ctx context.Context, userID string) (services.SelfCheck, error)
}

func (s stubAccountService) DepositCash(ctx context.Context, userID string, amount int64) (string, error) {
	if s.depositCashFn == nil {
		return "op-1", nil
	}
	return s.depositCashFn(ctx, userID, amount)
}

func (s stubAccountService) WithdrawCash(ctx context.Context, userID string, amount int64) (string, error) {
	if s.withdrawCashFn == nil {
		return "op-1", nil
	}
	return s.withdrawCashFn(ctx, userID, amount)
}

func (s stubAccountService) DepositCrypto(ctx context.Context, userID string, amount int64) (string, error) {
	if s.depositCryptoFn == nil {
		return "op-1", nil
	}
	return s.depositCryptoFn(ctx, userID, amount)
}

func (s stubAccountService) WithdrawCrypto(ctx context.Context, userID string, amount int64) (string, error) {
	if s.withdrawCryptoFn == nil {
		return "op-1", nil
	}
	return s.withdrawCryptoFn(ctx, userID, amount)
}

func (s stubAccountService) MarketBuy(ctx context.Context, userID string, cashAmount int64) (string, error) {
	if s.marketBuyFn == nil {
		return "op-1", nil
	}
	return s.marketBuyFn(ctx, userID, cashAmount)
}

func (s stubAccountService) MarketSell(ctx context.Context, userID string, cryptoAmount int64) (string, error) {
	if s.marketSellFn == nil {
		return "op-1", nil
	}
	return s.marketSellFn(ctx, userID, cryptoAmount)
}

func (s stubAccountService) Balances(ctx context.Context, userID string) (store.Account, error) {
	if s.balancesFn == nil {
		return store.Account{}, nil
	}
	return s.balancesFn(ctx, userID)
}

func (s stubAccountService) SelfCheckReservations(ctx context.Context, userID string) (services.SelfCheck, error) {
	if s.selfCheckFn == nil {
		return services.SelfCheck{Consistent: true}, nil
	}
	return s.selfCheckFn(ctx, userID)
}

type stubOrderService struct {
	placeLimitFn func(ctx context.Context, req services.PlaceLimitOrderRequest) (string, error)
	cancelFn     func(ctx context.Context, userID, operationID, reason string) error
	listFn       func(ctx context.Context, userID string, opType store.OpType, status store.OpStatus, limit, offset int) ([]store.Operation, error)
}

func (s stubOrderService) PlaceLimitOrder(ctx context.Context, req services.PlaceLimitOrderRequest) (string, error) {
	if s.placeLimitFn == nil {
		return "op-1", nil
	}
	return s.placeLimitFn(ctx, req)
}

func (s stubOrderService) CancelOrder(ctx context.Context, userID, operationID, reason string) error {
	if s.cancelFn == nil {
		return nil
	}
	return s.cancelFn(ctx, userID, operationID, reason)
}

func (s stubOrderService) ListOperations(ctx context.Context, userID string, opType store.OpType, status store.OpStatus, limit, offset int) ([]store.Operation, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, userID, opType, status, limit, offset)
}

type stubPlanService struct {
	createFn  func(ctx context.Context, req services.CreatePlanRequest) (string, error)
	pauseFn   func(ctx context.Context, userID, planID string) error
	resumeFn  func(ctx context.Context, userID, planID string) error
	deleteFn  func(ctx context.Context, userID, planID string) error
	listFn    func(ctx context.Context, userID string) ([]store.Plan, error)
	getFn     func(ctx context.Context, userID, planID string) (store.Plan, error)
	historyFn func(ctx context.Context, userID, planID string) ([]store.Operation, error)
}

func (s stubPlanService) CreatePlan(ctx context.Context, req services.CreatePlanRequest) (string, error) {
	if s.createFn == nil {
		return "plan-1", nil
	}
	return s.createFn(ctx, req)
}

func (s stubPlanService) PausePlan(ctx context.Context, userID, planID string) error {
	if s.pauseFn == nil {
		return nil
	}
	return s.pauseFn(ctx, userID, planID)
}

func (s stubPlanService) ResumePlan(ctx context.Context, userID, planID string) error {
	if s.resumeFn == nil {
		return nil
	}
	return s.resumeFn(ctx, userID, planID)
}

func (s stubPlanService) DeletePlan(ctx context.Context, userID, planID string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, userID, planID)
}

func (s stubPlanService) ListPlans(ctx context.Context, userID string) ([]store.Plan, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, userID)
}

func (s stubPlanService) GetPlan(ctx context.Context, userID, planID string) (store.Plan, error) {
	if s.getFn == nil {
		return store.Plan{}, nil
	}
	return s.getFn(ctx, userID, planID)
}

func (s stubPlanService) PlanHistory(ctx context.Context, userID, planID string) ([]store.Operation, error) {
	if s.historyFn == nil {
		return nil, nil
	}
	return s.historyFn(ctx, userID, planID)
}

type stubLoanService struct {
	depositCollateralFn func(ctx context.Context, userID string, cryptoAmount int64) (string, error)
	borrowFn            func(ctx context.Context, userID string, cashAmount int64) (string, error)
	repayFn             func(ctx context.Context, userID string, cashAmount int64) (string, error)
	partialLiquidateFn  func(ctx context.Context, userID string, cryptoAmount int64) (string, error)
	fullLiquidateFn     func(ctx context.Context, userID string) (string, error)
	statusFn            func(ctx context.Context, userID string) (services.LoanStatus, error)
}

func (s stubLoanService) DepositCollateral(ctx context.Context, userID string, cryptoAmount int64) (string, error) {
	if s.depositCollateralFn == nil {
		return "op-1", nil
	}
	return s.depositCollateralFn(ctx, userID, cryptoAmount)
}

func (s stubLoanService) Borrow(ctx context.Context, userID string, cashAmount int64) (string, error) {
	if s.borrowFn == nil {
		return "op-1", nil
	}
	return s.borrowFn(ctx, userID, cashAmount)
}

func (s stubLoanService) Repay(ctx context.Context, userID string, cashAmount int64) (string, error) {
	if s.repayFn == nil {
		return "op-1", nil
	}
	return s.repayFn(ctx, userID, cashAmount)
}

func (s stubLoanService) PartialLiquidate(ctx context.Context, userID string, cryptoAmount int64) (string, error) {
	if s.partialLiquidateFn == nil {
		return "op-1", nil
	}
	return s.partialLiquidateFn(ctx, userID, cryptoAmount)
}

func (s stubLoanService) FullLiquidate(ctx context.Context, userID string) (string, error) {
	if s.fullLiquidateFn == nil {
		return "op-1", nil
	}
	return s.fullLiquidateFn(ctx, userID)
}

func (s stubLoanService) Status(ctx context.Context, userID string) (services.LoanStatus, error) {
	if s.statusFn == nil {
		return services.LoanStatus{}, nil
	}
	return s.statusFn(ctx, userID)
}

type failingOracle struct{}

func (failingOracle) CurrentRates(context.Context) (oracle.Rates, error) {
	return oracle.Rates{}, context.DeadlineExceeded
}

type testHandlerDeps struct {
	txRunner fakeTxRunner
	users    stubUserStore
	accounts stubAccountStore
	account  stubAccountService
	orders   stubOrderService
	plans    stubPlanService
	loans    stubLoanService
	oracle   oracle.Source
}

func newTestHandler(deps testHandlerDeps) *Handler {
	cfg := config.Config{
		JWTSecret:        "test-secret",
		TokenTTL:         time.Minute,
		AllowedOrigins:   "*",
		OpeningCashMinor: 10000000,
	}
	source := deps.oracle
	if source == nil {
		source = oracle.NewFixed(5000000, 0)
	}
	return New(deps.txRunner, cfg, deps.users, deps.accounts, deps.account, deps.orders, deps.plans, deps.loans, source, websocket.NewHub())
}
