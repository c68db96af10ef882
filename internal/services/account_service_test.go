package services

import (
	"context"
	"testing"
	"time"

	"papertrade/internal/ledger"
	"papertrade/internal/oracle"
	"papertrade/internal/store"

	"go.uber.org/zap"
)

func newAccountFixture(t *testing.T) (*AccountService, *memAccounts, *memOperations, *memLoans, *oracle.Fixed, *stubHub) {
	t.Helper()
	accounts := newMemAccounts()
	ops := &memOperations{}
	loans := newMemLoans()
	prices := oracle.NewFixed(5000000, 0)
	hub := &stubHub{}
	service := NewAccountService(fakeTxRunner{}, accounts, ops, loans, accounts, prices, hub, zap.NewNop())
	return service, accounts, ops, loans, prices, hub
}

func TestDepositAndWithdrawCash(t *testing.T) {
	service, accounts, ops, _, _, hub := newAccountFixture(t)
	accounts.add("u1", 0, 0)

	if _, err := service.DepositCash(context.Background(), "u1", 500000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := service.WithdrawCash(context.Background(), "u1", 200000); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if accounts.accounts["u1"].AvailableCash != 300000 {
		t.Fatalf("cash after deposit+withdraw: %d", accounts.accounts["u1"].AvailableCash)
	}
	if len(ops.ops) != 2 || ops.ops[0].Type != store.OpCashDeposit || ops.ops[1].Type != store.OpCashWithdraw {
		t.Fatalf("unexpected operations: %+v", ops.ops)
	}
	if len(hub.calls) != 2 {
		t.Fatalf("expected a balance push per funding operation, got %d", len(hub.calls))
	}
}

func TestWithdrawMoreThanAvailable(t *testing.T) {
	service, accounts, ops, _, _, _ := newAccountFixture(t)
	accounts.add("u1", 100, 0)

	if _, err := service.WithdrawCash(context.Background(), "u1", 200); err != ledger.ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if len(ops.ops) != 0 {
		t.Fatal("failed withdrawal must not record an operation")
	}
}

func TestWithdrawDoesNotTouchReserved(t *testing.T) {
	service, accounts, _, _, _, _ := newAccountFixture(t)
	accounts.add("u1", 100000, 0)
	accounts.accounts["u1"].ReservedCash = 500000

	if _, err := service.WithdrawCash(context.Background(), "u1", 200000); err != ledger.ErrInsufficientFunds {
		t.Fatalf("reserved funds must not be withdrawable, got %v", err)
	}
}

func TestMarketBuy(t *testing.T) {
	service, accounts, ops, _, _, _ := newAccountFixture(t)
	accounts.add("u1", 1000000, 0)

	operationID, err := service.MarketBuy(context.Background(), "u1", 1000000)
	if err != nil {
		t.Fatalf("market buy: %v", err)
	}
	account := accounts.accounts["u1"]
	wantCrypto := int64(1000000) * 100000000 / 5000000
	if account.AvailableCash != 0 || account.AvailableCrypto != wantCrypto {
		t.Fatalf("unexpected balances after buy: %+v", account)
	}
	op := ops.find(operationID)
	if op.Type != store.OpMarketBuy || op.Status != store.OpExecuted {
		t.Fatalf("unexpected operation: %+v", op)
	}
	if op.ExecutionPrice == nil || *op.ExecutionPrice != 5000000 {
		t.Fatalf("execution price not recorded: %+v", op.ExecutionPrice)
	}
}

func TestMarketSell(t *testing.T) {
	service, accounts, _, _, _, _ := newAccountFixture(t)
	accounts.add("u1", 0, 100000000)

	if _, err := service.MarketSell(context.Background(), "u1", 40000000); err != nil {
		t.Fatalf("market sell: %v", err)
	}
	account := accounts.accounts["u1"]
	if account.AvailableCrypto != 60000000 || account.AvailableCash != 2000000 {
		t.Fatalf("unexpected balances after sell: %+v", account)
	}
}

func TestMarketBuyWithoutPrice(t *testing.T) {
	accounts := newMemAccounts()
	accounts.add("u1", 1000000, 0)
	service := NewAccountService(fakeTxRunner{}, accounts, &memOperations{}, newMemLoans(), accounts,
		oracle.NewCached(failingSource{}, time.Minute), &stubHub{}, zap.NewNop())

	if _, err := service.MarketBuy(context.Background(), "u1", 1000000); err == nil {
		t.Fatal("expected error without a usable price")
	}
	if accounts.accounts["u1"].AvailableCash != 1000000 {
		t.Fatal("balance must be untouched when pricing fails")
	}
}

func TestSelfCheckConsistency(t *testing.T) {
	service, accounts, ops, loans, _, _ := newAccountFixture(t)
	accounts.add("u1", 1000000, 100000000)

	orders := NewOrderService(fakeTxRunner{}, accounts, ops, accounts, &stubHub{}, zap.NewNop())
	if _, err := orders.PlaceLimitOrder(context.Background(), PlaceLimitOrderRequest{
		UserID: "u1", Type: store.OpLimitBuy, Amount: 400000, LimitPrice: 4000000,
	}); err != nil {
		t.Fatalf("place: %v", err)
	}
	loanService := NewLoanService(fakeTxRunner{}, accounts, ops, loans, accounts,
		oracle.NewFixed(5000000, 0), &stubHub{}, &fakeClock{now: time.Now()}, testLoanPolicy(), zap.NewNop())
	if _, err := loanService.DepositCollateral(context.Background(), "u1", 30000000); err != nil {
		t.Fatalf("deposit collateral: %v", err)
	}

	check, err := service.SelfCheckReservations(context.Background(), "u1")
	if err != nil {
		t.Fatalf("self check: %v", err)
	}
	if !check.Consistent {
		t.Fatalf("expected consistent reservations: %+v", check)
	}
	if check.ComputedReservedCash != 400000 || check.ComputedReservedCrypto != 30000000 {
		t.Fatalf("unexpected computed reservations: %+v", check)
	}

	// Drift is reported, not repaired.
	accounts.accounts["u1"].ReservedCash += 1
	check, _ = service.SelfCheckReservations(context.Background(), "u1")
	if check.Consistent {
		t.Fatal("drifted reservations must be flagged")
	}
}
