package services

import (
	"context"
	"database/sql"
	"time"

	"papertrade/internal/ledger"
	"papertrade/internal/store"
	"papertrade/internal/websocket"

	"github.com/jmoiron/sqlx"
)

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type stubHub struct {
	calls []websocket.BalanceUpdate
}

func (s *stubHub) BroadcastBalance(_ string, update websocket.BalanceUpdate) {
	s.calls = append(s.calls, update)
}

// memAccounts holds accounts in memory and doubles as the Ledger
// implementation so balance guards behave like the SQL ones.
type memAccounts struct {
	accounts map[string]*store.Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: map[string]*store.Account{}}
}

func (m *memAccounts) add(userID string, availableCash, availableCrypto int64) {
	m.accounts[userID] = &store.Account{
		UserID:          userID,
		AvailableCash:   availableCash,
		AvailableCrypto: availableCrypto,
	}
}

func (m *memAccounts) get(userID string) (*store.Account, error) {
	account, ok := m.accounts[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return account, nil
}

func (m *memAccounts) GetByUser(_ context.Context, userID string) (store.Account, error) {
	account, err := m.get(userID)
	if err != nil {
		return store.Account{}, err
	}
	return *account, nil
}

func (m *memAccounts) GetForUpdate(_ context.Context, _ store.Getter, userID string) (store.Account, error) {
	account, err := m.get(userID)
	if err != nil {
		return store.Account{}, err
	}
	return *account, nil
}

func (m *memAccounts) guard(amount int64) error {
	if amount < 0 {
		return ledger.ErrInvalidAmount
	}
	return nil
}

func (m *memAccounts) ReserveCash(_ context.Context, _ store.Execer, userID string, amount int64) error {
	if err := m.guard(amount); err != nil {
		return err
	}
	account, err := m.get(userID)
	if err != nil {
		return err
	}
	if account.AvailableCash < amount {
		return ledger.ErrInsufficientFunds
	}
	account.AvailableCash -= amount
	account.ReservedCash += amount
	return nil
}

func (m *memAccounts) ReserveCrypto(_ context.Context, _ store.Execer, userID string, amount int64) error {
	if err := m.guard(amount); err != nil {
		return err
	}
	account, err := m.get(userID)
	if err != nil {
		return err
	}
	if account.AvailableCrypto < amount {
		return ledger.ErrInsufficientFunds
	}
	account.AvailableCrypto -= amount
	account.ReservedCrypto += amount
	return nil
}

func (m *memAccounts) ReleaseCash(_ context.Context, _ store.Execer, userID string, amount int64) error {
	account, err := m.get(userID)
	if err != nil {
		return err
	}
	if account.ReservedCash < amount {
		return ledger.ErrInvariant
	}
	account.ReservedCash -= amount
	account.AvailableCash += amount
	return nil
}

func (m *memAccounts) ReleaseCrypto(_ context.Context, _ store.Execer, userID string, amount int64) error {
	account, err := m.get(userID)
	if err != nil {
		return err
	}
	if account.ReservedCrypto < amount {
		return ledger.ErrInvariant
	}
	account.ReservedCrypto -= amount
	account.AvailableCrypto += amount
	return nil
}

func (m *memAccounts) SettleReservedCash(_ context.Context, _ store.Execer, userID string, amount int64) error {
	account, err := m.get(userID)
	if err != nil {
		return err
	}
	if account.ReservedCash < amount {
		return ledger.ErrInvariant
	}
	account.ReservedCash -= amount
	return nil
}

func (m *memAccounts) SettleReservedCrypto(_ context.Context, _ store.Execer, userID string, amount int64) error {
	account, err := m.get(userID)
	if err != nil {
		return err
	}
	if account.ReservedCrypto < amount {
		return ledger.ErrInvariant
	}
	account.ReservedCrypto -= amount
	return nil
}

func (m *memAccounts) CreditCash(_ context.Context, _ store.Execer, userID string, amount int64) error {
	account, err := m.get(userID)
	if err != nil {
		return err
	}
	account.AvailableCash += amount
	return nil
}

func (m *memAccounts) CreditCrypto(_ context.Context, _ store.Execer, userID string, amount int64) error {
	account, err := m.get(userID)
	if err != nil {
		return err
	}
	account.AvailableCrypto += amount
	return nil
}

func (m *memAccounts) DebitCash(_ context.Context, _ store.Execer, userID string, amount int64) error {
	account, err := m.get(userID)
	if err != nil {
		return err
	}
	if account.AvailableCash < amount {
		return ledger.ErrInsufficientFunds
	}
	account.AvailableCash -= amount
	return nil
}

func (m *memAccounts) DebitCrypto(_ context.Context, _ store.Execer, userID string, amount int64) error {
	account, err := m.get(userID)
	if err != nil {
		return err
	}
	if account.AvailableCrypto < amount {
		return ledger.ErrInsufficientFunds
	}
	account.AvailableCrypto -= amount
	return nil
}

type memOperations struct {
	ops []*store.Operation
}

func (m *memOperations) find(operationID string) *store.Operation {
	for _, op := range m.ops {
		if op.ID == operationID {
			return op
		}
	}
	return nil
}

func (m *memOperations) Create(_ context.Context, _ store.Execer, input store.OperationInput) error {
	op := &store.Operation{
		ID:             input.ID,
		UserID:         input.UserID,
		Type:           input.Type,
		Status:         input.Status,
		CashAmount:     input.CashAmount,
		CryptoAmount:   input.CryptoAmount,
		ExecutionPrice: input.ExecutionPrice,
		LimitPrice:     input.LimitPrice,
		ParentPlanID:   input.ParentPlanID,
		CreatedAt:      time.Now(),
	}
	m.ops = append(m.ops, op)
	return nil
}

func (m *memOperations) GetByUser(_ context.Context, userID, operationID string) (store.Operation, error) {
	op := m.find(operationID)
	if op == nil || op.UserID != userID {
		return store.Operation{}, sql.ErrNoRows
	}
	return *op, nil
}

func (m *memOperations) MarkExecuted(_ context.Context, _ store.Execer, operationID string, cashAmount, cryptoAmount, executionPrice int64) (int64, error) {
	op := m.find(operationID)
	if op == nil || op.Status != store.OpPending {
		return 0, nil
	}
	op.Status = store.OpExecuted
	op.CashAmount = cashAmount
	op.CryptoAmount = cryptoAmount
	op.ExecutionPrice = &executionPrice
	return 1, nil
}

func (m *memOperations) MarkTerminated(_ context.Context, _ store.Execer, operationID string, status store.OpStatus, reason string) (int64, error) {
	op := m.find(operationID)
	if op == nil || op.Status != store.OpPending {
		return 0, nil
	}
	op.Status = status
	op.CancellationReason = &reason
	return 1, nil
}

func (m *memOperations) ListPendingLimitOrders(_ context.Context) ([]store.Operation, error) {
	var out []store.Operation
	for _, op := range m.ops {
		if op.Status == store.OpPending && (op.Type == store.OpLimitBuy || op.Type == store.OpLimitSell) {
			out = append(out, *op)
		}
	}
	return out, nil
}

func (m *memOperations) ListByUser(_ context.Context, userID string, opType store.OpType, status store.OpStatus, limit, offset int) ([]store.Operation, error) {
	var out []store.Operation
	for _, op := range m.ops {
		if op.UserID != userID {
			continue
		}
		if opType != "" && op.Type != opType {
			continue
		}
		if status != "" && op.Status != status {
			continue
		}
		out = append(out, *op)
	}
	return out, nil
}

func (m *memOperations) ListByPlan(_ context.Context, userID, planID string) ([]store.Operation, error) {
	var out []store.Operation
	for _, op := range m.ops {
		if op.UserID == userID && op.ParentPlanID != nil && *op.ParentPlanID == planID {
			out = append(out, *op)
		}
	}
	return out, nil
}

func (m *memOperations) SumPendingReservations(_ context.Context, userID string) (int64, int64, error) {
	var cash, crypto int64
	for _, op := range m.ops {
		if op.UserID != userID || op.Status != store.OpPending {
			continue
		}
		switch op.Type {
		case store.OpLimitBuy:
			cash += op.CashAmount
		case store.OpLimitSell:
			crypto += op.CryptoAmount
		}
	}
	return cash, crypto, nil
}

type memPlans struct {
	plans map[string]*store.Plan
}

func newMemPlans() *memPlans {
	return &memPlans{plans: map[string]*store.Plan{}}
}

func (m *memPlans) Create(_ context.Context, _ store.Execer, input store.PlanInput) error {
	plan := &store.Plan{
		ID:                 input.ID,
		UserID:             input.UserID,
		PlanType:           input.PlanType,
		Status:             store.PlanActive,
		Frequency:          input.Frequency,
		AmountPerExecution: input.AmountPerExecution,
		NextExecutionAt:    input.NextExecutionAt,
		TotalExecutions:    input.TotalExecutions,
		MaxPrice:           input.MaxPrice,
		MinPrice:           input.MinPrice,
		CreatedAt:          time.Now(),
	}
	if input.TotalExecutions != nil {
		remaining := *input.TotalExecutions
		plan.RemainingExecutions = &remaining
	}
	m.plans[input.ID] = plan
	return nil
}

func (m *memPlans) GetByUser(_ context.Context, userID, planID string) (store.Plan, error) {
	plan, ok := m.plans[planID]
	if !ok || plan.UserID != userID {
		return store.Plan{}, sql.ErrNoRows
	}
	return *plan, nil
}

func (m *memPlans) ListByUser(_ context.Context, userID string) ([]store.Plan, error) {
	var out []store.Plan
	for _, plan := range m.plans {
		if plan.UserID == userID {
			out = append(out, *plan)
		}
	}
	return out, nil
}

func (m *memPlans) ListDue(_ context.Context, now time.Time) ([]store.Plan, error) {
	var out []store.Plan
	for _, plan := range m.plans {
		if plan.Status == store.PlanActive && !plan.NextExecutionAt.After(now) {
			out = append(out, *plan)
		}
	}
	return out, nil
}

func (m *memPlans) GetForUpdate(_ context.Context, _ store.Getter, planID string) (store.Plan, error) {
	plan, ok := m.plans[planID]
	if !ok {
		return store.Plan{}, sql.ErrNoRows
	}
	return *plan, nil
}

func (m *memPlans) Advance(_ context.Context, _ store.Execer, planID string, next time.Time) error {
	if plan, ok := m.plans[planID]; ok {
		plan.NextExecutionAt = next
	}
	return nil
}

func (m *memPlans) RecordExecution(_ context.Context, _ store.Execer, planID string, next time.Time, remaining *int64, status store.PlanStatus) error {
	if plan, ok := m.plans[planID]; ok {
		plan.NextExecutionAt = next
		plan.RemainingExecutions = remaining
		plan.Status = status
	}
	return nil
}

func (m *memPlans) SetStatus(_ context.Context, _ store.Execer, userID, planID string, from, to store.PlanStatus) (int64, error) {
	plan, ok := m.plans[planID]
	if !ok || plan.UserID != userID || plan.Status != from {
		return 0, nil
	}
	plan.Status = to
	return 1, nil
}

type memLoans struct {
	loans map[string]*store.Loan
}

func newMemLoans() *memLoans {
	return &memLoans{loans: map[string]*store.Loan{}}
}

func (m *memLoans) activeByUser(userID string) *store.Loan {
	for _, loan := range m.loans {
		if loan.UserID == userID && loan.Status == store.LoanActive {
			return loan
		}
	}
	return nil
}

func (m *memLoans) Create(_ context.Context, _ store.Execer, loan store.Loan) error {
	copied := loan
	copied.Status = store.LoanActive
	m.loans[loan.ID] = &copied
	return nil
}

func (m *memLoans) GetActiveByUser(_ context.Context, userID string) (store.Loan, error) {
	loan := m.activeByUser(userID)
	if loan == nil {
		return store.Loan{}, sql.ErrNoRows
	}
	return *loan, nil
}

func (m *memLoans) GetActiveForUpdate(_ context.Context, _ store.Getter, userID string) (store.Loan, error) {
	loan := m.activeByUser(userID)
	if loan == nil {
		return store.Loan{}, sql.ErrNoRows
	}
	return *loan, nil
}

func (m *memLoans) ListActive(_ context.Context) ([]store.Loan, error) {
	var out []store.Loan
	for _, loan := range m.loans {
		if loan.Status == store.LoanActive {
			out = append(out, *loan)
		}
	}
	return out, nil
}

func (m *memLoans) UpdateAmounts(_ context.Context, _ store.Execer, loanID string, collateral, borrowed, accrued, interestPaid int64, lastAccrualAt time.Time) error {
	if loan, ok := m.loans[loanID]; ok && loan.Status == store.LoanActive {
		loan.CollateralAmount = collateral
		loan.BorrowedAmount = borrowed
		loan.AccruedInterest = accrued
		loan.InterestPaid = interestPaid
		loan.LastAccrualAt = lastAccrualAt
	}
	return nil
}

func (m *memLoans) Close(_ context.Context, _ store.Execer, loanID string) (int64, error) {
	loan, ok := m.loans[loanID]
	if !ok || loan.Status != store.LoanActive {
		return 0, nil
	}
	loan.Status = store.LoanClosed
	loan.CollateralAmount = 0
	loan.BorrowedAmount = 0
	loan.AccruedInterest = 0
	return 1, nil
}
