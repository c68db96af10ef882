package store

import (
	"context"
	"fmt"
	"time"
)

func itoa(value int) string {
	return fmt.Sprintf("%d", value)
}

type OpType string

const (
	OpCashDeposit        OpType = "CASH_DEPOSIT"
	OpCashWithdraw       OpType = "CASH_WITHDRAW"
	OpCryptoDeposit      OpType = "CRYPTO_DEPOSIT"
	OpCryptoWithdraw     OpType = "CRYPTO_WITHDRAW"
	OpMarketBuy          OpType = "MARKET_BUY"
	OpMarketSell         OpType = "MARKET_SELL"
	OpLimitBuy           OpType = "LIMIT_BUY"
	OpLimitSell          OpType = "LIMIT_SELL"
	OpDCABuy             OpType = "DCA_BUY"
	OpDCASell            OpType = "DCA_SELL"
	OpLoanCreate         OpType = "LOAN_CREATE"
	OpLoanBorrow         OpType = "LOAN_BORROW"
	OpLoanRepay          OpType = "LOAN_REPAY"
	OpLoanAddCollateral  OpType = "LOAN_ADD_COLLATERAL"
	OpInterestAccrual    OpType = "INTEREST_ACCRUAL"
	OpPartialLiquidation OpType = "PARTIAL_LIQUIDATION"
	OpFullLiquidation    OpType = "FULL_LIQUIDATION"
)

func (t OpType) Valid() bool {
	switch t {
	case OpCashDeposit, OpCashWithdraw, OpCryptoDeposit, OpCryptoWithdraw,
		OpMarketBuy, OpMarketSell, OpLimitBuy, OpLimitSell, OpDCABuy, OpDCASell,
		OpLoanCreate, OpLoanBorrow, OpLoanRepay, OpLoanAddCollateral,
		OpInterestAccrual, OpPartialLiquidation, OpFullLiquidation:
		return true
	}
	return false
}

type OpStatus string

const (
	OpPending   OpStatus = "PENDING"
	OpExecuted  OpStatus = "EXECUTED"
	OpCancelled OpStatus = "CANCELLED"
	OpExpired   OpStatus = "EXPIRED"
)

// Operation is an immutable ledger entry. Once status leaves PENDING it is
// terminal; execution_price is set iff status is EXECUTED.
type Operation struct {
	ID                 string     `db:"id"`
	UserID             string     `db:"user_id"`
	Type               OpType     `db:"type"`
	Status             OpStatus   `db:"status"`
	CashAmount         int64      `db:"cash_amount"`
	CryptoAmount       int64      `db:"crypto_amount"`
	ExecutionPrice     *int64     `db:"execution_price"`
	LimitPrice         *int64     `db:"limit_price"`
	ParentPlanID       *string    `db:"parent_plan_id"`
	CancellationReason *string    `db:"cancellation_reason"`
	CreatedAt          time.Time  `db:"created_at"`
	ExecutedAt         *time.Time `db:"executed_at"`
	CancelledAt        *time.Time `db:"cancelled_at"`
}

type OperationInput struct {
	ID             string
	UserID         string
	Type           OpType
	Status         OpStatus
	CashAmount     int64
	CryptoAmount   int64
	ExecutionPrice *int64
	LimitPrice     *int64
	ParentPlanID   *string
}

type OperationStore struct {
	db DB
}

func NewOperationStore(db DB) *OperationStore {
	return &OperationStore{db: db}
}

func (s *OperationStore) Create(ctx context.Context, tx Execer, input OperationInput) error {
	query := `
		INSERT INTO operations (id, user_id, type, status, cash_amount, crypto_amount, execution_price, limit_price, parent_plan_id, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, CASE WHEN $4 = 'EXECUTED' THEN NOW() ELSE NULL END)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.UserID, string(input.Type), string(input.Status),
		input.CashAmount, input.CryptoAmount, input.ExecutionPrice, input.LimitPrice, input.ParentPlanID,
	)
	return err
}

func (s *OperationStore) GetByUser(ctx context.Context, userID, operationID string) (Operation, error) {
	var row Operation
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, type, status, cash_amount, crypto_amount, execution_price, limit_price,
		       parent_plan_id, cancellation_reason, created_at, executed_at, cancelled_at
		FROM operations
		WHERE id = $1 AND user_id = $2
	`, operationID, userID)
	if err != nil {
		return Operation{}, err
	}
	return row, nil
}

// MarkExecuted performs the PENDING -> EXECUTED transition, setting the final
// amounts and execution price. The status guard makes concurrent terminal
// transitions race-safe: exactly one caller sees one affected row.
func (s *OperationStore) MarkExecuted(ctx context.Context, tx Execer, operationID string, cashAmount, cryptoAmount, executionPrice int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE operations
		SET status = 'EXECUTED', cash_amount = $1, crypto_amount = $2, execution_price = $3, executed_at = NOW()
		WHERE id = $4 AND status = 'PENDING'
	`, cashAmount, cryptoAmount, executionPrice, operationID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkTerminated performs a PENDING -> CANCELLED/EXPIRED transition with the
// same single-winner guard as MarkExecuted.
func (s *OperationStore) MarkTerminated(ctx context.Context, tx Execer, operationID string, status OpStatus, reason string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE operations
		SET status = $1, cancellation_reason = $2, cancelled_at = NOW()
		WHERE id = $3 AND status = 'PENDING'
	`, string(status), reason, operationID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListPendingLimitOrders returns every PENDING limit order, oldest first.
// First committed, first executed.
func (s *OperationStore) ListPendingLimitOrders(ctx context.Context) ([]Operation, error) {
	var rows []Operation
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, type, status, cash_amount, crypto_amount, execution_price, limit_price,
		       parent_plan_id, cancellation_reason, created_at, executed_at, cancelled_at
		FROM operations
		WHERE status = 'PENDING' AND type IN ('LIMIT_BUY', 'LIMIT_SELL')
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *OperationStore) ListByUser(ctx context.Context, userID string, opType OpType, status OpStatus, limit, offset int) ([]Operation, error) {
	query := `
		SELECT id, user_id, type, status, cash_amount, crypto_amount, execution_price, limit_price,
		       parent_plan_id, cancellation_reason, created_at, executed_at, cancelled_at
		FROM operations
		WHERE user_id = $1
	`
	args := []any{userID}
	if opType != "" {
		args = append(args, string(opType))
		query += ` AND type = $2`
	}
	if status != "" {
		args = append(args, string(status))
		query += ` AND status = $` + itoa(len(args))
	}
	args = append(args, limit, offset)
	query += ` ORDER BY created_at DESC LIMIT $` + itoa(len(args)-1) + ` OFFSET $` + itoa(len(args))
	var rows []Operation
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *OperationStore) ListByPlan(ctx context.Context, userID, planID string) ([]Operation, error) {
	var rows []Operation
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, type, status, cash_amount, crypto_amount, execution_price, limit_price,
		       parent_plan_id, cancellation_reason, created_at, executed_at, cancelled_at
		FROM operations
		WHERE user_id = $1 AND parent_plan_id = $2
		ORDER BY created_at DESC
	`, userID, planID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// SumPendingReservations recomputes what the account's reserved balances
// should be from PENDING limit orders. The self-check endpoint compares this
// against the stored balances.
func (s *OperationStore) SumPendingReservations(ctx context.Context, userID string) (cash int64, crypto int64, err error) {
	err = s.db.GetContext(ctx, &cash, `
		SELECT COALESCE(SUM(cash_amount), 0)
		FROM operations
		WHERE user_id = $1 AND status = 'PENDING' AND type = 'LIMIT_BUY'
	`, userID)
	if err != nil {
		return 0, 0, err
	}
	err = s.db.GetContext(ctx, &crypto, `
		SELECT COALESCE(SUM(crypto_amount), 0)
		FROM operations
		WHERE user_id = $1 AND status = 'PENDING' AND type = 'LIMIT_SELL'
	`, userID)
	if err != nil {
		return 0, 0, err
	}
	return cash, crypto, nil
}
