package services

import (
	"context"
	"errors"
	"time"

	"papertrade/internal/store"
	"papertrade/internal/websocket"
)

// Shared error taxonomy for the engine services. Request-driven paths surface
// these to the handlers; periodic jobs contain them per item.
var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidPrice     = errors.New("invalid price")
	ErrInvalidFrequency = errors.New("unsupported frequency")
	ErrNotFound         = errors.New("not found")
	// ErrConflict means this caller lost a race to terminate the same
	// pending item. The winner already applied the transition; for the
	// loser it is a benign no-op.
	ErrConflict = errors.New("operation already terminated")
)

type AccountStore interface {
	GetByUser(ctx context.Context, userID string) (store.Account, error)
	GetForUpdate(ctx context.Context, tx store.Getter, userID string) (store.Account, error)
}

type OperationStore interface {
	Create(ctx context.Context, tx store.Execer, input store.OperationInput) error
	GetByUser(ctx context.Context, userID, operationID string) (store.Operation, error)
	MarkExecuted(ctx context.Context, tx store.Execer, operationID string, cashAmount, cryptoAmount, executionPrice int64) (int64, error)
	MarkTerminated(ctx context.Context, tx store.Execer, operationID string, status store.OpStatus, reason string) (int64, error)
	ListPendingLimitOrders(ctx context.Context) ([]store.Operation, error)
	ListByUser(ctx context.Context, userID string, opType store.OpType, status store.OpStatus, limit, offset int) ([]store.Operation, error)
	ListByPlan(ctx context.Context, userID, planID string) ([]store.Operation, error)
	SumPendingReservations(ctx context.Context, userID string) (int64, int64, error)
}

type PlanStore interface {
	Create(ctx context.Context, tx store.Execer, input store.PlanInput) error
	GetByUser(ctx context.Context, userID, planID string) (store.Plan, error)
	ListByUser(ctx context.Context, userID string) ([]store.Plan, error)
	ListDue(ctx context.Context, now time.Time) ([]store.Plan, error)
	GetForUpdate(ctx context.Context, tx store.Getter, planID string) (store.Plan, error)
	Advance(ctx context.Context, tx store.Execer, planID string, next time.Time) error
	RecordExecution(ctx context.Context, tx store.Execer, planID string, next time.Time, remaining *int64, status store.PlanStatus) error
	SetStatus(ctx context.Context, tx store.Execer, userID, planID string, from, to store.PlanStatus) (int64, error)
}

type LoanStore interface {
	Create(ctx context.Context, tx store.Execer, loan store.Loan) error
	GetActiveByUser(ctx context.Context, userID string) (store.Loan, error)
	GetActiveForUpdate(ctx context.Context, tx store.Getter, userID string) (store.Loan, error)
	ListActive(ctx context.Context) ([]store.Loan, error)
	UpdateAmounts(ctx context.Context, tx store.Execer, loanID string, collateral, borrowed, accrued, interestPaid int64, lastAccrualAt time.Time) error
	Close(ctx context.Context, tx store.Execer, loanID string) (int64, error)
}

// Ledger is the reservation protocol surface the services are allowed to
// touch; all balance mutation goes through it.
type Ledger interface {
	ReserveCash(ctx context.Context, tx store.Execer, userID string, amount int64) error
	ReserveCrypto(ctx context.Context, tx store.Execer, userID string, amount int64) error
	ReleaseCash(ctx context.Context, tx store.Execer, userID string, amount int64) error
	ReleaseCrypto(ctx context.Context, tx store.Execer, userID string, amount int64) error
	SettleReservedCash(ctx context.Context, tx store.Execer, userID string, amount int64) error
	SettleReservedCrypto(ctx context.Context, tx store.Execer, userID string, amount int64) error
	CreditCash(ctx context.Context, tx store.Execer, userID string, amount int64) error
	CreditCrypto(ctx context.Context, tx store.Execer, userID string, amount int64) error
	DebitCash(ctx context.Context, tx store.Execer, userID string, amount int64) error
	DebitCrypto(ctx context.Context, tx store.Execer, userID string, amount int64) error
}

type BalanceHub interface {
	BroadcastBalance(userID string, update websocket.BalanceUpdate)
}

// TickStats aggregates per-item outcomes of one periodic pass. Failures are
// contained per item and surface here, never as a batch abort.
type TickStats struct {
	Scanned  int
	Executed int
	Skipped  int
	Failed   int
}

// DefaultItemTimeout bounds a single item of a periodic pass. A stuck
// oracle or database call times that item out and the pass moves on.
const DefaultItemTimeout = 10 * time.Second

func itemContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultItemTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}
