package store

import (
	"context"
	"time"
)

type PlanType string

const (
	PlanBuy  PlanType = "BUY"
	PlanSell PlanType = "SELL"
)

type PlanStatus string

const (
	PlanActive    PlanStatus = "ACTIVE"
	PlanPaused    PlanStatus = "PAUSED"
	PlanCompleted PlanStatus = "COMPLETED"
	PlanCancelled PlanStatus = "CANCELLED"
)

type Frequency string

const (
	FreqHourly  Frequency = "HOURLY"
	FreqDaily   Frequency = "DAILY"
	FreqWeekly  Frequency = "WEEKLY"
	FreqMonthly Frequency = "MONTHLY"
)

func (f Frequency) Valid() bool {
	switch f {
	case FreqHourly, FreqDaily, FreqWeekly, FreqMonthly:
		return true
	}
	return false
}

// Interval returns the scheduling step for the frequency. Months are a fixed
// 30 days; the schedule is a paper-trading cadence, not a calendar.
func (f Frequency) Interval() time.Duration {
	switch f {
	case FreqHourly:
		return time.Hour
	case FreqDaily:
		return 24 * time.Hour
	case FreqWeekly:
		return 7 * 24 * time.Hour
	case FreqMonthly:
		return 30 * 24 * time.Hour
	}
	return 24 * time.Hour
}

type Plan struct {
	ID                  string     `db:"id"`
	UserID              string     `db:"user_id"`
	PlanType            PlanType   `db:"plan_type"`
	Status              PlanStatus `db:"status"`
	Frequency           Frequency  `db:"frequency"`
	AmountPerExecution  int64      `db:"amount_per_execution"`
	NextExecutionAt     time.Time  `db:"next_execution_at"`
	TotalExecutions     *int64     `db:"total_executions"`
	RemainingExecutions *int64     `db:"remaining_executions"`
	MaxPrice            *int64     `db:"max_price"`
	MinPrice            *int64     `db:"min_price"`
	CreatedAt           time.Time  `db:"created_at"`
}

type PlanInput struct {
	ID                 string
	UserID             string
	PlanType           PlanType
	Frequency          Frequency
	AmountPerExecution int64
	NextExecutionAt    time.Time
	TotalExecutions    *int64
	MaxPrice           *int64
	MinPrice           *int64
}

type PlanStore struct {
	db DB
}

func NewPlanStore(db DB) *PlanStore {
	return &PlanStore{db: db}
}

func (s *PlanStore) Create(ctx context.Context, tx Execer, input PlanInput) error {
	query := `
		INSERT INTO dca_plans (id, user_id, plan_type, status, frequency, amount_per_execution,
		                       next_execution_at, total_executions, remaining_executions, max_price, min_price)
		VALUES ($1, $2, $3, 'ACTIVE', $4, $5, $6, $7, $7, $8, $9)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.UserID, string(input.PlanType), string(input.Frequency),
		input.AmountPerExecution, input.NextExecutionAt, input.TotalExecutions,
		input.MaxPrice, input.MinPrice,
	)
	return err
}

func (s *PlanStore) GetByUser(ctx context.Context, userID, planID string) (Plan, error) {
	var row Plan
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, plan_type, status, frequency, amount_per_execution, next_execution_at,
		       total_executions, remaining_executions, max_price, min_price, created_at
		FROM dca_plans
		WHERE id = $1 AND user_id = $2
	`, planID, userID)
	if err != nil {
		return Plan{}, err
	}
	return row, nil
}

func (s *PlanStore) ListByUser(ctx context.Context, userID string) ([]Plan, error) {
	var rows []Plan
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, plan_type, status, frequency, amount_per_execution, next_execution_at,
		       total_executions, remaining_executions, max_price, min_price, created_at
		FROM dca_plans
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListDue returns ACTIVE plans whose next execution time has passed.
func (s *PlanStore) ListDue(ctx context.Context, now time.Time) ([]Plan, error) {
	var rows []Plan
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, plan_type, status, frequency, amount_per_execution, next_execution_at,
		       total_executions, remaining_executions, max_price, min_price, created_at
		FROM dca_plans
		WHERE status = 'ACTIVE' AND next_execution_at <= $1
		ORDER BY next_execution_at ASC
	`, now)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// GetForUpdate re-reads a plan under a row lock so the executor can re-check
// due-ness and status after winning the lock.
func (s *PlanStore) GetForUpdate(ctx context.Context, tx Getter, planID string) (Plan, error) {
	var row Plan
	err := tx.GetContext(ctx, &row, `
		SELECT id, user_id, plan_type, status, frequency, amount_per_execution, next_execution_at,
		       total_executions, remaining_executions, max_price, min_price, created_at
		FROM dca_plans
		WHERE id = $1
		FOR UPDATE
	`, planID)
	if err != nil {
		return Plan{}, err
	}
	return row, nil
}

// Advance moves the schedule forward without recording an execution (skipped
// slot: price bound unmet or balance short).
func (s *PlanStore) Advance(ctx context.Context, tx Execer, planID string, next time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE dca_plans
		SET next_execution_at = $1, updated_at = NOW()
		WHERE id = $2
	`, next, planID)
	return err
}

// RecordExecution advances the schedule and applies the post-execution
// counters in one statement. remaining is nil for unbounded plans.
func (s *PlanStore) RecordExecution(ctx context.Context, tx Execer, planID string, next time.Time, remaining *int64, status PlanStatus) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE dca_plans
		SET next_execution_at = $1, remaining_executions = $2, status = $3, updated_at = NOW()
		WHERE id = $4
	`, next, remaining, string(status), planID)
	return err
}

// SetStatus transitions a plan between user-controlled states. The from
// guard keeps pause/resume/cancel from clobbering a COMPLETED plan.
func (s *PlanStore) SetStatus(ctx context.Context, tx Execer, userID, planID string, from, to PlanStatus) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE dca_plans
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND user_id = $3 AND status = $4
	`, string(to), planID, userID, string(from))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
