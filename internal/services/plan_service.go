package services

import (
	"context"

	"papertrade/internal/db"
	"papertrade/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PlanService manages DCA plan lifecycle. Pause/resume/delete only affect
// scheduling; executed history survives via the parent_plan_id
// back-reference on operations.
type PlanService struct {
	txRunner db.TxRunner
	plans    PlanStore
	ops      OperationStore
	clock    Clock
}

func NewPlanService(txRunner db.TxRunner, plans PlanStore, ops OperationStore, clock Clock) *PlanService {
	return &PlanService{
		txRunner: txRunner,
		plans:    plans,
		ops:      ops,
		clock:    clock,
	}
}

type CreatePlanRequest struct {
	UserID   string
	PlanType store.PlanType
	// AmountPerExecution is cash minor units for a BUY plan, crypto minor
	// units for a SELL plan.
	AmountPerExecution int64
	Frequency          store.Frequency
	TotalExecutions    *int64
	MaxPrice           *int64
	MinPrice           *int64
}

func (s *PlanService) CreatePlan(ctx context.Context, req CreatePlanRequest) (string, error) {
	if req.AmountPerExecution <= 0 {
		return "", ErrInvalidAmount
	}
	if !req.Frequency.Valid() {
		return "", ErrInvalidFrequency
	}
	if req.PlanType != store.PlanBuy && req.PlanType != store.PlanSell {
		return "", ErrInvalidAmount
	}
	if req.TotalExecutions != nil && *req.TotalExecutions <= 0 {
		return "", ErrInvalidAmount
	}
	if req.MaxPrice != nil && *req.MaxPrice <= 0 {
		return "", ErrInvalidPrice
	}
	if req.MinPrice != nil && *req.MinPrice <= 0 {
		return "", ErrInvalidPrice
	}
	planID := uuid.NewString()
	// First execution fires on the next executor tick.
	next := s.clock.Now()
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.plans.Create(ctx, tx, store.PlanInput{
			ID:                 planID,
			UserID:             req.UserID,
			PlanType:           req.PlanType,
			Frequency:          req.Frequency,
			AmountPerExecution: req.AmountPerExecution,
			NextExecutionAt:    next,
			TotalExecutions:    req.TotalExecutions,
			MaxPrice:           req.MaxPrice,
			MinPrice:           req.MinPrice,
		})
	})
	if err != nil {
		return "", err
	}
	return planID, nil
}

func (s *PlanService) PausePlan(ctx context.Context, userID, planID string) error {
	return s.transition(ctx, userID, planID, store.PlanActive, store.PlanPaused)
}

// ResumePlan reactivates a paused plan. Missed slots are not replayed: the
// next execution is rescheduled from now.
func (s *PlanService) ResumePlan(ctx context.Context, userID, planID string) error {
	now := s.clock.Now()
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		affected, err := s.plans.SetStatus(ctx, tx, userID, planID, store.PlanPaused, store.PlanActive)
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotFound
		}
		return s.plans.Advance(ctx, tx, planID, now)
	})
}

// DeletePlan cancels the plan. The row stays for history; child operations
// keep their back-reference.
func (s *PlanService) DeletePlan(ctx context.Context, userID, planID string) error {
	err := s.transition(ctx, userID, planID, store.PlanActive, store.PlanCancelled)
	if err == ErrNotFound {
		return s.transition(ctx, userID, planID, store.PlanPaused, store.PlanCancelled)
	}
	return err
}

func (s *PlanService) transition(ctx context.Context, userID, planID string, from, to store.PlanStatus) error {
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		affected, err := s.plans.SetStatus(ctx, tx, userID, planID, from, to)
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *PlanService) ListPlans(ctx context.Context, userID string) ([]store.Plan, error) {
	return s.plans.ListByUser(ctx, userID)
}

func (s *PlanService) GetPlan(ctx context.Context, userID, planID string) (store.Plan, error) {
	plan, err := s.plans.GetByUser(ctx, userID, planID)
	if err != nil {
		if isNoRows(err) {
			return store.Plan{}, ErrNotFound
		}
		return store.Plan{}, err
	}
	return plan, nil
}

func (s *PlanService) PlanHistory(ctx context.Context, userID, planID string) ([]store.Operation, error) {
	return s.ops.ListByPlan(ctx, userID, planID)
}
