package services

import (
	"context"
	"time"

	"papertrade/internal/db"
	"papertrade/internal/ledger"
	"papertrade/internal/money"
	"papertrade/internal/oracle"
	"papertrade/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// DCAExecutor runs due recurring plans. A plan executes directly against
// available balances: commit and execution happen in the same tick, so
// there is no reservation window. A slot whose price bound or balance check
// fails is skipped, not deferred: the schedule always advances, which bounds
// worst-case staleness.
type DCAExecutor struct {
	txRunner    db.TxRunner
	accounts    AccountStore
	ops         OperationStore
	plans       PlanStore
	ledger      Ledger
	oracle      oracle.Source
	hub         BalanceHub
	clock       Clock
	log         *zap.Logger
	itemTimeout time.Duration
}

func NewDCAExecutor(txRunner db.TxRunner, accounts AccountStore, ops OperationStore, plans PlanStore, ledg Ledger, oracle oracle.Source, hub BalanceHub, clock Clock, log *zap.Logger) *DCAExecutor {
	return &DCAExecutor{
		txRunner: txRunner,
		accounts: accounts,
		ops:      ops,
		plans:    plans,
		ledger:   ledg,
		oracle:   oracle,
		hub:      hub,
		clock:    clock,
		log:      log,
	}
}

// SetItemTimeout overrides the per-plan deadline applied within a tick.
func (e *DCAExecutor) SetItemTimeout(d time.Duration) {
	e.itemTimeout = d
}

func (e *DCAExecutor) RunTick(ctx context.Context) TickStats {
	var stats TickStats
	rates, err := e.oracle.CurrentRates(ctx)
	if err != nil {
		e.log.Warn("dca tick skipped: no usable price", zap.Error(err))
		return stats
	}
	now := e.clock.Now()
	due, err := e.plans.ListDue(ctx, now)
	if err != nil {
		e.log.Error("dca tick scan failed", zap.Error(err))
		return stats
	}
	stats.Scanned = len(due)
	for _, plan := range due {
		itemCtx, cancel := itemContext(ctx, e.itemTimeout)
		executed, err := e.executeOne(itemCtx, plan.ID, rates, now)
		cancel()
		if err != nil {
			stats.Failed++
			e.log.Warn("dca plan execution failed, will retry next tick",
				zap.String("plan_id", plan.ID),
				zap.String("user_id", plan.UserID),
				zap.Error(err))
			continue
		}
		if executed {
			stats.Executed++
			broadcastBalances(ctx, e.accounts, e.hub, e.log, plan.UserID)
		} else {
			stats.Skipped++
		}
	}
	e.log.Info("dca tick done",
		zap.Int("scanned", stats.Scanned),
		zap.Int("executed", stats.Executed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed))
	return stats
}

func (e *DCAExecutor) executeOne(ctx context.Context, planID string, rates oracle.Rates, now time.Time) (bool, error) {
	executed := false
	err := e.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		executed = false
		plan, err := e.plans.GetForUpdate(ctx, tx, planID)
		if err != nil {
			return err
		}
		// Re-check under the lock: another tick may have advanced or a
		// user may have paused the plan since the scan.
		if plan.Status != store.PlanActive || plan.NextExecutionAt.After(now) {
			return nil
		}
		next := now.Add(plan.Frequency.Interval())
		if !priceBoundSatisfied(plan, rates) {
			return e.plans.Advance(ctx, tx, planID, next)
		}
		if _, err := e.accounts.GetForUpdate(ctx, tx, plan.UserID); err != nil {
			return err
		}
		if err := e.applyTrade(ctx, tx, plan, rates); err != nil {
			if err == ledger.ErrInsufficientFunds {
				// Skipped slot, not an error: the schedule advances and
				// the user can fund the account before the next one.
				return e.plans.Advance(ctx, tx, planID, next)
			}
			return err
		}
		executed = true
		remaining := plan.RemainingExecutions
		status := store.PlanActive
		if remaining != nil {
			left := *remaining - 1
			remaining = &left
			if left == 0 {
				status = store.PlanCompleted
			}
		}
		return e.plans.RecordExecution(ctx, tx, planID, next, remaining, status)
	})
	return executed, err
}

func priceBoundSatisfied(plan store.Plan, rates oracle.Rates) bool {
	if plan.PlanType == store.PlanBuy {
		return plan.MaxPrice == nil || rates.Buy <= *plan.MaxPrice
	}
	return plan.MinPrice == nil || rates.Sell >= *plan.MinPrice
}

func (e *DCAExecutor) applyTrade(ctx context.Context, tx *sqlx.Tx, plan store.Plan, rates oracle.Rates) error {
	planID := plan.ID
	if plan.PlanType == store.PlanBuy {
		credited := money.CryptoFromCash(plan.AmountPerExecution, rates.Buy)
		if err := e.ledger.DebitCash(ctx, tx, plan.UserID, plan.AmountPerExecution); err != nil {
			return err
		}
		if err := e.ledger.CreditCrypto(ctx, tx, plan.UserID, credited); err != nil {
			return err
		}
		price := rates.Buy
		return e.ops.Create(ctx, tx, store.OperationInput{
			ID:             uuid.NewString(),
			UserID:         plan.UserID,
			Type:           store.OpDCABuy,
			Status:         store.OpExecuted,
			CashAmount:     plan.AmountPerExecution,
			CryptoAmount:   credited,
			ExecutionPrice: &price,
			ParentPlanID:   &planID,
		})
	}
	credited := money.CashFromCrypto(plan.AmountPerExecution, rates.Sell)
	if err := e.ledger.DebitCrypto(ctx, tx, plan.UserID, plan.AmountPerExecution); err != nil {
		return err
	}
	if err := e.ledger.CreditCash(ctx, tx, plan.UserID, credited); err != nil {
		return err
	}
	price := rates.Sell
	return e.ops.Create(ctx, tx, store.OperationInput{
		ID:             uuid.NewString(),
		UserID:         plan.UserID,
		Type:           store.OpDCASell,
		Status:         store.OpExecuted,
		CashAmount:     credited,
		CryptoAmount:   plan.AmountPerExecution,
		ExecutionPrice: &price,
		ParentPlanID:   &planID,
	})
}
