package services

import (
	"context"
	"time"

	"papertrade/internal/db"
	"papertrade/internal/money"
	"papertrade/internal/oracle"
	"papertrade/internal/store"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// LimitOrderExecutor is the periodic job that executes pending limit orders
// once the oracle rate crosses their trigger. Rates are fetched once per
// tick; each order executes in its own transaction so one failure never
// blocks the rest of the pass.
type LimitOrderExecutor struct {
	txRunner    db.TxRunner
	accounts    AccountStore
	ops         OperationStore
	ledger      Ledger
	oracle      oracle.Source
	hub         BalanceHub
	log         *zap.Logger
	itemTimeout time.Duration
}

func NewLimitOrderExecutor(txRunner db.TxRunner, accounts AccountStore, ops OperationStore, ledger Ledger, oracle oracle.Source, hub BalanceHub, log *zap.Logger) *LimitOrderExecutor {
	return &LimitOrderExecutor{
		txRunner: txRunner,
		accounts: accounts,
		ops:      ops,
		ledger:   ledger,
		oracle:   oracle,
		hub:      hub,
		log:      log,
	}
}

// SetItemTimeout overrides the per-order deadline applied within a tick.
func (e *LimitOrderExecutor) SetItemTimeout(d time.Duration) {
	e.itemTimeout = d
}

func (e *LimitOrderExecutor) RunTick(ctx context.Context) TickStats {
	var stats TickStats
	rates, err := e.oracle.CurrentRates(ctx)
	if err != nil {
		e.log.Warn("limit tick skipped: no usable price", zap.Error(err))
		return stats
	}
	pending, err := e.ops.ListPendingLimitOrders(ctx)
	if err != nil {
		e.log.Error("limit tick scan failed", zap.Error(err))
		return stats
	}
	stats.Scanned = len(pending)
	for _, op := range pending {
		if !triggered(op, rates) {
			stats.Skipped++
			continue
		}
		itemCtx, cancel := itemContext(ctx, e.itemTimeout)
		err := e.executeOne(itemCtx, op, rates)
		cancel()
		if err != nil {
			if err == ErrConflict {
				// Lost to a concurrent cancel; the order is terminal.
				stats.Skipped++
				continue
			}
			stats.Failed++
			e.log.Warn("limit order execution failed, will retry next tick",
				zap.String("operation_id", op.ID),
				zap.String("user_id", op.UserID),
				zap.Error(err))
			continue
		}
		stats.Executed++
		broadcastBalances(ctx, e.accounts, e.hub, e.log, op.UserID)
	}
	e.log.Info("limit tick done",
		zap.Int("scanned", stats.Scanned),
		zap.Int("executed", stats.Executed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed))
	return stats
}

// The limit price is only a trigger; execution happens at the oracle rate
// current when the trigger fires.
func triggered(op store.Operation, rates oracle.Rates) bool {
	if op.LimitPrice == nil {
		return false
	}
	switch op.Type {
	case store.OpLimitBuy:
		return rates.Buy <= *op.LimitPrice
	case store.OpLimitSell:
		return rates.Sell >= *op.LimitPrice
	}
	return false
}

func (e *LimitOrderExecutor) executeOne(ctx context.Context, op store.Operation, rates oracle.Rates) error {
	return e.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := e.accounts.GetForUpdate(ctx, tx, op.UserID); err != nil {
			return err
		}
		if op.Type == store.OpLimitBuy {
			credited := money.CryptoFromCash(op.CashAmount, rates.Buy)
			affected, err := e.ops.MarkExecuted(ctx, tx, op.ID, op.CashAmount, credited, rates.Buy)
			if err != nil {
				return err
			}
			if affected == 0 {
				return ErrConflict
			}
			if err := e.ledger.SettleReservedCash(ctx, tx, op.UserID, op.CashAmount); err != nil {
				return err
			}
			return e.ledger.CreditCrypto(ctx, tx, op.UserID, credited)
		}
		credited := money.CashFromCrypto(op.CryptoAmount, rates.Sell)
		affected, err := e.ops.MarkExecuted(ctx, tx, op.ID, credited, op.CryptoAmount, rates.Sell)
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrConflict
		}
		if err := e.ledger.SettleReservedCrypto(ctx, tx, op.UserID, op.CryptoAmount); err != nil {
			return err
		}
		return e.ledger.CreditCash(ctx, tx, op.UserID, credited)
	})
}
