package services

import (
	"context"

	"papertrade/internal/db"
	"papertrade/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// OrderService is the request-driven side of limit orders: placing commits
// funds via the reservation protocol, cancelling releases them. Execution
// belongs to the LimitOrderExecutor.
type OrderService struct {
	txRunner db.TxRunner
	accounts AccountStore
	ops      OperationStore
	ledger   Ledger
	hub      BalanceHub
	log      *zap.Logger
}

func NewOrderService(txRunner db.TxRunner, accounts AccountStore, ops OperationStore, ledger Ledger, hub BalanceHub, log *zap.Logger) *OrderService {
	return &OrderService{
		txRunner: txRunner,
		accounts: accounts,
		ops:      ops,
		ledger:   ledger,
		hub:      hub,
		log:      log,
	}
}

type PlaceLimitOrderRequest struct {
	UserID string
	Type   store.OpType // LIMIT_BUY or LIMIT_SELL
	// Amount is the committed quantity: cash minor units for a buy,
	// crypto minor units for a sell.
	Amount     int64
	LimitPrice int64
}

func (s *OrderService) PlaceLimitOrder(ctx context.Context, req PlaceLimitOrderRequest) (string, error) {
	if req.Amount <= 0 {
		return "", ErrInvalidAmount
	}
	if req.LimitPrice <= 0 {
		return "", ErrInvalidPrice
	}
	if req.Type != store.OpLimitBuy && req.Type != store.OpLimitSell {
		return "", ErrInvalidAmount
	}
	operationID := uuid.NewString()
	limitPrice := req.LimitPrice
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.accounts.GetForUpdate(ctx, tx, req.UserID); err != nil {
			return err
		}
		input := store.OperationInput{
			ID:         operationID,
			UserID:     req.UserID,
			Type:       req.Type,
			Status:     store.OpPending,
			LimitPrice: &limitPrice,
		}
		if req.Type == store.OpLimitBuy {
			if err := s.ledger.ReserveCash(ctx, tx, req.UserID, req.Amount); err != nil {
				return err
			}
			input.CashAmount = req.Amount
		} else {
			if err := s.ledger.ReserveCrypto(ctx, tx, req.UserID, req.Amount); err != nil {
				return err
			}
			input.CryptoAmount = req.Amount
		}
		return s.ops.Create(ctx, tx, input)
	})
	if err != nil {
		return "", err
	}
	broadcastBalances(ctx, s.accounts, s.hub, s.log, req.UserID)
	return operationID, nil
}

// CancelOrder releases the reservation unconditionally once it wins the
// terminal transition. A racer that already executed or cancelled the order
// makes this a conflict; callers treat it as "nothing left to cancel".
func (s *OrderService) CancelOrder(ctx context.Context, userID, operationID, reason string) error {
	op, err := s.ops.GetByUser(ctx, userID, operationID)
	if err != nil {
		if isNoRows(err) {
			return ErrNotFound
		}
		return err
	}
	if op.Type != store.OpLimitBuy && op.Type != store.OpLimitSell {
		return ErrNotFound
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.accounts.GetForUpdate(ctx, tx, userID); err != nil {
			return err
		}
		affected, err := s.ops.MarkTerminated(ctx, tx, operationID, store.OpCancelled, reason)
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrConflict
		}
		if op.Type == store.OpLimitBuy {
			return s.ledger.ReleaseCash(ctx, tx, userID, op.CashAmount)
		}
		return s.ledger.ReleaseCrypto(ctx, tx, userID, op.CryptoAmount)
	})
	if err != nil {
		return err
	}
	broadcastBalances(ctx, s.accounts, s.hub, s.log, userID)
	return nil
}

func (s *OrderService) ListOperations(ctx context.Context, userID string, opType store.OpType, status store.OpStatus, limit, offset int) ([]store.Operation, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.ops.ListByUser(ctx, userID, opType, status, limit, offset)
}
