package services

import (
	"context"

	"papertrade/internal/db"
	"papertrade/internal/money"
	"papertrade/internal/oracle"
	"papertrade/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// AccountService covers paper funding (deposit/withdraw both units), market
// orders at the current oracle rate, and the balance read side.
type AccountService struct {
	txRunner db.TxRunner
	accounts AccountStore
	ops      OperationStore
	loans    LoanStore
	ledger   Ledger
	oracle   oracle.Source
	hub      BalanceHub
	log      *zap.Logger
}

func NewAccountService(txRunner db.TxRunner, accounts AccountStore, ops OperationStore, loans LoanStore, ledger Ledger, oracle oracle.Source, hub BalanceHub, log *zap.Logger) *AccountService {
	return &AccountService{
		txRunner: txRunner,
		accounts: accounts,
		ops:      ops,
		loans:    loans,
		ledger:   ledger,
		oracle:   oracle,
		hub:      hub,
		log:      log,
	}
}

func (s *AccountService) DepositCash(ctx context.Context, userID string, amount int64) (string, error) {
	return s.fund(ctx, userID, amount, store.OpCashDeposit)
}

func (s *AccountService) WithdrawCash(ctx context.Context, userID string, amount int64) (string, error) {
	return s.fund(ctx, userID, amount, store.OpCashWithdraw)
}

func (s *AccountService) DepositCrypto(ctx context.Context, userID string, amount int64) (string, error) {
	return s.fund(ctx, userID, amount, store.OpCryptoDeposit)
}

func (s *AccountService) WithdrawCrypto(ctx context.Context, userID string, amount int64) (string, error) {
	return s.fund(ctx, userID, amount, store.OpCryptoWithdraw)
}

func (s *AccountService) fund(ctx context.Context, userID string, amount int64, opType store.OpType) (string, error) {
	if amount <= 0 {
		return "", ErrInvalidAmount
	}
	operationID := uuid.NewString()
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.accounts.GetForUpdate(ctx, tx, userID); err != nil {
			return err
		}
		var err error
		var cashAmount, cryptoAmount int64
		switch opType {
		case store.OpCashDeposit:
			cashAmount = amount
			err = s.ledger.CreditCash(ctx, tx, userID, amount)
		case store.OpCashWithdraw:
			cashAmount = amount
			err = s.ledger.DebitCash(ctx, tx, userID, amount)
		case store.OpCryptoDeposit:
			cryptoAmount = amount
			err = s.ledger.CreditCrypto(ctx, tx, userID, amount)
		case store.OpCryptoWithdraw:
			cryptoAmount = amount
			err = s.ledger.DebitCrypto(ctx, tx, userID, amount)
		default:
			return ErrInvalidAmount
		}
		if err != nil {
			return err
		}
		return s.ops.Create(ctx, tx, store.OperationInput{
			ID:           operationID,
			UserID:       userID,
			Type:         opType,
			Status:       store.OpExecuted,
			CashAmount:   cashAmount,
			CryptoAmount: cryptoAmount,
		})
	})
	if err != nil {
		return "", err
	}
	s.broadcastBalances(ctx, userID)
	return operationID, nil
}

// MarketBuy spends cash at the current buy rate, crediting crypto in the
// same transaction. No reservation step: there is no pending window.
func (s *AccountService) MarketBuy(ctx context.Context, userID string, cashAmount int64) (string, error) {
	if cashAmount <= 0 {
		return "", ErrInvalidAmount
	}
	rates, err := s.oracle.CurrentRates(ctx)
	if err != nil {
		return "", err
	}
	operationID := uuid.NewString()
	credited := money.CryptoFromCash(cashAmount, rates.Buy)
	if credited <= 0 {
		return "", ErrInvalidAmount
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.accounts.GetForUpdate(ctx, tx, userID); err != nil {
			return err
		}
		if err := s.ledger.DebitCash(ctx, tx, userID, cashAmount); err != nil {
			return err
		}
		if err := s.ledger.CreditCrypto(ctx, tx, userID, credited); err != nil {
			return err
		}
		price := rates.Buy
		return s.ops.Create(ctx, tx, store.OperationInput{
			ID:             operationID,
			UserID:         userID,
			Type:           store.OpMarketBuy,
			Status:         store.OpExecuted,
			CashAmount:     cashAmount,
			CryptoAmount:   credited,
			ExecutionPrice: &price,
		})
	})
	if err != nil {
		return "", err
	}
	s.broadcastBalances(ctx, userID)
	return operationID, nil
}

// MarketSell sells crypto at the current sell rate.
func (s *AccountService) MarketSell(ctx context.Context, userID string, cryptoAmount int64) (string, error) {
	if cryptoAmount <= 0 {
		return "", ErrInvalidAmount
	}
	rates, err := s.oracle.CurrentRates(ctx)
	if err != nil {
		return "", err
	}
	operationID := uuid.NewString()
	credited := money.CashFromCrypto(cryptoAmount, rates.Sell)
	if credited <= 0 {
		return "", ErrInvalidAmount
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.accounts.GetForUpdate(ctx, tx, userID); err != nil {
			return err
		}
		if err := s.ledger.DebitCrypto(ctx, tx, userID, cryptoAmount); err != nil {
			return err
		}
		if err := s.ledger.CreditCash(ctx, tx, userID, credited); err != nil {
			return err
		}
		price := rates.Sell
		return s.ops.Create(ctx, tx, store.OperationInput{
			ID:             operationID,
			UserID:         userID,
			Type:           store.OpMarketSell,
			Status:         store.OpExecuted,
			CashAmount:     credited,
			CryptoAmount:   cryptoAmount,
			ExecutionPrice: &price,
		})
	})
	if err != nil {
		return "", err
	}
	s.broadcastBalances(ctx, userID)
	return operationID, nil
}

func (s *AccountService) Balances(ctx context.Context, userID string) (store.Account, error) {
	return s.accounts.GetByUser(ctx, userID)
}

type SelfCheck struct {
	StoredReservedCash     int64 `json:"stored_reserved_cash"`
	ComputedReservedCash   int64 `json:"computed_reserved_cash"`
	StoredReservedCrypto   int64 `json:"stored_reserved_crypto"`
	ComputedReservedCrypto int64 `json:"computed_reserved_crypto"`
	Consistent             bool  `json:"consistent"`
}

// SelfCheckReservations recomputes the reserved balances from the operation
// log and any active loan's collateral and compares against the stored
// account row. Drift here means the reservation protocol was bypassed.
func (s *AccountService) SelfCheckReservations(ctx context.Context, userID string) (SelfCheck, error) {
	account, err := s.accounts.GetByUser(ctx, userID)
	if err != nil {
		return SelfCheck{}, err
	}
	pendingCash, pendingCrypto, err := s.ops.SumPendingReservations(ctx, userID)
	if err != nil {
		return SelfCheck{}, err
	}
	collateral := int64(0)
	loan, err := s.loans.GetActiveByUser(ctx, userID)
	if err == nil {
		collateral = loan.CollateralAmount
	} else if !isNoRows(err) {
		return SelfCheck{}, err
	}
	check := SelfCheck{
		StoredReservedCash:     account.ReservedCash,
		ComputedReservedCash:   pendingCash,
		StoredReservedCrypto:   account.ReservedCrypto,
		ComputedReservedCrypto: pendingCrypto + collateral,
	}
	check.Consistent = check.StoredReservedCash == check.ComputedReservedCash &&
		check.StoredReservedCrypto == check.ComputedReservedCrypto
	return check, nil
}

func (s *AccountService) broadcastBalances(ctx context.Context, userID string) {
	broadcastBalances(ctx, s.accounts, s.hub, s.log, userID)
}
