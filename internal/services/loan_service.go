package services

import (
	"context"
	"errors"
	"time"

	"papertrade/internal/db"
	"papertrade/internal/money"
	"papertrade/internal/oracle"
	"papertrade/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrNoActiveLoan = errors.New("no active loan")
	// ErrLoanLimit means the requested borrow would push the loan past its
	// maximum loan-to-value ratio.
	ErrLoanLimit          = errors.New("borrow would exceed maximum LTV")
	ErrCollateralExceeded = errors.New("amount exceeds collateral")
)

type RiskBand string

const (
	RiskSafe      RiskBand = "SAFE"
	RiskWarning   RiskBand = "WARNING"
	RiskLiquidate RiskBand = "LIQUIDATE"
)

// LoanPolicy carries the configured thresholds applied to every new loan.
// All ratios and rates are basis points.
type LoanPolicy struct {
	InterestRateBps int64
	MaxLTVBps       int64
	WarningLTVBps   int64
	LiquidateLTVBps int64
	MinInterestDays int
}

// LoanService is the collateralized lending state machine: NoLoan -> Active
// (deposit collateral) -> Active (borrow/repay/add-collateral) -> Closed
// (repaid or liquidated). Collateral is held as reserved crypto through the
// same reservation protocol the order book uses.
type LoanService struct {
	txRunner    db.TxRunner
	accounts    AccountStore
	ops         OperationStore
	loans       LoanStore
	ledger      Ledger
	oracle      oracle.Source
	hub         BalanceHub
	clock       Clock
	policy      LoanPolicy
	log         *zap.Logger
	itemTimeout time.Duration
}

func NewLoanService(txRunner db.TxRunner, accounts AccountStore, ops OperationStore, loans LoanStore, ledg Ledger, oracle oracle.Source, hub BalanceHub, clock Clock, policy LoanPolicy, log *zap.Logger) *LoanService {
	return &LoanService{
		txRunner: txRunner,
		accounts: accounts,
		ops:      ops,
		loans:    loans,
		ledger:   ledg,
		oracle:   oracle,
		hub:      hub,
		clock:    clock,
		policy:   policy,
		log:      log,
	}
}

// SetItemTimeout overrides the per-loan deadline applied within the accrual
// and risk ticks.
func (s *LoanService) SetItemTimeout(d time.Duration) {
	s.itemTimeout = d
}

// DepositCollateral opens a new loan on the first deposit, or adds to the
// active one. Adding collateral is always allowed: it only improves LTV.
func (s *LoanService) DepositCollateral(ctx context.Context, userID string, cryptoAmount int64) (string, error) {
	if cryptoAmount <= 0 {
		return "", ErrInvalidAmount
	}
	operationID := uuid.NewString()
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.accounts.GetForUpdate(ctx, tx, userID); err != nil {
			return err
		}
		if err := s.ledger.ReserveCrypto(ctx, tx, userID, cryptoAmount); err != nil {
			return err
		}
		loan, err := s.loans.GetActiveForUpdate(ctx, tx, userID)
		if err != nil {
			if !isNoRows(err) {
				return err
			}
			now := s.clock.Now()
			if err := s.loans.Create(ctx, tx, store.Loan{
				ID:               uuid.NewString(),
				UserID:           userID,
				CollateralAmount: cryptoAmount,
				InterestRateBps:  s.policy.InterestRateBps,
				MaxLTVBps:        s.policy.MaxLTVBps,
				MinInterestDays:  s.policy.MinInterestDays,
				OriginatedAt:     now,
				LastAccrualAt:    now,
			}); err != nil {
				return err
			}
			return s.ops.Create(ctx, tx, store.OperationInput{
				ID:           operationID,
				UserID:       userID,
				Type:         store.OpLoanCreate,
				Status:       store.OpExecuted,
				CryptoAmount: cryptoAmount,
			})
		}
		if err := s.loans.UpdateAmounts(ctx, tx, loan.ID,
			loan.CollateralAmount+cryptoAmount, loan.BorrowedAmount, loan.AccruedInterest,
			loan.InterestPaid, loan.LastAccrualAt); err != nil {
			return err
		}
		return s.ops.Create(ctx, tx, store.OperationInput{
			ID:           operationID,
			UserID:       userID,
			Type:         store.OpLoanAddCollateral,
			Status:       store.OpExecuted,
			CryptoAmount: cryptoAmount,
		})
	})
	if err != nil {
		return "", err
	}
	broadcastBalances(ctx, s.accounts, s.hub, s.log, userID)
	return operationID, nil
}

// Borrow credits cash against the collateral. Rejected when the resulting
// LTV would exceed the loan's configured ceiling.
func (s *LoanService) Borrow(ctx context.Context, userID string, cashAmount int64) (string, error) {
	if cashAmount <= 0 {
		return "", ErrInvalidAmount
	}
	rates, err := s.oracle.CurrentRates(ctx)
	if err != nil {
		return "", err
	}
	operationID := uuid.NewString()
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.accounts.GetForUpdate(ctx, tx, userID); err != nil {
			return err
		}
		loan, err := s.loans.GetActiveForUpdate(ctx, tx, userID)
		if err != nil {
			if isNoRows(err) {
				return ErrNoActiveLoan
			}
			return err
		}
		newBorrowed := loan.BorrowedAmount + cashAmount
		if ltvBps(newBorrowed, loan.CollateralAmount, rates.Sell) > loan.MaxLTVBps {
			return ErrLoanLimit
		}
		if err := s.ledger.CreditCash(ctx, tx, userID, cashAmount); err != nil {
			return err
		}
		if err := s.loans.UpdateAmounts(ctx, tx, loan.ID,
			loan.CollateralAmount, newBorrowed, loan.AccruedInterest,
			loan.InterestPaid, loan.LastAccrualAt); err != nil {
			return err
		}
		return s.ops.Create(ctx, tx, store.OperationInput{
			ID:         operationID,
			UserID:     userID,
			Type:       store.OpLoanBorrow,
			Status:     store.OpExecuted,
			CashAmount: cashAmount,
		})
	})
	if err != nil {
		return "", err
	}
	broadcastBalances(ctx, s.accounts, s.hub, s.log, userID)
	return operationID, nil
}

// Repay pays down accrued interest first, then principal, capped at the
// amount owed. Closing the loan before its minimum interest window elapses
// first tops accrued interest up to the window's floor.
func (s *LoanService) Repay(ctx context.Context, userID string, cashAmount int64) (string, error) {
	if cashAmount <= 0 {
		return "", ErrInvalidAmount
	}
	operationID := uuid.NewString()
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.accounts.GetForUpdate(ctx, tx, userID); err != nil {
			return err
		}
		loan, err := s.loans.GetActiveForUpdate(ctx, tx, userID)
		if err != nil {
			if isNoRows(err) {
				return ErrNoActiveLoan
			}
			return err
		}
		accrued := loan.AccruedInterest
		if cashAmount >= loan.BorrowedAmount+accrued {
			accrued += s.minimumInterestTopUp(loan)
		}
		owed := loan.BorrowedAmount + accrued
		payment := cashAmount
		if payment > owed {
			payment = owed
		}
		if err := s.ledger.DebitCash(ctx, tx, userID, payment); err != nil {
			return err
		}
		interestPart := payment
		if interestPart > accrued {
			interestPart = accrued
		}
		principalPart := payment - interestPart
		newAccrued := accrued - interestPart
		newBorrowed := loan.BorrowedAmount - principalPart
		if err := s.ops.Create(ctx, tx, store.OperationInput{
			ID:         operationID,
			UserID:     userID,
			Type:       store.OpLoanRepay,
			Status:     store.OpExecuted,
			CashAmount: payment,
		}); err != nil {
			return err
		}
		if err := s.loans.UpdateAmounts(ctx, tx, loan.ID,
			loan.CollateralAmount, newBorrowed, newAccrued,
			loan.InterestPaid+interestPart, loan.LastAccrualAt); err != nil {
			return err
		}
		if newBorrowed == 0 && newAccrued == 0 {
			return s.closeLoan(ctx, tx, loan, loan.CollateralAmount)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	broadcastBalances(ctx, s.accounts, s.hub, s.log, userID)
	return operationID, nil
}

// PartialLiquidate sells the given collateral amount at the current sell
// rate, applying proceeds to principal first and interest second. Any
// surplus goes to available cash; when nothing is owed afterwards the loan
// closes and the remaining collateral is released.
func (s *LoanService) PartialLiquidate(ctx context.Context, userID string, cryptoAmount int64) (string, error) {
	if cryptoAmount <= 0 {
		return "", ErrInvalidAmount
	}
	rates, err := s.oracle.CurrentRates(ctx)
	if err != nil {
		return "", err
	}
	operationID := uuid.NewString()
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.accounts.GetForUpdate(ctx, tx, userID); err != nil {
			return err
		}
		loan, err := s.loans.GetActiveForUpdate(ctx, tx, userID)
		if err != nil {
			if isNoRows(err) {
				return ErrNoActiveLoan
			}
			return err
		}
		if cryptoAmount > loan.CollateralAmount {
			return ErrCollateralExceeded
		}
		proceeds := money.CashFromCrypto(cryptoAmount, rates.Sell)
		if proceeds >= loan.BorrowedAmount+loan.AccruedInterest {
			// The sale retires the debt, so the minimum-interest floor
			// applies the same way it does on an early repay.
			loan.AccruedInterest += s.minimumInterestTopUp(loan)
		}
		return s.applyLiquidation(ctx, tx, loan, store.OpPartialLiquidation, operationID, cryptoAmount, proceeds, rates.Sell, false)
	})
	if err != nil {
		return "", err
	}
	broadcastBalances(ctx, s.accounts, s.hub, s.log, userID)
	return operationID, nil
}

// FullLiquidate sells exactly enough collateral to cover principal plus
// interest (with the minimum-interest floor applied), returns the remainder,
// and closes the loan. System-triggered liquidation goes through this same
// path.
func (s *LoanService) FullLiquidate(ctx context.Context, userID string) (string, error) {
	rates, err := s.oracle.CurrentRates(ctx)
	if err != nil {
		return "", err
	}
	operationID := uuid.NewString()
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.accounts.GetForUpdate(ctx, tx, userID); err != nil {
			return err
		}
		loan, err := s.loans.GetActiveForUpdate(ctx, tx, userID)
		if err != nil {
			if isNoRows(err) {
				return ErrNoActiveLoan
			}
			return err
		}
		accrued := loan.AccruedInterest + s.minimumInterestTopUp(loan)
		owed := loan.BorrowedAmount + accrued
		toSell := money.CryptoToCoverCash(owed, rates.Sell)
		if toSell > loan.CollateralAmount {
			// Underwater: everything is sold, the shortfall is written
			// off. The paper platform absorbs it.
			toSell = loan.CollateralAmount
		}
		proceeds := money.CashFromCrypto(toSell, rates.Sell)
		loanWithFloor := loan
		loanWithFloor.AccruedInterest = accrued
		return s.applyLiquidation(ctx, tx, loanWithFloor, store.OpFullLiquidation, operationID, toSell, proceeds, rates.Sell, true)
	})
	if err != nil {
		return "", err
	}
	broadcastBalances(ctx, s.accounts, s.hub, s.log, userID)
	return operationID, nil
}

// applyLiquidation consumes sold collateral from the reserved balance,
// applies proceeds to principal then interest, credits any surplus, and
// closes the loan when nothing remains owed (always, for a full
// liquidation).
func (s *LoanService) applyLiquidation(ctx context.Context, tx *sqlx.Tx, loan store.Loan, opType store.OpType, operationID string, soldCrypto, proceeds, price int64, closing bool) error {
	if err := s.ledger.SettleReservedCrypto(ctx, tx, loan.UserID, soldCrypto); err != nil {
		return err
	}
	principalPart := proceeds
	if principalPart > loan.BorrowedAmount {
		principalPart = loan.BorrowedAmount
	}
	interestPart := proceeds - principalPart
	if interestPart > loan.AccruedInterest {
		interestPart = loan.AccruedInterest
	}
	surplus := proceeds - principalPart - interestPart
	newBorrowed := loan.BorrowedAmount - principalPart
	newAccrued := loan.AccruedInterest - interestPart
	if surplus > 0 {
		if err := s.ledger.CreditCash(ctx, tx, loan.UserID, surplus); err != nil {
			return err
		}
	}
	if err := s.ops.Create(ctx, tx, store.OperationInput{
		ID:             operationID,
		UserID:         loan.UserID,
		Type:           opType,
		Status:         store.OpExecuted,
		CashAmount:     proceeds,
		CryptoAmount:   soldCrypto,
		ExecutionPrice: &price,
	}); err != nil {
		return err
	}
	remainingCollateral := loan.CollateralAmount - soldCrypto
	if err := s.loans.UpdateAmounts(ctx, tx, loan.ID,
		remainingCollateral, newBorrowed, newAccrued,
		loan.InterestPaid+interestPart, loan.LastAccrualAt); err != nil {
		return err
	}
	if closing || (newBorrowed == 0 && newAccrued == 0) {
		return s.closeLoan(ctx, tx, loan, remainingCollateral)
	}
	return nil
}

// closeLoan releases the remaining collateral back to available crypto and
// retires the loan row. Guarded close keeps a repay racing the risk monitor
// single-winner.
func (s *LoanService) closeLoan(ctx context.Context, tx *sqlx.Tx, loan store.Loan, remainingCollateral int64) error {
	affected, err := s.loans.Close(ctx, tx, loan.ID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConflict
	}
	return s.ledger.ReleaseCrypto(ctx, tx, loan.UserID, remainingCollateral)
}

// minimumInterestTopUp returns the extra interest needed to reach the
// minimum-window floor when the loan closes before min_interest_days have
// elapsed. The floor is computed on the outstanding principal.
func (s *LoanService) minimumInterestTopUp(loan store.Loan) int64 {
	elapsed := s.clock.Now().Sub(loan.OriginatedAt)
	if elapsed >= time.Duration(loan.MinInterestDays)*24*time.Hour {
		return 0
	}
	floor := interestFor(loan.BorrowedAmount, loan.InterestRateBps, loan.MinInterestDays)
	charged := loan.AccruedInterest + loan.InterestPaid
	if charged >= floor {
		return 0
	}
	return floor - charged
}

// interestFor computes simple interest in cash minor units for the given
// number of days at an annual rate in basis points.
func interestFor(principal, rateBps int64, days int) int64 {
	return decimal.NewFromInt(principal).
		Mul(decimal.NewFromInt(rateBps)).
		Mul(decimal.NewFromInt(int64(days))).
		Div(decimal.NewFromInt(10000 * 365)).
		RoundBank(0).
		IntPart()
}

// ltvBps is borrowed cash over collateral market value, in basis points.
// Valuation uses the sell rate: that is what liquidation would realize.
func ltvBps(borrowed, collateral, price int64) int64 {
	if collateral <= 0 || price <= 0 {
		if borrowed > 0 {
			return 1 << 30
		}
		return 0
	}
	value := money.CashFromCrypto(collateral, price)
	if value <= 0 {
		return 1 << 30
	}
	return decimal.NewFromInt(borrowed).
		Mul(decimal.NewFromInt(10000)).
		Div(decimal.NewFromInt(value)).
		Ceil().
		IntPart()
}

// LoanStatus is the read model: stored loan fields plus the risk figures
// derived from the latest oracle rates.
type LoanStatus struct {
	Loan             store.Loan
	CurrentLTVBps    int64
	LiquidationPrice int64
	Risk             RiskBand
}

func (s *LoanService) Status(ctx context.Context, userID string) (LoanStatus, error) {
	loan, err := s.loans.GetActiveByUser(ctx, userID)
	if err != nil {
		if isNoRows(err) {
			return LoanStatus{}, ErrNoActiveLoan
		}
		return LoanStatus{}, err
	}
	rates, err := s.oracle.CurrentRates(ctx)
	if err != nil {
		return LoanStatus{}, err
	}
	ltv := ltvBps(loan.BorrowedAmount, loan.CollateralAmount, rates.Sell)
	return LoanStatus{
		Loan:             loan,
		CurrentLTVBps:    ltv,
		LiquidationPrice: s.liquidationPrice(loan),
		Risk:             s.riskBand(ltv),
	}, nil
}

// liquidationPrice is the sell rate at which the loan's LTV reaches the
// liquidation threshold.
func (s *LoanService) liquidationPrice(loan store.Loan) int64 {
	if loan.CollateralAmount <= 0 || loan.BorrowedAmount <= 0 {
		return 0
	}
	return decimal.NewFromInt(loan.BorrowedAmount).
		Mul(decimal.NewFromInt(10000)).
		Mul(decimal.NewFromInt(money.SatsPerUnit)).
		Div(decimal.NewFromInt(s.policy.LiquidateLTVBps)).
		Div(decimal.NewFromInt(loan.CollateralAmount)).
		Ceil().
		IntPart()
}

func (s *LoanService) riskBand(ltv int64) RiskBand {
	switch {
	case ltv >= s.policy.LiquidateLTVBps:
		return RiskLiquidate
	case ltv >= s.policy.WarningLTVBps:
		return RiskWarning
	default:
		return RiskSafe
	}
}
