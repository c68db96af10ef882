package services

import (
	"context"
	"time"

	"papertrade/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// RunAccrualTick adds simple interest to every active loan with outstanding
// principal, in whole elapsed days since the loan's last accrual. The accrual
// timestamp only advances by the days actually charged, so partial days carry
// over to the next tick.
func (s *LoanService) RunAccrualTick(ctx context.Context) TickStats {
	var stats TickStats
	loans, err := s.loans.ListActive(ctx)
	if err != nil {
		s.log.Warn("accrual tick aborted, could not list loans", zap.Error(err))
		return stats
	}
	now := s.clock.Now()
	for _, loan := range loans {
		stats.Scanned++
		if loan.BorrowedAmount == 0 || now.Sub(loan.LastAccrualAt) < 24*time.Hour {
			stats.Skipped++
			continue
		}
		itemCtx, cancel := itemContext(ctx, s.itemTimeout)
		err := s.accrueOne(itemCtx, loan.UserID)
		cancel()
		if err != nil {
			stats.Failed++
			s.log.Error("interest accrual failed",
				zap.String("loan_id", loan.ID),
				zap.String("user_id", loan.UserID),
				zap.Error(err))
			continue
		}
		stats.Executed++
	}
	s.log.Info("accrual tick complete",
		zap.Int("scanned", stats.Scanned),
		zap.Int("accrued", stats.Executed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed))
	return stats
}

// accrueOne charges interest on a single loan under its row lock, re-reading
// the loan so a concurrent repay or liquidation is accounted for.
func (s *LoanService) accrueOne(ctx context.Context, userID string) error {
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		loan, err := s.loans.GetActiveForUpdate(ctx, tx, userID)
		if err != nil {
			if isNoRows(err) {
				// Closed between the scan and the lock.
				return nil
			}
			return err
		}
		now := s.clock.Now()
		days := int(now.Sub(loan.LastAccrualAt) / (24 * time.Hour))
		if days <= 0 || loan.BorrowedAmount == 0 {
			return nil
		}
		interest := interestFor(loan.BorrowedAmount, loan.InterestRateBps, days)
		if interest == 0 {
			return nil
		}
		newAccrual := loan.LastAccrualAt.Add(time.Duration(days) * 24 * time.Hour)
		if err := s.loans.UpdateAmounts(ctx, tx, loan.ID,
			loan.CollateralAmount, loan.BorrowedAmount, loan.AccruedInterest+interest,
			loan.InterestPaid, newAccrual); err != nil {
			return err
		}
		return s.ops.Create(ctx, tx, store.OperationInput{
			ID:         uuid.NewString(),
			UserID:     loan.UserID,
			Type:       store.OpInterestAccrual,
			Status:     store.OpExecuted,
			CashAmount: interest,
		})
	})
}

// RunRiskTick revalues every active loan at the current sell rate. Loans in
// the liquidation band are fully liquidated through the same path a manual
// full liquidation takes; loans in the warning band are only logged.
func (s *LoanService) RunRiskTick(ctx context.Context) TickStats {
	var stats TickStats
	rates, err := s.oracle.CurrentRates(ctx)
	if err != nil {
		s.log.Warn("risk tick aborted, no usable rates", zap.Error(err))
		return stats
	}
	loans, err := s.loans.ListActive(ctx)
	if err != nil {
		s.log.Warn("risk tick aborted, could not list loans", zap.Error(err))
		return stats
	}
	for _, loan := range loans {
		stats.Scanned++
		ltv := ltvBps(loan.BorrowedAmount, loan.CollateralAmount, rates.Sell)
		switch s.riskBand(ltv) {
		case RiskLiquidate:
			itemCtx, cancel := itemContext(ctx, s.itemTimeout)
			_, err := s.FullLiquidate(itemCtx, loan.UserID)
			cancel()
			if err != nil {
				if err == ErrConflict || err == ErrNoActiveLoan {
					stats.Skipped++
					continue
				}
				stats.Failed++
				s.log.Error("automatic liquidation failed",
					zap.String("loan_id", loan.ID),
					zap.String("user_id", loan.UserID),
					zap.Int64("ltv_bps", ltv),
					zap.Error(err))
				continue
			}
			stats.Executed++
			s.log.Info("loan liquidated",
				zap.String("loan_id", loan.ID),
				zap.String("user_id", loan.UserID),
				zap.Int64("ltv_bps", ltv),
				zap.Int64("sell_rate", rates.Sell))
		case RiskWarning:
			stats.Skipped++
			s.log.Warn("loan approaching liquidation threshold",
				zap.String("loan_id", loan.ID),
				zap.String("user_id", loan.UserID),
				zap.Int64("ltv_bps", ltv),
				zap.Int64("sell_rate", rates.Sell))
		default:
			stats.Skipped++
		}
	}
	s.log.Info("risk tick complete",
		zap.Int("scanned", stats.Scanned),
		zap.Int("liquidated", stats.Executed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed))
	return stats
}
