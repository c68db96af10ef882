package store

import (
	"context"
	"time"
)

type LoanStatus string

const (
	LoanActive LoanStatus = "ACTIVE"
	LoanClosed LoanStatus = "CLOSED"
)

// Loan is the single active collateralized position a user may hold.
// collateral_amount is satoshi and counts toward the account's reserved
// crypto; borrowed_amount, accrued_interest and interest_paid are cents.
// Rates and ratios are basis points.
type Loan struct {
	ID               string     `db:"id"`
	UserID           string     `db:"user_id"`
	Status           LoanStatus `db:"status"`
	CollateralAmount int64      `db:"collateral_amount"`
	BorrowedAmount   int64      `db:"borrowed_amount"`
	AccruedInterest  int64      `db:"accrued_interest"`
	InterestPaid     int64      `db:"interest_paid"`
	InterestRateBps  int64      `db:"interest_rate_bps"`
	MaxLTVBps        int64      `db:"max_ltv_bps"`
	MinInterestDays  int        `db:"min_interest_days"`
	OriginatedAt     time.Time  `db:"originated_at"`
	LastAccrualAt    time.Time  `db:"last_accrual_at"`
	ClosedAt         *time.Time `db:"closed_at"`
}

type LoanStore struct {
	db DB
}

func NewLoanStore(db DB) *LoanStore {
	return &LoanStore{db: db}
}

func (s *LoanStore) Create(ctx context.Context, tx Execer, loan Loan) error {
	query := `
		INSERT INTO loans (id, user_id, status, collateral_amount, borrowed_amount, accrued_interest,
		                   interest_paid, interest_rate_bps, max_ltv_bps, min_interest_days,
		                   originated_at, last_accrual_at)
		VALUES ($1, $2, 'ACTIVE', $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := tx.ExecContext(ctx, query,
		loan.ID, loan.UserID, loan.CollateralAmount, loan.BorrowedAmount, loan.AccruedInterest,
		loan.InterestPaid, loan.InterestRateBps, loan.MaxLTVBps, loan.MinInterestDays,
		loan.OriginatedAt, loan.LastAccrualAt,
	)
	return err
}

func (s *LoanStore) GetActiveByUser(ctx context.Context, userID string) (Loan, error) {
	var row Loan
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, status, collateral_amount, borrowed_amount, accrued_interest, interest_paid,
		       interest_rate_bps, max_ltv_bps, min_interest_days, originated_at, last_accrual_at, closed_at
		FROM loans
		WHERE user_id = $1 AND status = 'ACTIVE'
	`, userID)
	if err != nil {
		return Loan{}, err
	}
	return row, nil
}

func (s *LoanStore) GetActiveForUpdate(ctx context.Context, tx Getter, userID string) (Loan, error) {
	var row Loan
	err := tx.GetContext(ctx, &row, `
		SELECT id, user_id, status, collateral_amount, borrowed_amount, accrued_interest, interest_paid,
		       interest_rate_bps, max_ltv_bps, min_interest_days, originated_at, last_accrual_at, closed_at
		FROM loans
		WHERE user_id = $1 AND status = 'ACTIVE'
		FOR UPDATE
	`, userID)
	if err != nil {
		return Loan{}, err
	}
	return row, nil
}

func (s *LoanStore) ListActive(ctx context.Context) ([]Loan, error) {
	var rows []Loan
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, status, collateral_amount, borrowed_amount, accrued_interest, interest_paid,
		       interest_rate_bps, max_ltv_bps, min_interest_days, originated_at, last_accrual_at, closed_at
		FROM loans
		WHERE status = 'ACTIVE'
		ORDER BY originated_at ASC
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *LoanStore) UpdateAmounts(ctx context.Context, tx Execer, loanID string, collateral, borrowed, accrued, interestPaid int64, lastAccrualAt time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE loans
		SET collateral_amount = $1, borrowed_amount = $2, accrued_interest = $3,
		    interest_paid = $4, last_accrual_at = $5, updated_at = NOW()
		WHERE id = $6 AND status = 'ACTIVE'
	`, collateral, borrowed, accrued, interestPaid, lastAccrualAt, loanID)
	return err
}

// Close retires an active loan. The status guard makes concurrent closers
// (repay racing the liquidation monitor) single-winner.
func (s *LoanStore) Close(ctx context.Context, tx Execer, loanID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE loans
		SET status = 'CLOSED', collateral_amount = 0, borrowed_amount = 0, accrued_interest = 0,
		    closed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'ACTIVE'
	`, loanID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
