// Package ledger is the reservation protocol: the only code path allowed to
// mutate the available/reserved balances on an account. Every primitive runs
// inside a caller-supplied transaction whose account row is already locked,
// and every decrement is guarded in the WHERE clause so a balance can never
// go negative: a guard miss surfaces as a typed error instead of a bad row.
package ledger

import (
	"context"
	"errors"

	"papertrade/internal/store"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInsufficientFunds = errors.New("insufficient available balance")
	// ErrInvariant means a reserved-balance decrement found less reserved
	// than the operation log says should be there. It is fatal for the
	// single operation, never propagated across users.
	ErrInvariant = errors.New("reserved balance invariant violation")
)

type Ledger struct{}

func New() *Ledger {
	return &Ledger{}
}

// ReserveCash moves cash from available to reserved, committing it to a
// pending operation.
func (l *Ledger) ReserveCash(ctx context.Context, tx store.Execer, userID string, amount int64) error {
	return l.guarded(ctx, tx, userID, amount, `
		UPDATE accounts
		SET available_cash = available_cash - $1, reserved_cash = reserved_cash + $1, updated_at = NOW()
		WHERE user_id = $2 AND available_cash >= $1
	`, ErrInsufficientFunds)
}

func (l *Ledger) ReserveCrypto(ctx context.Context, tx store.Execer, userID string, amount int64) error {
	return l.guarded(ctx, tx, userID, amount, `
		UPDATE accounts
		SET available_crypto = available_crypto - $1, reserved_crypto = reserved_crypto + $1, updated_at = NOW()
		WHERE user_id = $2 AND available_crypto >= $1
	`, ErrInsufficientFunds)
}

// ReleaseCash returns reserved cash to available (cancelled or expired
// operation, or unused remainder).
func (l *Ledger) ReleaseCash(ctx context.Context, tx store.Execer, userID string, amount int64) error {
	return l.guarded(ctx, tx, userID, amount, `
		UPDATE accounts
		SET reserved_cash = reserved_cash - $1, available_cash = available_cash + $1, updated_at = NOW()
		WHERE user_id = $2 AND reserved_cash >= $1
	`, ErrInvariant)
}

func (l *Ledger) ReleaseCrypto(ctx context.Context, tx store.Execer, userID string, amount int64) error {
	return l.guarded(ctx, tx, userID, amount, `
		UPDATE accounts
		SET reserved_crypto = reserved_crypto - $1, available_crypto = available_crypto + $1, updated_at = NOW()
		WHERE user_id = $2 AND reserved_crypto >= $1
	`, ErrInvariant)
}

// SettleReservedCash takes reserved cash out of the ledger entirely: the
// executed operation consumed it and credits the counter asset separately.
func (l *Ledger) SettleReservedCash(ctx context.Context, tx store.Execer, userID string, amount int64) error {
	return l.guarded(ctx, tx, userID, amount, `
		UPDATE accounts
		SET reserved_cash = reserved_cash - $1, updated_at = NOW()
		WHERE user_id = $2 AND reserved_cash >= $1
	`, ErrInvariant)
}

func (l *Ledger) SettleReservedCrypto(ctx context.Context, tx store.Execer, userID string, amount int64) error {
	return l.guarded(ctx, tx, userID, amount, `
		UPDATE accounts
		SET reserved_crypto = reserved_crypto - $1, updated_at = NOW()
		WHERE user_id = $2 AND reserved_crypto >= $1
	`, ErrInvariant)
}

func (l *Ledger) CreditCash(ctx context.Context, tx store.Execer, userID string, amount int64) error {
	return l.guarded(ctx, tx, userID, amount, `
		UPDATE accounts
		SET available_cash = available_cash + $1, updated_at = NOW()
		WHERE user_id = $2
	`, ErrInvariant)
}

func (l *Ledger) CreditCrypto(ctx context.Context, tx store.Execer, userID string, amount int64) error {
	return l.guarded(ctx, tx, userID, amount, `
		UPDATE accounts
		SET available_crypto = available_crypto + $1, updated_at = NOW()
		WHERE user_id = $2
	`, ErrInvariant)
}

func (l *Ledger) DebitCash(ctx context.Context, tx store.Execer, userID string, amount int64) error {
	return l.guarded(ctx, tx, userID, amount, `
		UPDATE accounts
		SET available_cash = available_cash - $1, updated_at = NOW()
		WHERE user_id = $2 AND available_cash >= $1
	`, ErrInsufficientFunds)
}

func (l *Ledger) DebitCrypto(ctx context.Context, tx store.Execer, userID string, amount int64) error {
	return l.guarded(ctx, tx, userID, amount, `
		UPDATE accounts
		SET available_crypto = available_crypto - $1, updated_at = NOW()
		WHERE user_id = $2 AND available_crypto >= $1
	`, ErrInsufficientFunds)
}

func (l *Ledger) guarded(ctx context.Context, tx store.Execer, userID string, amount int64, query string, miss error) error {
	if amount <= 0 {
		if amount == 0 {
			return nil
		}
		return ErrInvalidAmount
	}
	res, err := tx.ExecContext(ctx, query, amount, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return miss
	}
	return nil
}
