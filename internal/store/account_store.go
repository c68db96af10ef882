package store

import (
	"context"
	"time"
)

type AccountStore struct {
	db DB
}

// Account holds a user's ledger balances. All four fields are integer minor
// units: cash in cents, crypto in satoshi. Mutation goes through the ledger
// package only; this store is the read side plus row creation.
type Account struct {
	UserID          string    `db:"user_id"`
	AvailableCash   int64     `db:"available_cash"`
	ReservedCash    int64     `db:"reserved_cash"`
	AvailableCrypto int64     `db:"available_crypto"`
	ReservedCrypto  int64     `db:"reserved_crypto"`
	CreatedAt       time.Time `db:"created_at"`
}

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Create(ctx context.Context, tx Execer, userID string, openingCash int64) error {
	query := `
		INSERT INTO accounts (user_id, available_cash, reserved_cash, available_crypto, reserved_crypto)
		VALUES ($1, $2, 0, 0, 0)
	`
	_, err := tx.ExecContext(ctx, query, userID, openingCash)
	return err
}

func (s *AccountStore) GetByUser(ctx context.Context, userID string) (Account, error) {
	var row Account
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, available_cash, reserved_cash, available_crypto, reserved_crypto, created_at
		FROM accounts
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return Account{}, err
	}
	return row, nil
}

// GetForUpdate locks the account row for the duration of the surrounding
// transaction. Every balance-mutating path takes this lock first, which
// serializes mutations per user without any platform-wide lock.
func (s *AccountStore) GetForUpdate(ctx context.Context, tx Getter, userID string) (Account, error) {
	var row Account
	err := tx.GetContext(ctx, &row, `
		SELECT user_id, available_cash, reserved_cash, available_crypto, reserved_crypto
		FROM accounts
		WHERE user_id = $1
		FOR UPDATE
	`, userID)
	if err != nil {
		return Account{}, err
	}
	return row, nil
}
