package services

import (
	"context"
	"database/sql"
	"errors"

	"papertrade/internal/money"
	"papertrade/internal/websocket"

	"go.uber.org/zap"
)

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func broadcastBalances(ctx context.Context, accounts AccountStore, hub BalanceHub, log *zap.Logger, userID string) {
	account, err := accounts.GetByUser(ctx, userID)
	if err != nil {
		log.Warn("balance broadcast read failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	hub.BroadcastBalance(userID, websocket.BalanceUpdate{
		AvailableCash:   money.FormatCashMinor(account.AvailableCash),
		ReservedCash:    money.FormatCashMinor(account.ReservedCash),
		AvailableCrypto: money.FormatCryptoMinor(account.AvailableCrypto),
		ReservedCrypto:  money.FormatCryptoMinor(account.ReservedCrypto),
	})
}
