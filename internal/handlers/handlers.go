package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"papertrade/internal/money"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func parseCash(raw string) (int64, bool) {
	amount, err := money.ParseCashMinor(raw)
	if err != nil || amount <= 0 {
		return 0, false
	}
	return amount, true
}

func parseCrypto(raw string) (int64, bool) {
	amount, err := money.ParseCryptoMinor(raw)
	if err != nil || amount <= 0 {
		return 0, false
	}
	return amount, true
}

// parsePrice accepts a cash-denominated price per whole crypto unit.
func parsePrice(raw string) (int64, bool) {
	return parseCash(raw)
}

func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func optCashString(value *int64) *string {
	if value == nil {
		return nil
	}
	formatted := money.FormatCashMinor(*value)
	return &formatted
}
