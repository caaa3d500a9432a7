package parser

import (
	"strconv"
	"strings"

	"chatpay-core/internal/apperr"
	"chatpay-core/internal/ledgeraddr"
)

// ValidateAmount enforces spec §4.6's amount type: a decimal strictly
// greater than zero, at most 1,000,000, with at most 6 decimal places.
func ValidateAmount(raw string) (float64, error) {
	amt, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, apperr.Validationf("%q is not a valid amount", raw)
	}
	if amt <= 0 {
		return 0, apperr.Validationf("amount must be greater than zero")
	}
	if amt > 1_000_000 {
		return 0, apperr.Validationf("amount must not exceed 1,000,000")
	}
	if decimalPlaces(raw) > 6 {
		return 0, apperr.Validationf("amount may have at most 6 decimal places")
	}
	return amt, nil
}

func decimalPlaces(raw string) int {
	idx := strings.IndexByte(raw, '.')
	if idx < 0 {
		return 0
	}
	return len(strings.TrimSpace(raw)) - idx - 1
}

// ValidatePhone enforces spec §4.6's phone type: a leading '+' followed
// by 10-15 digits; a missing '+' is normalized rather than rejected.
func ValidatePhone(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", apperr.Validationf("phone number is required")
	}
	if !strings.HasPrefix(s, "+") {
		s = "+" + s
	}

	digits := s[1:]
	if len(digits) < 10 || len(digits) > 15 {
		return "", apperr.Validationf("phone number must have 10-15 digits")
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", apperr.Validationf("phone number must contain only digits after '+'")
		}
	}
	return s, nil
}

// ValidateAddress enforces spec §4.6's address type: a 58-character
// base32 (A-Z, 2-7) string with a valid embedded checksum.
func ValidateAddress(raw string) (string, error) {
	addr := strings.ToUpper(strings.TrimSpace(raw))
	if !ledgeraddr.Valid(addr) {
		return "", apperr.Validationf("%q is not a valid ledger address", raw)
	}
	return addr, nil
}
