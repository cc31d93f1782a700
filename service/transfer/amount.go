package transfer

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ToBaseUnits converts a user-entered decimal amount string to base units at
// the given precision, rounding to the nearest integer. The arithmetic is
// exact: "0.1" at 6 decimals is 100000, and "1.0000005" rounds to 1000001
// rather than truncating.
func ToBaseUnits(amount string, decimals int32) (uint64, error) {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return 0, fmt.Errorf("amount is required")
	}

	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", trimmed, err)
	}

	if d.Sign() <= 0 {
		return 0, fmt.Errorf("amount must be greater than zero")
	}

	scaled := d.Shift(decimals).Round(0)
	base := scaled.BigInt()

	if base.Sign() <= 0 {
		return 0, fmt.Errorf("amount %q is below the smallest transferable unit", trimmed)
	}
	if !base.IsUint64() {
		return 0, fmt.Errorf("amount %q exceeds the maximum transferable value", trimmed)
	}

	return base.Uint64(), nil
}

// FormatBaseUnits renders a base-unit amount as a decimal string at the given
// precision, with trailing zeros trimmed. Used for user-facing balances.
func FormatBaseUnits(amount uint64, decimals int32) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -decimals).String()
}
